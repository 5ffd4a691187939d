//go:build !linux || (!arm && !arm64)

package drdy

import "fmt"

// Open is unsupported off Linux/ARM.
func Open(lineName string) (*Line, error) {
	return nil, fmt.Errorf("drdy: gpio unsupported on this platform")
}
