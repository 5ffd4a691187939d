//go:build linux && (arm || arm64)

package drdy

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests the named GPIO line (e.g. "GPIO24") as a rising-edge input.
func Open(lineName string) (*Line, error) {
	if lineName == "" {
		return nil, fmt.Errorf("drdy: line name is empty")
	}
	chip, offset, err := gpiocdev.FindLine(lineName)
	if err != nil {
		return nil, fmt.Errorf("drdy: gpio line %q not found: %w", lineName, err)
	}

	l := newLine(16)
	req, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithConsumer("ratefilter-drdy"),
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			l.deliver(evt.Timestamp)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("drdy: request %s/%d: %w", chip, offset, err)
	}
	l.closeFn = req.Close
	return l, nil
}
