// Package filter implements the adaptive gyro rate filter: a rolling window
// of raw samples whose variance and covariance drive the measurement noise of
// three scalar Kalman filters, one per axis.
//
// Nothing in this package is safe for concurrent use. A Bank is meant to be
// owned by a single sampling loop.
package filter

import "fmt"

// Axis indexes a Triple.
type Axis int

const (
	Roll Axis = iota
	Pitch
	Yaw
)

func (a Axis) String() string {
	switch a {
	case Roll:
		return "roll"
	case Pitch:
		return "pitch"
	case Yaw:
		return "yaw"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Pair indexes the cross terms of a Triple.
type Pair int

const (
	XY Pair = iota
	XZ
	YZ
)

// pairAxes maps a Pair to the two axes it multiplies.
var pairAxes = [3][2]Axis{
	XY: {Roll, Pitch},
	XZ: {Roll, Yaw},
	YZ: {Pitch, Yaw},
}

// Triple is one 3-axis angular rate (roll, pitch, yaw) in sensor units.
type Triple [3]float64
