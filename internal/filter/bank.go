package filter

import (
	"fmt"
	"math"

	"github.com/pion/logging"
)

const (
	// DefaultVarianceScale is the empirically tuned factor between the
	// windowed variance sum and the Kalman measurement noise.
	DefaultVarianceScale = 0.67

	// MaxWindow bounds the window length accepted by Validate.
	MaxWindow = 512
)

// Params configures a Bank. They are read once by New.
type Params struct {
	// ProcessNoise holds the per-axis q coefficients, scaled by 0.001.
	ProcessNoise  Triple
	Window        int
	VarianceScale float64 // 0 selects DefaultVarianceScale
	Eviction      Eviction
}

// Validate reports the first parameter New would misbehave on.
func (p Params) Validate() error {
	if p.Window < 1 || p.Window > MaxWindow {
		return fmt.Errorf("window must be between 1 and %d", MaxWindow)
	}
	for a, q := range p.ProcessNoise {
		if !(q > 0) || math.IsInf(q, 0) {
			return fmt.Errorf("%s process noise must be > 0", Axis(a))
		}
	}
	if p.VarianceScale < 0 || math.IsNaN(p.VarianceScale) || math.IsInf(p.VarianceScale, 0) {
		return fmt.Errorf("variance scale must be > 0")
	}
	if p.Eviction != EvictLagged && p.Eviction != EvictExact {
		return fmt.Errorf("unknown eviction %d", int(p.Eviction))
	}
	return nil
}

// Option customizes a Bank.
type Option func(*Bank)

// WithLoggerFactory sets the logger factory for the bank.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(b *Bank) {
		b.log = f.NewLogger("ratefilter")
	}
}

// Bank runs the rolling statistics and the three axis filters for one
// gyro. Every call to Update is a bounded, allocation-free computation.
type Bank struct {
	stats  *RollingStatistics
	axes   [3]AxisFilter
	scale  float64
	last   Stats
	cycles uint64

	log logging.LeveledLogger
}

// New builds a Bank from p. p must satisfy Validate.
func New(p Params, opts ...Option) *Bank {
	scale := p.VarianceScale
	if scale == 0 {
		scale = DefaultVarianceScale
	}
	b := &Bank{
		stats: NewRollingStatistics(p.Window, p.Eviction),
		scale: scale,
	}
	for a := range b.axes {
		b.axes[a] = NewAxisFilter(p.ProcessNoise[a])
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.NewDefaultLoggerFactory().NewLogger("ratefilter")
	}
	b.log.Debugf("bank ready: window=%d eviction=%s q=%v scale=%v", p.Window, p.Eviction, p.ProcessNoise, scale)
	return b
}

// Update filters one raw sample.
func (b *Bank) Update(raw Triple) Triple {
	s := b.stats.Ingest(raw)
	r := s.MeasurementNoise(b.scale)

	var out Triple
	for a := Yaw; a >= Roll; a-- {
		b.axes[a].SetMeasurementNoise(r[a])
		out[a] = b.axes[a].Update(raw[a])
	}
	b.last = s
	b.cycles++
	return out
}

// Stats returns the statistics computed by the last Update.
func (b *Bank) Stats() Stats { return b.last }

func (b *Bank) Axis(a Axis) AxisState { return b.axes[a].State() }

func (b *Bank) Cycles() uint64 { return b.cycles }

func (b *Bank) VarianceScale() float64 { return b.scale }

// WindowContents returns the raw window oldest first.
func (b *Bank) WindowContents() []Triple { return b.stats.Window().Contents() }
