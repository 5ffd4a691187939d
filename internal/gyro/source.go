package gyro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ratefilter/internal/filter"
	"ratefilter/internal/replay"
	"ratefilter/internal/sensors/icm20948"
	"ratefilter/internal/sim"
)

// Sample is one raw gyro reading handed to the filter.
type Sample struct {
	At   time.Duration // since the source started
	Rate filter.Triple
}

// Source delivers raw samples at the filter's sample rate. Next blocks until
// the next sample is due and returns io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Sample, error)
}

// ticker paces sources that have no clock of their own.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTicker(period time.Duration) ticker {
	return timeTicker{t: time.NewTicker(period)}
}

// SimSource emits synthetic samples, optionally paced in real time.
type SimSource struct {
	gen   *sim.Generator
	limit int
	tick  ticker
	n     int
}

// NewSimSource returns a source for g. limit > 0 ends the stream after
// that many samples. pace ties emission to g's sample rate.
func NewSimSource(g sim.Gyro, limit int, pace bool) *SimSource {
	s := &SimSource{gen: sim.NewGenerator(g), limit: limit}
	if pace {
		s.tick = newTicker(g.Offset(1))
	}
	return s
}

func (s *SimSource) Next(ctx context.Context) (Sample, error) {
	if s.limit > 0 && s.n >= s.limit {
		return Sample{}, io.EOF
	}
	if s.tick != nil {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-s.tick.C():
		}
	} else if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	_, at, v := s.gen.Next()
	s.n++
	return Sample{At: at, Rate: v}, nil
}

func (s *SimSource) Close() error {
	if s.tick != nil {
		s.tick.Stop()
	}
	return nil
}

// ReplaySource feeds a recorded sample log with its recorded timing.
type ReplaySource struct {
	p *replay.Player
}

func NewReplaySource(records []replay.Record, speed float64, loop bool, sleeper replay.Sleeper) (*ReplaySource, error) {
	p, err := replay.NewPlayer(records, speed, loop, sleeper)
	if err != nil {
		return nil, fmt.Errorf("gyro: replay: %w", err)
	}
	return &ReplaySource{p: p}, nil
}

func (s *ReplaySource) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	rec, err := s.p.Next()
	if err != nil {
		return Sample{}, err
	}
	return Sample{At: rec.At, Rate: rec.Rate}, nil
}

type gyroReader interface {
	ReadGyro() (icm20948.Sample, error)
}

// EdgeLine delivers data-ready edges and counts the ones it had to drop.
type EdgeLine interface {
	Events() <-chan time.Duration
	Dropped() uint64
}

// IMUSource reads a gyro on every data-ready edge, or on a ticker when no
// interrupt line is wired.
type IMUSource struct {
	dev   gyroReader
	line  EdgeLine
	edges <-chan time.Duration
	tick  ticker
	start time.Time
}

// NewIMUSource paces reads with line when non-nil, otherwise with period.
func NewIMUSource(dev *icm20948.Device, line EdgeLine, period time.Duration) (*IMUSource, error) {
	if dev == nil {
		return nil, errors.New("gyro: imu device is nil")
	}
	return newIMUSource(dev, line, period), nil
}

func newIMUSource(dev gyroReader, line EdgeLine, period time.Duration) *IMUSource {
	s := &IMUSource{dev: dev, line: line}
	if line != nil {
		s.edges = line.Events()
	} else {
		s.tick = newTicker(period)
	}
	return s
}

// Dropped reports data-ready edges lost before a read could start.
func (s *IMUSource) Dropped() uint64 {
	if s.line == nil {
		return 0
	}
	return s.line.Dropped()
}

func (s *IMUSource) Next(ctx context.Context) (Sample, error) {
	if s.edges != nil {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-s.edges:
		}
	} else {
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-s.tick.C():
		}
	}
	r, err := s.dev.ReadGyro()
	if err != nil {
		return Sample{}, err
	}
	if s.start.IsZero() {
		s.start = r.Time
	}
	return Sample{At: r.Time.Sub(s.start), Rate: filter.Triple{r.Gx, r.Gy, r.Gz}}, nil
}

func (s *IMUSource) Close() error {
	if s.tick != nil {
		s.tick.Stop()
	}
	return nil
}
