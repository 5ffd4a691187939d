package gyro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/time/rate"

	"ratefilter/internal/filter"
)

const (
	// maxConsecutiveErrors ends Run when the source keeps failing.
	maxConsecutiveErrors = 100

	// DefaultZeroDriftSamples is used by ZeroDrift when samples <= 0.
	DefaultZeroDriftSamples = 2000
)

type Config struct {
	Params filter.Params
	// SummaryInterval paces the periodic info log. Zero disables it.
	SummaryInterval time.Duration
	LoggerFactory   logging.LoggerFactory
}

// Output is one filtered cycle as handed to sinks.
type Output struct {
	Seq      uint32
	At       time.Duration
	Raw      filter.Triple // as read from the source, before bias removal
	Filtered filter.Triple
}

// Sink consumes outputs on the filter goroutine. A returned error is logged
// and does not stop the run.
type Sink func(Output) error

type Snapshot struct {
	Valid   bool
	Samples uint64

	Raw      filter.Triple
	Filtered filter.Triple
	Stats    filter.Stats
	Axes     [3]filter.AxisState

	Bias    filter.Triple
	BiasSet bool

	// DroppedEdges counts data-ready edges the source could not keep up
	// with. Zero for sources without an interrupt line.
	DroppedEdges uint64

	LastError string
	UpdatedAt time.Time
}

type zeroDriftReq struct {
	ctx     context.Context
	samples int
	done    chan error
}

// dropCounter is implemented by sources that can miss samples.
type dropCounter interface {
	Dropped() uint64
}

type Service struct {
	cfg  Config
	bank *filter.Bank
	log  logging.LeveledLogger

	sinks []Sink

	zeroDriftCh chan zeroDriftReq
	running     atomic.Bool

	mu   sync.RWMutex
	snap Snapshot
	bias filter.Triple

	now func() time.Time
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("gyro: %w", err)
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Service{
		cfg:         cfg,
		bank:        filter.New(cfg.Params, filter.WithLoggerFactory(cfg.LoggerFactory)),
		log:         cfg.LoggerFactory.NewLogger("gyro"),
		zeroDriftCh: make(chan zeroDriftReq, 1),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// AddSink registers fn for every subsequent output. Not safe to call while
// Run is active.
func (s *Service) AddSink(fn Sink) {
	if fn != nil {
		s.sinks = append(s.sinks, fn)
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ZeroDrift averages the next samples raw readings, which must be taken with
// the gyro stationary, and subtracts the result from all later samples.
// Cancelling ctx abandons the calibration and leaves the bias unchanged.
func (s *Service) ZeroDrift(ctx context.Context, samples int) error {
	if s == nil {
		return fmt.Errorf("gyro: service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("gyro: ctx is nil")
	}
	if !s.running.Load() {
		return fmt.Errorf("gyro: service not running")
	}
	if samples <= 0 {
		samples = DefaultZeroDriftSamples
	}

	done := make(chan error, 1)
	select {
	case s.zeroDriftCh <- zeroDriftReq{ctx: ctx, samples: samples, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("gyro: zero drift already in progress")
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run pulls samples from src until ctx is cancelled or src is exhausted.
// io.EOF from src ends the run without error.
func (s *Service) Run(ctx context.Context, src Source) error {
	if src == nil {
		return fmt.Errorf("gyro: source is nil")
	}
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("gyro: already running")
	}
	defer s.running.Store(false)

	var summary *rate.Sometimes
	if s.cfg.SummaryInterval > 0 {
		summary = &rate.Sometimes{Interval: s.cfg.SummaryInterval}
	}
	warn := rate.NewLimiter(rate.Every(time.Second), 3)
	drops, _ := src.(dropCounter)

	// Zero drift calibration state.
	var cal *zeroDriftReq
	var calSum filter.Triple
	var calN int
	defer func() {
		if cal != nil {
			cal.done <- fmt.Errorf("gyro: run ended during zero drift")
		}
	}()

	var failures int
	for {
		select {
		case req := <-s.zeroDriftCh:
			if cal != nil {
				req.done <- fmt.Errorf("gyro: zero drift already in progress")
				break
			}
			if err := req.ctx.Err(); err != nil {
				req.done <- err
				break
			}
			cal = &req
			calSum = filter.Triple{}
			calN = 0
		default:
		}
		if cal != nil {
			if err := cal.ctx.Err(); err != nil {
				s.log.Infof("zero drift abandoned after %d of %d samples: %v", calN, cal.samples, err)
				cal.done <- err
				cal = nil
			}
		}

		smp, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Infof("source exhausted after %d samples", s.bank.Cycles())
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failures++
			s.setErr(err.Error())
			if warn.Allow() {
				s.log.Warnf("source read failed (%d in a row): %v", failures, err)
			}
			if failures >= maxConsecutiveErrors {
				return fmt.Errorf("gyro: source failed %d times in a row: %w", failures, err)
			}
			continue
		}
		failures = 0

		if cal != nil {
			for a := range calSum {
				calSum[a] += smp.Rate[a]
			}
			calN++
			if calN >= cal.samples {
				var bias filter.Triple
				for a := range bias {
					bias[a] = calSum[a] / float64(calN)
				}
				s.mu.Lock()
				s.bias = bias
				s.snap.Bias = bias
				s.snap.BiasSet = true
				s.mu.Unlock()
				s.log.Infof("zero drift: bias=%.4f,%.4f,%.4f dps over %d samples", bias[0], bias[1], bias[2], calN)
				cal.done <- nil
				cal = nil
			}
		}

		var dropped uint64
		if drops != nil {
			dropped = drops.Dropped()
		}
		out := s.step(smp, dropped)
		for _, sink := range s.sinks {
			if err := sink(out); err != nil {
				s.setErr(err.Error())
				if warn.Allow() {
					s.log.Warnf("sink failed: %v", err)
				}
			}
		}
		if summary != nil {
			summary.Do(func() { s.logSummary() })
		}
	}
}

func (s *Service) step(smp Sample, dropped uint64) Output {
	s.mu.RLock()
	bias := s.bias
	s.mu.RUnlock()

	in := smp.Rate
	for a := range in {
		in[a] -= bias[a]
	}
	filtered := s.bank.Update(in)

	var axes [3]filter.AxisState
	for a := range axes {
		axes[a] = s.bank.Axis(filter.Axis(a))
	}

	s.mu.Lock()
	s.snap.Valid = true
	s.snap.Samples = s.bank.Cycles()
	s.snap.Raw = smp.Rate
	s.snap.Filtered = filtered
	s.snap.Stats = s.bank.Stats()
	s.snap.Axes = axes
	s.snap.DroppedEdges = dropped
	s.snap.LastError = ""
	s.snap.UpdatedAt = s.now()
	s.mu.Unlock()

	return Output{
		Seq:      uint32(s.bank.Cycles()),
		At:       smp.At,
		Raw:      smp.Rate,
		Filtered: filtered,
	}
}

func (s *Service) logSummary() {
	snap := s.Snapshot()
	s.log.Infof("samples=%d dropped=%d raw=%.2f,%.2f,%.2f filtered=%.2f,%.2f,%.2f r=%.3f,%.3f,%.3f",
		snap.Samples, snap.DroppedEdges,
		snap.Raw[0], snap.Raw[1], snap.Raw[2],
		snap.Filtered[0], snap.Filtered[1], snap.Filtered[2],
		snap.Axes[0].MeasurementNoise, snap.Axes[1].MeasurementNoise, snap.Axes[2].MeasurementNoise)
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.Valid = false
	s.snap.UpdatedAt = s.now()
}
