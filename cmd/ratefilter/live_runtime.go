package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pion/logging"

	"ratefilter/internal/config"
	"ratefilter/internal/frame"
	"ratefilter/internal/gyro"
	"ratefilter/internal/i2c"
	"ratefilter/internal/replay"
	"ratefilter/internal/sensors/drdy"
	"ratefilter/internal/sensors/icm20948"
	"ratefilter/internal/sim"
	"ratefilter/internal/udp"
	"ratefilter/internal/web"
)

type liveRuntime struct {
	cfg     config.Config
	svc     *gyro.Service
	src     gyro.Source
	status  *web.Status
	log     logging.LeveledLogger
	closers []io.Closer
}

func logLevel(name string) logging.LogLevel {
	switch name {
	case "error":
		return logging.LogLevelError
	case "warn":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

func newLoggerFactory(cfg config.LogConfig) *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = logLevel(cfg.Level)
	return f
}

func newLiveRuntime(cfg config.Config) (*liveRuntime, error) {
	params, err := cfg.FilterParams()
	if err != nil {
		return nil, err
	}
	factory := newLoggerFactory(cfg.Log)
	rt := &liveRuntime{cfg: cfg, log: factory.NewLogger("runtime")}
	svc, err := gyro.New(gyro.Config{
		Params:          params,
		SummaryInterval: cfg.Log.SummaryInterval,
		LoggerFactory:   factory,
	})
	if err != nil {
		return nil, err
	}
	rt.svc = svc

	rt.src, err = rt.openSource()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openSinks(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.status = web.NewStatus()
	rt.status.SetSamplePeriod(cfg.SamplePeriod())
	rt.status.SetStatic(cfg.Source.Kind, cfg.Output.UDPDest, map[string]any{
		"roll_q":         cfg.Filter.RollQ,
		"pitch_q":        cfg.Filter.PitchQ,
		"yaw_q":          cfg.Filter.YawQ,
		"window":         cfg.Filter.Window,
		"variance_scale": cfg.Filter.VarianceScale,
		"eviction":       params.Eviction.String(),
		"rate_hz":        cfg.Source.RateHz,
	})
	return rt, nil
}

// Run serves the status API, if configured, for as long as the filter runs.
func (rt *liveRuntime) Run(ctx context.Context) error {
	if addr := rt.cfg.Web.Listen; addr != "" {
		webCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			rt.log.Infof("web listening on %s", addr)
			if err := web.Serve(webCtx, addr, rt.status, rt.svc); err != nil && webCtx.Err() == nil {
				rt.log.Errorf("web server stopped: %v", err)
			}
		}()
	}
	return rt.svc.Run(ctx, rt.src)
}

// Close releases sinks and hardware in reverse order of acquisition.
func (rt *liveRuntime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
	rt.closers = nil
}

func (rt *liveRuntime) openSource() (gyro.Source, error) {
	s := rt.cfg.Source
	switch s.Kind {
	case config.SourceSim:
		src := gyro.NewSimSource(sim.Gyro{
			RateHz:       s.RateHz,
			Seed:         s.Sim.Seed,
			NoiseDps:     s.Sim.NoiseDps,
			VibrationHz:  s.Sim.VibrationHz,
			VibrationDps: s.Sim.VibrationDps,
			OutlierEvery: s.Sim.OutlierEvery,
			OutlierDps:   s.Sim.OutlierDps,
		}, s.Sim.Samples, true)
		rt.closers = append(rt.closers, src)
		return src, nil

	case config.SourceReplay:
		recs, err := readSampleLog(s.Replay.Path)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", s.Replay.Path, err)
		}
		src, err := gyro.NewReplaySource(recs, s.Replay.Speed, s.Replay.Loop, nil)
		if err != nil {
			return nil, err
		}
		return src, nil

	case config.SourceIMU:
		busPath := fmt.Sprintf("/dev/i2c-%d", s.IMU.I2CBus)
		bus, err := i2c.Open(busPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", busPath, err)
		}
		rt.closers = append(rt.closers, bus)
		addr := s.IMU.Addr
		if addr == 0 {
			addr = icm20948.DefaultAddress()
		}
		dev, err := icm20948.New(bus.Dev(addr), icm20948.Options{
			RateHz:             s.RateHz,
			DataReadyInterrupt: s.IMU.DRDYLine != "",
		})
		if err != nil {
			return nil, fmt.Errorf("imu init: %w", err)
		}
		var edges gyro.EdgeLine
		if s.IMU.DRDYLine != "" {
			line, err := drdy.Open(s.IMU.DRDYLine)
			if err != nil {
				return nil, fmt.Errorf("drdy %s: %w", s.IMU.DRDYLine, err)
			}
			rt.closers = append(rt.closers, line)
			edges = line
		}
		src, err := gyro.NewIMUSource(dev, edges, rt.cfg.SamplePeriod())
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, src)
		return src, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", s.Kind)
}

func (rt *liveRuntime) openSinks() error {
	out := rt.cfg.Output
	if out.Record.Enable {
		w, err := replay.CreateWriter(out.Record.Path)
		if err != nil {
			return fmt.Errorf("record %s: %w", out.Record.Path, err)
		}
		rt.closers = append(rt.closers, w)
		rt.svc.AddSink(func(o gyro.Output) error {
			return w.WriteOffset(o.At, o.Raw)
		})
	}
	if out.UDPDest != "" {
		b, err := udp.NewBroadcaster(out.UDPDest)
		if err != nil {
			return fmt.Errorf("udp broadcaster init failed: %w", err)
		}
		rt.closers = append(rt.closers, b)
		rt.svc.AddSink(func(o gyro.Output) error {
			return b.SendRate(frame.RateMessage{Seq: o.Seq, At: o.At, Raw: o.Raw, Filtered: o.Filtered})
		})
	}
	return nil
}

func readSampleLog(path string) ([]replay.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return replay.NewReader(f).ReadAll()
}
