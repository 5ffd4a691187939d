package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ratefilter/internal/filter"
)

type Config struct {
	Filter FilterConfig `yaml:"filter"`
	Source SourceConfig `yaml:"source"`
	Output OutputConfig `yaml:"output"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`
}

type FilterConfig struct {
	RollQ         float64 `yaml:"roll_q"`
	PitchQ        float64 `yaml:"pitch_q"`
	YawQ          float64 `yaml:"yaw_q"`
	Window        int     `yaml:"window"`
	VarianceScale float64 `yaml:"variance_scale"`
	Eviction      string  `yaml:"eviction"`
}

type SourceConfig struct {
	Kind   string       `yaml:"kind"`
	RateHz int          `yaml:"rate_hz"`
	Sim    SimConfig    `yaml:"sim"`
	Replay ReplayConfig `yaml:"replay"`
	IMU    IMUConfig    `yaml:"imu"`
}

type SimConfig struct {
	Seed         int64   `yaml:"seed"`
	NoiseDps     float64 `yaml:"noise_dps"`
	VibrationHz  float64 `yaml:"vibration_hz"`
	VibrationDps float64 `yaml:"vibration_dps"`
	OutlierEvery int     `yaml:"outlier_every"`
	OutlierDps   float64 `yaml:"outlier_dps"`
	Samples      int     `yaml:"samples"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type IMUConfig struct {
	I2CBus   int    `yaml:"i2c_bus"`
	Addr     uint16 `yaml:"addr"`
	DRDYLine string `yaml:"drdy_line"`
}

type OutputConfig struct {
	UDPDest string       `yaml:"udp_dest"`
	Record  RecordConfig `yaml:"record"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	// Listen is the status/control HTTP address. Empty disables the server.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level           string        `yaml:"level"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
}

const (
	SourceSim    = "sim"
	SourceReplay = "replay"
	SourceIMU    = "imu"

	defaultQ       = 400
	defaultWindow  = 32
	defaultRateHz  = 1000
	maxRateHz      = 8000
	defaultLogLvl  = "info"
	defaultSummary = 5 * time.Second
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML strictly and applies defaults.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 && strings.Contains(te.Errors[0], "not found in type") {
			msg := te.Errors[0]
			if i := strings.Index(msg, "field "); i >= 0 {
				msg = msg[i:]
			}
			return Config{}, fmt.Errorf("config contains unknown fields: %s", msg)
		}
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	f := &cfg.Filter
	if f.RollQ == 0 {
		f.RollQ = defaultQ
	}
	if f.PitchQ == 0 {
		f.PitchQ = defaultQ
	}
	if f.YawQ == 0 {
		f.YawQ = defaultQ
	}
	if f.Window == 0 {
		f.Window = defaultWindow
	}
	if f.VarianceScale == 0 {
		f.VarianceScale = filter.DefaultVarianceScale
	}
	if f.RollQ < 0 || f.PitchQ < 0 || f.YawQ < 0 {
		return fmt.Errorf("filter.roll_q, filter.pitch_q and filter.yaw_q must be > 0")
	}
	if f.Window < 1 || f.Window > filter.MaxWindow {
		return fmt.Errorf("filter.window must be between 1 and %d", filter.MaxWindow)
	}
	if f.VarianceScale < 0 || math.IsInf(f.VarianceScale, 0) || math.IsNaN(f.VarianceScale) {
		return fmt.Errorf("filter.variance_scale must be > 0")
	}
	f.Eviction = strings.ToLower(strings.TrimSpace(f.Eviction))
	if f.Eviction == "" {
		f.Eviction = filter.EvictLagged.String()
	}
	if _, err := filter.ParseEviction(f.Eviction); err != nil {
		return fmt.Errorf("filter.eviction must be 'lagged' or 'exact'")
	}
	if _, err := cfg.FilterParams(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	s := &cfg.Source
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	if s.Kind == "" {
		s.Kind = SourceSim
	}
	if s.RateHz == 0 {
		s.RateHz = defaultRateHz
	}
	if s.RateHz < 0 || s.RateHz > maxRateHz {
		return fmt.Errorf("source.rate_hz must be between 1 and %d", maxRateHz)
	}
	switch s.Kind {
	case SourceSim:
		if s.Sim.NoiseDps < 0 || s.Sim.VibrationDps < 0 || s.Sim.OutlierDps < 0 || s.Sim.VibrationHz < 0 {
			return fmt.Errorf("source.sim amplitudes and frequencies must be >= 0")
		}
		if s.Sim.OutlierEvery < 0 || s.Sim.Samples < 0 {
			return fmt.Errorf("source.sim.outlier_every and source.sim.samples must be >= 0")
		}
		if s.Sim.Seed == 0 {
			s.Sim.Seed = 1
		}
	case SourceReplay:
		if strings.TrimSpace(s.Replay.Path) == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is 'replay'")
		}
		if s.Replay.Speed == 0 {
			s.Replay.Speed = 1
		}
		if s.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
	case SourceIMU:
		if s.IMU.I2CBus == 0 {
			s.IMU.I2CBus = 1
		}
		if s.IMU.Addr != 0 && s.IMU.Addr > 0x7F {
			return fmt.Errorf("source.imu.addr must be a 7-bit i2c address")
		}
	default:
		return fmt.Errorf("source.kind must be one of 'sim', 'replay', 'imu'")
	}

	if cfg.Output.Record.Enable {
		if strings.TrimSpace(cfg.Output.Record.Path) == "" {
			return fmt.Errorf("output.record.path is required when output.record.enable is true")
		}
		if s.Kind == SourceReplay && cfg.Output.Record.Path == s.Replay.Path {
			return fmt.Errorf("output.record.path must differ from source.replay.path")
		}
	}

	cfg.Web.Listen = strings.TrimSpace(cfg.Web.Listen)
	if cfg.Web.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Web.Listen); err != nil {
			return fmt.Errorf("web.listen must be host:port")
		}
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLvl
	}
	switch cfg.Log.Level {
	case "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("log.level must be one of error, warn, info, debug, trace")
	}
	if cfg.Log.SummaryInterval == 0 {
		cfg.Log.SummaryInterval = defaultSummary
	}
	if cfg.Log.SummaryInterval < 0 {
		return fmt.Errorf("log.summary_interval must be > 0")
	}
	return nil
}

// FilterParams converts the filter section into filter.Params.
func (c Config) FilterParams() (filter.Params, error) {
	ev, err := filter.ParseEviction(c.Filter.Eviction)
	if err != nil {
		return filter.Params{}, err
	}
	p := filter.Params{
		ProcessNoise:  filter.Triple{c.Filter.RollQ, c.Filter.PitchQ, c.Filter.YawQ},
		Window:        c.Filter.Window,
		VarianceScale: c.Filter.VarianceScale,
		Eviction:      ev,
	}
	return p, p.Validate()
}

// SamplePeriod is the nominal interval between samples.
func (c Config) SamplePeriod() time.Duration {
	return time.Second / time.Duration(c.Source.RateHz)
}
