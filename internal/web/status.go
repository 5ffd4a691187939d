package web

import (
	"sync/atomic"
	"time"

	"ratefilter/internal/filter"
	"ratefilter/internal/gyro"
)

// Status holds the static run description served next to the live gyro
// snapshot.
type Status struct {
	startUnixNano int64
	samplePeriod  int64 // ns, 0 when unknown
	source        atomic.Value // string
	udpDest       atomic.Value // string
	filterInfo    atomic.Value // map[string]any
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.udpDest.Store("")
	s.filterInfo.Store(map[string]any{})
	return s
}

// SetSamplePeriod records the nominal source period so long-running
// requests can size their deadlines.
func (s *Status) SetSamplePeriod(d time.Duration) {
	atomic.StoreInt64(&s.samplePeriod, int64(d))
}

func (s *Status) SamplePeriod() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.samplePeriod))
}

func (s *Status) SetStatic(source string, udpDest string, filterInfo map[string]any) {
	if source != "" {
		s.source.Store(source)
	}
	if udpDest != "" {
		s.udpDest.Store(udpDest)
	}
	if filterInfo != nil {
		s.filterInfo.Store(filterInfo)
	}
}

type AxisSnapshot struct {
	Axis             string  `json:"axis"`
	Estimate         float64 `json:"estimate"`
	Gain             float64 `json:"gain"`
	ErrorCovariance  float64 `json:"error_covariance"`
	MeasurementNoise float64 `json:"measurement_noise"`
}

type GyroSnapshot struct {
	Valid      bool           `json:"valid"`
	Samples    uint64         `json:"samples"`
	Raw        [3]float64     `json:"raw_dps"`
	Filtered   [3]float64     `json:"filtered_dps"`
	Mean       [3]float64     `json:"mean"`
	Variance   [3]float64     `json:"variance"`
	Covariance [3]float64     `json:"covariance"` // xy, xz, yz
	Axes       []AxisSnapshot `json:"axes"`
	Bias       *[3]float64    `json:"bias_dps,omitempty"`
	Dropped    uint64         `json:"dropped_edges"`
	LastError  string         `json:"last_error,omitempty"`
	UpdatedUTC string         `json:"updated_utc,omitempty"`
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	Source    string         `json:"source"`
	UDPDest   string         `json:"udp_dest,omitempty"`
	Filter    map[string]any `json:"filter"`
	Gyro      *GyroSnapshot  `json:"gyro,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time, g *gyro.Snapshot) StatusSnapshot {
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	snap := StatusSnapshot{
		Service:   "ratefilter",
		NowUTC:    nowUTC.Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Source:    s.source.Load().(string),
		UDPDest:   s.udpDest.Load().(string),
		Filter:    s.filterInfo.Load().(map[string]any),
	}
	if g != nil {
		snap.Gyro = gyroSnapshot(*g)
	}
	return snap
}

func gyroSnapshot(g gyro.Snapshot) *GyroSnapshot {
	out := &GyroSnapshot{
		Valid:      g.Valid,
		Samples:    g.Samples,
		Raw:        g.Raw,
		Filtered:   g.Filtered,
		Mean:       g.Stats.Mean,
		Variance:   g.Stats.Variance,
		Covariance: g.Stats.Covariance,
		Dropped:    g.DroppedEdges,
		LastError:  g.LastError,
	}
	for a, st := range g.Axes {
		out.Axes = append(out.Axes, AxisSnapshot{
			Axis:             filter.Axis(a).String(),
			Estimate:         st.Estimate,
			Gain:             st.Gain,
			ErrorCovariance:  st.ErrorCovariance,
			MeasurementNoise: st.MeasurementNoise,
		})
	}
	if g.BiasSet {
		b := [3]float64(g.Bias)
		out.Bias = &b
	}
	if !g.UpdatedAt.IsZero() {
		out.UpdatedUTC = g.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}
