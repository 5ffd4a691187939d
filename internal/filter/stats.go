package filter

import "math"

// Stats is the per-sample output of RollingStatistics.
type Stats struct {
	Mean       Triple
	Variance   Triple
	Covariance Triple // indexed by Pair
}

// MeasurementNoise folds each axis's variance and its two cross covariances
// into one value and scales it:
//
//	roll  = (varX + covXY + covXZ) * scale
//	pitch = (varY + covXY + covYZ) * scale
//	yaw   = (varZ + covYZ + covXZ) * scale
func (s Stats) MeasurementNoise(scale float64) Triple {
	return Triple{
		Roll:  (s.Variance[Roll] + s.Covariance[XY] + s.Covariance[XZ]) * scale,
		Pitch: (s.Variance[Pitch] + s.Covariance[XY] + s.Covariance[YZ]) * scale,
		Yaw:   (s.Variance[Yaw] + s.Covariance[YZ] + s.Covariance[XZ]) * scale,
	}
}

// RollingStatistics derives mean, variance and covariance of the raw axes
// over a sliding window in constant time per sample.
type RollingStatistics struct {
	win      *Window
	inverseN float64
}

func NewRollingStatistics(length int, evict Eviction) *RollingStatistics {
	return &RollingStatistics{
		win:      NewWindow(length, evict),
		inverseN: 1 / float64(length),
	}
}

// Ingest pushes v and returns the statistics of the updated window.
//
// Variance uses E[x²]-E[x]², which can go slightly negative through
// cancellation; the absolute value keeps the result a valid noise figure.
func (rs *RollingStatistics) Ingest(v Triple) Stats {
	rs.win.Push(v)
	m := &rs.win.moments

	var s Stats
	for a := range s.Mean {
		s.Mean[a] = m.Sum[a] * rs.inverseN
	}
	for a := range s.Variance {
		s.Variance[a] = math.Abs(m.SumSq[a]*rs.inverseN - s.Mean[a]*s.Mean[a])
	}
	for p, ax := range pairAxes {
		s.Covariance[p] = math.Abs(m.Cross[p]*rs.inverseN - s.Mean[ax[0]]*s.Mean[ax[1]])
	}
	return s
}

func (rs *RollingStatistics) Window() *Window { return rs.win }
