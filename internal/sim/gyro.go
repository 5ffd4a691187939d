package sim

import (
	"math"
	"math/rand"
	"time"

	"ratefilter/internal/filter"
)

// Manoeuvre amplitudes (deg/s) and periods of the noiseless rate profile.
var (
	manoeuvreAmp    = filter.Triple{30, 15, 10}
	manoeuvrePeriod = [3]time.Duration{4 * time.Second, 6 * time.Second, 10 * time.Second}
	manoeuvrePhase  = filter.Triple{0, 1, 2}

	// vibrationCoupling spreads one mechanical tone across the axes so the
	// cross covariance is non-zero.
	vibrationCoupling = filter.Triple{1, 0.7, 0.4}
)

// Gyro describes a synthetic gyro. The zero value is a noiseless 1 kHz gyro.
type Gyro struct {
	RateHz       int
	Seed         int64
	NoiseDps     float64
	VibrationHz  float64
	VibrationDps float64
	// OutlierEvery injects a roll spike of OutlierDps every N samples (0 = off).
	OutlierEvery int
	OutlierDps   float64
}

func (g Gyro) rate() int {
	if g.RateHz <= 0 {
		return 1000
	}
	return g.RateHz
}

// Offset returns the time of sample n since the first sample.
func (g Gyro) Offset(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(g.rate())
}

// Truth returns the noiseless manoeuvre rate at sample n.
func (g Gyro) Truth(n int) filter.Triple {
	t := g.Offset(n).Seconds()
	var out filter.Triple
	for a := range out {
		w := 2 * math.Pi * t / manoeuvrePeriod[a].Seconds()
		out[a] = manoeuvreAmp[a] * math.Sin(w+manoeuvrePhase[a])
	}
	return out
}

// Generator produces the samples of a Gyro in order. Not safe for
// concurrent use.
type Generator struct {
	g   Gyro
	rng *rand.Rand
	n   int
}

func NewGenerator(g Gyro) *Generator {
	return &Generator{g: g, rng: rand.New(rand.NewSource(g.Seed))}
}

// Next returns the index, offset and measured rate of the next sample.
func (gen *Generator) Next() (int, time.Duration, filter.Triple) {
	n := gen.n
	gen.n++

	g := gen.g
	v := g.Truth(n)
	vib := 0.0
	if g.VibrationDps > 0 && g.VibrationHz > 0 {
		vib = g.VibrationDps * math.Sin(2*math.Pi*g.VibrationHz*g.Offset(n).Seconds())
	}
	for a := range v {
		v[a] += vib * vibrationCoupling[a]
		if g.NoiseDps > 0 {
			v[a] += gen.rng.NormFloat64() * g.NoiseDps
		}
	}
	if g.OutlierEvery > 0 && n > 0 && n%g.OutlierEvery == 0 {
		v[filter.Roll] += g.OutlierDps
	}
	return n, g.Offset(n), v
}
