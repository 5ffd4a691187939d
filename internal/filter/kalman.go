package filter

const (
	// processNoiseUnit lets q be configured in convenient whole numbers.
	processNoiseUnit = 0.001

	seedMeasurementNoise = 88.0
	seedErrorCovariance  = 30.0
)

// AxisState is a copy of one axis filter's state.
type AxisState struct {
	Estimate         float64
	LastEstimate     float64
	ProcessNoise     float64
	MeasurementNoise float64
	ErrorCovariance  float64
	Gain             float64
}

// AxisFilter is a scalar Kalman filter with a constant-velocity prediction
// taken from the last two estimates.
type AxisFilter struct {
	x     float64
	lastX float64
	q     float64
	r     float64
	p     float64
	k     float64
}

// NewAxisFilter seeds a filter. coeff is scaled by 0.001 into q.
func NewAxisFilter(coeff float64) AxisFilter {
	return AxisFilter{
		q: coeff * processNoiseUnit,
		r: seedMeasurementNoise,
		p: seedErrorCovariance,
	}
}

func (f *AxisFilter) SetMeasurementNoise(r float64) { f.r = r }

// Update runs one predict/correct cycle against z and returns the estimate.
func (f *AxisFilter) Update(z float64) float64 {
	// predict
	f.x += f.x - f.lastX
	f.lastX = f.x
	f.p += f.q

	// correct
	f.k = f.p / (f.p + f.r)
	f.x += f.k * (z - f.x)
	f.p = (1 - f.k) * f.p
	return f.x
}

func (f *AxisFilter) State() AxisState {
	return AxisState{
		Estimate:         f.x,
		LastEstimate:     f.lastX,
		ProcessNoise:     f.q,
		MeasurementNoise: f.r,
		ErrorCovariance:  f.p,
		Gain:             f.k,
	}
}
