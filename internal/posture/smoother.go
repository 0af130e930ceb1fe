package posture

// Smoother applies an exponential moving average to Features. An Alpha of
// 0 or 1 disables smoothing.
type Smoother struct {
	Alpha float64
	prev  *Features
}

// NewSmoother creates a Smoother with the given weight for new samples.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{Alpha: alpha}
}

// Smooth blends f into the running average and returns the result. The
// timestamp is always taken from f.
func (s *Smoother) Smooth(f Features) Features {
	if s.Alpha <= 0 || s.Alpha >= 1 {
		return f
	}
	if s.prev == nil {
		first := f
		s.prev = &first
		return f
	}

	a := s.Alpha
	mix := func(cur, prev float64) float64 { return a*cur + (1-a)*prev }

	out := Features{
		ShoulderSlope: mix(f.ShoulderSlope, s.prev.ShoulderSlope),
		NeckTilt:      mix(f.NeckTilt, s.prev.NeckTilt),
		HeadForward: HeadForward{
			Forward:   mix(f.HeadForward.Forward, s.prev.HeadForward.Forward),
			Vertical:  mix(f.HeadForward.Vertical, s.prev.HeadForward.Vertical),
			NoseAngle: mix(f.HeadForward.NoseAngle, s.prev.HeadForward.NoseAngle),
		},
		ShoulderDistance: mix(f.ShoulderDistance, s.prev.ShoulderDistance),
		Timestamp:        f.Timestamp,
	}
	*s.prev = out
	return out
}

// Reset forgets the running average.
func (s *Smoother) Reset() {
	s.prev = nil
}
