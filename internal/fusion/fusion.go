// Package fusion implements the 1-D fusion stage that combines the weight
// and drop channels into the canonical flow-rate and remaining-mass
// estimates. Two independent scalar Kalman estimators run in parallel,
// each updated sequentially by its two sensors.
package fusion

// Config holds the fusion stage's process and measurement noise.
type Config struct {
	QFlow float64
	QRem  float64

	RFlowWeight float64
	RFlowDrip   float64
	RRemWeight  float64
	RRemDrip    float64
}

// DefaultConfig returns reference tunings for the fusion stage.
func DefaultConfig() Config {
	return Config{
		QFlow:       1e-4,
		QRem:        1e-3,
		RFlowWeight: 0.01,
		RFlowDrip:   0.02,
		RRemWeight:  1.0,
		RRemDrip:    4.0,
	}
}

// Stage holds the two decoupled scalar estimators: (flow, P_flow) and
// (remaining, P_rem).
type Stage struct {
	cfg Config

	flow   float64
	pFlow  float64
	rem    float64
	pRem   float64
}

// New constructs a fusion stage seeded with the given initial mass.
func New(cfg Config, initialMassG float64) *Stage {
	return &Stage{
		cfg:   cfg,
		flow:  0,
		pFlow: 1,
		rem:   initialMassG,
		pRem:  1,
	}
}

// Reset reseeds the remaining-mass estimate on reinit.
func (s *Stage) Reset(initialMassG float64) {
	s.flow = 0
	s.pFlow = 1
	s.rem = initialMassG
	s.pRem = 1
}

// Step advances both estimators by dt seconds using the weight- and
// drop-channel flow/remaining-mass measurements. A measurement whose
// R < 1e-9 is treated as "sensor off for this tick" and skipped.
// weightOK reports whether the weight channel produced a real reading
// this tick; when false, the weight measurements are fed in with R
// forced below the skip threshold so fusion follows the drop channel
// alone, without disturbing the stored RFlowWeight/RRemWeight (which
// fast-convergence swaps and restores across ticks).
func (s *Stage) Step(dtS, flowWeight, flowDrip, remWeight, remDrip float64, weightOK bool) {
	rFlowWeight := s.cfg.RFlowWeight
	rRemWeight := s.cfg.RRemWeight
	if !weightOK {
		rFlowWeight = 0
		rRemWeight = 0
	}

	// --- Flow fusion ---
	s.pFlow += s.cfg.QFlow * dtS
	s.flow = scalarUpdate(s.flow, &s.pFlow, flowWeight, rFlowWeight)
	s.flow = scalarUpdate(s.flow, &s.pFlow, flowDrip, s.cfg.RFlowDrip)
	if s.flow < 0 {
		s.flow = 0
	}

	// --- Remaining-mass fusion ---
	// Prediction couples to the already-updated flow estimate.
	s.rem -= s.flow * dtS
	if s.rem < 0 {
		s.rem = 0
	}
	s.pRem += s.cfg.QRem * dtS
	s.rem = scalarUpdate(s.rem, &s.pRem, remWeight, rRemWeight)
	s.rem = scalarUpdate(s.rem, &s.pRem, remDrip, s.cfg.RRemDrip)
	if s.rem < 0 {
		s.rem = 0
	}
}

// scalarUpdate applies one 1-D Kalman measurement update: K = P/(P+R).
// If r < 1e-9, the sensor is considered off for this tick and skipped.
func scalarUpdate(x float64, p *float64, z, r float64) float64 {
	if r < 1e-9 {
		return x
	}
	k := *p / (*p + r)
	x += k * (z - x)
	*p = (1 - k) * (*p)
	return x
}

// FlowGps returns the fused flow-rate estimate, clamped ≥ 0.
func (s *Stage) FlowGps() float64 { return s.flow }

// RemainingG returns the fused remaining-mass estimate, clamped ≥ 0.
func (s *Stage) RemainingG() float64 { return s.rem }

// SetR/GetR pairs override and read back each of the four named
// measurement variances, used for fast-convergence swaps.
func (s *Stage) SetRFlowWeight(r float64) { s.cfg.RFlowWeight = r }
func (s *Stage) SetRFlowDrip(r float64)   { s.cfg.RFlowDrip = r }
func (s *Stage) SetRRemWeight(r float64)  { s.cfg.RRemWeight = r }
func (s *Stage) SetRRemDrip(r float64)    { s.cfg.RRemDrip = r }

func (s *Stage) GetRFlowWeight() float64 { return s.cfg.RFlowWeight }
func (s *Stage) GetRFlowDrip() float64   { return s.cfg.RFlowDrip }
func (s *Stage) GetRRemWeight() float64  { return s.cfg.RRemWeight }
func (s *Stage) GetRRemDrip() float64    { return s.cfg.RRemDrip }
