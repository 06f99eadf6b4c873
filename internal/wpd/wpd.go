// Package wpd implements the scalar Kalman estimator for the weight-per-drop
// ratio of the installed giving-set, using the same predict/update scalar
// idiom (Config/DefaultConfig, plain float64 math, hard output clamp) as
// a lightweight Kalman package rather than a full matrix filter — a 1x1
// matrix buys nothing here.
package wpd

const (
	ClampLowGpd  = 0.04
	ClampHighGpd = 0.06

	GateLowGpd  = 0.01
	GateHighGpd = 0.20

	MinDropsToCalibrate = 5
	MinDeltaMassG       = 0.01

	restartCovariance = 0.25
)

// Config holds the estimator's tuning knobs.
type Config struct {
	ProcessNoise  float64 // Q_wpd
	InitialValue  float64
	InitialP      float64
}

// DefaultConfig seeds the estimator at the midpoint of the physical range.
func DefaultConfig() Config {
	return Config{
		ProcessNoise: 1e-6,
		InitialValue: 0.05,
		InitialP:     0.01,
	}
}

// Estimator is the scalar weight-per-drop Kalman filter.
type Estimator struct {
	wpd    float64
	p      float64
	q      float64
	r      float64
	active bool
}

// New constructs an inactive estimator seeded from cfg.
func New(cfg Config) *Estimator {
	return &Estimator{
		wpd: cfg.InitialValue,
		p:   cfg.InitialP,
		q:   cfg.ProcessNoise,
		r:   1e-4,
	}
}

// SetR overrides the measurement variance (fast-convergence swap).
func (e *Estimator) SetR(r float64) { e.r = r }

// GetR returns the current measurement variance.
func (e *Estimator) GetR() float64 { return e.r }

// Start activates calibration, re-inflating P to accept new data quickly.
func (e *Estimator) Start() {
	e.active = true
	e.p = restartCovariance
}

// Stop deactivates calibration without touching the learned value.
func (e *Estimator) Stop() {
	e.active = false
}

// Active reports whether calibration is currently running.
func (e *Estimator) Active() bool {
	return e.active
}

// Gpd returns the current weight-per-drop estimate.
func (e *Estimator) Gpd() float64 {
	return e.wpd
}

// Calibrate is the per-tick update contract. It is a
// no-op unless cumulativeDrops ≥ 5, Δmass ≥ 0.01g, and the resulting
// measured ratio falls inside the (wide) outlier gate [0.01, 0.20].
// After a successful update, wpd is hard-clamped to [0.04, 0.06]
// regardless of what the Kalman math produced.
func (e *Estimator) Calibrate(initialTotalMassG, currentMassG float64, cumulativeDrops int64) {
	if !e.active {
		return
	}
	if cumulativeDrops < MinDropsToCalibrate {
		return
	}
	deltaMass := initialTotalMassG - currentMassG
	if deltaMass < MinDeltaMassG {
		return
	}
	measured := deltaMass / float64(cumulativeDrops)
	if measured < GateLowGpd || measured > GateHighGpd {
		return
	}

	e.p += e.q
	s := e.p + e.r
	k := e.p / s
	e.wpd += k * (measured - e.wpd)
	e.p = (1 - k) * e.p

	e.clamp()
}

func (e *Estimator) clamp() {
	if e.wpd < ClampLowGpd {
		e.wpd = ClampLowGpd
	} else if e.wpd > ClampHighGpd {
		e.wpd = ClampHighGpd
	}
}
