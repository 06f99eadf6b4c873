package core

// CalibrationContext tracks the quantities the WPD estimator needs to
// compute a cumulative (Δmass, Δdrops) measurement.
type CalibrationContext struct {
	InitialTotalMassG float64
	CumulativeDrops   int64
	InitialSet        bool
}

// Reset clears the context for a new run, seeded with the mass captured
// at reinitialization.
func (c *CalibrationContext) Reset(initialMassG float64) {
	c.InitialTotalMassG = initialMassG
	c.CumulativeDrops = 0
	c.InitialSet = true
}

// AddDrops advances the monotonically non-decreasing drop counter.
func (c *CalibrationContext) AddDrops(n int) {
	if n <= 0 {
		return
	}
	c.CumulativeDrops += int64(n)
}
