package core

// savedR is the set of filter measurement variances captured exactly once,
// at first construction, and restored when fast convergence ends. Capturing
// at construction rather than at every reinit means an operator who
// reinitializes repeatedly never drifts the reference tunings.
type savedR struct {
	weight     float64
	drip       float64
	wpd        float64
	flowWeight float64
	flowDrip   float64
	remWeight  float64
	remDrip    float64
}

// setState transitions the state machine, emitting EventStateChanged only
// when the state actually changes.
func (c *Core) setState(nowMs int64, s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(Event{Kind: EventStateChanged, TimeMs: nowMs, NewState: s})
}

func (c *Core) emit(ev Event) {
	if c.sink != nil {
		c.sink.Publish(ev)
	}
}

// applyFastConvergence swaps every filter's R to saved/10, floored at 1e-7,
// and arms the 60s exit window.
func (c *Core) applyFastConvergence(nowMs int64) {
	swap := func(r float64) float64 {
		r /= 10
		if r < 1e-7 {
			r = 1e-7
		}
		return r
	}
	c.weight.SetR(swap(c.saved.weight))
	c.drip.SetR(swap(c.saved.drip))
	c.wpdEst.SetR(swap(c.saved.wpd))
	c.fusionStage.SetRFlowWeight(swap(c.saved.flowWeight))
	c.fusionStage.SetRFlowDrip(swap(c.saved.flowDrip))
	c.fusionStage.SetRRemWeight(swap(c.saved.remWeight))
	c.fusionStage.SetRRemDrip(swap(c.saved.remDrip))

	c.fastConvergenceUntilMs = nowMs + c.cfg.FastConvergenceDur.Milliseconds()
	c.setState(nowMs, FastConvergence)
}

// restoreOriginalR reinstates the originals captured at construction.
func (c *Core) restoreOriginalR() {
	c.weight.SetR(c.saved.weight)
	c.drip.SetR(c.saved.drip)
	c.wpdEst.SetR(c.saved.wpd)
	c.fusionStage.SetRFlowWeight(c.saved.flowWeight)
	c.fusionStage.SetRFlowDrip(c.saved.flowDrip)
	c.fusionStage.SetRRemWeight(c.saved.remWeight)
	c.fusionStage.SetRRemDrip(c.saved.remDrip)
}

// checkFastConvergenceExit ends the fast-convergence window once its timer
// elapses, restoring the original tunings and moving on to Normal.
func (c *Core) checkFastConvergenceExit(nowMs int64) {
	if c.state != FastConvergence {
		return
	}
	if nowMs < c.fastConvergenceUntilMs {
		return
	}
	c.restoreOriginalR()
	c.stallBaselineMs = nowMs
	c.setState(nowMs, Normal)
	c.emit(Event{Kind: EventFastConvergenceEnded, TimeMs: nowMs})
}

// checkStall runs the 10s-no-drip stall detector while Normal. The timer is
// paused during FastConvergence: a freshly reinitialized line legitimately
// has no drops yet, and the fast-convergence window already exists to give
// the filters time to settle (an Open Question the spec leaves to the
// implementation — see DESIGN.md).
func (c *Core) checkStall(nowMs int64) {
	if c.state != Normal {
		return
	}
	if nowMs-c.lastStallCheckMs < c.cfg.StallCheckInterval.Milliseconds() {
		return
	}
	c.lastStallCheckMs = nowMs

	lastDrip, have := c.ring.LastDripTime()
	if !have {
		lastDrip = c.stallBaselineMs
	}
	if nowMs-lastDrip >= c.cfg.NoDripTimeout.Milliseconds() {
		c.autoClamp = true
		c.setState(nowMs, InfusionError)
		c.emit(Event{Kind: EventInfusionAbnormalityDetected, TimeMs: nowMs})
	}
}

// checkCompletion transitions Normal -> Completed once the fused remaining
// mass reaches the configured target plus a 1g margin.
func (c *Core) checkCompletion(nowMs int64) {
	if c.state != Normal {
		return
	}
	if c.fusionStage.RemainingG() <= c.cfg.TargetEmptyG+1.0 {
		c.autoClamp = true
		c.setState(nowMs, Completed)
		c.emit(Event{Kind: EventInfusionCompleted, TimeMs: nowMs})
	}
}

// checkWpdLongCalibration is the long-calibration helper: once
// CALIBRATE_WPD_START has armed a window, it runs until either both
// thresholds (duration and drop count) are met, or the duration alone
// elapses with too few drops, in which case it reports a low-drop timeout.
func (c *Core) checkWpdLongCalibration(nowMs int64) {
	if !c.wpdEst.Active() || !c.calWindowOpen {
		return
	}
	elapsedMs := nowMs - c.calStartMs
	if elapsedMs < c.cfg.WpdLongCalDuration.Milliseconds() {
		return
	}
	drops := c.calib.CumulativeDrops - c.calStartDrops
	c.wpdEst.Stop()
	c.calWindowOpen = false
	if drops >= int64(c.cfg.WpdLongCalMinDrops) {
		c.emit(Event{
			Kind:      EventWpdCalibrationCompleted,
			TimeMs:    nowMs,
			WpdGpd:    c.wpdEst.Gpd(),
			Drops:     drops,
			DurationS: float64(elapsedMs) / 1000.0,
		})
	} else {
		c.emit(Event{Kind: EventWpdCalibrationTimedOutLowDrops, TimeMs: nowMs, Drops: drops})
	}
}

// sanitizeRawMass rejects non-physical readings in favor of the last
// filtered mass, per the failure semantics: a bad tick is never
// fatal, it is simply absorbed as a repeat of the previous good value.
func sanitizeRawMass(raw float64, valid bool, lastFiltered float64) float64 {
	if !valid || isNaNOrInf(raw) {
		return lastFiltered
	}
	if abs64(raw) > 2000 && abs64(lastFiltered) < 1000 {
		return lastFiltered
	}
	return raw
}

func isNaNOrInf(v float64) bool {
	return v != v || v > 1e308 || v < -1e308
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// reinit runs the reinitialization procedure: it validates the raw
// reading, subtracts the fixed tare, reseeds every filter and the
// calibration context, and enters fast convergence. On repeated invalid
// readings it latches InitError after three consecutive failures, at
// which point OnButton requires a long-press Reset to clear the count
// and retry.
func (c *Core) reinit(nowMs int64, rawMassG float64, valid bool) {
	liquidMassG := rawMassG - TotalTareG
	ok := valid && !isNaNOrInf(rawMassG) && abs64(rawMassG) <= 5000 && liquidMassG > 10

	if !ok {
		c.initFailures++
		c.setState(nowMs, InitError)
		return
	}
	c.initFailures = 0

	c.weight.Init(liquidMassG, 0, 0)
	c.drip.Init(0, 0)
	c.calib.Reset(liquidMassG)
	c.ring = NewDropRing(c.cfg.DropRingCapacity)
	c.fusionStage.Reset(liquidMassG)
	c.stallBaselineMs = nowMs
	c.lastStallCheckMs = nowMs
	c.havePrevRaw = false
	c.autoClamp = false

	c.totalVolumeMl = ceilTo100(liquidMassG)

	c.wpdEst.Start()
	c.calWindowOpen = true
	c.calStartMs = nowMs
	c.calStartDrops = 0
	c.emit(Event{Kind: EventWpdCalibrationStarted, TimeMs: nowMs})

	c.applyFastConvergence(nowMs)
}

func ceilTo100(massG float64) float64 {
	if massG <= 0 {
		return 0
	}
	return float64(int64((massG+99.999999)/100)) * 100
}
