package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1: bringup with no drops.
func TestScenario_BringupNoDrops(t *testing.T) {
	c, _ := newTestCore()
	c.cfg.TargetEmptyG = 0

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 500+TotalTareG, true)
	require.Equal(t, FastConvergence, c.state)

	var snap Snapshot
	for i := 0; i < 60; i++ {
		nowMs += 1000
		snap = c.Tick(nowMs, 500+TotalTareG, true)
	}

	assert.Equal(t, Normal, c.state)
	assert.InDelta(t, 500.0, snap.FilteredMassG, 0.5)
	assert.InDelta(t, 0.0, snap.FusedFlowGps, 0.01)

	// No drops at all for another 10s in Normal should stall.
	for i := 0; i < 10; i++ {
		nowMs += 1000
		snap = c.Tick(nowMs, 500+TotalTareG, true)
	}
	assert.Equal(t, InfusionError, snap.State)
}

// Scenario 2: constant drip with a known WPD.
func TestScenario_ConstantDripKnownWpd(t *testing.T) {
	c, _ := newTestCore()

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 500+TotalTareG, true)

	const trueWpd = 0.05
	const trueRampGps = 0.1
	mass := 500.0
	dropAccum := 0.0

	var snap Snapshot
	for tick := 0; tick < 120; tick++ {
		nowMs += 1000
		mass -= trueRampGps
		dropAccum += 2.0 // 2 drops/sec, 500 ms apart (clear of the 50 ms debounce)
		for dropAccum >= 1.0 {
			dropAccum -= 1.0
			c.OnDropEdge(nowMs - int64(dropAccum*500))
		}
		snap = c.Tick(nowMs, mass+TotalTareG, true)
	}

	assert.InDelta(t, 0.10, snap.FusedFlowGps, 0.02)
	assert.InDelta(t, trueWpd, snap.WpdGpd, 0.005)
}

// Scenario 3: drop-sensor outage. Same as scenario 2 but drop edges cease
// at t=60s while the weight channel keeps falling; the line stays Normal
// until the 10s stall timer trips InfusionError, and fused flow stays
// within 0.02 gps of the true 0.10 gps throughout.
func TestScenario_DropSensorOutage(t *testing.T) {
	c, _ := newTestCore()

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 500+TotalTareG, true)

	const trueRampGps = 0.1
	mass := 500.0
	dropAccum := 0.0

	var snap Snapshot
	for tick := 0; tick < 60; tick++ {
		nowMs += 1000
		mass -= trueRampGps
		dropAccum += 2.0 // 2 drops/sec, 500 ms apart (clear of the 50 ms debounce)
		for dropAccum >= 1.0 {
			dropAccum -= 1.0
			c.OnDropEdge(nowMs - int64(dropAccum*500))
		}
		snap = c.Tick(nowMs, mass+TotalTareG, true)
	}
	require.Equal(t, Normal, snap.State)

	// Drop edges cease; weight continues to fall but no new drop reaches
	// the ring, so the drop-rate filter is fed its own last estimate and
	// holds it, while the stall clock runs from the last real edge.
	for tick := 0; tick < 9; tick++ {
		nowMs += 1000
		mass -= trueRampGps
		snap = c.Tick(nowMs, mass+TotalTareG, true)
		assert.Equal(t, Normal, snap.State)
	}

	nowMs += 1000
	mass -= trueRampGps
	snap = c.Tick(nowMs, mass+TotalTareG, true)
	assert.Equal(t, InfusionError, snap.State)
	assert.InDelta(t, 0.10, snap.FusedFlowGps, 0.02)
}

// Scenario 4: weight outage. From tick 30, the mass sensor reports
// "not ready" (massOK=false) while drop edges continue at 2 dps; fused
// flow must track the drop-channel estimate within 0.02 gps instead of
// being dragged toward zero by the frozen weight channel.
func TestScenario_WeightOutage(t *testing.T) {
	c, _ := newTestCore()

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 500+TotalTareG, true)

	const trueWpd = 0.05
	mass := 500.0
	dropAccum := 0.0

	var snap Snapshot
	for tick := 0; tick < 120; tick++ {
		nowMs += 1000
		massOK := tick < 30
		if massOK {
			mass -= trueWpd * 2.0
		}
		dropAccum += 2.0 // 2 drops/sec 500 ms apart, true WPD 0.05 g/drop -> 0.10 gps
		for dropAccum >= 1.0 {
			dropAccum -= 1.0
			c.OnDropEdge(nowMs - int64(dropAccum*500))
		}
		snap = c.Tick(nowMs, mass+TotalTareG, massOK)
	}

	assert.InDelta(t, 0.10, snap.FusedFlowGps, 0.02)
}

// Scenario 5: completion. The bag drains at 0.1 g/s with matching drop
// edges (2 drops/sec at 0.05 g/drop), so the stall detector stays quiet
// and both remaining-mass channels reach empty.
func TestScenario_CompletionFiresOnceAndLatches(t *testing.T) {
	c, sink := newTestCore()
	c.cfg.TargetEmptyG = 0

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 100+TotalTareG, true)

	mass := 100.0
	var snap Snapshot
	for tick := 0; tick < 1100; tick++ {
		nowMs += 1000
		mass -= 0.1
		if mass < 0 {
			mass = 0
		}
		c.OnDropEdge(nowMs - 500)
		c.OnDropEdge(nowMs)
		snap = c.Tick(nowMs, mass+TotalTareG, true)
	}

	require.Equal(t, Completed, snap.State)
	assert.True(t, snap.AutoClamp)

	completions := 0
	for _, ev := range sink.events {
		if ev.Kind == EventInfusionCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)

	// Reset short-press restores Normal.
	c.OnButton(ButtonReset, ShortPress, nowMs+1000, mass+TotalTareG, true)
	assert.Equal(t, Normal, c.state)
}

// Scenario 6: operator reinit mid-run.
func TestScenario_OperatorReinitMidRun(t *testing.T) {
	c, _ := newTestCore()

	nowMs := int64(0)
	c.OnButton(ButtonInit, ShortPress, nowMs, 500+TotalTareG, true)

	for tick := 0; tick < 300; tick++ {
		nowMs += 1000
		c.OnDropEdge(nowMs)
		c.Tick(nowMs, 500-0.1*float64(tick)+TotalTareG, true)
	}
	require.Greater(t, c.calib.CumulativeDrops, int64(0))

	c.OnButton(ButtonInit, ShortPress, nowMs, 480+TotalTareG, true)

	assert.Equal(t, int64(0), c.calib.CumulativeDrops)
	assert.InDelta(t, 480.0, c.calib.InitialTotalMassG, 1e-6)
	assert.Equal(t, FastConvergence, c.state)
	assert.Equal(t, nowMs+FastConvergenceDur.Milliseconds(), c.fastConvergenceUntilMs)
}
