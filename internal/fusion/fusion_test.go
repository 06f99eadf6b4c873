package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_RemainingDecreasesWithFlow(t *testing.T) {
	s := New(DefaultConfig(), 500)
	for i := 0; i < 50; i++ {
		s.Step(1.0, 0.05, 0.05, 500-float64(i)*0.05, 500-float64(i)*0.05, true)
	}
	assert.Less(t, s.RemainingG(), 500.0)
	assert.GreaterOrEqual(t, s.RemainingG(), 0.0)
}

func TestStage_SensorOffIsSkipped(t *testing.T) {
	s := New(DefaultConfig(), 500)
	s.SetRFlowDrip(0) // drip channel "off"

	before := s.FlowGps()
	s.Step(1.0, 0.05, 999, 500, 999, true) // the drip flow measurement should be ignored
	after := s.FlowGps()

	// With the drip R at 0, only the weight measurement (0.05) should have
	// pulled the flow estimate, never the bogus 999 reading.
	assert.Less(t, after, 10.0)
	_ = before
}

func TestStage_WeightOutageFollowsDripChannel(t *testing.T) {
	s := New(DefaultConfig(), 500)
	for i := 0; i < 50; i++ {
		// Weight channel reports a frozen, stale value; only weightOK=false
		// should keep it from dragging the fused flow toward zero.
		s.Step(1.0, 0, 0.10, 500, 500-float64(i)*0.10, false)
	}
	assert.InDelta(t, 0.10, s.FlowGps(), 0.02)
}

func TestStage_ResetReseedsRemaining(t *testing.T) {
	s := New(DefaultConfig(), 500)
	s.Step(1.0, 0.05, 0.05, 480, 480, true)
	s.Reset(300)
	assert.Equal(t, 300.0, s.RemainingG())
}

func TestStage_RemainingNeverNegative(t *testing.T) {
	s := New(DefaultConfig(), 10)
	for i := 0; i < 100; i++ {
		s.Step(1.0, 5, 5, -50, -50, true)
	}
	assert.GreaterOrEqual(t, s.RemainingG(), 0.0)
}

func TestStage_RGetSet(t *testing.T) {
	s := New(DefaultConfig(), 500)
	s.SetRFlowWeight(0.5)
	s.SetRFlowDrip(0.6)
	s.SetRRemWeight(2.0)
	s.SetRRemDrip(3.0)

	assert.Equal(t, 0.5, s.GetRFlowWeight())
	assert.Equal(t, 0.6, s.GetRFlowDrip())
	assert.Equal(t, 2.0, s.GetRRemWeight())
	assert.Equal(t, 3.0, s.GetRRemDrip())
}
