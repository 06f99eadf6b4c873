package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infusioncore/internal/core"
)

func TestBuildPayload_RateAndTimeConversion(t *testing.T) {
	snap := core.Snapshot{
		FilteredDropDps:     2.0, // 120 drops/min
		RemainingTimeFusedS: 125, // ceil(125/60) = 3
		TotalVolumeMl:       500,
		FusedRemainingG:     120,
		State:               core.Normal,
		AutoClamp:           false,
	}

	p := BuildPayload("dev-1", snap)
	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, 120, p.CurrentRate)
	assert.Equal(t, 3, p.EstimatedTime)
	assert.Equal(t, "NORMAL", p.SystemState)
	assert.Equal(t, 0, p.AutoClamp)
}

func TestBuildPayload_UndefinedRemainingTimeYieldsZero(t *testing.T) {
	snap := core.Snapshot{RemainingTimeFusedS: core.UndefinedTimeS}
	p := BuildPayload("dev-1", snap)
	assert.Equal(t, 0, p.EstimatedTime)
}

func TestBuildPayload_AutoClampMapsToOne(t *testing.T) {
	snap := core.Snapshot{AutoClamp: true, State: core.InfusionError}
	p := BuildPayload("dev-1", snap)
	assert.Equal(t, 1, p.AutoClamp)
	assert.Equal(t, "INFUSION_ERROR", p.SystemState)
}

func TestPayload_Marshal(t *testing.T) {
	p := BuildPayload("dev-1", core.Snapshot{State: core.Normal})
	b, err := p.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"deviceId":"dev-1"`)
}
