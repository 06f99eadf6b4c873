package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_CalibrateStartStop(t *testing.T) {
	c, err := ParseCommand("CALIBRATE_WPD_START")
	require.NoError(t, err)
	assert.Equal(t, CommandCalibrateWpdStart, c.Kind)

	c, err = ParseCommand("CALIBRATE_WPD_STOP")
	require.NoError(t, err)
	assert.Equal(t, CommandCalibrateWpdStop, c.Kind)
}

func TestParseCommand_SetTotalVolume(t *testing.T) {
	c, err := ParseCommand("SET_TOTAL_VOLUME:250.5")
	require.NoError(t, err)
	assert.Equal(t, CommandSetTotalVolume, c.Kind)
	assert.Equal(t, 250.5, c.TotalVolumeMl)
}

func TestParseCommand_WhitespaceTolerant(t *testing.T) {
	c, err := ParseCommand("  CALIBRATE_WPD_START  \n")
	require.NoError(t, err)
	assert.Equal(t, CommandCalibrateWpdStart, c.Kind)
}

func TestParseCommand_RejectsMalformed(t *testing.T) {
	_, err := ParseCommand("SET_TOTAL_VOLUME:notanumber")
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = ParseCommand("DO_SOMETHING_ELSE")
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = ParseCommand("")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
