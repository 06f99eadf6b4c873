package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infusioncore/internal/core"
)

func TestLoadFromCSV_RoundTripsSnapshots(t *testing.T) {
	dir := t.TempDir()

	snaps := []core.Snapshot{
		{TimeMs: 1000, FilteredMassG: 499.2, CumulativeDrops: 3, State: core.Normal},
		{TimeMs: 2000, FilteredMassG: 498.1, CumulativeDrops: 5, State: core.Normal, AutoClamp: true},
	}

	var body string
	for _, s := range snaps {
		body += s.CSVRow() + "\n"
	}
	header := ""
	for i, col := range core.Columns {
		if i > 0 {
			header += ","
		}
		header += col
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-01-01.csv"), []byte(header+"\n"+body), 0644))

	loaded := LoadFromCSV(dir, 10)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(1000), loaded[0].TimeMs)
	assert.InDelta(t, 499.2, loaded[0].FilteredMassG, 1e-2)
	assert.Equal(t, int64(3), loaded[0].CumulativeDrops)
	assert.Equal(t, core.Normal, loaded[0].State)
	assert.True(t, loaded[1].AutoClamp)
}

func TestLoadFromCSV_NoFilesReturnsNil(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, LoadFromCSV(dir, 10))
}

func TestLoadFromCSV_RespectsLimit(t *testing.T) {
	dir := t.TempDir()

	header := ""
	for i, col := range core.Columns {
		if i > 0 {
			header += ","
		}
		header += col
	}
	body := header + "\n"
	for i := int64(1); i <= 5; i++ {
		body += core.Snapshot{TimeMs: i * 1000}.CSVRow() + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-01-02.csv"), []byte(body), 0644))

	loaded := LoadFromCSV(dir, 2)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(4000), loaded[0].TimeMs)
	assert.Equal(t, int64(5000), loaded[1].TimeMs)
}
