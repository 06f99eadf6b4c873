package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infusioncore/internal/core"
)

func TestRingBuffer_GetAllChronological(t *testing.T) {
	rb := NewRingBuffer(4)
	for i := int64(1); i <= 3; i++ {
		rb.Add(core.Snapshot{TimeMs: i})
	}

	all := rb.GetAll()
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, int64(i+1), s.TimeMs)
	}
}

func TestRingBuffer_WrapsAndEvictsOldest(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := int64(1); i <= 5; i++ {
		rb.Add(core.Snapshot{TimeMs: i})
	}

	all := rb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{all[0].TimeMs, all[1].TimeMs, all[2].TimeMs})
}

func TestRingBuffer_SizeTracksUntilFull(t *testing.T) {
	rb := NewRingBuffer(5)
	assert.Equal(t, 0, rb.Size())
	rb.Add(core.Snapshot{})
	rb.Add(core.Snapshot{})
	assert.Equal(t, 2, rb.Size())
}
