package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test-*.db")
	require.NoError(t, err)
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	storage, err := NewSQLiteStorage(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	return storage
}

func TestSQLiteStorage_SaveAndListSamples(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := storage.SaveSample(Sample{
			ServoID:  1,
			Register: "present_position",
			Value:    uint16(600 + i),
			TakenAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	require.NoError(t, storage.SaveSample(Sample{
		ServoID:  2,
		Register: "present_position",
		Value:    100,
		TakenAt:  base,
	}))

	samples, err := storage.ListSamples(1, 10)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	// Newest first.
	assert.Equal(t, uint16(602), samples[0].Value)
	assert.Equal(t, "present_position", samples[0].Register)
	assert.Equal(t, uint8(1), samples[0].ServoID)
}

func TestSQLiteStorage_SaveAndListScans(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, storage.SaveScan(Scan{Found: []uint8{1, 3}, ScannedAt: base}))
	require.NoError(t, storage.SaveScan(Scan{Found: []uint8{1, 2, 3}, ScannedAt: base.Add(time.Minute)}))

	scans, err := storage.ListScans(10)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, []uint8{1, 2, 3}, scans[0].Found)
	assert.Equal(t, []uint8{1, 3}, scans[1].Found)
}

func TestSQLiteStorage_Prune(t *testing.T) {
	storage := newTestStorage(t)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, storage.SaveSample(Sample{ServoID: 1, Register: "led", Value: 1, TakenAt: old}))
	require.NoError(t, storage.SaveSample(Sample{ServoID: 1, Register: "led", Value: 0, TakenAt: fresh}))
	require.NoError(t, storage.SaveScan(Scan{Found: []uint8{1}, ScannedAt: old}))

	require.NoError(t, storage.Prune(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	samples, err := storage.ListSamples(1, 10)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
	assert.Equal(t, uint16(0), samples[0].Value)

	scans, err := storage.ListScans(10)
	require.NoError(t, err)
	assert.Empty(t, scans)
}
