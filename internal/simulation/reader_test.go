package simulation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `timestamp,latitude,longitude,speed_kmh
1000,52.5,13.4,120
1010,52.6,13.5,190
1020,52.7,13.6,260
`

func writeDataset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewReaderEmbeddedDataset(t *testing.T) {
	r, err := NewReader("")
	require.NoError(t, err)
	assert.NotEmpty(t, r.All())
}

func TestNextCyclesThroughDataset(t *testing.T) {
	r, err := NewReader(writeDataset(t, sampleCSV))
	require.NoError(t, err)

	first := r.Next("D1")
	assert.Equal(t, "D1", first.DeviceID)
	assert.Equal(t, int64(1000), first.Timestamp)
	assert.Equal(t, 120.0, first.SpeedKMH)

	r.Next("D1")
	r.Next("D1")

	// Exhausted; wraps to the beginning.
	wrapped := r.Next("D1")
	assert.Equal(t, int64(1000), wrapped.Timestamp)
}

func TestAnomaliesFilter(t *testing.T) {
	r, err := NewReader(writeDataset(t, sampleCSV))
	require.NoError(t, err)

	anomalies := r.Anomalies(180)
	require.Len(t, anomalies, 2)
	assert.Equal(t, 190.0, anomalies[0].SpeedKMH)
	assert.Equal(t, 260.0, anomalies[1].SpeedKMH)
}

func TestStats(t *testing.T) {
	r, err := NewReader(writeDataset(t, sampleCSV))
	require.NoError(t, err)

	s := r.Stats(180)
	assert.Equal(t, 3, s.TotalPoints)
	assert.Equal(t, 120.0, s.MinSpeed)
	assert.Equal(t, 260.0, s.MaxSpeed)
	assert.InDelta(t, 190.0, s.AvgSpeed, 1e-9)
	assert.Equal(t, 2, s.AnomalyCount)
	assert.InDelta(t, 66.66, s.AnomalyPercentage, 0.01)
}

func TestNewReaderRejectsMalformedRows(t *testing.T) {
	_, err := NewReader(writeDataset(t, "timestamp,latitude,longitude,speed_kmh\nnot-a-number,1,2,3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}

func TestNewReaderRejectsEmptyDataset(t *testing.T) {
	_, err := NewReader(writeDataset(t, "timestamp,latitude,longitude,speed_kmh\n"))
	require.Error(t, err)
}
