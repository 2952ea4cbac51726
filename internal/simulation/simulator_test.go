package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kora/internal/domain"
)

type sampleCollector struct {
	mu      sync.Mutex
	samples []domain.TelemetrySample
}

func (c *sampleCollector) ingest(_ context.Context, s domain.TelemetrySample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *sampleCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func newTestSimulator(t *testing.T) (*Simulator, *sampleCollector) {
	t.Helper()
	r, err := NewReader(writeDataset(t, sampleCSV))
	require.NoError(t, err)
	c := &sampleCollector{}
	return NewSimulator(r, c.ingest), c
}

func TestStartDeliversSamples(t *testing.T) {
	sim, c := newTestSimulator(t)
	defer sim.StopAll()

	sim.Start(context.Background(), "D1", 10*time.Millisecond)

	require.Eventually(t, func() bool { return c.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, sim.Active(), "D1")
}

func TestStopHaltsFutureSampling(t *testing.T) {
	sim, c := newTestSimulator(t)
	defer sim.StopAll()

	sim.Start(context.Background(), "D1", 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sim.Stop("D1"))

	n := c.count()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, c.count(), n+1, "at most one in-flight sample may land after stop")
	assert.Empty(t, sim.Active())
}

func TestStopUnknownDevice(t *testing.T) {
	sim, _ := newTestSimulator(t)
	assert.ErrorIs(t, sim.Stop("nope"), ErrStreamNotFound)
}

func TestStartRestartsExistingStream(t *testing.T) {
	sim, _ := newTestSimulator(t)
	defer sim.StopAll()

	sim.Start(context.Background(), "D1", time.Hour)
	sim.Start(context.Background(), "D1", time.Hour)

	assert.Equal(t, []string{"D1"}, sim.Active())
}

func TestConcurrentDeviceStreams(t *testing.T) {
	sim, c := newTestSimulator(t)
	defer sim.StopAll()

	sim.Start(context.Background(), "D1", 10*time.Millisecond)
	sim.Start(context.Background(), "D2", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		seen := map[string]bool{}
		for _, s := range c.samples {
			seen[s.DeviceID] = true
		}
		return seen["D1"] && seen["D2"]
	}, 2*time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{"D1", "D2"}, sim.Active())
}

func TestSampleOnce(t *testing.T) {
	sim, _ := newTestSimulator(t)
	s := sim.SampleOnce("D9")
	assert.Equal(t, "D9", s.DeviceID)
	assert.NotZero(t, s.Timestamp)
}
