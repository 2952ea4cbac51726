package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kora/internal/domain"
)

type fakeClaimer struct {
	mu      sync.Mutex
	batches [][]domain.Incident
	err     error
	calls   int
}

func (f *fakeClaimer) ClaimStalePending(_ context.Context, _ time.Duration, _ int) ([]domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeNotarizer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeNotarizer) Renotarize(_ context.Context, inc *domain.Incident) {
	f.mu.Lock()
	f.ids = append(f.ids, inc.ID)
	f.mu.Unlock()
}

func (f *fakeNotarizer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func TestRunDrivesClaimedIncidents(t *testing.T) {
	claimer := &fakeClaimer{batches: [][]domain.Incident{
		{{ID: "INC-a"}, {ID: "INC-b"}},
		{{ID: "INC-c"}},
	}}
	notarizer := &fakeNotarizer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, claimer, notarizer, Config{Interval: 10 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(notarizer.seen()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.ElementsMatch(t, []string{"INC-a", "INC-b", "INC-c"}, notarizer.seen())
}

func TestRunSurvivesClaimErrors(t *testing.T) {
	claimer := &fakeClaimer{err: errors.New("db down")}
	notarizer := &fakeNotarizer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, claimer, notarizer, Config{Interval: 5 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool {
		claimer.mu.Lock()
		defer claimer.mu.Unlock()
		return claimer.calls >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Empty(t, notarizer.seen())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, &fakeClaimer{}, &fakeNotarizer{}, Config{Interval: time.Hour})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on canceled context")
	}
}
