package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"kora/internal/domain"
	"kora/internal/logging"
	"kora/internal/metrics"
)

// ErrStreamNotFound is returned when stopping a device with no active stream.
var ErrStreamNotFound = errors.New("no active simulation for device")

// IngestFunc receives each replayed sample. It is the pipeline's Ingest in
// production and a capture function in tests.
type IngestFunc func(ctx context.Context, sample domain.TelemetrySample)

// Simulator owns the registry of active device streams. The registry is
// explicit instance state, keyed by device id, so streams can be started and
// stopped independently and enumerated for dashboards.
type Simulator struct {
	reader *Reader
	ingest IngestFunc

	mu      sync.Mutex
	streams map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewSimulator(reader *Reader, ingest IngestFunc) *Simulator {
	return &Simulator{
		reader:  reader,
		ingest:  ingest,
		streams: make(map[string]context.CancelFunc),
	}
}

// Start replays the dataset for deviceID at the given interval. An already
// running stream for the device is restarted with the new interval.
func (s *Simulator) Start(ctx context.Context, deviceID string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s.mu.Lock()
	if cancel, ok := s.streams[deviceID]; ok {
		cancel()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.streams[deviceID] = cancel
	s.mu.Unlock()

	metrics.ActiveSimulations.Set(float64(len(s.Active())))
	log := logging.Component("simulation")
	log.Info().
		Str("device_id", deviceID).
		Dur("interval", interval).
		Msg("starting device stream")

	s.wg.Add(1)
	go s.run(streamCtx, deviceID, interval)
}

func (s *Simulator) run(ctx context.Context, deviceID string, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The in-flight ingest always runs to completion; cancellation
			// only halts future sampling.
			s.ingest(context.WithoutCancel(ctx), s.reader.Next(deviceID))
		}
	}
}

// Stop halts the stream for deviceID. In-flight ingests and notarizations
// for already-created incidents are unaffected.
func (s *Simulator) Stop(deviceID string) error {
	s.mu.Lock()
	cancel, ok := s.streams[deviceID]
	if ok {
		cancel()
		delete(s.streams, deviceID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrStreamNotFound
	}
	metrics.ActiveSimulations.Set(float64(len(s.Active())))
	log := logging.Component("simulation")
	log.Info().Str("device_id", deviceID).Msg("stopped device stream")
	return nil
}

// Active lists device ids with running streams.
func (s *Simulator) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.streams))
	for id := range s.streams {
		out = append(out, id)
	}
	return out
}

// StopAll cancels every stream and waits for the loops to exit.
func (s *Simulator) StopAll() {
	s.mu.Lock()
	for id, cancel := range s.streams {
		cancel()
		delete(s.streams, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	metrics.ActiveSimulations.Set(0)
}

// SampleOnce returns one random dataset sample for the device without
// starting a stream.
func (s *Simulator) SampleOnce(deviceID string) domain.TelemetrySample {
	return s.reader.Random(deviceID)
}
