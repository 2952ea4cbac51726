// Package pipeline coordinates the anomaly event flow: classify a telemetry
// sample, persist and alert synchronously, then notarize the incident on the
// ledger in the background and reconcile the outcome into the store.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kora/internal/anomaly"
	"kora/internal/domain"
	"kora/internal/logging"
	"kora/internal/metrics"
	"kora/internal/ports"
)

// Outcome reports a processed anomaly back to the caller. Ingest returns nil
// for unremarkable samples.
type Outcome struct {
	Incident *domain.Incident `json:"incident"`
	Verdict  domain.Verdict   `json:"verdict"`
}

type Service struct {
	store      ports.IncidentStore
	notary     ports.Notary
	alerts     ports.AlertSink
	classifier *anomaly.Classifier

	notaryTimeout time.Duration
	wg            sync.WaitGroup
}

func New(store ports.IncidentStore, notary ports.Notary, alerts ports.AlertSink, classifier *anomaly.Classifier, notaryTimeout time.Duration) *Service {
	if notaryTimeout <= 0 {
		notaryTimeout = 30 * time.Second
	}
	return &Service{
		store:         store,
		notary:        notary,
		alerts:        alerts,
		classifier:    classifier,
		notaryTimeout: notaryTimeout,
	}
}

// Ingest processes one telemetry sample. Device liveness is updated on every
// call. An anomalous sample is persisted and alerted before Ingest returns;
// ledger notarization runs in the background and never delays the caller.
// An unknown device fails the whole ingest with ports.ErrDeviceNotFound.
func (s *Service) Ingest(ctx context.Context, sample domain.TelemetrySample) (*Outcome, error) {
	log := logging.Component("pipeline")

	if err := s.store.TouchDeviceLiveness(ctx, sample.DeviceID, sample.Timestamp); err != nil {
		// Liveness is best-effort; a miss never aborts the pipeline.
		log.Warn().Err(err).Str("device_id", sample.DeviceID).Msg("liveness update failed")
	}

	verdict := s.classifier.Classify(sample)
	if verdict == nil {
		metrics.SamplesIngested.WithLabelValues("normal").Inc()
		return nil, nil
	}

	dc, err := s.store.GetDeviceContext(ctx, sample.DeviceID)
	if err != nil {
		metrics.SamplesIngested.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("resolve device %s: %w", sample.DeviceID, err)
	}

	now := time.Now().UTC()
	inc := &domain.Incident{
		ID:        domain.NewIncidentID(sample.DeviceID, now),
		DeviceID:  sample.DeviceID,
		PolicyRef: dc.PolicyRef,
		Type:      verdict.Type,
		Severity:  verdict.Severity,
		Timestamp: sample.Timestamp,
		Location:  sample.Location,
		Sensor: domain.SensorSnapshot{
			SpeedKMH:  sample.SpeedKMH,
			Threshold: verdict.Threshold,
			Excess:    verdict.Excess,
		},
		LedgerStatus:      domain.LedgerPending,
		KoraNotified:      true,
		InsuranceNotified: true,
		CreatedAt:         now,
	}

	if err := s.store.CreateIncident(ctx, inc); err != nil {
		// No alert for an incident that was never persisted.
		metrics.SamplesIngested.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	metrics.SamplesIngested.WithLabelValues("anomaly").Inc()
	metrics.IncidentsCreated.WithLabelValues(string(inc.Severity)).Inc()
	log.Info().
		Str("incident_id", inc.ID).
		Str("device_id", inc.DeviceID).
		Str("severity", string(inc.Severity)).
		Float64("speed_kmh", sample.SpeedKMH).
		Msg("anomaly detected")

	s.alerts.Push(alertEvent(ports.AlertIncidentDetected, inc, dc))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the ingest context: stopping a stream must not
		// cancel the ledger write for an already-created incident.
		s.notarize(context.WithoutCancel(ctx), inc, dc)
	}()

	return &Outcome{Incident: inc, Verdict: *verdict}, nil
}

// Renotarize re-drives notarization for an incident whose original goroutine
// died with the process. Used by the pending sweeper; runs synchronously.
func (s *Service) Renotarize(ctx context.Context, inc *domain.Incident) {
	dc, err := s.store.GetDeviceContext(ctx, inc.DeviceID)
	if err != nil {
		// Context enriches the confirmation alert only; proceed without it.
		dc = domain.DeviceContext{DeviceID: inc.DeviceID}
	}
	s.notarize(ctx, inc, dc)
}

// storeWriteTimeout bounds the terminal store update separately from the
// notary call, so a notary timeout cannot starve the write-back.
const storeWriteTimeout = 10 * time.Second

// notarize commits the incident's content hash to the ledger and reconciles
// the terminal state into the store. Every launched incident ends confirmed
// or failed; a failed notarization is terminal and is not retried.
func (s *Service) notarize(ctx context.Context, inc *domain.Incident, dc domain.DeviceContext) {
	log := logging.Component("pipeline")

	nctx, ncancel := context.WithTimeout(ctx, s.notaryTimeout)
	ref, err := s.notary.Submit(nctx, ContentHash(inc))
	ncancel()

	// The Submit above may have consumed its whole deadline; the terminal
	// state must still land, on a fresh budget.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer scancel()

	if err != nil {
		metrics.NotarizationOutcomes.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("incident_id", inc.ID).Msg("ledger notarization failed")
		if _, serr := s.store.SetLedgerFailed(sctx, inc.ID, err.Error()); serr != nil {
			log.Error().Err(serr).Str("incident_id", inc.ID).Msg("recording ledger failure failed")
		}
		return
	}

	applied, err := s.store.SetLedgerConfirmed(sctx, inc.ID, ref)
	if err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("recording ledger confirmation failed")
		return
	}
	if !applied {
		// Another writer already settled this incident; no second alert.
		log.Debug().Str("incident_id", inc.ID).Msg("ledger state already terminal, skipping alert")
		return
	}

	metrics.NotarizationOutcomes.WithLabelValues("confirmed").Inc()
	log.Info().Str("incident_id", inc.ID).Str("ledger_reference", ref).Msg("ledger confirmed")

	confirmed := *inc
	confirmed.LedgerStatus = domain.LedgerConfirmed
	confirmed.LedgerReference = &ref
	s.alerts.Push(alertEvent(ports.AlertLedgerConfirmed, &confirmed, dc))
}

// Wait blocks until all in-flight notarizations finish. Used during shutdown
// and by tests.
func (s *Service) Wait() { s.wg.Wait() }

func alertEvent(typ ports.AlertEventType, inc *domain.Incident, dc domain.DeviceContext) ports.AlertEvent {
	return ports.AlertEvent{
		Type:            typ,
		IncidentID:      inc.ID,
		DeviceID:        inc.DeviceID,
		IncidentType:    string(inc.Type),
		Severity:        string(inc.Severity),
		SpeedKMH:        inc.Sensor.SpeedKMH,
		Timestamp:       inc.Timestamp,
		PolicyRef:       inc.PolicyRef,
		PolicyHolder:    dc.PolicyHolder,
		CompanyRef:      dc.CompanyRef,
		CompanyName:     dc.CompanyName,
		LedgerStatus:    string(inc.LedgerStatus),
		LedgerReference: inc.LedgerReference,
	}
}
