// Package httpadapter exposes the pipeline over a thin chi-based JSON API.
package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kora/internal/anomaly"
	"kora/internal/domain"
	"kora/internal/logging"
	"kora/internal/ports"
	"kora/internal/services/pipeline"
	"kora/internal/simulation"
	ws "kora/internal/websocket"
)

// Server wires the core services to HTTP routes. It owns no business logic.
type Server struct {
	pipeline   *pipeline.Service
	simulator  *simulation.Simulator
	reader     *simulation.Reader
	store      ports.IncidentStore
	overview   ports.OverviewReader
	hub        *ws.Hub
	classifier *anomaly.Classifier

	// baseCtx parents simulation streams so shutdown stops them.
	baseCtx         context.Context
	defaultInterval time.Duration
}

func New(
	baseCtx context.Context,
	pipe *pipeline.Service,
	simulator *simulation.Simulator,
	reader *simulation.Reader,
	store ports.IncidentStore,
	overview ports.OverviewReader,
	hub *ws.Hub,
	classifier *anomaly.Classifier,
	defaultInterval time.Duration,
) *Server {
	if defaultInterval <= 0 {
		defaultInterval = 5 * time.Second
	}
	return &Server{
		pipeline:        pipe,
		simulator:       simulator,
		reader:          reader,
		store:           store,
		overview:        overview,
		hub:             hub,
		classifier:      classifier,
		baseCtx:         baseCtx,
		defaultInterval: defaultInterval,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws/alerts", s.handleAlertSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/telemetry/ingest", s.handleIngest)
		r.Route("/simulation", func(r chi.Router) {
			r.Get("/active", s.handleActiveSimulations)
			r.Post("/{deviceID}/start", s.handleStartSimulation)
			r.Post("/{deviceID}/stop", s.handleStopSimulation)
			r.Get("/{deviceID}/test", s.handleTestSample)
		})
		r.Get("/data/stats", s.handleDataStats)
		r.Get("/incidents", s.handleListIncidents)
		r.Get("/incidents/{incidentID}", s.handleGetIncident)
		r.Get("/overview", s.handleOverview)
		r.Post("/import/historical", s.handleHistoricalImport)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAlertSocket(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(s.hub, w, r)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var sample domain.TelemetrySample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample payload")
		return
	}
	if sample.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	out, err := s.pipeline.Ingest(r.Context(), sample)
	if err != nil {
		if errors.Is(err, ports.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		log := logging.Component("api")
		log.Error().Err(err).Str("device_id", sample.DeviceID).Msg("ingest failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type startSimulationRequest struct {
	IntervalMs int `json:"interval_ms"`
}

func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !s.deviceExists(w, r, deviceID) {
		return
	}

	var req startSimulationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	interval := s.defaultInterval
	if req.IntervalMs > 0 {
		interval = time.Duration(req.IntervalMs) * time.Millisecond
	}

	s.simulator.Start(s.baseCtx, deviceID, interval)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "simulation started",
		"device_id":   deviceID,
		"interval_ms": interval.Milliseconds(),
	})
}

func (s *Server) handleStopSimulation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := s.simulator.Stop(deviceID); err != nil {
		writeError(w, http.StatusNotFound, "no active simulation for device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "simulation stopped",
		"device_id": deviceID,
	})
}

func (s *Server) handleActiveSimulations(w http.ResponseWriter, _ *http.Request) {
	devices := s.simulator.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_devices": devices,
		"total_active":   len(devices),
	})
}

func (s *Server) handleTestSample(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !s.deviceExists(w, r, deviceID) {
		return
	}

	sample := s.simulator.SampleOnce(deviceID)
	out, err := s.pipeline.Ingest(r.Context(), sample)
	if err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Str("device_id", deviceID).Msg("test sample failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := map[string]any{
		"device_id":        deviceID,
		"sample":           sample,
		"anomaly_detected": out != nil,
	}
	if out != nil {
		resp["incident"] = out.Incident
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDataStats(w http.ResponseWriter, _ *http.Request) {
	threshold := s.classifier.Threshold()
	stats := s.reader.Stats(threshold)

	anomalies := s.reader.Anomalies(threshold)
	if len(anomalies) > 5 {
		anomalies = anomalies[:5]
	}
	samples := make([]map[string]any, 0, len(anomalies))
	for _, p := range anomalies {
		samples = append(samples, map[string]any{
			"timestamp": time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339),
			"speed_kmh": p.SpeedKMH,
			"location":  domain.Location{Latitude: p.Latitude, Longitude: p.Longitude},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":            stats,
		"sample_anomalies": samples,
	})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := ports.IncidentFilter{
		Severity:   r.URL.Query().Get("severity"),
		CompanyRef: r.URL.Query().Get("company"),
		Limit:      limit,
	}

	incidents, err := s.store.ListIncidents(r.Context(), filter)
	if err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Msg("list incidents failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.store.GetIncident(r.Context(), chi.URLParam(r, "incidentID"))
	if err != nil {
		if errors.Is(err, ports.ErrIncidentNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		log := logging.Component("api")
		log.Error().Err(err).Msg("get incident failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	counts, err := s.overview.Overview(r.Context())
	if err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Msg("overview failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type historicalImportRequest struct {
	DeviceID string `json:"device_id"`
}

// handleHistoricalImport replays the full dataset through classification and
// persists every anomaly as a pending incident attributed to the given
// device. Notarization is left to the pending sweeper.
func (s *Server) handleHistoricalImport(w http.ResponseWriter, r *http.Request) {
	var req historicalImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	dc, err := s.store.GetDeviceContext(r.Context(), req.DeviceID)
	if err != nil {
		if errors.Is(err, ports.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	imported := 0
	for _, p := range s.reader.All() {
		sample := domain.TelemetrySample{
			DeviceID:  req.DeviceID,
			Timestamp: p.Timestamp,
			Location:  domain.Location{Latitude: p.Latitude, Longitude: p.Longitude},
			SpeedKMH:  p.SpeedKMH,
		}
		verdict := s.classifier.Classify(sample)
		if verdict == nil {
			continue
		}
		now := time.Now().UTC()
		inc := &domain.Incident{
			ID:        domain.NewIncidentID(req.DeviceID, now),
			DeviceID:  req.DeviceID,
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
		if err := s.store.CreateIncident(r.Context(), inc); err != nil {
			log := logging.Component("api")
			log.Error().Err(err).Int("imported", imported).Msg("historical import aborted")
			writeError(w, http.StatusInternalServerError, "import failed")
			return
		}
		imported++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "historical incidents imported",
		"device_id": req.DeviceID,
		"imported":  imported,
	})
}

func (s *Server) deviceExists(w http.ResponseWriter, r *http.Request, deviceID string) bool {
	_, err := s.store.GetDeviceContext(r.Context(), deviceID)
	if errors.Is(err, ports.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logging.Component("api")
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
