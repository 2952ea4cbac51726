// Package simulation replays a fixed historical telemetry dataset as a
// stream of device samples. No anomaly logic lives here; it is a pure data
// source.
package simulation

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"sync"

	"kora/internal/domain"
)

//go:embed data/telemetry.csv
var embedded embed.FS

// Point is one row of the historical dataset.
type Point struct {
	Timestamp int64
	Latitude  float64
	Longitude float64
	SpeedKMH  float64
}

// Reader holds the dataset in memory and hands out samples cyclically,
// wrapping to the beginning when exhausted. Safe for concurrent device
// streams; the cursor is shared, matching the source recorder which
// interleaved all devices into one trace.
type Reader struct {
	mu     sync.Mutex
	points []Point
	cursor int
}

// NewReader loads the dataset from path, or the embedded sample trace when
// path is empty.
func NewReader(path string) (*Reader, error) {
	var src io.ReadCloser
	var err error
	if path == "" {
		src, err = embedded.Open("data/telemetry.csv")
	} else {
		src, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open telemetry dataset: %w", err)
	}
	defer src.Close()

	points, err := parseCSV(src)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("telemetry dataset is empty")
	}
	return &Reader{points: points}, nil
}

func parseCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse telemetry dataset: %w", err)
	}

	var points []Point
	for i, rec := range records {
		if i == 0 {
			continue // header
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("dataset row %d: expected 4 columns, got %d", i+1, len(rec))
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: timestamp: %w", i+1, err)
		}
		lat, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: latitude: %w", i+1, err)
		}
		lon, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: longitude: %w", i+1, err)
		}
		speed, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: speed: %w", i+1, err)
		}
		points = append(points, Point{Timestamp: ts, Latitude: lat, Longitude: lon, SpeedKMH: speed})
	}
	return points, nil
}

// Next returns the next sample in the cycle, attributed to deviceID.
func (r *Reader) Next(deviceID string) domain.TelemetrySample {
	r.mu.Lock()
	if r.cursor >= len(r.points) {
		r.cursor = 0
	}
	p := r.points[r.cursor]
	r.cursor++
	r.mu.Unlock()
	return toSample(deviceID, p)
}

// Random returns an arbitrary sample, used by the test-point endpoint.
func (r *Reader) Random(deviceID string) domain.TelemetrySample {
	r.mu.Lock()
	p := r.points[rand.Intn(len(r.points))]
	r.mu.Unlock()
	return toSample(deviceID, p)
}

// All returns the full dataset for bulk consumers (statistics, import).
func (r *Reader) All() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}

// Anomalies returns every dataset point whose speed exceeds the threshold.
func (r *Reader) Anomalies(threshold float64) []Point {
	var out []Point
	for _, p := range r.All() {
		if p.SpeedKMH > threshold {
			out = append(out, p)
		}
	}
	return out
}

// Stats summarizes the dataset for the statistics endpoint.
type Stats struct {
	TotalPoints       int     `json:"total_points"`
	MinSpeed          float64 `json:"min_speed"`
	MaxSpeed          float64 `json:"max_speed"`
	AvgSpeed          float64 `json:"avg_speed"`
	AnomalyCount      int     `json:"anomaly_count"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
}

func (r *Reader) Stats(threshold float64) Stats {
	points := r.All()
	s := Stats{TotalPoints: len(points)}
	if len(points) == 0 {
		return s
	}
	s.MinSpeed = points[0].SpeedKMH
	var sum float64
	for _, p := range points {
		if p.SpeedKMH < s.MinSpeed {
			s.MinSpeed = p.SpeedKMH
		}
		if p.SpeedKMH > s.MaxSpeed {
			s.MaxSpeed = p.SpeedKMH
		}
		if p.SpeedKMH > threshold {
			s.AnomalyCount++
		}
		sum += p.SpeedKMH
	}
	s.AvgSpeed = sum / float64(len(points))
	s.AnomalyPercentage = float64(s.AnomalyCount) / float64(len(points)) * 100
	return s
}

func toSample(deviceID string, p Point) domain.TelemetrySample {
	return domain.TelemetrySample{
		DeviceID:  deviceID,
		Timestamp: p.Timestamp,
		Location:  domain.Location{Latitude: p.Latitude, Longitude: p.Longitude},
		SpeedKMH:  p.SpeedKMH,
	}
}
