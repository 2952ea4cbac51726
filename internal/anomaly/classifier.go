// Package anomaly holds the threshold classifier: a pure mapping from a
// telemetry sample to an anomaly verdict.
package anomaly

import (
	"math"

	"kora/internal/domain"
)

// DefaultSpeedThreshold is the speed above which a sample becomes an anomaly.
const DefaultSpeedThreshold = 180 // km/h

// tier maps a minimum speed to the severity and type assigned at or above it.
// Checked high-to-low; the table is the whole severity policy.
type tier struct {
	MinSpeed float64
	Severity domain.Severity
	Type     domain.IncidentType
}

var tiers = []tier{
	{MinSpeed: 300, Severity: domain.SeverityCritical, Type: domain.IncidentExtremeSpeeding},
	{MinSpeed: 250, Severity: domain.SeverityHigh, Type: domain.IncidentDangerousSpeeding},
	{MinSpeed: 200, Severity: domain.SeverityMedium, Type: domain.IncidentExcessiveSpeeding},
	{MinSpeed: 0, Severity: domain.SeverityLow, Type: domain.IncidentSpeeding},
}

// Classifier decides whether a sample is anomalous. It is pure and does no I/O.
type Classifier struct {
	threshold float64
}

func NewClassifier(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultSpeedThreshold
	}
	return &Classifier{threshold: threshold}
}

func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify returns nil when the sample is within the threshold. Malformed
// speeds (NaN, negative, infinite) are treated as no anomaly, never an error.
func (c *Classifier) Classify(sample domain.TelemetrySample) *domain.Verdict {
	speed := sample.SpeedKMH
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		return nil
	}
	if speed <= c.threshold {
		return nil
	}

	v := &domain.Verdict{
		Threshold: c.threshold,
		Excess:    speed - c.threshold,
	}
	for _, t := range tiers {
		if speed >= t.MinSpeed {
			v.Severity = t.Severity
			v.Type = t.Type
			break
		}
	}
	// A reading at the origin is a GPS fault, unless the speed already put it
	// in one of the graded tiers.
	if v.Type == domain.IncidentSpeeding &&
		sample.Location.Latitude == 0 && sample.Location.Longitude == 0 {
		v.Type = domain.IncidentGPSAnomaly
	}
	return v
}
