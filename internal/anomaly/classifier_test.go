package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kora/internal/domain"
)

func sampleAt(speed float64) domain.TelemetrySample {
	return domain.TelemetrySample{
		DeviceID:  "DEV-1",
		Timestamp: 1700000000,
		Location:  domain.Location{Latitude: 52.52, Longitude: 13.405},
		SpeedKMH:  speed,
	}
}

func TestClassifyBelowThreshold(t *testing.T) {
	c := NewClassifier(DefaultSpeedThreshold)

	for _, speed := range []float64{0, 50, 120, 179.9, 180} {
		assert.Nil(t, c.Classify(sampleAt(speed)), "speed %v must not be an anomaly", speed)
	}
}

func TestClassifySeverityTiers(t *testing.T) {
	c := NewClassifier(DefaultSpeedThreshold)

	cases := []struct {
		speed    float64
		severity domain.Severity
		itype    domain.IncidentType
	}{
		{180.1, domain.SeverityLow, domain.IncidentSpeeding},
		{199.9, domain.SeverityLow, domain.IncidentSpeeding},
		{200, domain.SeverityMedium, domain.IncidentExcessiveSpeeding},
		{249.9, domain.SeverityMedium, domain.IncidentExcessiveSpeeding},
		{250, domain.SeverityHigh, domain.IncidentDangerousSpeeding},
		{299.9, domain.SeverityHigh, domain.IncidentDangerousSpeeding},
		{300, domain.SeverityCritical, domain.IncidentExtremeSpeeding},
		{412, domain.SeverityCritical, domain.IncidentExtremeSpeeding},
	}
	for _, tc := range cases {
		v := c.Classify(sampleAt(tc.speed))
		require.NotNil(t, v, "speed %v", tc.speed)
		assert.Equal(t, tc.severity, v.Severity, "speed %v", tc.speed)
		assert.Equal(t, tc.itype, v.Type, "speed %v", tc.speed)
		assert.InDelta(t, tc.speed-DefaultSpeedThreshold, v.Excess, 1e-9)
		assert.Equal(t, float64(DefaultSpeedThreshold), v.Threshold)
	}
}

func TestClassifySeverityMonotonicInSpeed(t *testing.T) {
	c := NewClassifier(DefaultSpeedThreshold)
	rank := map[domain.Severity]int{
		domain.SeverityLow:      0,
		domain.SeverityMedium:   1,
		domain.SeverityHigh:     2,
		domain.SeverityCritical: 3,
	}

	prev := -1
	for speed := 181.0; speed <= 400; speed += 0.5 {
		v := c.Classify(sampleAt(speed))
		require.NotNil(t, v)
		require.GreaterOrEqual(t, rank[v.Severity], prev, "severity regressed at speed %v", speed)
		prev = rank[v.Severity]
	}
}

func TestClassifyMalformedSpeed(t *testing.T) {
	c := NewClassifier(DefaultSpeedThreshold)

	assert.Nil(t, c.Classify(sampleAt(math.NaN())))
	assert.Nil(t, c.Classify(sampleAt(math.Inf(1))))
	assert.Nil(t, c.Classify(sampleAt(-20)))
}

// The origin marks a GPS fault only for speeds below the graded tiers; a
// reading fast enough for a tier keeps its speed-derived type.
func TestClassifyGPSAnomaly(t *testing.T) {
	c := NewClassifier(DefaultSpeedThreshold)

	cases := []struct {
		speed    float64
		severity domain.Severity
		itype    domain.IncidentType
	}{
		{190, domain.SeverityLow, domain.IncidentGPSAnomaly},
		{220, domain.SeverityMedium, domain.IncidentExcessiveSpeeding},
		{260, domain.SeverityHigh, domain.IncidentDangerousSpeeding},
		{310, domain.SeverityCritical, domain.IncidentExtremeSpeeding},
	}
	for _, tc := range cases {
		s := sampleAt(tc.speed)
		s.Location = domain.Location{}
		v := c.Classify(s)
		require.NotNil(t, v, "speed %v", tc.speed)
		assert.Equal(t, tc.itype, v.Type, "speed %v", tc.speed)
		assert.Equal(t, tc.severity, v.Severity, "speed %v", tc.speed)
	}
}

func TestClassifyCustomThreshold(t *testing.T) {
	c := NewClassifier(100)

	assert.Nil(t, c.Classify(sampleAt(100)))
	v := c.Classify(sampleAt(101))
	require.NotNil(t, v)
	assert.InDelta(t, 1.0, v.Excess, 1e-9)
}
