package models

import "encoding/json"

// Reading is one sensor snapshot for a sector, keyed by metric name
// ("air_temperature", "relative_humidity", "soil_humidity", ...). Values
// arrive from JSON so they may be float64, json.Number, or non-numeric
// garbage from a misbehaving device.
type Reading map[string]interface{}

// Metric returns the named value as a float64. The second return is false
// when the metric is absent or not numeric; rules skip such readings.
func (r Reading) Metric(name string) (float64, bool) {
	raw, ok := r[name]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// SectorMeta carries display context for the sector a reading belongs to.
type SectorMeta struct {
	Name      string  `json:"name"`
	RanchName *string `json:"ranchName,omitempty"`
}
