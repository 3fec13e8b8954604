package metrics

import "time"

// Config selects and configures the enabled sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = ":2112"
	}
}

// PointRecord is one sweep point to be recorded for observability purposes.
type PointRecord struct {
	RunID       string
	LeaveTime   time.Time
	Probability float64
	Samples     int
	Gap         bool
}

// Sink records sweep points.
type Sink interface {
	RecordSweepPoint(rec PointRecord) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSweepPoint(PointRecord) error { return nil }
