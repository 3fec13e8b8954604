// Package config loads and validates the run configuration. All clock times
// share one date and timezone so every timestamp in a run lives on the same
// clock basis.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/montecarlo"
	"github.com/latecast/latecast/core/schedule"
	"github.com/latecast/latecast/core/sweep"
	"github.com/latecast/latecast/infra/feed"
	"github.com/latecast/latecast/infra/metrics"
	"github.com/latecast/latecast/infra/mqtt"
)

// Config is the top-level configuration.
type Config struct {
	// Date is the service day (YYYY-MM-DD); empty means today.
	Date string `json:"date"`
	// Timezone is an IANA zone name; empty means the local zone.
	Timezone string         `json:"timezone"`
	Plan     PlanConfig     `json:"plan"`
	Schedule ScheduleConfig `json:"schedule"`
	Sweep    SweepConfig    `json:"sweep"`
	Feed     feed.Config    `json:"feed"`
	Metrics  metrics.Config `json:"metrics"`
	MQTT     mqtt.Config    `json:"mqtt"`
	Output   OutputConfig   `json:"output"`
	Logging  LoggingConfig  `json:"logging"`
}

// JitterConfig is the serialized form of a jitter spec.
type JitterConfig struct {
	Family        string `json:"family"`
	SpreadSeconds int    `json:"spread_seconds"`
}

func (j JitterConfig) spec() model.JitterSpec {
	family := j.Family
	if family == "" {
		family = model.JitterNormal
	}
	return model.JitterSpec{Family: family, Spread: time.Duration(j.SpreadSeconds) * time.Second}
}

// PlanConfig describes the fixed journey legs and the deadline.
type PlanConfig struct {
	WalkOutSeconds int          `json:"walk_out_seconds"`
	WalkOutJitter  JitterConfig `json:"walk_out_jitter"`
	WalkInSeconds  int          `json:"walk_in_seconds"`
	WalkInJitter   JitterConfig `json:"walk_in_jitter"`
	LegJitter      JitterConfig `json:"leg_jitter"`
	// Deadline is a clock time, HH:MM or HH:MM:SS.
	Deadline string `json:"deadline"`
}

// ScheduleConfig describes schedule reconciliation.
type ScheduleConfig struct {
	BucketWidthMinutes    int `json:"bucket_width_minutes"`
	MaxLegMinutes         int `json:"max_leg_minutes"`
	FallbackWindowMinutes int `json:"fallback_window_minutes"`
}

// SweepConfig describes the leave-time sweep.
type SweepConfig struct {
	// Start and End are clock times, HH:MM or HH:MM:SS.
	Start       string  `json:"start"`
	End         string  `json:"end"`
	StepSeconds int     `json:"step_seconds"`
	Iterations  int     `json:"iterations"`
	Confidence  float64 `json:"confidence"`
	Seed        uint64  `json:"seed"`
	GapPolicy   string  `json:"gap_policy"`
	Parallelism int     `json:"parallelism"`
	Workers     int     `json:"workers"`
}

// OutputConfig describes curve export.
type OutputConfig struct {
	Path   string `json:"path"`
	Format string `json:"format"` // csv or json
}

// SetDefaults applies sane defaults.
func (c *OutputConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "lateness_curve.csv"
	}
	if c.Format == "" {
		c.Format = "csv"
	}
}

// Validate checks the export format.
func (c OutputConfig) Validate() error {
	if c.Format != "csv" && c.Format != "json" {
		return fmt.Errorf("unknown output format %q: %w", c.Format, model.ErrInvalidConfig)
	}
	return nil
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Load reads the configuration from a yaml or json file, applies LC_
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format %q: %w", ext, model.ErrInvalidConfig)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. LC_SWEEP__ITERATIONS.
	if err := k.Load(env.Provider("LC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "lc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Output.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Feed.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section eagerly so a malformed run never starts.
func (c *Config) Validate() error {
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if _, err := c.JourneyPlan(); err != nil {
		return err
	}
	if _, err := c.SweepConfig(); err != nil {
		return err
	}
	if err := c.MonteCarloConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, model.ErrInvalidConfig)
	}
	return loc, nil
}

// ServiceDay resolves the configured date at midnight in the configured
// timezone.
func (c *Config) ServiceDay() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	if c.Date == "" {
		now := time.Now().In(loc)
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", c.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", c.Date, model.ErrInvalidConfig)
	}
	return day, nil
}

// clockTime resolves an HH:MM or HH:MM:SS string on the service day.
func (c *Config) clockTime(value, field string) (time.Time, error) {
	day, err := c.ServiceDay()
	if err != nil {
		return time.Time{}, err
	}
	var parsed time.Time
	for _, layout := range []string{"15:04:05", "15:04"} {
		parsed, err = time.Parse(layout, value)
		if err == nil {
			return day.Add(time.Duration(parsed.Hour())*time.Hour +
				time.Duration(parsed.Minute())*time.Minute +
				time.Duration(parsed.Second())*time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s %q is not a clock time: %w", field, value, model.ErrInvalidConfig)
}

// JourneyPlan builds the immutable plan from the configuration.
func (c *Config) JourneyPlan() (model.JourneyPlan, error) {
	if c.Plan.Deadline == "" {
		return model.JourneyPlan{}, fmt.Errorf("plan deadline is required: %w", model.ErrInvalidConfig)
	}
	deadline, err := c.clockTime(c.Plan.Deadline, "deadline")
	if err != nil {
		return model.JourneyPlan{}, err
	}
	plan := model.JourneyPlan{
		WalkOut: model.WalkLeg{
			Base:   time.Duration(c.Plan.WalkOutSeconds) * time.Second,
			Jitter: c.Plan.WalkOutJitter.spec(),
		},
		WalkIn: model.WalkLeg{
			Base:   time.Duration(c.Plan.WalkInSeconds) * time.Second,
			Jitter: c.Plan.WalkInJitter.spec(),
		},
		LegJitter: c.Plan.LegJitter.spec(),
		Deadline:  deadline,
	}
	if err := plan.Validate(); err != nil {
		return model.JourneyPlan{}, err
	}
	return plan, nil
}

// ReconcilerConfig builds the schedule reconciliation parameters.
func (c *Config) ReconcilerConfig() schedule.Config {
	cfg := schedule.Config{
		BucketWidth:    time.Duration(c.Schedule.BucketWidthMinutes) * time.Minute,
		MaxLegDuration: time.Duration(c.Schedule.MaxLegMinutes) * time.Minute,
		FallbackWindow: time.Duration(c.Schedule.FallbackWindowMinutes) * time.Minute,
	}
	cfg.SetDefaults()
	return cfg
}

// MonteCarloConfig builds the aggregation parameters.
func (c *Config) MonteCarloConfig() montecarlo.Config {
	cfg := montecarlo.Config{
		Iterations: c.Sweep.Iterations,
		Confidence: c.Sweep.Confidence,
		Workers:    c.Sweep.Workers,
	}
	cfg.SetDefaults()
	return cfg
}

// SweepConfig builds the sweep parameters.
func (c *Config) SweepConfig() (sweep.Config, error) {
	if c.Sweep.Start == "" || c.Sweep.End == "" {
		return sweep.Config{}, fmt.Errorf("sweep start and end are required: %w", model.ErrInvalidConfig)
	}
	start, err := c.clockTime(c.Sweep.Start, "sweep start")
	if err != nil {
		return sweep.Config{}, err
	}
	end, err := c.clockTime(c.Sweep.End, "sweep end")
	if err != nil {
		return sweep.Config{}, err
	}
	policy, err := sweep.ParseGapPolicy(c.Sweep.GapPolicy)
	if err != nil {
		return sweep.Config{}, err
	}
	cfg := sweep.Config{
		Start:       start,
		End:         end,
		Step:        time.Duration(c.Sweep.StepSeconds) * time.Second,
		Seed:        c.Sweep.Seed,
		GapPolicy:   policy,
		Parallelism: c.Sweep.Parallelism,
	}
	if err := cfg.Validate(); err != nil {
		return sweep.Config{}, err
	}
	return cfg, nil
}
