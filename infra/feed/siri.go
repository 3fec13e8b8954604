// Package feed retrieves raw schedule observations from a SIRI-style
// stop-departures endpoint (CSV rows of transport type, route and seconds
// since midnight, as served by transport.tallinn.ee).
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/infra/logger"
)

// Config holds the feed endpoint and route selection.
type Config struct {
	// Endpoint is the stop-departures URL; the stop id is appended as the
	// stopid query parameter.
	Endpoint string `json:"endpoint"`
	// OriginStopID is the boarding stop, DestStopID the alighting stop.
	OriginStopID string `json:"origin_stop_id"`
	DestStopID   string `json:"dest_stop_id"`
	// TransportType filters rows by vehicle kind (e.g. "bus").
	TransportType string `json:"transport_type"`
	// Route filters rows by line number (e.g. "8").
	Route          string `json:"route"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// MaxRetries bounds the exponential backoff retry loop per stop.
	MaxRetries uint64 `json:"max_retries"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://transport.tallinn.ee/siri-stop-departures.php"
	}
	if c.TransportType == "" {
		c.TransportType = "bus"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.OriginStopID == "" || c.DestStopID == "" {
		return fmt.Errorf("origin and destination stop ids are required: %w", model.ErrInvalidConfig)
	}
	if c.Route == "" {
		return fmt.Errorf("route is required: %w", model.ErrInvalidConfig)
	}
	return nil
}

// Client fetches schedule observations over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient creates a feed client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  log,
	}, nil
}

// Observations fetches origin-stop departures and destination-stop arrivals
// for the given service day. An unreachable feed or one with no rows for
// either stop surfaces as ErrFeedUnavailable.
func (c *Client) Observations(ctx context.Context, day time.Time) ([]model.ScheduleObservation, error) {
	departures, err := c.stopTimes(ctx, c.cfg.OriginStopID, day)
	if err != nil {
		return nil, err
	}
	arrivals, err := c.stopTimes(ctx, c.cfg.DestStopID, day)
	if err != nil {
		return nil, err
	}
	if len(departures) == 0 && len(arrivals) == 0 {
		return nil, fmt.Errorf("no %s rows for route %s at stops %s/%s: %w",
			c.cfg.TransportType, c.cfg.Route, c.cfg.OriginStopID, c.cfg.DestStopID, model.ErrFeedUnavailable)
	}

	obs := make([]model.ScheduleObservation, 0, len(departures)+len(arrivals))
	for _, r := range departures {
		obs = append(obs, model.ScheduleObservation{VehicleID: r.vehicleID, OriginDeparture: r.at})
	}
	for _, r := range arrivals {
		obs = append(obs, model.ScheduleObservation{VehicleID: r.vehicleID, DestArrival: r.at})
	}
	c.log.Infof("fetched %d departures and %d arrivals for route %s", len(departures), len(arrivals), c.cfg.Route)
	return obs, nil
}

type stopRow struct {
	vehicleID string
	at        time.Time
}

func (c *Client) stopTimes(ctx context.Context, stopID string, day time.Time) ([]stopRow, error) {
	var body string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stopURL(stopID), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				c.log.Warnf("close response body: %v", cerr)
			}
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("stop %s: unexpected status %s", stopID, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("fetch stop %s: %w: %w", stopID, model.ErrFeedUnavailable, err)
	}
	return c.parse(body, day), nil
}

func (c *Client) stopURL(stopID string) string {
	return c.cfg.Endpoint + "?stopid=" + url.QueryEscape(stopID)
}

// parse extracts matching rows. Expected fields per line: transport type,
// route, seconds since midnight and an optional vehicle id. Malformed rows
// are skipped, never guessed at.
func (c *Client) parse(body string, day time.Time) []stopRow {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, day.Location())

	var rows []stopRow
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 3 {
			continue
		}
		if fields[0] != c.cfg.TransportType || fields[1] != c.cfg.Route {
			continue
		}
		secs, err := strconv.Atoi(fields[2])
		if err != nil || secs < 0 {
			continue
		}
		row := stopRow{at: midnight.Add(time.Duration(secs) * time.Second)}
		if len(fields) > 3 {
			row.vehicleID = strings.TrimSpace(fields[3])
		}
		rows = append(rows, row)
	}
	return rows
}
