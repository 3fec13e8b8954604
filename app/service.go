// Package app wires the feed, the reconciliation engine, the sweep and the
// observability sinks into one runnable service.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/latecast/latecast/config"
	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/montecarlo"
	"github.com/latecast/latecast/core/schedule"
	"github.com/latecast/latecast/core/sim"
	"github.com/latecast/latecast/core/sweep"
	"github.com/latecast/latecast/infra/feed"
	"github.com/latecast/latecast/infra/logger"
	"github.com/latecast/latecast/infra/metrics"
	"github.com/latecast/latecast/infra/mqtt"
	"github.com/latecast/latecast/internal/eventbus"
	"github.com/latecast/latecast/pkg/export"
)

// Service orchestrates one sweep run.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	feed      *feed.Client
	sink      metrics.Sink
	influx    *metrics.InfluxSink
	publisher *mqtt.Publisher
	bus       *eventbus.Bus
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")

	feedClient, err := feed.NewClient(cfg.Feed, logger.New("feed"))
	if err != nil {
		return nil, fmt.Errorf("feed client: %w", err)
	}

	svc := &Service{cfg: cfg, log: logg, feed: feedClient, bus: eventbus.New()}

	var sinks []metrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics)
		if influx, ok := sink.(*metrics.InfluxSink); ok {
			svc.influx = influx
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		svc.sink = metrics.NopSink{}
	case 1:
		svc.sink = sinks[0]
	default:
		svc.sink = metrics.NewMultiSink(sinks...)
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Run fetches the schedule, reconciles it and sweeps the leave-time window.
// The exported curve (possibly partial, with gaps marked) is written even
// when the sweep is cancelled mid-way.
func (s *Service) Run(ctx context.Context) error {
	runID := uuid.NewString()
	day, err := s.cfg.ServiceDay()
	if err != nil {
		return err
	}
	plan, err := s.cfg.JourneyPlan()
	if err != nil {
		return err
	}
	sweepCfg, err := s.cfg.SweepConfig()
	if err != nil {
		return err
	}

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	observations, err := s.feed.Observations(ctx, day)
	if err != nil {
		return err
	}
	timetable, err := schedule.Reconcile(observations, s.cfg.ReconcilerConfig())
	if err != nil {
		return err
	}
	s.log.Infof("run %s: reconciled %d departures into %d known buckets", runID, len(timetable.Trips()), len(timetable.Buckets()))

	simulator, err := sim.New(plan, timetable)
	if err != nil {
		return err
	}
	estimator, err := montecarlo.New(simulator, s.cfg.MonteCarloConfig(), logger.New("montecarlo"))
	if err != nil {
		return err
	}
	driver, err := sweep.New(estimator, sweepCfg, logger.New("sweep"), s.bus)
	if err != nil {
		return err
	}

	consumerDone := s.consumePoints(runID)
	curve, runErr := driver.Run(ctx)
	s.bus.Close()
	<-consumerDone

	if len(curve.Points) > 0 {
		if err := s.exportCurve(runID, curve); err != nil {
			s.log.Errorf("export curve: %v", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			s.log.Infof("run %s: wrote %d points to %s", runID, len(curve.Points), s.cfg.Output.Path)
		}
	}
	return runErr
}

// consumePoints forwards sweep progress to the sinks and the optional MQTT
// publisher until the bus closes.
func (s *Service) consumePoints(runID string) <-chan struct{} {
	events := s.bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			rec := metrics.PointRecord{
				RunID:       runID,
				LeaveTime:   e.LeaveTime,
				Probability: e.Estimate.Probability,
				Samples:     e.Estimate.Samples,
				Gap:         e.Gap,
			}
			if err := s.sink.RecordSweepPoint(rec); err != nil {
				s.log.Errorf("record point: %v", err)
			}
			if s.publisher != nil {
				if err := s.publisher.PublishPoint(rec); err != nil {
					s.log.Errorf("publish point: %v", err)
				}
			}
			s.log.Debugf("point %d/%d leave=%s p=%.4f gap=%t",
				e.Index+1, e.Total, e.LeaveTime.Format(time.TimeOnly), e.Estimate.Probability, e.Gap)
		}
	}()
	return done
}

func (s *Service) exportCurve(runID string, curve model.LatenessCurve) error {
	f, err := os.Create(s.cfg.Output.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.log.Errorf("close output file: %v", cerr)
		}
	}()
	if s.cfg.Output.Format == "json" {
		return export.WriteJSON(f, runID, curve)
	}
	return export.WriteCSV(f, runID, curve)
}

// Close releases external connections.
func (s *Service) Close() error {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	return nil
}
