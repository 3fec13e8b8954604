package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records sweep points in Prometheus metrics.
type PromSink struct {
	points      *prometheus.CounterVec
	probability prometheus.Histogram
	latest      prometheus.Gauge
}

// NewPromSink registers sweep metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are
// already registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_points_total",
		Help: "Total number of computed sweep points",
	}, []string{"gap"})
	probability := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lateness_probability",
		Help:    "Distribution of estimated lateness probabilities",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	latest := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lateness_probability_latest",
		Help: "Most recently computed lateness probability",
	})

	sink := &PromSink{points: points, probability: probability, latest: latest}
	for _, col := range []prometheus.Collector{points, probability, latest} {
		if err := reg.Register(col); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch existing := are.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				sink.points = existing
			case prometheus.Histogram:
				sink.probability = existing
			case prometheus.Gauge:
				sink.latest = existing
			}
		}
	}
	return sink, nil
}

// RecordSweepPoint increments the point counter and, for non-gap points,
// observes the probability.
func (s *PromSink) RecordSweepPoint(rec PointRecord) error {
	s.points.WithLabelValues(strconv.FormatBool(rec.Gap)).Inc()
	if !rec.Gap {
		s.probability.Observe(rec.Probability)
		s.latest.Set(rec.Probability)
	}
	return nil
}
