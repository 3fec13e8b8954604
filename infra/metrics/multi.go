package metrics

// MultiSink fans sweep points out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSweepPoint forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordSweepPoint(rec PointRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSweepPoint(rec); err != nil {
			return err
		}
	}
	return nil
}
