// Package export serializes lateness curves for downstream consumers. The
// engine assumes nothing about how the curve is rendered; these writers are
// the hand-off format.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/latecast/latecast/core/model"
)

type jsonPoint struct {
	LeaveTime       time.Time `json:"leave_time"`
	ProbabilityLate float64   `json:"probability_late"`
	Samples         int       `json:"samples"`
	LateCount       int       `json:"late_count"`
	CILow           *float64  `json:"ci_low,omitempty"`
	CIHigh          *float64  `json:"ci_high,omitempty"`
	Gap             bool      `json:"gap"`
}

type jsonCurve struct {
	RunID  string      `json:"run_id"`
	Points []jsonPoint `json:"points"`
}

// WriteJSON writes the curve to w in JSON format.
func WriteJSON(w io.Writer, runID string, curve model.LatenessCurve) error {
	out := jsonCurve{RunID: runID, Points: make([]jsonPoint, 0, len(curve.Points))}
	for _, p := range curve.Points {
		jp := jsonPoint{
			LeaveTime:       p.LeaveTime,
			ProbabilityLate: p.Estimate.Probability,
			Samples:         p.Estimate.Samples,
			LateCount:       p.Estimate.LateCount,
			Gap:             p.Gap,
		}
		if ci := p.Estimate.Interval; ci != nil {
			low, high := ci.Low, ci.High
			jp.CILow, jp.CIHigh = &low, &high
		}
		out.Points = append(out.Points, jp)
	}
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// WriteCSV writes the curve to w in CSV format.
func WriteCSV(w io.Writer, runID string, curve model.LatenessCurve) error {
	cw := csv.NewWriter(w)
	header := []string{"run_id", "leave_time", "probability_late", "samples", "late_count", "ci_low", "ci_high", "gap"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range curve.Points {
		low, high := "", ""
		if ci := p.Estimate.Interval; ci != nil {
			low = strconv.FormatFloat(ci.Low, 'f', -1, 64)
			high = strconv.FormatFloat(ci.High, 'f', -1, 64)
		}
		rec := []string{
			runID,
			p.LeaveTime.Format(time.RFC3339),
			strconv.FormatFloat(p.Estimate.Probability, 'f', -1, 64),
			strconv.Itoa(p.Estimate.Samples),
			strconv.Itoa(p.Estimate.LateCount),
			low,
			high,
			strconv.FormatBool(p.Gap),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
