package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latecast/latecast/core/model"
)

func sampleCurve() model.LatenessCurve {
	leave := time.Date(2025, 3, 14, 8, 40, 0, 0, time.UTC)
	return model.LatenessCurve{Points: []model.CurvePoint{
		{
			LeaveTime: leave,
			Estimate: model.LatenessEstimate{
				Probability: 0.25,
				Samples:     1000,
				LateCount:   250,
				Interval:    &model.ConfidenceInterval{Level: 0.95, Low: 0.22, High: 0.28},
			},
		},
		{LeaveTime: leave.Add(10 * time.Minute), Gap: true},
	}}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "run-1", sampleCurve()))

	var out struct {
		RunID  string `json:"run_id"`
		Points []struct {
			LeaveTime       time.Time `json:"leave_time"`
			ProbabilityLate float64   `json:"probability_late"`
			Samples         int       `json:"samples"`
			CILow           *float64  `json:"ci_low"`
			Gap             bool      `json:"gap"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "run-1", out.RunID)
	require.Len(t, out.Points, 2)

	assert.Equal(t, 0.25, out.Points[0].ProbabilityLate)
	assert.Equal(t, 1000, out.Points[0].Samples)
	require.NotNil(t, out.Points[0].CILow)
	assert.Equal(t, 0.22, *out.Points[0].CILow)
	assert.False(t, out.Points[0].Gap)

	// Gap points omit the interval entirely.
	assert.Nil(t, out.Points[1].CILow)
	assert.True(t, out.Points[1].Gap)
}

func TestWriteJSONEmptyCurve(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "run-1", model.LatenessCurve{}))
	assert.Contains(t, buf.String(), `"points":[]`)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, "run-1", sampleCurve()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"run_id", "leave_time", "probability_late", "samples", "late_count", "ci_low", "ci_high", "gap"}, rows[0])
	assert.Equal(t, []string{"run-1", "2025-03-14T08:40:00Z", "0.25", "1000", "250", "0.22", "0.28", "false"}, rows[1])

	// Gap row carries empty interval columns.
	assert.Equal(t, "", rows[2][5])
	assert.Equal(t, "true", rows[2][7])
}
