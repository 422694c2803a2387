package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_TooFewSamples(t *testing.T) {
	samples := []Sample{
		{Index: 0, SourceLength: 100, OutputLength: 110},
		{Index: 1, SourceLength: 200, OutputLength: 190},
		{Index: 2, SourceLength: 300, OutputLength: 320},
		{Index: 3, SourceLength: 400, OutputLength: 380},
	}
	assert.Nil(t, Analyze(samples))
}

func TestAnalyze_InvalidLengthsAreIgnored(t *testing.T) {
	// Six samples, but two are unusable: effective n drops below the
	// minimum.
	samples := []Sample{
		{Index: 0, SourceLength: 100, OutputLength: 100},
		{Index: 1, SourceLength: 0, OutputLength: 150},
		{Index: 2, SourceLength: 200, OutputLength: 0},
		{Index: 3, SourceLength: 300, OutputLength: 310},
		{Index: 4, SourceLength: 400, OutputLength: 390},
		{Index: 5, SourceLength: 500, OutputLength: 520},
	}
	assert.Nil(t, Analyze(samples))
}

func TestAnalyze_PerfectLineYieldsNoAnomalies(t *testing.T) {
	// Points exactly on y = 1.2x + 30: residual stddev is zero, so the
	// degenerate guard returns nil rather than flagging everything.
	var samples []Sample
	for i := 0; i < 8; i++ {
		x := 1000 + 100*i
		samples = append(samples, Sample{
			Index:        i,
			SourceLength: x,
			OutputLength: int(1.2*float64(x)) + 30,
		})
	}
	assert.Nil(t, Analyze(samples))
}

func TestAnalyze_IdenticalSourceLengths(t *testing.T) {
	// All x equal: the slope denominator is zero and no fit exists.
	var samples []Sample
	for i := 0; i < 6; i++ {
		samples = append(samples, Sample{Index: i, SourceLength: 500, OutputLength: 400 + 10*i})
	}
	assert.Nil(t, Analyze(samples))
}

func TestAnalyze_FlagsOmission(t *testing.T) {
	// Ten units with source lengths 1000..1450 and matching outputs,
	// except unit 5 whose output collapsed to 150 characters.
	var samples []Sample
	for i := 0; i < 10; i++ {
		length := 1000 + 50*i
		output := length
		if i == 5 {
			output = 150
		}
		samples = append(samples, Sample{Index: i, SourceLength: length, OutputLength: output})
	}

	anomalies := Analyze(samples)
	require.Len(t, anomalies, 1)

	a := anomalies[0]
	assert.Equal(t, 5, a.Index)
	assert.Equal(t, IssueOmission, a.IssueType)
	assert.Less(t, a.ZScore, -2.0)
	assert.Equal(t, 1250, a.SourceLength)
	assert.Equal(t, 150, a.OutputLength)
	assert.InDelta(t, 0.12, a.Ratio, 0.0001)
}

func TestAnalyze_FlagsHallucination(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		length := 1000 + 50*i
		output := length
		if i == 3 {
			output = length * 4
		}
		samples = append(samples, Sample{Index: i, SourceLength: length, OutputLength: output})
	}

	anomalies := Analyze(samples)
	require.Len(t, anomalies, 1)
	assert.Equal(t, 3, anomalies[0].Index)
	assert.Equal(t, IssueHallucination, anomalies[0].IssueType)
	assert.Greater(t, anomalies[0].ZScore, 2.0)
}

func TestAnalyze_ResultsSortedByIndex(t *testing.T) {
	// Two far outliers fed out of order.
	samples := []Sample{
		{Index: 9, SourceLength: 1000, OutputLength: 5000},
		{Index: 1, SourceLength: 1050, OutputLength: 100},
	}
	for i := 2; i < 9; i++ {
		length := 1000 + 50*i
		samples = append(samples, Sample{Index: i, SourceLength: length, OutputLength: length})
	}

	anomalies := Analyze(samples)
	for i := 1; i < len(anomalies); i++ {
		assert.Less(t, anomalies[i-1].Index, anomalies[i].Index)
	}
}
