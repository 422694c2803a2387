// Package audit detects statistically anomalous output lengths among
// completed units. Output length is expected to scale roughly linearly
// with source length; a completed unit whose output falls far from the
// fitted line suggests an omission (too short) or a hallucination (too
// long).
package audit

import (
	"math"
	"sort"
)

// Issue types assigned to flagged units.
const (
	IssueOmission      = "omission"
	IssueHallucination = "hallucination"
)

// zThreshold is the z-score magnitude beyond which a residual is
// flagged.
const zThreshold = 2.0

// minSamples is the smallest data set with enough statistical power to
// fit a meaningful regression.
const minSamples = 5

// Sample is one completed unit's (source length, output length) pair.
type Sample struct {
	Index        int
	SourceLength int
	OutputLength int
}

// Anomaly describes one flagged unit. Records are ephemeral: produced
// once per audit run and never persisted.
type Anomaly struct {
	Index          int     `json:"index"`
	IssueType      string  `json:"issue_type"`
	SourceLength   int     `json:"source_length"`
	OutputLength   int     `json:"output_length"`
	ExpectedLength float64 `json:"expected_length"`
	Ratio          float64 `json:"ratio"`
	ZScore         float64 `json:"z_score"`
}

// Analyze fits an ordinary-least-squares line outputLength ≈
// a·sourceLength + b over the samples and flags points whose residual
// z-score exceeds the threshold. Samples with a non-positive length on
// either side are ignored. Returns nil when fewer than minSamples
// valid points remain, when all source lengths are identical (zero
// slope denominator), or when the residual standard deviation is zero.
// Results are sorted ascending by index.
func Analyze(samples []Sample) []Anomaly {
	points := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.SourceLength > 0 && s.OutputLength > 0 {
			points = append(points, s)
		}
	}
	n := len(points)
	if n < minSamples {
		return nil
	}

	// Closed-form normal equations for y = ax + b.
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		x := float64(p.SourceLength)
		y := float64(p.OutputLength)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	fn := float64(n)
	denominator := fn*sumX2 - sumX*sumX
	if denominator == 0 {
		return nil
	}
	a := (fn*sumXY - sumX*sumY) / denominator
	b := (sumY - a*sumX) / fn

	residuals := make([]float64, n)
	for i, p := range points {
		predicted := a*float64(p.SourceLength) + b
		residuals[i] = float64(p.OutputLength) - predicted
	}

	var meanResidual float64
	for _, r := range residuals {
		meanResidual += r
	}
	meanResidual /= fn

	var variance float64
	for _, r := range residuals {
		variance += (r - meanResidual) * (r - meanResidual)
	}
	variance /= fn
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return nil
	}

	var anomalies []Anomaly
	for i, p := range points {
		z := residuals[i] / stdDev
		var issue string
		switch {
		case z < -zThreshold:
			issue = IssueOmission
		case z > zThreshold:
			issue = IssueHallucination
		default:
			continue
		}
		expected := a*float64(p.SourceLength) + b
		anomalies = append(anomalies, Anomaly{
			Index:          p.Index,
			IssueType:      issue,
			SourceLength:   p.SourceLength,
			OutputLength:   p.OutputLength,
			ExpectedLength: round(expected, 2),
			Ratio:          round(float64(p.OutputLength)/float64(p.SourceLength), 4),
			ZScore:         round(z, 2),
		})
	}

	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].Index < anomalies[j].Index
	})
	return anomalies
}

// round rounds v to the given number of decimal places.
func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
