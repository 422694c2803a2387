// Package chunk splits source text into ordered units for dispatch.
package chunk

import "strings"

// DefaultMaxUnitSize is the unit size bound used when the caller does
// not configure one.
const DefaultMaxUnitSize = 6000

// Split divides text into ordered units of at most maxUnitSize bytes.
// Whole lines are accumulated into a running buffer; when appending the
// next line would exceed the bound, the buffer is emitted and a new one
// starts with that line. A single line longer than maxUnitSize is
// emitted verbatim as its own oversized unit; this layer never splits
// mid-line.
//
// Concatenating the returned units reproduces text exactly. No unit is
// empty; empty input yields no units.
func Split(text string, maxUnitSize int) []string {
	if text == "" {
		return nil
	}
	if maxUnitSize <= 0 {
		maxUnitSize = DefaultMaxUnitSize
	}

	var units []string
	var current strings.Builder

	for _, line := range splitLines(text) {
		if current.Len()+len(line) <= maxUnitSize {
			current.WriteString(line)
			continue
		}
		if current.Len() > 0 {
			units = append(units, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		units = append(units, current.String())
	}
	return units
}

// splitLines splits text after every newline, keeping the newline
// attached to its line so that concatenation is lossless.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
