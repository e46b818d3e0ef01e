// Package score defines the five-dimensional personality vector used to
// measure similarity between waiting users and implements the distance
// metric the matchmaker uses to pick a pairing partner.
package score

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Score is an OCEAN personality vector: openness, conscientiousness,
// extroversion, agreeableness, neuroticism. Components are percentile values
// and are not range-checked beyond being valid floats.
type Score struct {
	O float64 `json:"o"`
	C float64 `json:"c"`
	E float64 `json:"e"`
	A float64 `json:"a"`
	N float64 `json:"n"`
}

// Distance returns the Euclidean distance between two scores.
func (s Score) Distance(other Score) float64 {
	do := s.O - other.O
	dc := s.C - other.C
	de := s.E - other.E
	da := s.A - other.A
	dn := s.N - other.N
	return math.Sqrt(do*do + dc*dc + de*de + da*da + dn*dn)
}

// String renders the score as five comma-separated decimals, matching the
// wire format accepted by Parse.
func (s Score) String() string {
	return fmt.Sprintf("%g,%g,%g,%g,%g", s.O, s.C, s.E, s.A, s.N)
}

// Parse decodes a comma-separated five-tuple "o,c,e,a,n" into a Score. It
// returns an error if there are not exactly five fields or any field fails
// to parse as a float.
func Parse(s string) (Score, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return Score{}, fmt.Errorf("score: expected 5 comma-separated values, got %d", len(parts))
	}

	vals := make([]float64, 5)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Score{}, fmt.Errorf("score: invalid component %d (%q): %w", i, p, err)
		}
		vals[i] = v
	}

	return Score{O: vals[0], C: vals[1], E: vals[2], A: vals[3], N: vals[4]}, nil
}
