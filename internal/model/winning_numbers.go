package model

import (
	"errors"
	"fmt"
)

// NumberLength is the fixed width of a ticket number.
const NumberLength = 6

// PatternWildcard matches any single digit in a search pattern.
const PatternWildcard = '_'

// WinningNumbers is the tiered result of a draw.  Every value is a
// fixed-width digit string so that leading zeros survive the pipeline.
//
// RunningFrontThree and RunningBackTwo are alternates supplied by the
// upstream result feed; they stand in for FrontThree and TwoDigit when those
// sets are published empty.
type WinningNumbers struct {
	FirstPrize        string   `json:"first_prize"`
	Nearby            []string `json:"nearby"`
	FrontThree        []string `json:"front_three"`
	BackThree         []string `json:"back_three"`
	TwoDigit          []string `json:"two_digit"`
	RunningFrontThree []string `json:"running_front_three,omitempty"`
	RunningBackTwo    []string `json:"running_back_two,omitempty"`
}

// Validate checks the width and alphabet of every value.
func (w *WinningNumbers) Validate() error {
	if w == nil {
		return errors.New("winning numbers are required")
	}
	if !IsDigits(w.FirstPrize, NumberLength) {
		return fmt.Errorf("first_prize must be %d digits", NumberLength)
	}
	checks := []struct {
		name  string
		vals  []string
		width int
	}{
		{"nearby", w.Nearby, NumberLength},
		{"front_three", w.FrontThree, 3},
		{"back_three", w.BackThree, 3},
		{"two_digit", w.TwoDigit, 2},
		{"running_front_three", w.RunningFrontThree, 3},
		{"running_back_two", w.RunningBackTwo, 2},
	}
	for _, c := range checks {
		for _, v := range c.vals {
			if !IsDigits(v, c.width) {
				return fmt.Errorf("%s value %q must be %d digits", c.name, v, c.width)
			}
		}
	}
	return nil
}

// IsDigits reports whether s consists of exactly width ASCII digits.
func IsDigits(s string, width int) bool {
	if len(s) != width {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidPattern reports whether p is a 6-character search pattern made of
// digits and wildcards.
func ValidPattern(p string) bool {
	if len(p) != NumberLength {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] != PatternWildcard && (p[i] < '0' || p[i] > '9') {
			return false
		}
	}
	return true
}

// MatchPattern reports whether number satisfies pattern position by position.
func MatchPattern(number, pattern string) bool {
	if len(number) != NumberLength || !ValidPattern(pattern) {
		return false
	}
	for i := 0; i < NumberLength; i++ {
		if pattern[i] != PatternWildcard && pattern[i] != number[i] {
			return false
		}
	}
	return true
}
