// Package calc derives attendance metrics from (present, total) pairs.
package calc

import "math"

// Threshold is the minimum attendance percentage a student has to keep.
const Threshold = 75.0

// Percent returns present/total as a percentage rounded to 2 decimal places,
// or 0 when total is 0.
func Percent(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*10000) / 100
}

// Required returns the smallest number of consecutive classes to attend so
// that the percentage reaches Threshold. It returns 0 exactly when Percent is
// already at or above Threshold.
//
// Solving (p+r)/(t+r) = 0.75 gives r = 3t-4p. Below the threshold 3t-4p is
// positive for any t > 0, the only case left is t == 0 where one attended
// class is enough.
func Required(present, total int) int {
	if Percent(present, total) >= Threshold {
		return 0
	}
	r := 3*total - 4*present
	if r < 1 {
		return 1
	}
	return r
}

// CanMiss returns how many further classes can be missed while staying at or
// above Threshold, floor(p/0.75 - t) clamped at 0.
func CanMiss(present, total int) int {
	if total <= 0 || present < 0 {
		return 0
	}
	// p/0.75 - t == (4p - 3t) / 3, kept in integers to avoid float floor drift.
	slack := 4*present - 3*total
	if slack <= 0 {
		return 0
	}
	return slack / 3
}

// Absent derives the absences of a row when the portal only exposes
// present and total.
func Absent(present, total int) int {
	if total <= present {
		return 0
	}
	return total - present
}

// Metrics are the derived values stored next to every attendance row.
type Metrics struct {
	Absent   int
	Percent  float64
	Margin   int
	Required int
}

func Derive(present, total int) Metrics {
	return Metrics{
		Absent:   Absent(present, total),
		Percent:  Percent(present, total),
		Margin:   CanMiss(present, total),
		Required: Required(present, total),
	}
}

// maxIterations bounds requiredIterative for extreme inputs.
const maxIterations = 1_000_000

// requiredIterative is a brute force Required used to validate the closed
// form. It returns -1 if no answer is found within maxIterations.
func requiredIterative(present, total int) int {
	for r := 0; r <= maxIterations; r++ {
		if total+r == 0 {
			continue
		}
		if Percent(present+r, total+r) >= Threshold {
			return r
		}
	}
	return -1
}
