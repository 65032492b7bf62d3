// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and computes the next
// matching instant. All computation is in UTC, truncated to whole
// minutes. The grammar per field is *, N, N-M, */S, N-M/S, and comma
// lists thereof, with ranges minute [0-59], hour [0-23], day-of-month
// [1-31], month [1-12], day-of-week [0-6] (0 = Sunday).
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoMatch is returned by Next when no matching instant exists
// within the search horizon.
var ErrNoMatch = errors.New("cron: no matching time within one year")

// searchHorizon bounds the Next scan. One year covers every reachable
// schedule; anything further (e.g. "0 0 30 2 *") is unsatisfiable.
const searchHorizon = 366 * 24 * time.Hour

// Schedule is a parsed cron expression. Create with Parse, then call
// Next to compute fire times.
type Schedule struct {
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Standard cron combines the two day fields with AND while either
	// is a wildcard, but with OR when both are explicitly restricted
	// ("0 0 1 * 1" fires on the 1st AND on every Monday). The bitsets
	// alone cannot distinguish "*" from an exhaustive list, so
	// restricted-ness is tracked at parse time.
	dayOfMonthRestricted bool
	dayOfWeekRestricted  bool
}

// bitset64 is a compact set of integers 0-63.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// Parse parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Any malformed
// component invalidates the whole expression.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: hour field: %w", err)
	}
	daysOfMonth, err := parseField(fields[2], 1, 31)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: month field: %w", err)
	}
	daysOfWeek, err := parseField(fields[4], 0, 6)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-week field: %w", err)
	}

	return Schedule{
		minutes:              minutes,
		hours:                hours,
		daysOfMonth:          daysOfMonth,
		months:               months,
		daysOfWeek:           daysOfWeek,
		dayOfMonthRestricted: fields[2] != "*",
		dayOfWeekRestricted:  fields[4] != "*",
	}, nil
}

// Next returns the earliest instant strictly after t that matches the
// schedule, in UTC with zero seconds. Returns ErrNoMatch if nothing
// matches within one year of t.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	// Start at the next whole minute after t.
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(searchHorizon)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			// Jump to the first minute of the next month.
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}

		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w (searched from %s)", ErrNoMatch, t.Add(-searchHorizon).Format(time.RFC3339))
}

// dayMatches applies the day-of-month/day-of-week combination rule:
// OR when both fields are restricted, AND otherwise. A wildcard field
// always matches, so AND with a wildcard reduces to the other field.
func (s Schedule) dayMatches(t time.Time) bool {
	dayOfMonth := s.daysOfMonth.has(t.Day())
	dayOfWeek := s.daysOfWeek.has(int(t.Weekday()))

	if s.dayOfMonthRestricted && s.dayOfWeekRestricted {
		return dayOfMonth || dayOfWeek
	}
	return dayOfMonth && dayOfWeek
}

// parseField parses one cron field into a bitset. The field may
// contain comma-separated terms.
func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	parts := strings.SplitN(term, "/", 2)
	rangeExpression := parts[0]
	step := 1
	if len(parts) == 2 {
		parsed, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", parts[1], err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var rangeStart, rangeEnd int

	switch {
	case rangeExpression == "*":
		rangeStart = minimum
		rangeEnd = maximum

	case strings.IndexByte(rangeExpression, '-') >= 0:
		dashIndex := strings.IndexByte(rangeExpression, '-')
		startText := rangeExpression[:dashIndex]
		endText := rangeExpression[dashIndex+1:]
		var err error
		rangeStart, err = strconv.Atoi(startText)
		if err != nil {
			return 0, fmt.Errorf("invalid range start %q: %w", startText, err)
		}
		rangeEnd, err = strconv.Atoi(endText)
		if err != nil {
			return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
		}
		if rangeStart > rangeEnd {
			return 0, fmt.Errorf("range start %d > end %d", rangeStart, rangeEnd)
		}

	default:
		value, err := strconv.Atoi(rangeExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", rangeExpression, err)
		}
		rangeStart = value
		rangeEnd = value
	}

	if rangeStart < minimum || rangeEnd > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, rangeStart, rangeEnd)
	}

	var result bitset64
	for value := rangeStart; value <= rangeEnd; value += step {
		result.set(value)
	}
	return result, nil
}
