// Package cron parses standard 5-field cron expressions and computes their
// next firing time.
//
// Each field accepts "*", a number, a range "a-b", and a step over either
// ("*/n", "a-b/n", "a/n"), or a comma list of those. Steps count from the
// start of their range, so "*/2" in the day-of-month field fires on 1, 3, 5.
// Day of week is 0-7 with both 0 and 7 meaning Sunday. When day of month and
// day of week are both restricted a day matching either one fires.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// horizon bounds the search for the next firing time. It spans two leap
// days, so a schedule for February 29 is always found.
const horizon = 5

// Schedule is a parsed cron expression. The zero Schedule never fires.
type Schedule struct {
	expr    string
	minute  uint64
	hour    uint64
	dom     uint64
	month   uint64
	dow     uint64
	domStar bool
	dowStar bool
}

type bounds struct {
	name   string
	lo, hi int
}

var fields = [5]bounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 7},
}

// Parse parses expr. It rejects expressions that can never fire, such as
// "0 0 31 2 *".
func Parse(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}

	var sets [5]uint64
	for i, p := range parts {
		set, err := parseField(p, fields[i].lo, fields[i].hi)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron %q: %s: %w", expr, fields[i].name, err)
		}
		sets[i] = set
	}
	if sets[4]&(1<<7) != 0 {
		sets[4] = sets[4]&^(1<<7) | 1
	}

	s := Schedule{
		expr:    strings.Join(parts, " "),
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		dow:     sets[4],
		domStar: strings.HasPrefix(parts[2], "*"),
		dowStar: strings.HasPrefix(parts[4], "*"),
	}
	if _, ok := s.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); !ok {
		return Schedule{}, fmt.Errorf("cron %q: never fires", expr)
	}
	return s, nil
}

func parseField(s string, lo, hi int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(s, ",") {
		rng, stepText, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", part)
			}
			step = n
		}

		var start, end int
		switch {
		case rng == "*":
			start, end = lo, hi
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return 0, fmt.Errorf("invalid range %q", part)
			}
			if end, err = strconv.Atoi(b); err != nil {
				return 0, fmt.Errorf("invalid range %q", part)
			}
			if start > end {
				return 0, fmt.Errorf("range %q is reversed", part)
			}
		default:
			n, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", part)
			}
			start, end = n, n
			if hasStep {
				end = hi
			}
		}
		if start < lo || end > hi {
			return 0, fmt.Errorf("%q out of range [%d,%d]", part, lo, hi)
		}

		for v := start; v <= end; v += step {
			set |= 1 << v
		}
	}
	return set, nil
}

func has(set uint64, v int) bool { return set&(1<<v) != 0 }

func (s Schedule) dayMatches(t time.Time) bool {
	d := has(s.dom, t.Day())
	w := has(s.dow, int(t.Weekday()))
	if s.domStar || s.dowStar {
		return d && w
	}
	return d || w
}

// Next returns the first minute strictly after t that matches. It reports
// false when nothing matches within five years.
func (s Schedule) Next(t time.Time) (time.Time, bool) {
	c := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(horizon, 0, 0)
	loc := c.Location()

	for c.Before(limit) {
		switch {
		case !has(s.month, int(c.Month())):
			c = time.Date(c.Year(), c.Month()+1, 1, 0, 0, 0, 0, loc)
		case !s.dayMatches(c):
			c = time.Date(c.Year(), c.Month(), c.Day()+1, 0, 0, 0, 0, loc)
		case !has(s.hour, c.Hour()):
			c = time.Date(c.Year(), c.Month(), c.Day(), c.Hour()+1, 0, 0, 0, loc)
		case !has(s.minute, c.Minute()):
			c = c.Add(time.Minute)
		default:
			return c, true
		}
	}
	return time.Time{}, false
}

// String returns the normalized expression.
func (s Schedule) String() string { return s.expr }
