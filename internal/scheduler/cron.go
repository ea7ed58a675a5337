package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field cron expression:
// "minute hour day-of-month month day-of-week".
// Each field accepts *, a number, a range a-b, a step */n or a-b/n, and
// comma separated lists of those. Day-of-week runs 0-6 with 0 = Sunday;
// 7 is accepted as Sunday too.
type Schedule struct {
	expr    string
	minutes uint64
	hours   uint64
	days    uint64
	months  uint64
	weekday uint64
	// day matching follows cron: when both day fields are restricted either may match
	daysRestricted    bool
	weekdayRestricted bool
}

type fieldBounds struct {
	name     string
	min, max int
}

var (
	minuteBounds  = fieldBounds{"minute", 0, 59}
	hourBounds    = fieldBounds{"hour", 0, 23}
	dayBounds     = fieldBounds{"day of month", 1, 31}
	monthBounds   = fieldBounds{"month", 1, 12}
	weekdayBounds = fieldBounds{"day of week", 0, 7}
)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid cron expression: %q (expected 5 fields)", expr)
	}

	s := &Schedule{expr: expr}
	var err error
	if s.minutes, err = parseField(parts[0], minuteBounds); err != nil {
		return nil, err
	}
	if s.hours, err = parseField(parts[1], hourBounds); err != nil {
		return nil, err
	}
	if s.days, err = parseField(parts[2], dayBounds); err != nil {
		return nil, err
	}
	if s.months, err = parseField(parts[3], monthBounds); err != nil {
		return nil, err
	}
	if s.weekday, err = parseField(parts[4], weekdayBounds); err != nil {
		return nil, err
	}
	if s.weekday&(1<<7) != 0 {
		s.weekday |= 1
	}

	s.daysRestricted = parts[2] != "*"
	s.weekdayRestricted = parts[4] != "*"
	return s, nil
}

// parseField returns a bit set of the values a field selects
func parseField(field string, b fieldBounds) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		if item == "" {
			return 0, fmt.Errorf("invalid %s in cron: %q", b.name, field)
		}

		rangePart, step := item, 1
		if i := strings.Index(item, "/"); i >= 0 {
			n, err := strconv.Atoi(item[i+1:])
			if err != nil || n < 1 || n > b.max {
				return 0, fmt.Errorf("invalid %s step in cron: %q", b.name, item)
			}
			rangePart, step = item[:i], n
		}

		lo, hi := b.min, b.max
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			var err error
			if lo, err = b.value(bounds[0]); err != nil {
				return 0, err
			}
			if hi, err = b.value(bounds[1]); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("invalid %s range in cron: %q", b.name, item)
			}
		default:
			v, err := b.value(rangePart)
			if err != nil {
				return 0, err
			}
			lo = v
			// "5/15" means from 5 to the end in steps of 15
			if step == 1 {
				hi = v
			}
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func (b fieldBounds) value(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < b.min || v > b.max {
		return 0, fmt.Errorf("invalid %s in cron: %q (%d-%d)", b.name, s, b.min, b.max)
	}
	return v, nil
}

// String returns the original expression
func (s *Schedule) String() string {
	return s.expr
}

// Matches reports whether t (truncated to the minute) is selected
func (s *Schedule) Matches(t time.Time) bool {
	return has(s.minutes, t.Minute()) &&
		has(s.hours, t.Hour()) &&
		has(s.months, int(t.Month())) &&
		s.dayMatches(t)
}

func (s *Schedule) dayMatches(t time.Time) bool {
	dom := has(s.days, t.Day())
	dow := has(s.weekday, int(t.Weekday()))
	if s.daysRestricted && s.weekdayRestricted {
		return dom || dow
	}
	return dom && dow
}

// Next returns the first matching minute strictly after from, in from's
// location. The zero time is returned when nothing matches within five
// years (e.g. "0 0 31 2 *").
func (s *Schedule) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(s.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(s.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(s.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}
