// Package schedule models time-windowed access rules and decides whether an
// instant falls inside one of a rule's occurrences.
//
// Calendar policy for MONTHLY and YEARLY rules: each occurrence keeps the
// start's day of month, clamped to the last day of the target month. A rule
// starting Jan 31 recurs on Feb 28 (Feb 29 in leap years), Mar 31, Apr 30 and
// so on; a yearly rule starting Feb 29 recurs on Feb 28 in non-leap years.
// DAILY and WEEKLY rules keep the start's wall-clock time in the rule's
// location, so they follow DST shifts. Wall-clock times that fall into a DST
// gap are normalized the way time.Date normalizes them.
package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
)

// Frequency is the step between two occurrences of a recurring rule.
type Frequency string

const (
	Hourly  Frequency = "HOURLY"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// ParseFrequency accepts a frequency token in any letter case.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case Hourly, Daily, Weekly, Monthly, Yearly:
		return f, nil
	}
	return "", fmt.Errorf("%w: frequency should be HOURLY, DAILY, WEEKLY, MONTHLY, or YEARLY, got %q",
		errs.ErrValidation, s)
}

// MaxCount is the largest occurrence count a rule may carry; stores keep it
// in a 32-bit column.
const MaxCount = math.MaxInt32

// Recurrence bounds a series of occurrences. Count 0 and a nil Until mean
// the bound is absent; with both absent the series is unbounded.
type Recurrence struct {
	Frequency Frequency
	Until     *time.Time
	Count     int
}

// Rule is a validated access window, optionally recurring. Construct it with
// NewRule; the zero value matches nothing.
type Rule struct {
	Start      time.Time
	End        time.Time
	Recurrence *Recurrence
}

// NewRule validates and builds a rule. A recurrence with neither frequency,
// count nor until is treated as absent.
func NewRule(start, end time.Time, rec *Recurrence) (Rule, error) {
	if !start.Before(end) {
		return Rule{}, fmt.Errorf("%w: start must be before end", errs.ErrValidation)
	}
	if rec != nil && rec.Frequency == "" && rec.Count == 0 && rec.Until == nil {
		rec = nil
	}
	if rec != nil {
		if rec.Frequency == "" {
			return Rule{}, fmt.Errorf("%w: frequency required when count or until is set", errs.ErrValidation)
		}
		f, err := ParseFrequency(string(rec.Frequency))
		if err != nil {
			return Rule{}, err
		}
		if rec.Count < 0 || rec.Count > MaxCount {
			return Rule{}, fmt.Errorf("%w: count must be between 1 and %d", errs.ErrValidation, MaxCount)
		}
		if rec.Until != nil && rec.Until.Before(start) {
			return Rule{}, fmt.Errorf("%w: until must not be before start", errs.ErrValidation)
		}
		cp := Recurrence{Frequency: f, Count: rec.Count}
		if rec.Until != nil {
			u := *rec.Until
			cp.Until = &u
		}
		rec = &cp
	}
	return Rule{Start: start, End: end, Recurrence: rec}, nil
}

// Duration is the length of every occurrence window.
func (r Rule) Duration() time.Duration { return r.End.Sub(r.Start) }

// In returns the rule with its instants expressed in loc. Calendar steps for
// DAILY and longer frequencies are taken in that location.
func (r Rule) In(loc *time.Location) Rule {
	out := Rule{Start: r.Start.In(loc), End: r.End.In(loc)}
	if r.Recurrence != nil {
		rec := *r.Recurrence
		if rec.Until != nil {
			u := rec.Until.In(loc)
			rec.Until = &u
		}
		out.Recurrence = &rec
	}
	return out
}

// Matches reports whether t falls inside one of the rule's occurrences.
func (r Rule) Matches(t time.Time) bool {
	if t.Before(r.Start) || !r.Start.Before(r.End) {
		return false
	}
	if r.Recurrence == nil {
		return t.Before(r.End)
	}

	k := r.lastStartAtOrBefore(t)
	if u := r.Recurrence.Until; u != nil {
		if u.Before(r.Start) {
			return false
		}
		if ku := r.lastStartAtOrBefore(*u); k > ku {
			k = ku
		}
	}
	// Occurrence starts are monotonic and windows share one length, so only
	// the latest eligible occurrence can still be open at t.
	return t.Before(r.occurrence(k).Add(r.Duration()))
}

// Occurrences lists the windows of the rule that overlap [from, to), up to
// limit entries (limit <= 0 means no limit).
func (r Rule) Occurrences(from, to time.Time, limit int) []Window {
	if !from.Before(to) || !r.Start.Before(r.End) {
		return nil
	}
	if r.Recurrence == nil {
		if r.End.After(from) && r.Start.Before(to) {
			return []Window{{Start: r.Start, End: r.End}}
		}
		return nil
	}

	var k int64
	if from.After(r.Start) {
		k = r.lastStartAtOrBefore(from)
		if !r.occurrence(k).Add(r.Duration()).After(from) {
			k++
		}
	}
	var out []Window
	for ; limit <= 0 || len(out) < limit; k++ {
		if c := int64(r.Recurrence.Count); c > 0 && k >= c {
			break
		}
		start := r.occurrence(k)
		if u := r.Recurrence.Until; u != nil && start.After(*u) {
			break
		}
		if !start.Before(to) {
			break
		}
		out = append(out, Window{Start: start, End: start.Add(r.Duration())})
	}
	return out
}

// Window is one concrete occurrence of a rule.
type Window struct {
	Start time.Time
	End   time.Time
}

const (
	secondsPerHour = 3600
	secondsPerDay  = 24 * secondsPerHour
	secondsPerWeek = 7 * secondsPerDay
)

// lastStartAtOrBefore returns the largest k >= 0 whose occurrence starts at
// or before t, capped at the last occurrence count allows. Until is not
// applied. t must not be before r.Start.
func (r Rule) lastStartAtOrBefore(t time.Time) int64 {
	// Whole seconds, not time.Duration: spans over ~292 years would
	// saturate.
	elapsed := t.Unix() - r.Start.Unix()

	var k int64
	switch r.Recurrence.Frequency {
	case Hourly:
		k = elapsed / secondsPerHour
	case Daily:
		k = elapsed / secondsPerDay
	case Weekly:
		k = elapsed / secondsPerWeek
	case Monthly:
		k = monthsBetween(r.Start, t)
	case Yearly:
		k = monthsBetween(r.Start, t) / 12
	}
	if k < 0 {
		k = 0
	}
	last := int64(-1)
	if c := int64(r.Recurrence.Count); c > 0 {
		last = c - 1
		if k > last {
			k = last
		}
	}
	// The estimate is off by at most one step (DST shifts, month clamping).
	for k > 0 && r.occurrence(k).After(t) {
		k--
	}
	for k != last && !r.occurrence(k+1).After(t) {
		k++
	}
	return k
}

func (r Rule) occurrence(k int64) time.Time {
	switch r.Recurrence.Frequency {
	case Hourly:
		return time.Unix(r.Start.Unix()+k*secondsPerHour, int64(r.Start.Nanosecond())).In(r.Start.Location())
	case Daily:
		return addDays(r.Start, k)
	case Weekly:
		return addDays(r.Start, 7*k)
	case Monthly:
		return addMonths(r.Start, k)
	case Yearly:
		return addMonths(r.Start, 12*k)
	}
	return r.Start
}

func addDays(t time.Time, n int64) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d+int(n), hh, mm, ss, t.Nanosecond(), t.Location())
}

func addMonths(t time.Time, n int64) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int64(y)*12 + int64(m-1) + n
	ty := int(floorDiv(total, 12))
	tm := time.Month(total-int64(ty)*12) + 1
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func monthsBetween(from, to time.Time) int64 {
	to = to.In(from.Location())
	fy, fm, _ := from.Date()
	ty, tm, _ := to.Date()
	return (int64(ty)*12 + int64(tm)) - (int64(fy)*12 + int64(fm))
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
