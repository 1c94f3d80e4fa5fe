package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
)

// UntilLayout is the wire layout of the UNTIL key (floating local time).
const UntilLayout = "20060102T150405"

var frequencies = map[rrule.Frequency]Frequency{
	rrule.HOURLY:  Hourly,
	rrule.DAILY:   Daily,
	rrule.WEEKLY:  Weekly,
	rrule.MONTHLY: Monthly,
	rrule.YEARLY:  Yearly,
}

// ParseRRule parses the recurrence string used on the wire, e.g.
// "FREQ=WEEKLY;COUNT=3;UNTIL=20240305T235959". An empty string means no
// recurrence. UNTIL is read in loc unless it carries a trailing Z. Only
// FREQ, COUNT, UNTIL and INTERVAL=1 are supported.
//
// The result is not validated against a start instant; NewRule does that.
func ParseRRule(s string, loc *time.Location) (*Recurrence, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	keys, err := rruleKeys(s)
	if err != nil {
		return nil, err
	}
	if !keys["FREQ"] && (keys["COUNT"] || keys["UNTIL"]) {
		return nil, fmt.Errorf("%w: frequency required when count or until is set", errs.ErrValidation)
	}

	opt, err := rrule.StrToROptionInLocation(s, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: rrule %q: %v", errs.ErrValidation, s, err)
	}
	if err := unsupported(opt); err != nil {
		return nil, err
	}

	freq, ok := frequencies[opt.Freq]
	if !ok {
		return nil, fmt.Errorf("%w: frequency should be HOURLY, DAILY, WEEKLY, MONTHLY, or YEARLY", errs.ErrValidation)
	}
	rec := &Recurrence{Frequency: freq}
	if keys["COUNT"] {
		if opt.Count <= 0 || opt.Count > math.MaxInt32 {
			return nil, fmt.Errorf("%w: COUNT must be between 1 and %d", errs.ErrValidation, math.MaxInt32)
		}
		rec.Count = opt.Count
	}
	if keys["UNTIL"] {
		u := opt.Until
		rec.Until = &u
	}
	return rec, nil
}

// rruleKeys returns the keys present in s and rejects repeated ones, which
// the parser would otherwise let the last occurrence win.
func rruleKeys(s string) (map[string]bool, error) {
	keys := make(map[string]bool, 3)
	for _, part := range strings.Split(strings.TrimPrefix(s, "RRULE:"), ";") {
		key, _, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if keys[key] {
			return nil, fmt.Errorf("%w: duplicate rrule key %s", errs.ErrValidation, key)
		}
		keys[key] = true
	}
	return keys, nil
}

func unsupported(opt *rrule.ROption) error {
	reject := func(what string) error {
		return fmt.Errorf("%w: unsupported rrule part %s", errs.ErrValidation, what)
	}
	switch {
	case opt.Interval > 1:
		return reject("INTERVAL")
	case !opt.Dtstart.IsZero():
		return reject("DTSTART")
	case len(opt.Bysetpos) > 0:
		return reject("BYSETPOS")
	case len(opt.Bymonth) > 0:
		return reject("BYMONTH")
	case len(opt.Bymonthday) > 0:
		return reject("BYMONTHDAY")
	case len(opt.Byyearday) > 0:
		return reject("BYYEARDAY")
	case len(opt.Byweekno) > 0:
		return reject("BYWEEKNO")
	case len(opt.Byweekday) > 0:
		return reject("BYDAY")
	case len(opt.Byhour) > 0:
		return reject("BYHOUR")
	case len(opt.Byminute) > 0:
		return reject("BYMINUTE")
	case len(opt.Bysecond) > 0:
		return reject("BYSECOND")
	case len(opt.Byeaster) > 0:
		return reject("BYEASTER")
	}
	return nil
}

// String renders the recurrence in wire form. UNTIL is written in UTC with a
// Z suffix so it reads the same in every zone. A nil recurrence renders as "".
func (r *Recurrence) String() string {
	if r == nil {
		return ""
	}
	var parts []string
	if r.Frequency != "" {
		parts = append(parts, "FREQ="+string(r.Frequency))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(UntilLayout)+"Z")
	}
	return strings.Join(parts, ";")
}
