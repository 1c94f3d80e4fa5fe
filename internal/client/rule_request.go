package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

// DateTimeLayout is how the CLI accepts rule datetimes.
const DateTimeLayout = "2006/01/02 15:04"

// RuleSpec is the add-access-rule command input before encoding.
type RuleSpec struct {
	Email     string
	Start     string
	End       string
	Until     string
	Count     int
	Frequency string
}

// NewRuleRequest parses the datetimes in loc and builds the request body.
// Count or until without a frequency is rejected.
func NewRuleRequest(spec RuleSpec, loc *time.Location) (types.AddAccessRuleRequest, error) {
	start, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(spec.Start), loc)
	if err != nil {
		return types.AddAccessRuleRequest{}, fmt.Errorf("start must look like %q", DateTimeLayout)
	}
	end, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(spec.End), loc)
	if err != nil {
		return types.AddAccessRuleRequest{}, fmt.Errorf("end must look like %q", DateTimeLayout)
	}
	if spec.Count < 0 {
		return types.AddAccessRuleRequest{}, fmt.Errorf("count must be positive")
	}

	rec := &schedule.Recurrence{Count: spec.Count}
	if spec.Until != "" {
		u, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(spec.Until), loc)
		if err != nil {
			return types.AddAccessRuleRequest{}, fmt.Errorf("until must look like %q", DateTimeLayout)
		}
		rec.Until = &u
	}
	if spec.Frequency != "" {
		f, err := schedule.ParseFrequency(spec.Frequency)
		if err != nil {
			return types.AddAccessRuleRequest{}, fmt.Errorf("frequency should be HOURLY, DAILY, WEEKLY, MONTHLY, or YEARLY")
		}
		rec.Frequency = f
	} else if rec.Count > 0 || rec.Until != nil {
		return types.AddAccessRuleRequest{}, fmt.Errorf("frequency required for rrule")
	}

	req := types.AddAccessRuleRequest{
		EmailAddress: spec.Email,
		StartDTStamp: stamp(start),
		EndDTStamp:   stamp(end),
	}
	if s := rec.String(); s != "" {
		req.RRuleStr = &s
	}
	return req, nil
}

func stamp(t time.Time) *float64 {
	s := float64(t.UnixMicro()) / 1e6
	return &s
}
