package service

import (
	"time"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
)

// Reasons recorded in audit details alongside a decision.
const (
	ReasonUnconditionalGrant = "unconditional_grant"
	ReasonUnconditionalDeny  = "unconditional_deny"
	ReasonRuleMatched        = "rule_matched"
	ReasonNoMatchingRule     = "no_matching_rule"
	ReasonUnknownRFID        = "unknown_rfid"
)

// Authorize combines an identity's mode and rule set into a decision for
// instant at. Overrides win over rules; under ModeRules any matching rule
// grants access. It never returns model.NotFound.
func Authorize(mode model.Mode, rules []model.AccessRule, at time.Time) (model.Decision, string) {
	switch mode {
	case model.ModeUnconditionalGrant:
		return model.Granted, ReasonUnconditionalGrant
	case model.ModeUnconditionalDeny:
		return model.Denied, ReasonUnconditionalDeny
	}
	for _, r := range rules {
		if r.Rule.Matches(at) {
			return model.Granted, ReasonRuleMatched
		}
	}
	return model.Denied, ReasonNoMatchingRule
}
