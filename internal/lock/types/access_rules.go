// Package types holds the JSON shapes shared by the HTTP API and its client.
package types

// AddAccessRuleRequest creates a rule. Stamps are Unix seconds; a nil
// RRuleStr means a one-shot rule.
type AddAccessRuleRequest struct {
	EmailAddress string   `json:"email_address,omitempty" validate:"omitempty,email"`
	StartDTStamp *float64 `json:"start_dt_stamp" validate:"required"`
	EndDTStamp   *float64 `json:"end_dt_stamp" validate:"required"`
	RRuleStr     *string  `json:"rrule_str"`
}

type AddAccessRuleResponse struct {
	Message string `json:"message"`
	Index   int    `json:"index"`
}

// AccessRuleView is one listed rule. Recurrence fields are null for
// one-shot rules.
type AccessRuleView struct {
	Index     int     `json:"index"`
	ID        string  `json:"id"`
	StartDT   string  `json:"start_dt"`
	EndDT     string  `json:"end_dt"`
	Until     *string `json:"until"`
	Frequency *string `json:"frequency"`
	Count     *int    `json:"count"`
	// NextStart and NextEnd bound the window that is open now or opens
	// next; both are null once the rule is exhausted.
	NextStart *string `json:"next_start"`
	NextEnd   *string `json:"next_end"`
}

type AccessRulesResponse struct {
	EmailAddress string           `json:"email_address"`
	AccessRules  []AccessRuleView `json:"access_rules"`
}
