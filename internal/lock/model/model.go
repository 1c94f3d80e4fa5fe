// Package model defines domain entities used by services and stores.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
)

// Mode is the override state of an identity.
type Mode string

const (
	ModeRules              Mode = "RULES"
	ModeUnconditionalGrant Mode = "UNCONDITIONAL_GRANT"
	ModeUnconditionalDeny  Mode = "UNCONDITIONAL_DENY"
)

// ParseMode accepts a mode name in any letter case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case ModeRules, ModeUnconditionalGrant, ModeUnconditionalDeny:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown access mode %q", errs.ErrValidation, s)
}

// Identity is a registered principal. RFID is empty when no card is assigned.
type Identity struct {
	Key       string // email address
	Mode      Mode
	RFID      string
	CreatedAt time.Time
}

// AccessRule is a stored rule. ID is stable for the rule's lifetime; Seq
// orders an identity's rules by insertion and backs the positional index
// exposed to clients.
type AccessRule struct {
	ID          uuid.UUID
	IdentityKey string
	Seq         int64
	Rule        schedule.Rule
	CreatedAt   time.Time
}

// Decision is the outcome of a verification.
type Decision string

const (
	Granted  Decision = "GRANTED"
	Denied   Decision = "DENIED"
	NotFound Decision = "NOT_FOUND"
)

// Category classifies an audit entry.
type Category string

const (
	CategoryGranted     Category = "GRANTED"
	CategoryDenied      Category = "DENIED"
	CategoryNotFound    Category = "NOT_FOUND"
	CategoryAdminChange Category = "ADMIN_CHANGE"
)

// CategoryOf maps a verification decision to its audit category.
func CategoryOf(d Decision) Category { return Category(d) }

// Method names the operation that produced an audit entry.
type Method string

const (
	MethodVerify     Method = "verify-rfid-id-access"
	MethodAddRule    Method = "add-access-rule"
	MethodRemoveRule Method = "remove-access-rule"
	MethodGrant      Method = "grant-unconditional-access"
	MethodDeny       Method = "deny-unconditional-access"
	MethodUseRules   Method = "use-access-rules"
	MethodCreateUser Method = "create-user"
	MethodRemoveUser Method = "remove-user"
	MethodAssignRFID Method = "assign-rfid-id-to-user"
	MethodRemoveRFID Method = "remove-rfid-id-from-user"
)

// MethodForMode returns the admin method that switches an identity to m.
func MethodForMode(m Mode) Method {
	switch m {
	case ModeUnconditionalGrant:
		return MethodGrant
	case ModeUnconditionalDeny:
		return MethodDeny
	}
	return MethodUseRules
}

// AuditEntry is an immutable record of a decision or administrative change.
// Seq is assigned by the store on append.
type AuditEntry struct {
	Seq         int64
	Timestamp   time.Time
	IdentityKey string
	Method      Method
	Category    Category
	RFIDHash    []byte // BLAKE3-256 of the presented RFID id; verification entries only
	Detail      string
}

// AuditFilter narrows an audit listing. Zero fields do not filter.
type AuditFilter struct {
	IdentityKey string
	Category    Category
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Match reports whether e passes the filter, ignoring Limit.
func (f AuditFilter) Match(e AuditEntry) bool {
	if f.IdentityKey != "" && e.IdentityKey != f.IdentityKey {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
