package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// RuleService owns the rule set and access mode of each identity. Rules are
// addressed by their 0-based position in insertion order; removing one
// shifts the positions of the rules after it.
type RuleService struct {
	store store.Store
	locks *KeyLock
	opts  options
}

func NewRuleService(st store.Store, locks *KeyLock, opts ...Option) *RuleService {
	return &RuleService{store: st, locks: locks, opts: buildOptions(opts)}
}

// AddRule validates and stores a rule, returning its index.
func (s *RuleService) AddRule(ctx context.Context, key string, start, end time.Time, rec *schedule.Recurrence) (int, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}
	rule, err := schedule.NewRule(start, end, rec)
	if err != nil {
		return 0, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return 0, fmt.Errorf("AddRule rule id: %w", err)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	now := s.opts.now().UTC()
	var index int
	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		rules, err := tx.Rules(ctx, key)
		if err != nil {
			return err
		}
		index = len(rules)
		if err := tx.InsertRule(ctx, model.AccessRule{
			ID:          id,
			IdentityKey: key,
			Rule:        rule,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.AuditEntry{
			Timestamp:   now,
			IdentityKey: key,
			Method:      model.MethodAddRule,
			Category:    model.CategoryAdminChange,
			Detail:      fmt.Sprintf("index=%d rule=%s", index, id),
		})
	})
	if err != nil {
		return 0, storageErr("AddRule", err)
	}

	s.opts.logger.Info("access rule added",
		zap.String("identity", key),
		zap.Int("index", index),
		zap.Stringer("rule_id", id),
	)
	return index, nil
}

// RemoveRule deletes the rule at index. An index outside the rule set
// returns errs.ErrNotFound and changes nothing.
func (s *RuleService) RemoveRule(ctx context.Context, key string, index int) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	now := s.opts.now().UTC()
	var removed uuid.UUID
	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		rules, err := tx.Rules(ctx, key)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(rules) {
			return fmt.Errorf("rule index %d of %d: %w", index, len(rules), errs.ErrNotFound)
		}
		removed = rules[index].ID
		if err := tx.DeleteRule(ctx, key, removed); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.AuditEntry{
			Timestamp:   now,
			IdentityKey: key,
			Method:      model.MethodRemoveRule,
			Category:    model.CategoryAdminChange,
			Detail:      fmt.Sprintf("index=%d rule=%s", index, removed),
		})
	})
	if err != nil {
		return storageErr("RemoveRule", err)
	}

	s.opts.logger.Info("access rule removed",
		zap.String("identity", key),
		zap.Int("index", index),
		zap.Stringer("rule_id", removed),
	)
	return nil
}

// ListRules returns the identity's rules in index order, expressed in the
// configured location.
func (s *RuleService) ListRules(ctx context.Context, key string) ([]model.AccessRule, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var rules []model.AccessRule
	err = s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rules, err = tx.Rules(ctx, key)
		return err
	})
	if err != nil {
		return nil, storageErr("ListRules", err)
	}
	for i := range rules {
		rules[i].Rule = rules[i].Rule.In(s.opts.loc)
	}
	return rules, nil
}

// NextWindow returns the window of r that is open now or opens next. It
// reports false once the rule has no windows left.
func (s *RuleService) NextWindow(r model.AccessRule) (schedule.Window, bool) {
	now := s.opts.now().In(s.opts.loc)
	w := r.Rule.In(s.opts.loc).Occurrences(now, now.AddDate(100, 0, 0), 1)
	if len(w) == 0 {
		return schedule.Window{}, false
	}
	return w[0], true
}

// SetMode switches the identity's access mode. Setting the current mode
// again succeeds and is still audited.
func (s *RuleService) SetMode(ctx context.Context, key string, mode model.Mode) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if mode, err = model.ParseMode(string(mode)); err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	now := s.opts.now().UTC()
	var prev model.Mode
	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.Identity(ctx, key)
		if err != nil {
			return err
		}
		prev = id.Mode
		if err := tx.SetMode(ctx, key, mode); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.AuditEntry{
			Timestamp:   now,
			IdentityKey: key,
			Method:      model.MethodForMode(mode),
			Category:    model.CategoryAdminChange,
			Detail:      fmt.Sprintf("mode=%s previous=%s", mode, prev),
		})
	})
	if err != nil {
		return storageErr("SetMode", err)
	}

	s.opts.logger.Info("access mode set",
		zap.String("identity", key),
		zap.String("mode", string(mode)),
		zap.String("previous", string(prev)),
	)
	return nil
}

func (s *RuleService) GrantUnconditional(ctx context.Context, key string) error {
	return s.SetMode(ctx, key, model.ModeUnconditionalGrant)
}

func (s *RuleService) DenyUnconditional(ctx context.Context, key string) error {
	return s.SetMode(ctx, key, model.ModeUnconditionalDeny)
}

func (s *RuleService) UseRules(ctx context.Context, key string) error {
	return s.SetMode(ctx, key, model.ModeRules)
}
