// Package memory is an in-process store used by tests and dev environments.
//
// Writes made inside Update are buffered and applied atomically when the
// transaction function returns nil; reads inside a transaction observe the
// last committed state, not the transaction's own pending writes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

type identityState struct {
	identity model.Identity
	rules    []model.AccessRule
}

type Store struct {
	mu         sync.RWMutex
	identities map[string]*identityState
	rfids      map[string]string // rfid -> identity key
	audit      []model.AuditEntry
	ruleSeq    int64
	auditSeq   int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		identities: make(map[string]*identityState),
		rfids:      make(map[string]string),
	}
}

// op applies one buffered write and returns a function that reverts it.
type op func(s *Store) (undo func(), err error)

type tx struct {
	s   *Store
	ops []op
}

func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	t := &tx{s: s}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undos := make([]func(), 0, len(t.ops))
	for _, o := range t.ops {
		undo, err := o(s)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return err
		}
		undos = append(undos, undo)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, &tx{s: s})
}

func (s *Store) ListIdentities(_ context.Context) ([]model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Identity, 0, len(s.identities))
	for _, st := range s.identities {
		out = append(out, st.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) AuditEntries(_ context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditEntry
	for _, e := range s.audit {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// ── reads ────────────────────────────────────────────────────────────────────

func (t *tx) Identity(_ context.Context, key string) (model.Identity, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	st, ok := t.s.identities[key]
	if !ok {
		return model.Identity{}, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
	}
	return st.identity, nil
}

func (t *tx) IdentityByRFID(_ context.Context, rfid string) (model.Identity, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	key, ok := t.s.rfids[rfid]
	if !ok {
		return model.Identity{}, fmt.Errorf("rfid id: %w", errs.ErrNotFound)
	}
	return t.s.identities[key].identity, nil
}

func (t *tx) Rules(_ context.Context, key string) ([]model.AccessRule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	st, ok := t.s.identities[key]
	if !ok {
		return nil, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
	}
	out := make([]model.AccessRule, len(st.rules))
	copy(out, st.rules)
	return out, nil
}

// ── buffered writes ──────────────────────────────────────────────────────────

func (t *tx) CreateIdentity(_ context.Context, id model.Identity) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		if _, ok := s.identities[id.Key]; ok {
			return nil, fmt.Errorf("identity %q: %w", id.Key, errs.ErrConflict)
		}
		if id.RFID != "" {
			if _, ok := s.rfids[id.RFID]; ok {
				return nil, fmt.Errorf("rfid id already assigned: %w", errs.ErrConflict)
			}
			s.rfids[id.RFID] = id.Key
		}
		if id.CreatedAt.IsZero() {
			id.CreatedAt = time.Now().UTC()
		}
		s.identities[id.Key] = &identityState{identity: id}
		return func() {
			delete(s.identities, id.Key)
			if id.RFID != "" {
				delete(s.rfids, id.RFID)
			}
		}, nil
	})
	return nil
}

func (t *tx) DeleteIdentity(_ context.Context, key string) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		st, ok := s.identities[key]
		if !ok {
			return nil, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
		}
		delete(s.identities, key)
		if st.identity.RFID != "" {
			delete(s.rfids, st.identity.RFID)
		}
		return func() {
			s.identities[key] = st
			if st.identity.RFID != "" {
				s.rfids[st.identity.RFID] = key
			}
		}, nil
	})
	return nil
}

func (t *tx) SetMode(_ context.Context, key string, mode model.Mode) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		st, ok := s.identities[key]
		if !ok {
			return nil, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
		}
		prev := st.identity.Mode
		st.identity.Mode = mode
		return func() { st.identity.Mode = prev }, nil
	})
	return nil
}

func (t *tx) SetRFID(_ context.Context, key, rfid string) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		st, ok := s.identities[key]
		if !ok {
			return nil, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
		}
		if rfid != "" {
			if owner, taken := s.rfids[rfid]; taken && owner != key {
				return nil, fmt.Errorf("rfid id already assigned: %w", errs.ErrConflict)
			}
		}
		prev := st.identity.RFID
		if prev != "" {
			delete(s.rfids, prev)
		}
		if rfid != "" {
			s.rfids[rfid] = key
		}
		st.identity.RFID = rfid
		return func() {
			if rfid != "" {
				delete(s.rfids, rfid)
			}
			if prev != "" {
				s.rfids[prev] = key
			}
			st.identity.RFID = prev
		}, nil
	})
	return nil
}

func (t *tx) InsertRule(_ context.Context, rule model.AccessRule) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		st, ok := s.identities[rule.IdentityKey]
		if !ok {
			return nil, fmt.Errorf("identity %q: %w", rule.IdentityKey, errs.ErrNotFound)
		}
		s.ruleSeq++
		rule.Seq = s.ruleSeq
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = time.Now().UTC()
		}
		st.rules = append(st.rules, rule)
		return func() { st.rules = st.rules[:len(st.rules)-1] }, nil
	})
	return nil
}

func (t *tx) DeleteRule(_ context.Context, key string, id uuid.UUID) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		st, ok := s.identities[key]
		if !ok {
			return nil, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
		}
		for i, r := range st.rules {
			if r.ID != id {
				continue
			}
			prev := st.rules
			rest := make([]model.AccessRule, 0, len(prev)-1)
			rest = append(rest, prev[:i]...)
			rest = append(rest, prev[i+1:]...)
			st.rules = rest
			return func() { st.rules = prev }, nil
		}
		return nil, fmt.Errorf("rule %s: %w", id, errs.ErrNotFound)
	})
	return nil
}

func (t *tx) AppendAudit(_ context.Context, e model.AuditEntry) error {
	t.ops = append(t.ops, func(s *Store) (func(), error) {
		s.auditSeq++
		e.Seq = s.auditSeq
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		s.audit = append(s.audit, e)
		return func() {
			s.audit = s.audit[:len(s.audit)-1]
			s.auditSeq--
		}, nil
	})
	return nil
}
