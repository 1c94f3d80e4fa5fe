// Package storetest holds a conformance suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndLookupIdentity", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("DuplicateIdentityConflicts", func(t *testing.T) { testDuplicateIdentity(t, newStore(t)) })
	t.Run("RFIDUniqueness", func(t *testing.T) { testRFIDUniqueness(t, newStore(t)) })
	t.Run("RulesRoundTripInOrder", func(t *testing.T) { testRulesRoundTrip(t, newStore(t)) })
	t.Run("DeleteRule", func(t *testing.T) { testDeleteRule(t, newStore(t)) })
	t.Run("SetMode", func(t *testing.T) { testSetMode(t, newStore(t)) })
	t.Run("DeleteIdentityDropsRules", func(t *testing.T) { testDeleteIdentity(t, newStore(t)) })
	t.Run("FailedUpdateLeavesNoTrace", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("AuditOrderAndFilter", func(t *testing.T) { testAudit(t, newStore(t)) })
}

func mustUpdate(t *testing.T, s store.Store, fn store.TxFn) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func createIdentity(t *testing.T, s store.Store, key, rfid string) {
	t.Helper()
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateIdentity(ctx, model.Identity{Key: key, Mode: model.ModeRules, RFID: rfid})
	})
}

func readIdentity(t *testing.T, s store.Store, key string) (model.Identity, error) {
	t.Helper()
	var id model.Identity
	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.Identity(ctx, key)
		return err
	})
	return id, err
}

func readRules(t *testing.T, s store.Store, key string) []model.AccessRule {
	t.Helper()
	var rules []model.AccessRule
	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		rules, err = tx.Rules(ctx, key)
		return err
	}))
	return rules
}

func newRule(t *testing.T, key string, start time.Time, rec *schedule.Recurrence) model.AccessRule {
	t.Helper()
	r, err := schedule.NewRule(start, start.Add(time.Hour), rec)
	require.NoError(t, err)
	return model.AccessRule{ID: uuid.Must(uuid.NewV4()), IdentityKey: key, Rule: r}
}

func testCreateAndLookup(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "CARD-1")

	id, err := readIdentity(t, s, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.ModeRules, id.Mode)
	assert.Equal(t, "CARD-1", id.RFID)

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		byCard, err := tx.IdentityByRFID(ctx, "CARD-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "alice@example.com", byCard.Key)
		_, err = tx.IdentityByRFID(ctx, "CARD-404")
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	_, err = readIdentity(t, s, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	all, err := s.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice@example.com", all[0].Key)
}

func testDuplicateIdentity(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "")
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateIdentity(ctx, model.Identity{Key: "alice@example.com", Mode: model.ModeRules})
	})
	require.ErrorIs(t, err, errs.ErrConflict)
}

func testRFIDUniqueness(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "CARD-1")
	createIdentity(t, s, "bob@example.com", "")

	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetRFID(ctx, "bob@example.com", "CARD-1")
	})
	require.ErrorIs(t, err, errs.ErrConflict)

	// Re-assigning the same card to its owner is allowed.
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRFID(ctx, "alice@example.com", "CARD-1")
	})

	// Clearing frees the card for someone else.
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRFID(ctx, "alice@example.com", "")
	})
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRFID(ctx, "bob@example.com", "CARD-1")
	})

	bob, err := readIdentity(t, s, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "CARD-1", bob.RFID)
	alice, err := readIdentity(t, s, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, alice.RFID)
}

func testRulesRoundTrip(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "")

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC)
	first := newRule(t, "alice@example.com", start, &schedule.Recurrence{Frequency: schedule.Weekly, Count: 3})
	second := newRule(t, "alice@example.com", start.Add(24*time.Hour), &schedule.Recurrence{Frequency: schedule.Daily, Until: &until})
	third := newRule(t, "alice@example.com", start.Add(48*time.Hour), nil)

	for _, r := range []model.AccessRule{first, second, third} {
		r := r
		mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error { return tx.InsertRule(ctx, r) })
	}

	rules := readRules(t, s, "alice@example.com")
	require.Len(t, rules, 3)
	assert.Equal(t, first.ID, rules[0].ID)
	assert.Equal(t, second.ID, rules[1].ID)
	assert.Equal(t, third.ID, rules[2].ID)
	assert.Less(t, rules[0].Seq, rules[1].Seq)
	assert.Less(t, rules[1].Seq, rules[2].Seq)

	assert.True(t, rules[0].Rule.Start.Equal(start))
	assert.True(t, rules[0].Rule.End.Equal(start.Add(time.Hour)))
	require.NotNil(t, rules[0].Rule.Recurrence)
	assert.Equal(t, schedule.Weekly, rules[0].Rule.Recurrence.Frequency)
	assert.Equal(t, 3, rules[0].Rule.Recurrence.Count)
	assert.Nil(t, rules[0].Rule.Recurrence.Until)

	require.NotNil(t, rules[1].Rule.Recurrence)
	require.NotNil(t, rules[1].Rule.Recurrence.Until)
	assert.True(t, rules[1].Rule.Recurrence.Until.Equal(until))
	assert.Zero(t, rules[1].Rule.Recurrence.Count)

	assert.Nil(t, rules[2].Rule.Recurrence)

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Rules(ctx, "nobody@example.com")
		return err
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func testDeleteRule(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "")
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newRule(t, "alice@example.com", start, nil)
	b := newRule(t, "alice@example.com", start.Add(time.Hour), nil)
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertRule(ctx, a); err != nil {
			return err
		}
		return tx.InsertRule(ctx, b)
	})

	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteRule(ctx, "alice@example.com", a.ID)
	})
	rules := readRules(t, s, "alice@example.com")
	require.Len(t, rules, 1)
	assert.Equal(t, b.ID, rules[0].ID)

	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteRule(ctx, "alice@example.com", a.ID)
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func testSetMode(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "")
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.SetMode(ctx, "alice@example.com", model.ModeUnconditionalDeny)
	})
	id, err := readIdentity(t, s, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.ModeUnconditionalDeny, id.Mode)

	err = s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetMode(ctx, "nobody@example.com", model.ModeRules)
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func testDeleteIdentity(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "CARD-1")
	r := newRule(t, "alice@example.com", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), nil)
	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error { return tx.InsertRule(ctx, r) })

	mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteIdentity(ctx, "alice@example.com")
	})
	_, err := readIdentity(t, s, "alice@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	// The card and the key are free again; no stale rules come back.
	createIdentity(t, s, "alice@example.com", "CARD-1")
	assert.Empty(t, readRules(t, s, "alice@example.com"))

	err = s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteIdentity(ctx, "nobody@example.com")
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func testRollback(t *testing.T, s store.Store) {
	createIdentity(t, s, "alice@example.com", "")
	r := newRule(t, "alice@example.com", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), nil)

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertRule(ctx, r); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, model.AuditEntry{
			IdentityKey: "alice@example.com", Method: model.MethodAddRule, Category: model.CategoryAdminChange,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// A write that fails at commit undoes the earlier writes of the same
	// transaction as well.
	err = s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.AppendAudit(ctx, model.AuditEntry{
			IdentityKey: "alice@example.com", Method: model.MethodAddRule, Category: model.CategoryAdminChange,
		}); err != nil {
			return err
		}
		return tx.SetMode(ctx, "nobody@example.com", model.ModeRules)
	})
	require.ErrorIs(t, err, errs.ErrNotFound)

	assert.Empty(t, readRules(t, s, "alice@example.com"))
	entries, err := s.AuditEntries(context.Background(), model.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testAudit(t *testing.T, s store.Store) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	entries := []model.AuditEntry{
		{Timestamp: base, IdentityKey: "alice@example.com", Method: model.MethodVerify, Category: model.CategoryGranted, RFIDHash: []byte{1, 2, 3}},
		{Timestamp: base.Add(time.Minute), IdentityKey: "bob@example.com", Method: model.MethodVerify, Category: model.CategoryDenied},
		{Timestamp: base.Add(2 * time.Minute), IdentityKey: "alice@example.com", Method: model.MethodGrant, Category: model.CategoryAdminChange, Detail: "mode=UNCONDITIONAL_GRANT"},
		{Timestamp: base.Add(3 * time.Minute), Method: model.MethodVerify, Category: model.CategoryNotFound},
	}
	for _, e := range entries {
		e := e
		mustUpdate(t, s, func(ctx context.Context, tx store.Tx) error { return tx.AppendAudit(ctx, e) })
	}

	ctx := context.Background()
	all, err := s.AuditEntries(ctx, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Seq, all[i].Seq)
	}
	assert.Equal(t, []byte{1, 2, 3}, all[0].RFIDHash)
	assert.True(t, all[0].Timestamp.Equal(base))
	assert.Equal(t, "mode=UNCONDITIONAL_GRANT", all[2].Detail)
	assert.Equal(t, model.CategoryNotFound, all[3].Category)

	alice, err := s.AuditEntries(ctx, model.AuditFilter{IdentityKey: "alice@example.com"})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, model.MethodVerify, alice[0].Method)
	assert.Equal(t, model.MethodGrant, alice[1].Method)

	denied, err := s.AuditEntries(ctx, model.AuditFilter{Category: model.CategoryDenied})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, "bob@example.com", denied[0].IdentityKey)

	window, err := s.AuditEntries(ctx, model.AuditFilter{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	latest, err := s.AuditEntries(ctx, model.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, model.MethodGrant, latest[0].Method)
	assert.Equal(t, model.CategoryNotFound, latest[1].Category)
}
