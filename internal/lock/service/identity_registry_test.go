package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
)

func TestRegistry_CreateAndList(t *testing.T) {
	s := newServices(t, nil)
	ctx := context.Background()

	require.NoError(t, s.registry.Create(ctx, " bob@example.com "))
	require.NoError(t, s.registry.Create(ctx, alice))

	err := s.registry.Create(ctx, alice)
	require.ErrorIs(t, err, errs.ErrConflict)

	ids, err := s.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, alice, ids[0].Key)
	assert.Equal(t, "bob@example.com", ids[1].Key)
	assert.Equal(t, model.ModeRules, ids[0].Mode)

	entries := s.audit(t, model.AuditFilter{Category: model.CategoryAdminChange})
	assert.Len(t, entries, 2)
}

func TestRegistry_CreateRequiresKey(t *testing.T) {
	s := newServices(t, nil)
	require.ErrorIs(t, s.registry.Create(context.Background(), "  "), errs.ErrValidation)
}

func TestRegistry_AssignRFIDConflict(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, card)
	s.withUser(t, "bob@example.com", "")
	ctx := context.Background()

	err := s.registry.AssignRFID(ctx, "bob@example.com", card)
	require.ErrorIs(t, err, errs.ErrConflict)

	// Reassigning the same id to its owner is allowed.
	require.NoError(t, s.registry.AssignRFID(ctx, alice, card))

	bob, err := s.registry.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "", bob.RFID)
}

func TestRegistry_AssignRFIDAuditsHashOnly(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, card)

	entries := s.audit(t, model.AuditFilter{IdentityKey: alice})
	require.Len(t, entries, 2)
	assert.Equal(t, model.MethodAssignRFID, entries[1].Method)
	assert.Contains(t, entries[1].Detail, "rfid_hash=")
	assert.NotContains(t, entries[1].Detail, card)
}

func TestRegistry_RemoveRFID(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, card)
	ctx := context.Background()

	require.NoError(t, s.registry.RemoveRFID(ctx, alice))
	require.ErrorIs(t, s.registry.RemoveRFID(ctx, alice), errs.ErrNotFound)

	v, err := s.verifier.Verify(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, model.NotFound, v.Decision)
}

func TestRegistry_DeleteDropsRulesAndCard(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, card)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, s.registry.Delete(ctx, alice))
	require.ErrorIs(t, s.registry.Delete(ctx, alice), errs.ErrNotFound)

	_, err = s.rules.ListRules(ctx, alice)
	require.ErrorIs(t, err, errs.ErrNotFound)

	// The card is free for someone else.
	s.withUser(t, "bob@example.com", card)
}

func TestAuditTrail_FiltersAndLimits(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, card)
	s.withUser(t, "bob@example.com", "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.verifier.Verify(ctx, card)
		require.NoError(t, err)
	}

	all := s.audit(t, model.AuditFilter{})
	assert.Len(t, all, 6)

	denied := s.audit(t, model.AuditFilter{IdentityKey: alice, Category: model.CategoryDenied})
	assert.Len(t, denied, 3)

	last := s.audit(t, model.AuditFilter{Limit: 2})
	require.Len(t, last, 2)
	assert.Equal(t, all[4].Seq, last[0].Seq)
	assert.Equal(t, all[5].Seq, last[1].Seq)
}
