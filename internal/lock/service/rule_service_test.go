package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
)

const alice = "alice@example.com"

func TestAddRule_RoundTripsThroughList(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	until := time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC)

	idx, err := s.rules.AddRule(ctx, alice, start, end, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = s.rules.AddRule(ctx, alice, start, end, &schedule.Recurrence{
		Frequency: schedule.Daily, Until: &until, Count: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.True(t, rules[0].Rule.Start.Equal(start))
	assert.True(t, rules[0].Rule.End.Equal(end))
	assert.Nil(t, rules[0].Rule.Recurrence)

	rec := rules[1].Rule.Recurrence
	require.NotNil(t, rec)
	assert.Equal(t, schedule.Daily, rec.Frequency)
	assert.Equal(t, 10, rec.Count)
	require.NotNil(t, rec.Until)
	assert.True(t, rec.Until.Equal(until))
}

func TestAddRule_ValidationLeavesNoTrace(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	before := len(s.audit(t, model.AuditFilter{}))

	_, err := s.rules.AddRule(ctx, alice, start, start, nil)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), &schedule.Recurrence{Count: 3})
	require.ErrorIs(t, err, errs.ErrValidation)

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Len(t, s.audit(t, model.AuditFilter{}), before)
}

func TestAddRule_UnknownIdentity(t *testing.T) {
	s := newServices(t, nil)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.rules.AddRule(context.Background(), "ghost@example.com", start, start.Add(time.Hour), nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, s.audit(t, model.AuditFilter{}))
}

func TestRemoveRule_ShiftsLaterIndices(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		_, err := s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), nil)
		require.NoError(t, err)
	}

	require.NoError(t, s.rules.RemoveRule(ctx, alice, 1))

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Rule.Start.Equal(base))
	assert.True(t, rules[1].Rule.Start.Equal(base.Add(48*time.Hour)))
}

func TestRemoveRule_OutOfRangeLeavesRulesUnchanged(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), nil)
	require.NoError(t, err)
	before := len(s.audit(t, model.AuditFilter{}))

	for _, idx := range []int{-1, 1, 42} {
		err := s.rules.RemoveRule(ctx, alice, idx)
		require.ErrorIs(t, err, errs.ErrNotFound, "index %d", idx)
	}

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Len(t, s.audit(t, model.AuditFilter{}), before)
}

func TestSetMode_GrantTwiceIsIdempotentButAudited(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()

	require.NoError(t, s.rules.GrantUnconditional(ctx, alice))
	once, err := s.registry.Get(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, s.rules.GrantUnconditional(ctx, alice))
	twice, err := s.registry.Get(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, model.ModeUnconditionalGrant, once.Mode)
	assert.Equal(t, once.Mode, twice.Mode)

	entries := s.audit(t, model.AuditFilter{IdentityKey: alice, Category: model.CategoryAdminChange})
	var grants int
	for _, e := range entries {
		if e.Method == model.MethodGrant {
			grants++
		}
	}
	assert.Equal(t, 2, grants)
}

func TestSetMode_Transitions(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()

	require.NoError(t, s.rules.DenyUnconditional(ctx, alice))
	id, err := s.registry.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, model.ModeUnconditionalDeny, id.Mode)

	require.NoError(t, s.rules.UseRules(ctx, alice))
	id, err = s.registry.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, model.ModeRules, id.Mode)

	err = s.rules.SetMode(ctx, alice, "SOMETIMES")
	require.ErrorIs(t, err, errs.ErrValidation)

	err = s.rules.GrantUnconditional(ctx, "ghost@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRuleService_StorageFailureIsFatal(t *testing.T) {
	mem := newServices(t, nil)
	mem.withUser(t, alice, "")
	s := newServices(t, failingAuditStore{Store: mem.store})
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), nil)
	require.ErrorIs(t, err, errs.ErrStorage)
	require.ErrorIs(t, err, errDiskFull)

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestAddRemove_ConcurrentSameIdentityIsSerializable(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	const adders = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indices = map[int]int{}
	)
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := start.Add(time.Duration(i) * time.Hour)
			idx, err := s.rules.AddRule(ctx, alice, at, at.Add(time.Minute), nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			indices[idx]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Each add observed a distinct rule count.
	require.Len(t, indices, adders)
	for idx, n := range indices {
		assert.Equal(t, 1, n, "index %d handed out twice", idx)
	}

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules, adders)
	seen := map[string]bool{}
	for _, r := range rules {
		assert.False(t, seen[r.ID.String()])
		seen[r.ID.String()] = true
	}

	const removers = 10
	for i := 0; i < removers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.rules.RemoveRule(ctx, alice, 0))
		}()
	}
	wg.Wait()

	rules, err = s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, rules, adders-removers)
}

func TestListRules_ExpressedInConfiguredLocation(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	st := newServices(t, nil)
	st.withUser(t, alice, "")
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err = st.rules.AddRule(context.Background(), alice, start, start.Add(time.Hour), nil)
	require.NoError(t, err)

	rules, err := newServicesIn(t, st.store, ams).rules.ListRules(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, ams, rules[0].Rule.Start.Location())
	assert.Equal(t, 10, rules[0].Rule.Start.Hour())
}

func TestNextWindow(t *testing.T) {
	s := newServices(t, nil)
	s.withUser(t, alice, "")
	ctx := context.Background()

	// testNow is Monday 2024-01-08 09:30 UTC.
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), &schedule.Recurrence{Frequency: schedule.Daily})
	require.NoError(t, err)
	_, err = s.rules.AddRule(ctx, alice, start, start.Add(time.Hour), &schedule.Recurrence{Frequency: schedule.Weekly, Count: 1})
	require.NoError(t, err)
	later := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	_, err = s.rules.AddRule(ctx, alice, later, later.Add(time.Hour), nil)
	require.NoError(t, err)

	rules, err := s.rules.ListRules(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	open, ok := s.rules.NextWindow(rules[0])
	require.True(t, ok)
	assert.True(t, open.Start.Equal(time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)), "window still open now")

	_, ok = s.rules.NextWindow(rules[1])
	assert.False(t, ok, "single occurrence already over")

	next, ok := s.rules.NextWindow(rules[2])
	require.True(t, ok)
	assert.True(t, next.Start.Equal(later))
	assert.True(t, next.End.Equal(later.Add(time.Hour)))
}
