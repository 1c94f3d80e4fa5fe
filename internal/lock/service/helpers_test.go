package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/service"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store/memory"
)

var testNow = time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

type services struct {
	store    store.Store
	rules    *service.RuleService
	registry *service.IdentityRegistry
	verifier *service.VerificationService
	trail    *service.AuditTrail
}

func newServices(t *testing.T, st store.Store) services {
	t.Helper()
	return newServicesIn(t, st, time.UTC)
}

func newServicesIn(t *testing.T, st store.Store, loc *time.Location) services {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	locks := service.NewKeyLock()
	opts := []service.Option{
		service.WithLogger(zaptest.NewLogger(t)),
		service.WithClock(func() time.Time { return testNow }),
		service.WithLocation(loc),
	}
	return services{
		store:    st,
		rules:    service.NewRuleService(st, locks, opts...),
		registry: service.NewIdentityRegistry(st, locks, opts...),
		verifier: service.NewVerificationService(st, locks, opts...),
		trail:    service.NewAuditTrail(st, opts...),
	}
}

// withUser registers key and, when rfid is non-empty, assigns it.
func (s services) withUser(t *testing.T, key, rfid string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.registry.Create(ctx, key))
	if rfid != "" {
		require.NoError(t, s.registry.AssignRFID(ctx, key, rfid))
	}
}

func (s services) audit(t *testing.T, f model.AuditFilter) []model.AuditEntry {
	t.Helper()
	entries, err := s.trail.List(context.Background(), f)
	require.NoError(t, err)
	return entries
}

// failingAuditStore fails every audit append inside Update.
type failingAuditStore struct{ store.Store }

var errDiskFull = errors.New("disk full")

func (f failingAuditStore) Update(ctx context.Context, fn store.TxFn) error {
	return f.Store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingAuditTx{tx})
	})
}

type failingAuditTx struct{ store.Tx }

func (failingAuditTx) AppendAudit(context.Context, model.AuditEntry) error { return errDiskFull }

// staleLookupStore makes the first unlocked RFID lookup report a previous
// owner, as if the id was reassigned right after it.
type staleLookupStore struct {
	store.Store
	once  sync.Once
	stale string
}

func (s *staleLookupStore) View(ctx context.Context, fn store.TxFn) error {
	return s.Store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var wrapped store.Tx = tx
		s.once.Do(func() { wrapped = staleTx{Tx: tx, owner: s.stale} })
		return fn(ctx, wrapped)
	})
}

type staleTx struct {
	store.Tx
	owner string
}

func (t staleTx) IdentityByRFID(ctx context.Context, rfid string) (model.Identity, error) {
	return t.Identity(ctx, t.owner)
}
