package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// maxLookupAttempts bounds how often Verify re-resolves an RFID id that was
// reassigned between lookup and locking.
const maxLookupAttempts = 3

var errRemapped = errors.New("rfid id reassigned during verification")

// HashRFID is the digest stored in audit entries in place of the raw id.
func HashRFID(rfid string) [32]byte {
	return blake3.Sum256([]byte(rfid))
}

// Verdict is the outcome of one verification.
type Verdict struct {
	RFID        string
	IdentityKey string // empty for model.NotFound
	Decision    model.Decision
	Reason      string
	At          time.Time
}

func (v Verdict) Granted() bool { return v.Decision == model.Granted }

// VerificationService answers RFID verification requests. Every call that
// returns a Verdict has appended exactly one audit entry whose category
// matches the decision.
type VerificationService struct {
	store store.Store
	locks *KeyLock
	opts  options
}

func NewVerificationService(st store.Store, locks *KeyLock, opts ...Option) *VerificationService {
	return &VerificationService{store: st, locks: locks, opts: buildOptions(opts)}
}

// Verify decides access for rfid at the current time.
func (s *VerificationService) Verify(ctx context.Context, rfid string) (Verdict, error) {
	return s.VerifyAt(ctx, rfid, s.opts.now())
}

// VerifyAt decides access for rfid at instant at. An unknown rfid yields a
// model.NotFound verdict, not an error. If ctx is done before the decision
// is committed nothing is recorded and ctx's error is returned.
func (s *VerificationService) VerifyAt(ctx context.Context, rfid string, at time.Time) (Verdict, error) {
	rfid = strings.TrimSpace(rfid)
	if rfid == "" {
		return Verdict{}, fmt.Errorf("%w: rfid_id is required", errs.ErrValidation)
	}
	at = at.In(s.opts.loc)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}

		key, err := s.owner(ctx, rfid)
		if err != nil {
			return Verdict{}, storageErr("Verify lookup", err)
		}

		v, err := s.decide(ctx, rfid, key, at, attempt < maxLookupAttempts)
		if errors.Is(err, errRemapped) {
			s.opts.logger.Debug("rfid id reassigned, retrying lookup", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.opts.logger.Error("verification failed", zap.Error(err))
			return Verdict{}, storageErr("Verify", err)
		}

		s.opts.logger.Info("rfid verification",
			zap.String("identity", v.IdentityKey),
			zap.String("decision", string(v.Decision)),
			zap.String("reason", v.Reason),
		)
		return v, nil
	}
}

// owner resolves rfid to an identity key; "" means no identity owns it.
func (s *VerificationService) owner(ctx context.Context, rfid string) (string, error) {
	var key string
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.IdentityByRFID(ctx, rfid)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		key = id.Key
		return nil
	})
	return key, err
}

// decide re-reads the rfid owner under key's lock and commits the decision
// with its audit entry. When the owner changed since the unlocked lookup it
// returns errRemapped if retry is set; otherwise it decides for whichever
// identity the transaction observes.
func (s *VerificationService) decide(ctx context.Context, rfid, key string, at time.Time, retry bool) (Verdict, error) {
	if key != "" {
		unlock := s.locks.Lock(key)
		defer unlock()
	}

	hash := HashRFID(rfid)
	v := Verdict{RFID: rfid, At: at}

	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.IdentityByRFID(ctx, rfid)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			if key != "" && retry {
				return errRemapped
			}
			v.IdentityKey = ""
			v.Decision, v.Reason = model.NotFound, ReasonUnknownRFID
		case err != nil:
			return err
		default:
			if id.Key != key && retry {
				return errRemapped
			}
			rules, err := tx.Rules(ctx, id.Key)
			if err != nil {
				return err
			}
			for i := range rules {
				rules[i].Rule = rules[i].Rule.In(s.opts.loc)
			}
			v.IdentityKey = id.Key
			v.Decision, v.Reason = Authorize(id.Mode, rules, at)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.AuditEntry{
			Timestamp:   s.opts.now().UTC(),
			IdentityKey: v.IdentityKey,
			Method:      model.MethodVerify,
			Category:    model.CategoryOf(v.Decision),
			RFIDHash:    hash[:],
			Detail:      "reason=" + v.Reason,
		})
	})
	if err != nil {
		return Verdict{}, err
	}
	return v, nil
}
