package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
)

// Option configures the services in this package.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		now:    time.Now,
		loc:    time.UTC,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for decisions and audit stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the time zone rules are evaluated and reported in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// storageErr passes domain and context errors through and marks everything
// else as a storage failure.
func storageErr(op string, err error) error {
	if err == nil || errs.IsDomain(err) || errors.Is(err, errs.ErrStorage) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, errs.ErrStorage, err)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: email_address is required", errs.ErrValidation)
	}
	return key, nil
}
