package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

// WriteCoordinator is the only path that writes back to the document store.
// Every operation validates its input before any network call and runs
// under a bounded timeout that surfaces as a retryable TIMEOUT error.
type WriteCoordinator struct {
	store         repository.DocumentStore
	limiter       RateLimiter
	validate      *validator.Validate
	confirmations *confirmations
	timeout       time.Duration
	now           func() time.Time
	newID         func() string
}

type CoordinatorOption func(*WriteCoordinator)

func WithWriteTimeout(d time.Duration) CoordinatorOption {
	return func(wc *WriteCoordinator) {
		if d > 0 {
			wc.timeout = d
		}
	}
}

func WithConfirmationTTL(d time.Duration) CoordinatorOption {
	return func(wc *WriteCoordinator) { wc.confirmations.ttl = d }
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(wc *WriteCoordinator) {
		wc.now = now
		wc.confirmations.now = now
	}
}

// WithIDGenerator replaces the generator for pitch ids and confirmation tokens.
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(wc *WriteCoordinator) {
		wc.newID = newID
		wc.confirmations.newToken = newID
	}
}

func NewWriteCoordinator(store repository.DocumentStore, limiter RateLimiter, opts ...CoordinatorOption) *WriteCoordinator {
	newID := func() string { return uuid.New().String() }
	wc := &WriteCoordinator{
		store:         store,
		limiter:       limiter,
		validate:      validator.New(),
		confirmations: newConfirmations(2*time.Minute, time.Now, newID),
		timeout:       defaultWriteTimeout,
		now:           time.Now,
		newID:         newID,
	}
	for _, opt := range opts {
		opt(wc)
	}
	return wc
}

// run bounds fn by the write timeout.
func (wc *WriteCoordinator) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()
	return errors.FromContext(ctx, operation, fn(ctx))
}

func (wc *WriteCoordinator) check(input interface{}) error {
	if err := wc.validate.Struct(input); err != nil {
		return errors.Validation(describeValidation(err), err)
	}
	return nil
}

func (wc *WriteCoordinator) allow(userID, action string) error {
	if wc.limiter == nil {
		return nil
	}
	if ok, wait := wc.limiter.Allow(userID, action); !ok {
		logger.Warn("Rate limit hit for %s on %s, retry in %v", userID, action, wait)
		return errors.TooManyRequests("Too many requests, please slow down", wait)
	}
	return nil
}

func requireOperator(actor entity.Actor) error {
	if actor.UID == "" {
		return errors.Unauthorized("Sign in required", nil)
	}
	if !actor.Role.IsOperator() {
		return errors.Forbidden("Only admins can do this", nil)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "Invalid input"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "email":
			parts = append(parts, fe.Field()+" must be a valid email")
		case "url":
			parts = append(parts, fe.Field()+" must be a valid URL")
		case "oneof":
			parts = append(parts, fe.Field()+" must be one of: "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid ("+fe.Tag()+")")
		}
	}
	return strings.Join(parts, "; ")
}
