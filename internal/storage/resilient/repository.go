// Package resilient wraps the remote store with authentication gating,
// retry with exponential backoff, and transient-connectivity recovery.
// Services talk to one Repository per collection instead of the raw store.
package resilient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

// AuthState is the slice of the identity provider the repository needs:
// a readiness flag and change notifications.
type AuthState interface {
	Ready() bool
	OnChange(func(ready bool))
}

// Options tunes the retry and gating behavior.
type Options struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	AuthAttempts  int
	AuthPollDelay time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   5,
		BaseDelay:     2 * time.Second,
		MaxDelay:      10 * time.Second,
		AuthAttempts:  5,
		AuthPollDelay: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.AuthAttempts <= 0 {
		o.AuthAttempts = 5
	}
	return o
}

// Repository is a resilient CRUD facade over one store collection.
type Repository struct {
	store      store.Store
	state      AuthState
	collection string
	opts       Options
	logger     *zap.Logger

	mu     sync.Mutex
	handle store.Collection
}

// New creates a repository for the named collection. The cached collection
// handle is invalidated whenever the auth state changes.
func New(s store.Store, state AuthState, collection string, opts Options, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repository{
		store:      s,
		state:      state,
		collection: collection,
		opts:       opts.withDefaults(),
		logger:     logger.With(zap.String("collection", collection)),
	}
	state.OnChange(func(bool) { r.invalidate() })
	return r
}

// FindAll returns every document in the collection.
func (r *Repository) FindAll(ctx context.Context) ([]store.Document, error) {
	var docs []store.Document
	err := r.run(ctx, false, func(col store.Collection) error {
		var opErr error
		docs, opErr = col.List(ctx)
		return opErr
	})
	return docs, err
}

// FindByID returns the identified document, or a NOT_FOUND error.
func (r *Repository) FindByID(ctx context.Context, id string) (store.Document, error) {
	var doc store.Document
	err := r.run(ctx, false, func(col store.Collection) error {
		var opErr error
		doc, opErr = col.Get(ctx, id)
		return opErr
	})
	return doc, err
}

// FindByField returns documents whose field equals value.
func (r *Repository) FindByField(ctx context.Context, field string, value any) ([]store.Document, error) {
	var docs []store.Document
	err := r.run(ctx, false, func(col store.Collection) error {
		var opErr error
		docs, opErr = col.QueryByField(ctx, field, value)
		return opErr
	})
	return docs, err
}

// Create stores a new document and returns it with the store-assigned id.
func (r *Repository) Create(ctx context.Context, doc store.Document) (store.Document, error) {
	var id string
	err := r.run(ctx, true, func(col store.Collection) error {
		var opErr error
		id, opErr = col.Add(ctx, doc)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	created := make(store.Document, len(doc)+1)
	for k, v := range doc {
		created[k] = v
	}
	created[store.FieldID] = id
	return created, nil
}

// Update merges partial into the identified document; NOT_FOUND if absent.
func (r *Repository) Update(ctx context.Context, id string, partial store.Document) error {
	return r.run(ctx, true, func(col store.Collection) error {
		return col.Update(ctx, id, partial)
	})
}

// Delete removes the identified document; NOT_FOUND if absent.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.run(ctx, true, func(col store.Collection) error {
		return col.Delete(ctx, id)
	})
}

func (r *Repository) run(ctx context.Context, isWrite bool, op func(store.Collection) error) error {
	if err := r.ensureAuthenticated(ctx); err != nil {
		return err
	}
	return r.withRetry(ctx, isWrite, op)
}

// ensureAuthenticated polls the auth-state flag until it reports ready,
// failing after the configured number of attempts.
func (r *Repository) ensureAuthenticated(ctx context.Context) error {
	for attempt := 0; attempt < r.opts.AuthAttempts; attempt++ {
		if r.state.Ready() {
			return nil
		}
		if attempt < r.opts.AuthAttempts-1 {
			if err := sleep(ctx, r.opts.AuthPollDelay); err != nil {
				return err
			}
		}
	}
	r.logger.Warn("auth state never became ready")
	return apperr.Unauthenticated("you must be signed in to access records")
}

// withRetry executes op up to MaxAttempts times. NOT_FOUND and validation
// failures are semantic outcomes, not faults, and are returned as-is.
// PermissionDenied fails immediately. Transient store failures force a
// connectivity off/on cycle before the next attempt; any other fault retries
// without touching connectivity.
func (r *Repository) withRetry(ctx context.Context, isWrite bool, op func(store.Collection) error) error {
	var lastErr error
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if isWrite {
			if err := r.store.SetConnectivity(ctx, true); err != nil {
				r.logger.Warn("enable connectivity before write failed", zap.Error(err))
			}
		}

		col, err := r.collectionHandle()
		if err != nil {
			lastErr = err
		} else if err = op(col); err == nil {
			if isWrite {
				if err := r.store.WaitForPendingWrites(ctx); err != nil {
					r.logger.Warn("wait for pending writes failed", zap.Error(err))
				}
			}
			return nil
		} else {
			lastErr = err
		}

		if errors.Is(lastErr, apperr.ErrNotFound) || errors.Is(lastErr, apperr.ErrValidation) {
			return lastErr
		}
		if errors.Is(lastErr, apperr.ErrPermissionDenied) {
			r.logger.Warn("permission denied, not retrying", zap.Error(lastErr))
			return apperr.PermissionDenied("you do not have permission to perform this operation")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.invalidate()
		if apperr.IsTransient(lastErr) {
			r.logger.Info("transient store failure, resetting connectivity",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
			if err := r.store.SetConnectivity(ctx, false); err != nil {
				r.logger.Warn("disable connectivity failed", zap.Error(err))
			}
			if err := r.store.SetConnectivity(ctx, true); err != nil {
				r.logger.Warn("enable connectivity failed", zap.Error(err))
			}
		} else {
			r.logger.Info("store operation failed, retrying",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}

		if attempt < r.opts.MaxAttempts-1 {
			if err := sleep(ctx, r.backoff(attempt)); err != nil {
				return err
			}
		}
	}

	r.logger.Error("store operation exhausted all attempts", zap.Error(lastErr))
	if apperr.IsTransient(lastErr) {
		return apperr.Unavailable("the service is temporarily unavailable, try again later")
	}
	return apperr.Exhausted("operation failed after several attempts")
}

// backoff returns min(BaseDelay * 2^attempt, MaxDelay).
func (r *Repository) backoff(attempt int) time.Duration {
	delay := r.opts.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if r.opts.MaxDelay > 0 && delay >= r.opts.MaxDelay {
			return r.opts.MaxDelay
		}
	}
	if r.opts.MaxDelay > 0 && delay > r.opts.MaxDelay {
		return r.opts.MaxDelay
	}
	return delay
}

// collectionHandle returns the cached handle, creating it lazily.
func (r *Repository) collectionHandle() (store.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return r.handle, nil
	}
	col, err := r.store.Collection(r.collection)
	if err != nil {
		return nil, err
	}
	r.handle = col
	return col, nil
}

// invalidate drops the cached handle so the next call re-acquires it; stale
// handles must not survive a reconnect or an auth-state change.
func (r *Repository) invalidate() {
	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
