package repositories

import (
	"context"
	"time"

	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

const (
	revokedPrefix  = "revoked:"
	attemptsPrefix = "attempts:"
)

// TokenRepository keeps short-lived security state: revoked token ids and
// failed verification attempts. Entries expire through badger TTLs.
type TokenRepository struct {
	store *store.Store
	now   timeutil.Clock
}

func NewTokenRepository(s *store.Store, clock timeutil.Clock) *TokenRepository {
	return &TokenRepository{store: s, now: clock}
}

// Revoke blocks the token id until ttl has passed.
func (r *TokenRepository) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return tx.PutJSONWithTTL(revokedPrefix+jti, r.now().Unix(), ttl)
	})
}

func (r *TokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		revoked, err = tx.Exists(revokedPrefix + jti)
		return err
	})
	return revoked, err
}

// TakeAttempt records an attempt for subject unless limit attempts already
// fall inside window, in which case it reports false and records nothing.
// The check and the write share one transaction, so concurrent callers
// cannot overshoot limit.
func (r *TokenRepository) TakeAttempt(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error) {
	key := attemptsPrefix + scope + ":" + subject
	var allowed bool
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var stamps []time.Time
		if _, err := tx.GetJSON(key, &stamps); err != nil {
			return err
		}
		now := r.now()
		stamps = recent(stamps, now, window)
		allowed = len(stamps) < limit
		if !allowed {
			return nil
		}
		return tx.PutJSONWithTTL(key, append(stamps, now), window)
	})
	return allowed, err
}

func (r *TokenRepository) ResetFailures(ctx context.Context, scope, subject string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return tx.Delete(attemptsPrefix + scope + ":" + subject)
	})
}

func recent(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	out := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) < window {
			out = append(out, t)
		}
	}
	return out
}
