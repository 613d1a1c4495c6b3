package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// QuotaStore tracks per-user monthly import counts. Reservation is a single
// atomic check-and-increment so two racing requests cannot both pass a
// stale count.
type QuotaStore struct {
	kv jetstream.KeyValue

	// now is swappable so tests can pin the month.
	now func() time.Time
}

// NewQuotaStore creates the store, provisioning its bucket if needed.
func NewQuotaStore(ctx context.Context, js jetstream.JetStream) (*QuotaStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketQuota)
	if err != nil {
		return nil, fmt.Errorf("create quota bucket: %w", err)
	}
	return &QuotaStore{kv: kv, now: time.Now}, nil
}

// monthKey scopes a user's counter to the current calendar month.
// NATS KV keys cannot carry colons, so segments join with dots.
func (q *QuotaStore) monthKey(userID string) string {
	return fmt.Sprintf("user.%s.%s", userID, q.now().UTC().Format("2006-01"))
}

// Reserve atomically consumes one import slot for the user's current month
// and returns the count now reserved. ErrQuotaExceeded leaves the counter
// untouched.
func (q *QuotaStore) Reserve(ctx context.Context, userID string, limit int) (int, error) {
	key := q.monthKey(userID)

	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := q.kv.Get(ctx, key)
		if err != nil {
			if !isNotFound(err) {
				return 0, fmt.Errorf("get quota: %w", err)
			}
			if limit < 1 {
				return 0, ErrQuotaExceeded
			}
			if _, err := q.kv.Create(ctx, key, []byte("1")); err != nil {
				// Lost the create race, re-read the counter.
				continue
			}
			return 1, nil
		}

		count, err := strconv.Atoi(string(entry.Value()))
		if err != nil {
			return 0, fmt.Errorf("corrupt quota counter %s: %w", key, err)
		}
		if count >= limit {
			return 0, ErrQuotaExceeded
		}

		next := count + 1
		if _, err := q.kv.Update(ctx, key, []byte(strconv.Itoa(next)), entry.Revision()); err != nil {
			continue
		}
		return next, nil
	}
	return 0, fmt.Errorf("reserve quota for %s: too much contention", userID)
}

// Used returns how many imports the user has reserved this month.
func (q *QuotaStore) Used(ctx context.Context, userID string) (int, error) {
	entry, err := q.kv.Get(ctx, q.monthKey(userID))
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get quota: %w", err)
	}
	count, err := strconv.Atoi(string(entry.Value()))
	if err != nil {
		return 0, fmt.Errorf("corrupt quota counter: %w", err)
	}
	return count, nil
}
