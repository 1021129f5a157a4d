// Package jobs holds the background jobs run periodically by the server.
package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server/data"
	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/internal/server/providers"
)

// defaultRevalidateWorkers bounds how many provider liveness calls run
// concurrently during a revalidation pass.
const defaultRevalidateWorkers = 5

// Revalidator runs one revalidation pass over all active keys.
type Revalidator struct {
	Validator  *providers.Validator
	ActiveKeys *prometheus.GaugeVec

	// Workers bounds concurrent provider calls. Zero means the default.
	Workers int
}

// RevalidateAPIKeys validates every active key against its provider and
// applies the outcome. Each key is processed independently; one key's
// provider being down never blocks the rest of the pass, and a pass
// interrupted by ctx leaves every already-processed key fully recorded.
func (r Revalidator) RevalidateAPIKeys(ctx context.Context, db *gorm.DB, lastRunAt, currentTime time.Time) error {
	keys, err := data.ListActiveAPIKeys(db)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}
	logging.Debugf("revalidating %d active keys", len(keys))

	workers := r.Workers
	if workers <= 0 {
		workers = defaultRevalidateWorkers
	}

	var group errgroup.Group
	group.SetLimit(workers)

	for i := range keys {
		key := keys[i]

		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			r.revalidateOne(ctx, db, key)
			return nil
		})
	}

	// the workers never return errors, but Wait blocks until they finish
	_ = group.Wait()
	return ctx.Err()
}

// revalidateOne checks a single key and records the outcome. Failures are
// logged, not returned, so that the pass continues with the remaining keys.
func (r Revalidator) revalidateOne(ctx context.Context, db *gorm.DB, key models.APIKey) {
	result := r.Validator.Validate(ctx, key.Provider, string(key.Secret))

	updated, deactivated, err := data.RecordValidation(db, key.ID, result.Valid, result.Reason, result.CheckedAt)
	if err != nil {
		logging.Errorf("recording validation of key %v: %v", key.ID, err)
		return
	}

	if deactivated {
		r.ActiveKeys.WithLabelValues(key.Provider).Dec()
		logging.Warnf("key %v (%v) deactivated after %d consecutive validation failures",
			key.ID, key.Provider, updated.ValidationAttempts)
	}
}
