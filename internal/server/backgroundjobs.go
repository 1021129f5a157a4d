package server

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server/jobs"
)

// BackgroundJobFunc is the interface for implementing a new background job.
//
// currentTime is the time the job was invoked at, and should be used for
// segmenting records into processable chunks. lastRunAt is the time the job
// was last invoked; it is only updated when the job returns without error.
//
// Errors are logged but do not crash the server. Panics are caught and
// logged. Jobs should gracefully exit when their context is cancelled.
type BackgroundJobFunc func(ctx context.Context, db *gorm.DB, lastRunAt, currentTime time.Time) error

func (s *Server) setupBackgroundJobs(ctx context.Context) {
	if s.options.Validate.Interval <= 0 {
		return
	}

	revalidator := jobs.Revalidator{
		Validator:  s.validator,
		ActiveKeys: s.activeKeys,
		Workers:    s.options.Validate.Workers,
	}
	s.registerJob(ctx, revalidator.RevalidateAPIKeys, s.options.Validate.Interval)
}

func (s *Server) registerJob(ctx context.Context, job BackgroundJobFunc, every time.Duration) {
	s.routines = append(s.routines, routine{
		run:  jobWrapper(ctx, s.db, job, every),
		stop: func() {}, // uses the context to stop
	})
}

func jobWrapper(ctx context.Context, db *gorm.DB, job BackgroundJobFunc, every time.Duration) func() error {
	db = db.WithContext(ctx)

	return func() error { // jobs shouldn't return errors, we just do this to be compatible with the "routine" struct.
		t := time.NewTicker(every)
		defer t.Stop()
		lastRunAt := time.Time{}

		jobWithRescue := func() {
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if err := recover(); err != nil {
					reportToSentry(fmt.Errorf("background job %s panic: %v", getFuncName(job), err))
					logging.Errorf("background job %s panic: %v", getFuncName(job), err)
				}
			}()

			startAt := time.Now().UTC()
			logging.Debugf("background job %s starting", getFuncName(job))

			err := job(ctx, db, lastRunAt, startAt)
			if err != nil {
				logging.Errorf("background job %s error: %s", getFuncName(job), err.Error())
			} else {
				logging.Debugf("background job %s successful, elapsed: %s", getFuncName(job), time.Since(startAt))
				lastRunAt = startAt
			}
		}

		for {
			select {
			case <-t.C:
				jobWithRescue()
			case <-ctx.Done():
				return nil // time to quit.
			}
		}
	}
}

func getFuncName(f BackgroundJobFunc) string {
	return runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
}
