package pagedb

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// FlushScheduler periodically calls DB.FlushAll on a cron schedule, for
// long-running host processes that want bounded dirty-page exposure
// without paying an fsync after every single operation. It is optional:
// nothing else in this package depends on it, and a caller that prefers
// to flush explicitly after every write can ignore it entirely.
type FlushScheduler struct {
	mu  sync.Mutex
	db  *DB
	cr  *cron.Cron
	err error // last error observed from a scheduled flush, if any
}

// NewFlushScheduler constructs a scheduler over db. Call Start to begin
// running it against a cron spec such as "@every 30s".
func NewFlushScheduler(db *DB) *FlushScheduler {
	return &FlushScheduler{db: db, cr: cron.New(cron.WithSeconds())}
}

// Start registers spec (a cron expression with a leading seconds field,
// or an "@every" shorthand) to trigger a DB.FlushAll call, then starts the scheduler's
// internal goroutine.
func (s *FlushScheduler) Start(spec string) error {
	_, err := s.cr.AddFunc(spec, func() {
		if err := s.db.FlushAll(); err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("pagedb: scheduled flush failed: %w", err)
			s.mu.Unlock()
		}
	})
	if err != nil {
		return fmt.Errorf("pagedb: schedule flush %q: %w", spec, err)
	}
	s.cr.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight flush to finish.
func (s *FlushScheduler) Stop() {
	ctx := s.cr.Stop()
	<-ctx.Done()
}

// LastError returns the most recent error a scheduled flush observed, if
// any. Scheduled flushes run off the caller's call stack, so this is the
// only way to observe a failure short of polling FlushAll directly.
func (s *FlushScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
