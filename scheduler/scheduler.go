// Package scheduler drives automatic connector synchronization. A Scheduler
// periodically asks the knowledge manager for connectors whose next sync
// time has passed and triggers them, optionally running a caller supplied
// hook that performs the actual ingestion work.
package scheduler

import (
	"context"
	"time"

	"github.com/hupe1980/agenthub/knowledge"
	"github.com/hupe1980/agenthub/logging"
)

// SyncManager is the slice of the knowledge manager the scheduler drives.
// *knowledge.Manager satisfies it.
type SyncManager interface {
	DueForSync() []knowledge.DueSync
	TriggerSync(kbID, connectorID string) bool
	MarkSyncError(kbID, connectorID, message string) bool
}

// Compile time check.
var _ SyncManager = (*knowledge.Manager)(nil)

// SyncHook performs the ingestion work for one due connector. A nil hook
// means syncs are bookkeeping only.
type SyncHook func(ctx context.Context, due knowledge.DueSync) error

// Options configures a Scheduler.
type Options struct {
	// Interval between polls. Defaults to one minute.
	Interval time.Duration
	// Hook runs before the sync is recorded. A hook error marks the
	// connector errored instead of synced.
	Hook SyncHook
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Scheduler polls for due connectors and triggers their syncs.
type Scheduler struct {
	manager  SyncManager
	interval time.Duration
	hook     SyncHook
	logger   logging.Logger
}

// New creates a Scheduler bound to the given manager.
func New(manager SyncManager, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Interval: time.Minute,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Scheduler{
		manager:  manager,
		interval: opts.Interval,
		hook:     opts.Hook,
		logger:   opts.Logger,
	}
}

// Run polls until the context is cancelled. It performs one immediate pass
// before the first tick so freshly started processes do not wait a full
// interval, then returns ctx.Err() on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single poll pass and returns the number of connectors
// synced successfully. Failures of individual connectors are recorded on the
// connector and do not stop the pass.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	due := s.manager.DueForSync()
	if len(due) == 0 {
		return 0
	}
	s.logger.Debug("sync pass started", "due", len(due))

	synced := 0
	for _, d := range due {
		if ctx.Err() != nil {
			return synced
		}

		if s.hook != nil {
			if err := s.hook(ctx, d); err != nil {
				s.manager.MarkSyncError(d.KBID, d.ConnectorID, err.Error())
				s.logger.Error("connector sync failed", "kbId", d.KBID, "connectorId", d.ConnectorID, "error", err)
				continue
			}
		}

		if s.manager.TriggerSync(d.KBID, d.ConnectorID) {
			synced++
			s.logger.Info("connector synced", "kbId", d.KBID, "connectorId", d.ConnectorID)
		}
	}
	return synced
}
