package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type JanitorOptions struct {
	Store    *Store
	Schedule string
	MaxIdle  time.Duration
	Logger   *slog.Logger
	// AfterSweep, if set, runs after every sweep with the evicted keys.
	AfterSweep func(evicted []string)
}

// Janitor periodically tears down abandoned workspaces so their preview
// handles do not pile up.
type Janitor struct {
	store    *Store
	schedule string
	maxIdle  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
	after    func([]string)
}

func NewJanitor(opts JanitorOptions) *Janitor {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	maxIdle := opts.MaxIdle
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Janitor{
		store:    opts.Store,
		schedule: schedule,
		maxIdle:  maxIdle,
		cron:     cron.New(),
		logger:   logger,
		after:    opts.AfterSweep,
	}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("workspace janitor started", "schedule", j.schedule, "max_idle", j.maxIdle.String())
	return nil
}

func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Sweep evicts idle workspaces once and returns how many went.
func (j *Janitor) Sweep() int {
	evicted := j.store.EvictIdle(j.maxIdle)
	if len(evicted) > 0 {
		j.logger.Info("evicted idle workspaces", "count", len(evicted), "remaining", j.store.Len())
	}
	if j.after != nil {
		j.after(evicted)
	}
	return len(evicted)
}
