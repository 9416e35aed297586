// Package scheduler rotates through the monitored portal paths and keeps
// the hourly item quota.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-portal-harvester/internal/config"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/state"
)

type Options struct {
	Paths                []string
	JobsPerCycle         int
	MinPaths             int
	MaxPaths             int
	ExpectedItemsPerPath int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Paths:                cfg.Portal.Paths,
		JobsPerCycle:         cfg.Limits.JobsPerCycle,
		MinPaths:             cfg.Limits.MinPathsPerRun,
		MaxPaths:             cfg.Limits.MaxPathsPerRun,
		ExpectedItemsPerPath: cfg.Limits.ExpectedItemsPerPath,
	}
}

// Plan is the work for one invocation.
type Plan struct {
	Paths     []string
	Remaining int
	// Fresh is true when this invocation started a new cycle
	Fresh      bool
	CycleStart time.Time
}

type Scheduler struct {
	opts  Options
	store state.Store
	log   logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

func New(opts Options, st state.Store, log logger.Logger) *Scheduler {
	if opts.JobsPerCycle <= 0 {
		opts.JobsPerCycle = 10
	}
	if opts.MinPaths <= 0 {
		opts.MinPaths = 2
	}
	if opts.MaxPaths < opts.MinPaths {
		opts.MaxPaths = opts.MinPaths
	}
	if opts.ExpectedItemsPerPath <= 0 {
		opts.ExpectedItemsPerPath = 4
	}
	return &Scheduler{
		opts:  opts,
		store: st,
		log:   log.With(logger.String("component", "scheduler")),
		now:   time.Now,
	}
}

func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Begin loads the cycle state, resets it when the hour has moved on or the
// quota is used up, and picks the next paths in rotation.
func (s *Scheduler) Begin(ctx context.Context) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.opts.Paths) == 0 {
		return Plan{}, fmt.Errorf("no paths configured")
	}

	cs, err := s.load(ctx)
	if err != nil {
		return Plan{}, err
	}

	hour := s.now().Truncate(time.Hour)
	fresh := false
	if !cs.CycleStartHour.Equal(hour) || cs.ItemsHarvestedThisCycle >= s.opts.JobsPerCycle {
		s.log.Info("Starting fresh cycle",
			logger.Time("previous_start", cs.CycleStartHour),
			logger.Int("previous_items", cs.ItemsHarvestedThisCycle))
		cs.ItemsHarvestedThisCycle = 0
		cs.CycleStartHour = hour
		fresh = true
		if err := s.store.SaveCycle(ctx, cs); err != nil {
			return Plan{}, fmt.Errorf("save cycle state: %w", err)
		}
	}

	remaining := s.opts.JobsPerCycle - cs.ItemsHarvestedThisCycle
	count := s.pathCount(remaining)

	paths := make([]string, 0, count)
	n := len(s.opts.Paths)
	for i := 0; i < count; i++ {
		paths = append(paths, s.opts.Paths[(cs.CurrentPathIndex+i)%n])
	}

	s.log.Info("Planned invocation",
		logger.Strings("paths", paths),
		logger.Int("remaining", remaining),
		logger.Int("path_index", cs.CurrentPathIndex))
	return Plan{Paths: paths, Remaining: remaining, Fresh: fresh, CycleStart: cs.CycleStartHour}, nil
}

// pathCount sizes the visit so expected items fit the remaining quota.
func (s *Scheduler) pathCount(remaining int) int {
	count := remaining / s.opts.ExpectedItemsPerPath
	count = max(count, s.opts.MinPaths)
	count = min(count, s.opts.MaxPaths)
	count = min(count, len(s.opts.Paths))
	return max(count, 1)
}

// Advance moves the rotation past the attempted paths and counts harvested
// items, never beyond the quota.
func (s *Scheduler) Advance(ctx context.Context, attempted, harvested int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.load(ctx)
	if err != nil {
		return err
	}
	n := len(s.opts.Paths)
	if n > 0 && attempted > 0 {
		cs.CurrentPathIndex = (cs.CurrentPathIndex + attempted) % n
	}
	if harvested > 0 {
		cs.ItemsHarvestedThisCycle = min(cs.ItemsHarvestedThisCycle+harvested, s.opts.JobsPerCycle)
	}
	if err := s.store.SaveCycle(ctx, cs); err != nil {
		return fmt.Errorf("save cycle state: %w", err)
	}
	return nil
}

// State returns the persisted cycle state.
func (s *Scheduler) State(ctx context.Context) (models.CycleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, err := s.load(ctx)
	if err != nil {
		return models.CycleState{}, err
	}
	return *cs, nil
}

func (s *Scheduler) load(ctx context.Context) (*models.CycleState, error) {
	cs, err := s.store.LoadCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cycle state: %w", err)
	}
	if cs == nil {
		cs = &models.CycleState{}
	}
	//the path list may have shrunk since the state was saved
	if n := len(s.opts.Paths); n > 0 {
		cs.CurrentPathIndex = ((cs.CurrentPathIndex % n) + n) % n
	}
	return cs, nil
}
