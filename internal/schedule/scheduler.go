// Package schedule runs cron-configured automatic full batches.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brandlens/perception-orchestrator/internal/config"
)

// RunFunc executes one scheduled full batch
type RunFunc func(ctx context.Context, projectID string) error

// Scheduler manages scheduled batch runs
type Scheduler struct {
	configs  map[string]config.ScheduledBatch
	parser   cron.Parser
	lastRun  map[string]time.Time
	running  map[string]bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler from the configured batches.
// Every cron expression is validated up front.
func NewScheduler(batches []config.ScheduledBatch) (*Scheduler, error) {
	s := &Scheduler{
		configs:  make(map[string]config.ScheduledBatch),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}

	for _, b := range batches {
		if err := validate(b); err != nil {
			return nil, err
		}
		s.configs[b.Name] = b
	}

	return s, nil
}

func validate(b config.ScheduledBatch) error {
	if b.Name == "" {
		return fmt.Errorf("scheduled batch name is required")
	}
	if b.ProjectID == "" {
		return fmt.Errorf("scheduled batch %s: project_id is required", b.Name)
	}
	if _, err := ParseCron(b.Cron); err != nil {
		return fmt.Errorf("scheduled batch %s: invalid cron expression: %w", b.Name, err)
	}
	return nil
}

// ParseCron parses a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a batch
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.configs[name]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(b.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(time.Now())
}

// ShouldRun returns true if a batch is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.configs[name]
	if !ok {
		return false
	}

	if s.running[name] {
		return false
	}

	sched, err := s.parser.Parse(b.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}

	nextRun := sched.Next(lastRun)
	return time.Now().After(nextRun)
}

// MarkRunning marks a batch as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a batch as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// ListBatches returns all configured batch names
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	return names
}

// Start begins the scheduler loop. It blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range s.configs {
				if !s.ShouldRun(name) {
					continue
				}
				s.mu.RLock()
				b := s.configs[name]
				s.mu.RUnlock()

				s.MarkRunning(name)
				go func(b config.ScheduledBatch) {
					log.Printf("[schedule] starting batch %s for project %s", b.Name, b.ProjectID)
					if err := run(ctx, b.ProjectID); err != nil {
						log.Printf("[schedule] batch %s failed: %v", b.Name, err)
					}
					s.MarkComplete(b.Name)
				}(b)
			}
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
