package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/brandlens/perception-orchestrator/internal/config"
	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// Gate bounds simultaneous outbound provider calls, globally and per
// pipeline type. Waiters are served in FIFO order so no pipeline starves.
type Gate struct {
	global  *semaphore
	perType map[domain.PipelineType]*semaphore
}

// Permit represents one admitted call slot. Release must be called on
// every exit path; releasing twice is a no-op.
type Permit struct {
	gate         *Gate
	pipelineType domain.PipelineType
	once         sync.Once
}

// New creates a gate from the configured limits
func New(cfg config.ConcurrencyConfig) (*Gate, error) {
	if cfg.GlobalLimit <= 0 {
		return nil, fmt.Errorf("global concurrency limit must be positive, got %d", cfg.GlobalLimit)
	}

	perType := make(map[domain.PipelineType]*semaphore, len(domain.AllPipelineTypes))
	for _, pt := range domain.AllPipelineTypes {
		limit := cfg.LimitFor(pt)
		if limit <= 0 {
			return nil, fmt.Errorf("pipeline limit for %s must be positive, got %d", pt, limit)
		}
		perType[pt] = newSemaphore(limit)
	}

	return &Gate{
		global:  newSemaphore(cfg.GlobalLimit),
		perType: perType,
	}, nil
}

// Acquire blocks until both a per-type and a global permit are free, or
// the context is cancelled. Per-type permits are always taken before the
// global one, so concurrent acquisitions cannot deadlock.
func (g *Gate) Acquire(ctx context.Context, t domain.PipelineType) (*Permit, error) {
	sem, ok := g.perType[t]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline type %q", t)
	}

	if err := sem.acquire(ctx); err != nil {
		return nil, err
	}
	if err := g.global.acquire(ctx); err != nil {
		sem.release()
		return nil, err
	}

	return &Permit{gate: g, pipelineType: t}, nil
}

// Do runs fn while holding a permit, releasing it on every exit path
func (g *Gate) Do(ctx context.Context, t domain.PipelineType, fn func() error) error {
	permit, err := g.Acquire(ctx, t)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn()
}

// Release returns the permit's slots. Safe to call more than once.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.gate.global.release()
		p.gate.perType[p.pipelineType].release()
	})
}

// InFlight returns the number of currently held global permits
func (g *Gate) InFlight() int {
	return g.global.held()
}

// InFlightFor returns the number of currently held permits for a type
func (g *Gate) InFlightFor(t domain.PipelineType) int {
	if sem, ok := g.perType[t]; ok {
		return sem.held()
	}
	return 0
}

// semaphore is a counting semaphore with a strict FIFO waiter queue.
type semaphore struct {
	mu      sync.Mutex
	limit   int
	used    int
	waiters []chan struct{}
}

func newSemaphore(limit int) *semaphore {
	return &semaphore{limit: limit}
}

func (s *semaphore) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.used < s.limit && len(s.waiters) == 0 {
		s.used++
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// Grant raced with cancellation; hand the slot back.
		select {
		case <-ready:
			s.release()
		default:
		}
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		// Hand the slot directly to the oldest waiter; used stays constant.
		ready := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ready)
		return
	}
	if s.used > 0 {
		s.used--
	}
}

func (s *semaphore) held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
