package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PointBackend is the part of the database the health check needs
type PointBackend interface {
	Ping(ctx context.Context) error
	ListCollections(ctx context.Context) ([]string, error)
	EnsurePointIndex(ctx context.Context, pointID string) error
}

// StateRecorder receives the outcome of every check
type StateRecorder interface {
	SetBackendState(up bool, points int)
}

// BackendHealthChecker pings the point database, counts point collections and
// makes sure every point has its time index
type BackendHealthChecker struct {
	backend  PointBackend
	recorder StateRecorder
	interval time.Duration

	mu      sync.Mutex
	indexed map[string]bool
	lastRun time.Time
	lastErr error
}

// NewBackendHealthChecker creates a new backend health checker job
func NewBackendHealthChecker(backend PointBackend, recorder StateRecorder, interval time.Duration) *BackendHealthChecker {
	return &BackendHealthChecker{
		backend:  backend,
		recorder: recorder,
		interval: interval,
		indexed:  make(map[string]bool),
	}
}

// Interval returns the time between two checks
func (b *BackendHealthChecker) Interval() time.Duration {
	return b.interval
}

// Run executes one health check
func (b *BackendHealthChecker) Run(ctx context.Context) error {
	err := b.check(ctx)

	b.mu.Lock()
	b.lastRun = time.Now()
	b.lastErr = err
	b.mu.Unlock()

	return err
}

func (b *BackendHealthChecker) check(ctx context.Context) error {
	if err := b.backend.Ping(ctx); err != nil {
		b.recorder.SetBackendState(false, 0)
		return fmt.Errorf("backend unreachable: %w", err)
	}

	names, err := b.backend.ListCollections(ctx)
	if err != nil {
		b.recorder.SetBackendState(false, 0)
		return fmt.Errorf("failed to list points: %w", err)
	}

	created := 0
	for _, name := range names {
		if b.isIndexed(name) {
			continue
		}
		if err := b.backend.EnsurePointIndex(ctx, name); err != nil {
			log.Printf("⚠️  [HEALTH-JOB] Failed to index point %s: %v", name, err)
			continue
		}
		b.markIndexed(name)
		created++
	}

	b.recorder.SetBackendState(true, len(names))
	if created > 0 {
		log.Printf("[HEALTH-JOB] Indexed %d new point(s), %d total", created, len(names))
	}
	return nil
}

func (b *BackendHealthChecker) isIndexed(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexed[name]
}

func (b *BackendHealthChecker) markIndexed(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexed[name] = true
}

// LastResult returns the time and error of the most recent check
func (b *BackendHealthChecker) LastResult() (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRun, b.lastErr
}
