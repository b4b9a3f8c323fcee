// Package health runs client-side checks against a Tempo server and folds
// them into one report.
package health

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Status is the outcome of a check
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnknown   Status = "unknown"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses for aggregation; the report takes the worst
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 2
	case StatusUnhealthy:
		return 3
	default:
		return 1
	}
}

// CheckResult is the outcome of one check
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker is a named check
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (c funcChecker) Name() string                          { return c.name }
func (c funcChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// NewChecker creates a named checker from a function
func NewChecker(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

// Registry holds the checks of one client component. Registering a name
// twice replaces the earlier check.
type Registry struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	component string
	version   string
	startAt   time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(component, version string) *Registry {
	return &Registry{
		checkers:  make(map[string]Checker),
		component: component,
		version:   version,
		startAt:   time.Now(),
	}
}

// Register adds checker under its name
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// RegisterFunc adds fn as a check named name
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	r.Register(NewChecker(name, fn))
}

// Check runs every check concurrently and reports the worst status.
// Results are sorted by name.
func (r *Registry) Check(ctx context.Context) *Report {
	r.mu.RLock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res := checker.Check(ctx)
			res.Duration = time.Since(start)
			res.Timestamp = time.Now()
			if res.Name == "" {
				res.Name = checker.Name()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	slices.SortFunc(results, func(a, b CheckResult) int {
		return cmp.Compare(a.Name, b.Name)
	})

	overall := StatusHealthy
	for _, res := range results {
		if res.Status.severity() > overall.severity() {
			overall = res.Status
		}
	}

	return &Report{
		Component: r.component,
		Version:   r.version,
		Status:    overall,
		Uptime:    time.Since(r.startAt),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// CheckWithTimeout runs Check bounded by timeout as well as ctx
func (r *Registry) CheckWithTimeout(ctx context.Context, timeout time.Duration) *Report {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Check(ctx)
}

// Report is the folded result of a registry run
type Report struct {
	Component string        `json:"component"`
	Version   string        `json:"version"`
	Status    Status        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// Healthy reports whether every check passed
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// String summarizes the report on one line
func (r *Report) String() string {
	failing := 0
	for _, c := range r.Checks {
		if c.Status != StatusHealthy {
			failing++
		}
	}
	return fmt.Sprintf("%s %s: %s (%d/%d checks passing)",
		r.Component, r.Version, r.Status, len(r.Checks)-failing, len(r.Checks))
}
