package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// State of a single dependency's circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Defaults matching the dependency health policy: open after five failures
// at a 50% failure rate, cool down for thirty seconds.
const (
	DefaultFailureThreshold = 5
	DefaultFailureRate      = 0.5
	DefaultCooldown         = 30 * time.Second
)

type record struct {
	state         State
	failureCount  int
	successCount  int
	totalRequests int
	lastFailureAt time.Time
	nextRetryAt   time.Time
}

// Snapshot is a read-only view of one dependency's circuit state.
type Snapshot struct {
	Dependency    string    `json:"dependency"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	TotalRequests int       `json:"total_requests"`
	LastFailureAt time.Time `json:"last_failure_at"`
	NextRetryAt   time.Time `json:"next_retry_at"`
}

// Registry tracks one circuit per logical dependency and short-circuits
// calls while a dependency is presumed down.
type Registry struct {
	mu               sync.Mutex
	deps             map[string]*record
	failureThreshold int
	failureRate      float64
	cooldown         time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

// NewRegistry creates a circuit breaker registry with the given thresholds.
func NewRegistry(failureThreshold int, failureRate float64, cooldown time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		deps:             make(map[string]*record),
		failureThreshold: failureThreshold,
		failureRate:      failureRate,
		cooldown:         cooldown,
		logger:           logger,
		now:              time.Now,
	}
}

// Call runs fn against the named dependency, failing fast with a
// CircuitOpenError when the circuit is open. The outcome of fn is reported
// to the circuit.
func (r *Registry) Call(dependency string, fn func() error) error {
	if err := r.allow(dependency); err != nil {
		return err
	}
	err := fn()
	r.report(dependency, err == nil)
	return err
}

func (r *Registry) allow(dependency string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.dep(dependency)
	switch rec.state {
	case StateClosed:
		return nil
	case StateOpen:
		if r.now().Before(rec.nextRetryAt) {
			return &domain.CircuitOpenError{Dependency: dependency, RetryAt: rec.nextRetryAt}
		}
		// Cooldown elapsed: admit exactly one probe.
		rec.state = StateHalfOpen
		r.logger.Info("circuit half-open, probing", "dependency", dependency)
		return nil
	default: // half-open, probe in flight
		return &domain.CircuitOpenError{Dependency: dependency, RetryAt: rec.nextRetryAt}
	}
}

func (r *Registry) report(dependency string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.dep(dependency)
	rec.totalRequests++

	if success {
		rec.successCount++
		if rec.state == StateHalfOpen {
			rec.state = StateClosed
			rec.failureCount = 0
			r.logger.Info("circuit closed", "dependency", dependency)
		}
		return
	}

	rec.failureCount++
	rec.lastFailureAt = r.now()

	if rec.state == StateHalfOpen {
		rec.state = StateOpen
		rec.nextRetryAt = r.now().Add(r.cooldown)
		r.logger.Warn("circuit re-opened after failed probe",
			"dependency", dependency,
			"next_retry_at", rec.nextRetryAt,
		)
		return
	}

	rate := float64(rec.failureCount) / float64(rec.totalRequests)
	if rec.failureCount >= r.failureThreshold && rate >= r.failureRate {
		rec.state = StateOpen
		rec.nextRetryAt = r.now().Add(r.cooldown)
		r.logger.Warn("circuit opened",
			"dependency", dependency,
			"failure_count", rec.failureCount,
			"failure_rate", rate,
			"next_retry_at", rec.nextRetryAt,
		)
	}
}

// dep returns the record for a dependency, creating it closed. Callers must
// hold r.mu.
func (r *Registry) dep(dependency string) *record {
	rec, ok := r.deps[dependency]
	if !ok {
		rec = &record{state: StateClosed}
		r.deps[dependency] = rec
	}
	return rec
}

// Snapshots returns the current state of every tracked dependency.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Snapshot, 0, len(r.deps))
	for name, rec := range r.deps {
		result = append(result, Snapshot{
			Dependency:    name,
			State:         rec.state,
			FailureCount:  rec.failureCount,
			SuccessCount:  rec.successCount,
			TotalRequests: rec.totalRequests,
			LastFailureAt: rec.lastFailureAt,
			NextRetryAt:   rec.nextRetryAt,
		})
	}
	return result
}
