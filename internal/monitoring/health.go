package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/accountd/pkg/metrics"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

func (s ProbeStatus) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two statuses. Unknown values count as down.
func Worse(a, b ProbeStatus) ProbeStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

func newReport(results []ProbeResult) HealthReport {
	status := StatusUp
	for _, r := range results {
		status = Worse(status, r.Status)
	}
	if results == nil {
		results = []ProbeResult{}
	}
	return HealthReport{Success: status == StatusUp, Status: status, Checks: results}
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

const defaultProbeTimeout = 5 * time.Second

// HealthManager runs liveness and readiness probes concurrently, each under its own deadline.
type HealthManager struct {
	timeout   time.Duration
	liveness  []Check
	readiness []Check
}

// HealthOption customises a HealthManager.
type HealthOption func(*HealthManager)

// WithProbeTimeout bounds every probe run. Non-positive values keep the default.
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(m *HealthManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewHealthManager constructs a manager with no probes.
func NewHealthManager(opts ...HealthOption) *HealthManager {
	m := &HealthManager{timeout: defaultProbeTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterLiveness adds a probe whose failure means the process should be restarted.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name != "" {
		m.liveness = append(m.liveness, check)
	}
}

// RegisterReadiness adds a probe whose failure means traffic should be withheld.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name != "" {
		m.readiness = append(m.readiness, check)
	}
}

// EvaluateLiveness runs the liveness probes.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, "liveness", m.liveness)
}

// EvaluateReadiness runs the readiness probes.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, "readiness", m.readiness)
}

func (m *HealthManager) evaluate(ctx context.Context, kind string, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	// Results keep registration order regardless of completion order.
	results := make([]ProbeResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = m.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		metrics.HealthProbeUp.WithLabelValues(kind, r.Component).Set(boolGauge(r.Status == StatusUp))
	}
	return newReport(results)
}

func (m *HealthManager) run(ctx context.Context, check Check) (result ProbeResult) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(rec)}
		}
		result.Component = check.Name
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration <= 0 {
			result.Duration = time.Since(start)
		}
	}()

	return check.Run(probeCtx)
}

func panicDetails(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("panic: %v", v)
	}
}

func boolGauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// MergeReports combines liveness and readiness results into one report.
func MergeReports(live, ready HealthReport) HealthReport {
	results := make([]ProbeResult, 0, len(live.Checks)+len(ready.Checks))
	results = append(results, live.Checks...)
	results = append(results, ready.Checks...)
	return newReport(results)
}

// ResultFromError maps err to a result. Deadline and cancellation errors degrade
// rather than fail the component.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	result := ProbeResult{Component: component, Status: StatusUp, Duration: max(duration, 0)}
	if err == nil {
		return result
	}

	result.Details = err.Error()
	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	return result
}
