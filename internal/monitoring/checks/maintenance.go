package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/accountd/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance reports on background jobs recorded by tracker. A job that keeps failing
// is down; one that has not run within maxAge is degraded. A job still waiting for its
// first run is reported but not penalised.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if tracker == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}

		jobs := tracker.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no jobs recorded"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs {
			jobStatus, note := assessJob(job, now, maxAge)
			status = monitoring.Worse(status, jobStatus)
			if note != "" {
				notes = append(notes, job.Job+": "+note)
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	})
}

func assessJob(job monitoring.JobStatus, now time.Time, maxAge time.Duration) (monitoring.ProbeStatus, string) {
	switch {
	case job.TotalRuns == 0:
		return monitoring.StatusUp, "pending first run"
	case job.ConsecutiveFailures > 0:
		return monitoring.StatusDown, fmt.Sprintf("%d consecutive failures, last: %s", job.ConsecutiveFailures, job.LastError)
	case now.Sub(job.LastRunAt) > maxAge:
		return monitoring.StatusDegraded, "last run " + job.LastRunAt.UTC().Format(time.RFC3339)
	default:
		return monitoring.StatusUp, ""
	}
}
