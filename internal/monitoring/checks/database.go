package checks

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

var accountTables = []struct {
	name  string
	model any
}{
	{name: "users", model: &models.User{}},
	{name: "verification_tokens", model: &models.VerificationToken{}},
}

// Database returns a readiness probe that pings the database and confirms the account
// schema has been migrated. A reachable database without the tables reports degraded.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ResultFromError("database", errors.New("database not configured"), time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		migrator := db.WithContext(probeCtx).Migrator()
		var missing []string
		for _, table := range accountTables {
			if !migrator.HasTable(table.model) {
				missing = append(missing, table.name)
			}
		}
		if len(missing) > 0 {
			return monitoring.ProbeResult{
				Component: "database",
				Status:    monitoring.StatusDegraded,
				Details:   "missing tables: " + strings.Join(missing, ", "),
				Duration:  time.Since(start),
			}
		}

		return monitoring.ResultFromError("database", nil, time.Since(start))
	})
}
