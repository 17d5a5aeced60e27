package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/accountd/internal/api"
	"github.com/charlesng35/accountd/internal/app"
	"github.com/charlesng35/accountd/internal/app/maintenance"
	iauth "github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/database"
	"github.com/charlesng35/accountd/internal/monitoring"
	"github.com/charlesng35/accountd/internal/monitoring/checks"
	"github.com/charlesng35/accountd/internal/services"
	"github.com/charlesng35/accountd/internal/store"
	"github.com/charlesng35/accountd/pkg/logger"
	"github.com/charlesng35/accountd/pkg/mail"
)

const databaseProbeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Store    *store.GormStore
	Accounts *services.AccountService
	Jobs     *monitoring.JobTracker
	Health   *monitoring.HealthManager
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime opens the database, builds the services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, err = store.New(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise store: %w", err)
	}

	tokens, err := iauth.NewTokenIssuer(cfg.Auth.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token issuer: %w", err)
	}

	credentials, err := iauth.NewCredentialService(cfg.Auth.CredentialConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise credential service: %w", err)
	}

	verification, err := services.NewVerificationTokenManager(stack.Store, tokens,
		services.WithResendCooldown(cfg.Auth.ResendCooldown()))
	if err != nil {
		return nil, fmt.Errorf("initialise verification tokens: %w", err)
	}

	mailer, err := initialiseMailer(cfg, log)
	if err != nil {
		return nil, err
	}

	notifier, err := services.NewNotifier(mailer, cfg.Email.From, cfg.Email.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("initialise notifier: %w", err)
	}

	stack.Accounts, err = services.NewAccountService(stack.Store, credentials, tokens, verification, notifier)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}

	stack.Jobs = monitoring.NewJobTracker()
	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Store,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
			maintenance.WithTracker(stack.Jobs),
		)
		if err := stack.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("initial maintenance run failed", zap.Error(err))
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		stack.Health.RegisterReadiness(checks.Maintenance(stack.Jobs, maintenanceMaxAge(cfg.Maintenance.Schedule)))
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Accounts: stack.Accounts,
		Tokens:   tokens,
		Health:   stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown", zap.Error(ctx.Err()))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseMailer(cfg *app.Config, log *zap.Logger) (mail.Mailer, error) {
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; outbound email is written to the log")
		return mail.NewLogMailer(logger.WithModule("mail"), cfg.Email.From), nil
	}

	relay, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	policy := cfg.Email.SMTPRetryPolicy()
	log.Info("smtp mailer configured",
		zap.String("host", cfg.Email.SMTP.Host),
		zap.Int("port", cfg.Email.SMTP.Port),
		zap.Uint64("max_attempts", policy.Attempts),
	)
	return mail.WithRetry(relay, policy), nil
}

// maintenanceMaxAge allows two missed runs before the maintenance probe degrades.
func maintenanceMaxAge(schedule string) time.Duration {
	switch strings.TrimSpace(schedule) {
	case "@hourly":
		return 2 * time.Hour
	case "@weekly":
		return 14 * 24 * time.Hour
	case "@monthly":
		return 62 * 24 * time.Hour
	case "@yearly", "@annually":
		return 2 * 366 * 24 * time.Hour
	}
	if every, ok := strings.CutPrefix(strings.TrimSpace(schedule), "@every "); ok {
		if d, err := time.ParseDuration(every); err == nil && d > 0 {
			return 2 * d
		}
	}
	return 48 * time.Hour
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:  strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:    strings.TrimSpace(cfg.Database.Path),
		DSN:     strings.TrimSpace(cfg.Database.DSN),
		Options: cfg.Database.Options,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql", "mysql":
		if dbCfg.Driver == "postgresql" {
			dbCfg.Driver = "postgres"
		}
		dbCfg.Host = strings.TrimSpace(cfg.Database.Host)
		dbCfg.Port = cfg.Database.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Name)
		dbCfg.User = strings.TrimSpace(cfg.Database.User)
		dbCfg.Password = cfg.Database.Password
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
