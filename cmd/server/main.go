package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/api"
	"github.com/serviqo/serviqo/internal/app"
	"github.com/serviqo/serviqo/internal/app/maintenance"
	iauth "github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/internal/database"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
	"github.com/serviqo/serviqo/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serviqo-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("startup")

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	accounts, err := store.NewAccountStore(db)
	if err != nil {
		return fmt.Errorf("initialise account store: %w", err)
	}
	invitationStore, err := store.NewInvitationStore(db)
	if err != nil {
		return fmt.Errorf("initialise invitation store: %w", err)
	}

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	invitationSvc, err := services.NewInvitationService(invitationStore, accounts, auditSvc,
		services.WithInvitationExpiry(cfg.Auth.Invitations.DefaultExpiry))
	if err != nil {
		return fmt.Errorf("initialise invitation service: %w", err)
	}

	registry := iauth.NewSessionRegistry(iauth.RegistryConfig{
		MaxAge:    cfg.Auth.Session.MaxAge,
		IdleLimit: cfg.Auth.Session.IdleLimit,
	})

	roleSvc, err := services.NewRoleService(accounts, auditSvc, registry)
	if err != nil {
		return fmt.Errorf("initialise role service: %w", err)
	}

	bootstrapSvc, err := services.NewBootstrapService(accounts, auditSvc, services.BootstrapConfig{
		Policy:   cfg.Auth.Bootstrap.Policy,
		Email:    cfg.Auth.Bootstrap.Email,
		Name:     cfg.Auth.Bootstrap.Name,
		Password: cfg.Auth.Bootstrap.Password,
	})
	if err != nil {
		return fmt.Errorf("initialise bootstrap service: %w", err)
	}
	if err := bootstrapSvc.Run(ctx); err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	signInSvc, err := iauth.NewSignInService(accounts, invitationSvc, auditSvc, registry, jwtService, iauth.SignInConfig{
		BootstrapPolicy: cfg.Auth.Bootstrap.Policy,
		BootstrapEmail:  cfg.Auth.Bootstrap.Email,
	})
	if err != nil {
		return fmt.Errorf("initialise signin service: %w", err)
	}

	cleaner := maintenance.NewCleaner(invitationSvc, registry, auditSvc,
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays),
		maintenance.WithInvitationSchedule(cfg.Maintenance.Schedule),
	)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(api.Dependencies{
		DB:          db,
		Accounts:    accounts,
		Roles:       roleSvc,
		Invitations: invitationSvc,
		Audit:       auditSvc,
		Bootstrap:   bootstrapSvc,
		SignIn:      signInSvc,
		JWT:         jwtService,
		Registry:    registry,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))

	return db, nil
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
