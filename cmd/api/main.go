package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/clinic-service/internal/api/http"
	"github.com/spec-kit/clinic-service/internal/api/http/handlers"
	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/config"
	"github.com/spec-kit/clinic-service/internal/events"
	"github.com/spec-kit/clinic-service/internal/mail"
	"github.com/spec-kit/clinic-service/internal/observability"
	"github.com/spec-kit/clinic-service/internal/otp"
	"github.com/spec-kit/clinic-service/internal/persistence"
	"github.com/spec-kit/clinic-service/internal/repository"
	"github.com/spec-kit/clinic-service/internal/service"
	"github.com/spec-kit/clinic-service/internal/worker"
)

const (
	shutdownTimeout  = 10 * time.Second
	otpSweepInterval = time.Minute
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-service",
		Short: "Clinic accounts, sessions and password reset API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger, cfg.App)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := context.Background()
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			count, err := persistence.RunMigrations(ctx, pg.PoolHandle(), dir, logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.Flags().String("dir", persistence.DefaultMigrationsDir, "Path to migrations directory")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required to serve")
	}

	if cfg.Postgres.RunMigrations {
		if _, err := persistence.RunMigrations(ctx, pool, persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	healthDeps := map[string]handlers.Pinger{"postgres": pg}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, mail.New(cfg.Mail, logger), logger)

	var backend otp.Backend = otp.NewMemoryBackend()
	if cfg.OTP.Backend == config.OTPBackendRedis {
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		backend = otp.NewRedisBackend(rdb.Universal(), "otp")
		healthDeps["redis"] = rdb
	}
	challenges := otp.NewChallenges(backend, notifications, otp.Options{
		TTL:         cfg.OTP.TTL(),
		Cooldown:    cfg.OTP.Cooldown(),
		MaxAttempts: cfg.OTP.MaxAttempts,
	})

	tokens, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		logger.Fatal("failed to init token issuer", zap.Error(err))
	}

	accountRepo := repository.NewAccountRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Accounts:   accountRepo,
		Tokens:     tokens,
		OTP:        challenges,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	clinicService := service.NewClinicService(service.ClinicDependencies{
		Accounts:    accountRepo,
		Assignments: assignmentRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	if _, err := authService.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Error("bootstrap admin not created", zap.Error(err))
	}

	workersDone := worker.Start(ctx, worker.Config{
		Notifications: notifications,
		OTP:           challenges,
		SweepInterval: otpSweepInterval,
		Logger:        logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Auth:           handlers.NewAuthHandler(authService),
		PasswordReset:  handlers.NewPasswordResetHandler(authService),
		Clinic:         handlers.NewClinicHandler(clinicService, authService),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewAccessDecision(tokens), accountRepo),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("fiber listen", zap.Error(err))
			return err
		}
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-workersDone
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
