package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adt/adt/internal/config"
	"github.com/adt/adt/internal/domain/admission"
	"github.com/adt/adt/internal/domain/sequence"
	"github.com/adt/adt/internal/domain/ward"
	"github.com/adt/adt/internal/platform/auth"
	"github.com/adt/adt/internal/platform/db"
	"github.com/adt/adt/internal/platform/dischargesync"
	"github.com/adt/adt/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "adt-server",
		Short: "Inpatient admission and bed management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// seedCmd creates a small demo ward layout: two general ward rooms, a private
// room and an ICU room, with beds in each.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed demo rooms and beds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			txm := db.NewTxManager(pool, cfg.TxTimeout)
			wardSvc := ward.NewService(ward.NewRepo(pool), txm)

			rooms := []struct {
				room ward.Room
				beds int
			}{
				{ward.Room{RoomNumber: "101", RoomType: ward.RoomTypeWard, Floor: 1, Department: "general_medicine", MaxBeds: 4}, 4},
				{ward.Room{RoomNumber: "102", RoomType: ward.RoomTypeWard, Floor: 1, Department: "general_medicine", MaxBeds: 4}, 4},
				{ward.Room{RoomNumber: "201", RoomType: ward.RoomTypePrivate, Floor: 2, Department: "surgery", MaxBeds: 1}, 1},
				{ward.Room{RoomNumber: "301", RoomType: ward.RoomTypeICU, Floor: 3, Department: "critical_care", MaxBeds: 2}, 2},
			}

			for _, r := range rooms {
				room := r.room
				if err := wardSvc.CreateRoom(ctx, &room); err != nil {
					return fmt.Errorf("create room %s: %w", room.RoomNumber, err)
				}
				for i := 1; i <= r.beds; i++ {
					bed := ward.Bed{
						RoomID:    room.ID,
						BedNumber: fmt.Sprintf("%s-%c", room.RoomNumber, 'A'+i-1),
					}
					if room.RoomType == ward.RoomTypeICU {
						bed.BedType = "icu"
						bed.Features = []string{"ventilator", "telemetry"}
					}
					if err := wardSvc.CreateBed(ctx, &bed); err != nil {
						return fmt.Errorf("create bed %s: %w", bed.BedNumber, err)
					}
				}
				fmt.Printf("Seeded room %s with %d bed(s)\n", room.RoomNumber, r.beds)
			}
			return nil
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	txm := db.NewTxManager(pool, cfg.TxTimeout)

	// Repositories and services
	seqSvc := sequence.NewService(sequence.NewRepo(pool), txm)
	wardSvc := ward.NewService(ward.NewRepo(pool), txm)
	outboxSvc := dischargesync.NewService(dischargesync.NewRepo(pool))
	admissionSvc := admission.NewService(admission.NewRepo(pool), wardSvc, seqSvc, outboxSvc, txm)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	sequence.NewHandler(seqSvc).RegisterRoutes(apiV1)
	ward.NewHandler(wardSvc).RegisterRoutes(apiV1)
	admission.NewHandler(admissionSvc).RegisterRoutes(apiV1)
	dischargesync.NewHandler(outboxSvc).RegisterRoutes(apiV1)

	e.GET("/health", db.HealthHandler(pool))

	// Discharge outbox dispatcher
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	gateway := dischargesync.NewGateway(cfg.DischargeGatewayURL, cfg.DischargeGatewayToken, cfg.DischargeGatewayTimeout)
	dispatcher := dischargesync.NewDispatcher(
		dischargesync.NewRepo(pool), gateway, txm, logger,
		cfg.OutboxPollInterval, cfg.OutboxBatchSize, cfg.OutboxMaxAttempts,
	)
	go dispatcher.Run(dispatcherCtx)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
