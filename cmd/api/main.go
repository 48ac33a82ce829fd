package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/audit"
	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/dispatch"
	"github.com/WailSalutem-Health-Care/referral-service/internal/hospital"
	apphttp "github.com/WailSalutem-Health-Care/referral-service/internal/http"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/referral-service/internal/patient"
	"github.com/WailSalutem-Health-Care/referral-service/internal/plugindata"
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
	"github.com/WailSalutem-Health-Care/referral-service/internal/telemetry"
	"github.com/WailSalutem-Health-Care/referral-service/internal/tracking"
)

const (
	jwksRefreshInterval = 15 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "referral-service",
		Short: "Hospital referral and patient identity API",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (defaults to ./config.yaml when present)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServer(cfg, logger)
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := db.Connect(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			count, err := db.NewMigrator(conn, logger).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations complete", zap.Int("applied", count))
			return nil
		},
	}
}

func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(viper.New(), configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.InitProvider(ctx, telemetry.FromConfig(cfg), logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			provider.Shutdown(shutdownCtx)
		}()
	}

	// Instruments bind to the no-op global provider when telemetry is disabled.
	metrics, err := telemetry.InitMetrics(logger)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	conn, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	tx := db.NewTxRunner(conn)

	perms, err := auth.LoadPermissions(cfg.Auth.PermissionsFile)
	if err != nil {
		return err
	}

	var verifier auth.TokenVerifier
	if !cfg.IsDev() {
		jwks, err := auth.NewJWKS(cfg.Auth.JWKSURL, jwksRefreshInterval, logger)
		if err != nil {
			return fmt.Errorf("load JWKS: %w", err)
		}
		defer jwks.Close()
		verifier = auth.NewVerifier(auth.Config{Issuer: cfg.Auth.Issuer, Audience: cfg.Auth.Audience}, jwks)
	}

	var publisher messaging.PublisherInterface
	if cfg.RabbitMQ.Enabled {
		p, err := messaging.NewPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, events will not be published", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
		}
	}

	var viewCache patient.ViewCache = patient.NopViewCache{}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, patient views will not be cached", zap.Error(err))
		} else {
			viewCache = patient.NewRedisViewCache(client, cfg.Redis.ViewTTL, logger)
		}
	}

	// Access control
	accessRepo := access.NewRepository(conn)
	gate := access.NewGate(accessRepo, cfg.Access.CrossHospitalReads, metrics, logger)
	recorder := audit.NewRecorder(conn, logger)

	// Domain services
	hospitalRepo := hospital.NewRepository(conn)
	hospitalService := hospital.NewService(hospitalRepo)

	patientService := patient.NewService(patient.NewRepository(conn), tx, gate, viewCache, recorder, publisher, logger)

	referralRepo := referral.NewRepository(conn)
	coordinator := dispatch.NewCoordinator(dispatch.NewRepository(conn), referralRepo, tx, gate, publisher, metrics, cfg.Dispatch.ETAOffset, logger)
	referralService := referral.NewService(referralRepo, tx, hospitalRepo, gate, coordinator, publisher, metrics, logger)

	pluginService := plugindata.NewService(plugindata.NewRepository(conn), plugindata.DefaultRegistry(), gate, recorder, publisher, logger)

	if cfg.MQTT.Enabled {
		subscriber, err := tracking.NewSubscriber(cfg.MQTT, coordinator, logger)
		if err != nil {
			return err
		}
		if err := subscriber.Start(); err != nil {
			logger.Warn("MQTT unavailable, ambulance locations will only be updated over HTTP", zap.Error(err))
		}
		defer subscriber.Close()
	}

	router := apphttp.SetupRouter(apphttp.Handlers{
		Hospitals:  hospital.NewHandler(hospitalService, logger),
		Patients:   patient.NewHandler(patientService, logger),
		Access:     access.NewHandler(access.NewService(accessRepo, gate), logger),
		AccessLog:  audit.NewHandler(audit.NewService(recorder, gate), logger),
		Referrals:  referral.NewHandler(referralService, logger),
		Dispatch:   dispatch.NewHandler(coordinator, logger),
		PluginData: plugindata.NewHandler(pluginService, logger),
	}, apphttp.Options{
		Authenticate: apphttp.Authenticator(cfg.Auth, verifier, metrics, logger),
		Permissions:  perms,
		Metrics:      metrics,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           apphttp.CORSMiddleware(cfg.Server.AllowedOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr), zap.String("auth_mode", cfg.Auth.Mode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
