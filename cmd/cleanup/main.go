package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/logging"
)

const jobTimeout = 10 * time.Minute

func main() {
	var (
		configPath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete access grants that expired longer ago than access.grant_retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, dryRun)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a config file (defaults to ./config.yaml when present)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report how many grants would be deleted without deleting them")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool) error {
	cfg, err := config.LoadFrom(viper.New(), configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "referral-cleanup")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("access grant cleanup job starting",
		zap.Duration("retention", cfg.Access.GrantRetention),
		zap.Bool("dry_run", dryRun),
	)

	conn, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	cleanupService := access.NewCleanupService(conn, cfg.Access.GrantRetention, logger)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := cleanupService.CountExpiredGrants(ctx)
	if err != nil {
		return err
	}
	logger.Info("expired access grants eligible for deletion", zap.Int("count", count))

	if count == 0 || dryRun {
		logger.Info("no grants deleted")
		return nil
	}

	deleted, err := cleanupService.CleanupExpiredGrants(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	logger.Info("access grant cleanup job finished", zap.Int64("deleted", deleted))
	return nil
}
