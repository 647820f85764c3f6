// Package main is the entry point for the portfolio analytics server.
// It serves holdings and analytics over HTTP and runs the background jobs
// that keep cached prices warm and ship database backups to R2.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/clientdata"
	"github.com/aristath/portfolio-analytics/internal/clients/yahoo"
	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/modules/analytics"
	"github.com/aristath/portfolio-analytics/internal/modules/holdings"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
	"github.com/aristath/portfolio-analytics/internal/server"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

const (
	clientDataCleanupSchedule = "0 15 4 * * *"
	walCheckpointSchedule     = "0 45 * * * *"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting portfolio analytics")

	holdingsDB, err := openDatabase(cfg, "holdings", database.ProfileStandard)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open holdings database")
	}
	defer holdingsDB.Close()

	cacheDB, err := openDatabase(cfg, "cache", database.ProfileCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	databases := map[string]*database.DB{
		"holdings": holdingsDB,
		"cache":    cacheDB,
	}

	clientDataRepo := clientdata.NewRepository(cacheDB.Conn())
	prices := yahoo.NewClient(cfg.Prices.BaseURL, clientDataRepo, log)
	holdingsRepo := holdings.NewRepository(holdingsDB.Conn(), log)
	analyticsService := analytics.NewService(holdingsRepo, prices, analytics.NewConfig(cfg.Analytics), log)

	sched := scheduler.New(log)
	mustAddJob(log, sched, cfg.Prices.RefreshSchedule,
		scheduler.NewPriceRefreshJob(holdingsRepo, prices, cfg.Analytics.LookbackDays, log))
	mustAddJob(log, sched, clientDataCleanupSchedule,
		clientdata.NewCleanupJob(clientDataRepo, cacheDB, log))
	mustAddJob(log, sched, walCheckpointSchedule,
		scheduler.NewWALCheckpointJob(databases, log))

	// Only the holdings database is worth backing up; the cache rebuilds itself.
	var backups server.BackupLister
	if cfg.Backup.Enabled() {
		r2, err := reliability.NewR2Client(
			cfg.Backup.AccountID,
			cfg.Backup.AccessKeyID,
			cfg.Backup.SecretAccessKey,
			cfg.Backup.BucketName,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 client")
		}
		backupService := reliability.NewBackupService(r2, map[string]*database.DB{"holdings": holdingsDB}, cfg.DataDir, log)
		mustAddJob(log, sched, cfg.Backup.Schedule,
			reliability.NewBackupJob(backupService, cfg.Backup.RetentionDays, log))
		backups = backupService
		log.Info().Str("bucket", r2.Bucket()).Msg("R2 backups enabled")
	} else {
		log.Info().Msg("R2 credentials not configured, backups disabled")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Databases: databases,
		Holdings:  holdingsRepo,
		Analytics: analyticsService,
		Jobs:      sched,
		Backups:   backups,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Waits for running jobs so a backup is never cut off mid-upload.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openDatabase(cfg *config.Config, name string, profile database.DatabaseProfile) (*database.DB, error) {
	return database.Open(database.Config{
		Path:    cfg.DatabasePath(name),
		Profile: profile,
		Name:    name,
		Driver:  cfg.SQLiteDriver,
	})
}

func mustAddJob(log zerolog.Logger, sched *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}
