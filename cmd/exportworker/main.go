// Command exportworker drains the export job queue and processes one job
// per dispatch. At-most-once dispatch per job is the queue's guarantee;
// the worker itself holds no locks.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Arclight-Systems/casetrail/pkg/audit"
	"github.com/Arclight-Systems/casetrail/pkg/config"
	"github.com/Arclight-Systems/casetrail/pkg/export"
	"github.com/Arclight-Systems/casetrail/pkg/identity"
	"github.com/Arclight-Systems/casetrail/pkg/observability"
	"github.com/Arclight-Systems/casetrail/pkg/redaction"
	"github.com/Arclight-Systems/casetrail/pkg/scheduler"
	"github.com/Arclight-Systems/casetrail/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	metrics, err := observability.New(ctx, &observability.Config{
		ServiceName:    "casetrail-exportworker",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	trail := audit.NewSQLStore(db)
	builder := export.NewRowBuilder(identity.NewSQLDirectory(db), redaction.NewEngine())
	queue := scheduler.NewRedisScheduler(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.QueueName)
	defer func() { _ = queue.Close() }()

	manager := export.NewManager(
		export.NewSQLJobStore(db), trail, trail, builder, store, queue,
		export.Limits{
			RateLimitPerHour: cfg.ExportRateLimitPerHour,
			MaxRows:          cfg.ExportMaxRows,
			DownloadTTL:      time.Duration(cfg.DownloadTTLMinutes) * time.Minute,
		},
		metrics,
	)

	logger.Info("export worker started", "queue", cfg.QueueName, "storage", string(cfg.Storage.Backend))

	for {
		task, err := queue.Next(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, scheduler.ErrNoTask) {
				continue
			}
			if ctx.Err() != nil {
				logger.Info("export worker stopping")
				return nil
			}
			logger.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task.JobType != scheduler.JobTypeAuditExport {
			logger.Warn("skipping unknown job type", "job_type", task.JobType)
			continue
		}
		jobID, _ := task.Payload["job_id"].(string)
		if jobID == "" {
			logger.Warn("task carries no job_id", "org_id", task.OrgID)
			continue
		}
		if err := manager.Process(ctx, jobID); err != nil {
			logger.Error("export job failed", "job_id", jobID, "error", err)
		}
	}
}

// openDatabase picks the driver from the URL scheme: postgres:// uses
// lib/pq, anything else is treated as a SQLite path for embedded
// deployments.
func openDatabase(url string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver = "postgres"
	}
	return sql.Open(driver, url)
}

func logLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
