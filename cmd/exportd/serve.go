package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/svnlab/easy-file/db"
	"github.com/svnlab/easy-file/errors"
	"github.com/svnlab/easy-file/export"
	"github.com/svnlab/easy-file/logger"
	"github.com/svnlab/easy-file/notify"
	"github.com/svnlab/easy-file/trigger"
	"github.com/svnlab/easy-file/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trigger consumer and compensation scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		log := logger.Logger

		database, err := db.Open(cfg.Database.Path, log)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := db.Migrate(database, log); err != nil {
			return err
		}

		// Fail fast when the broker is unreachable rather than letting
		// the consumer retry forever at startup.
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Trigger.RedisAddr})
		defer redisClient.Close()
		pingCtx, cancelPing := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancelPing()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return errors.Wrapf(err, "redis unreachable at %s", cfg.Trigger.RedisAddr)
		}

		redisOpt := asynq.RedisClientOpt{Addr: cfg.Trigger.RedisAddr}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		registry := export.NewRegistry()
		registerJobs(registry)

		store := export.NewStore(database)
		triggerStore := trigger.NewStore(database)
		dispatcher := trigger.NewDispatcher(asynqClient, triggerStore, cfg.Trigger.Queue, log)

		uploader := upload.NewLocalUploader(cfg.Upload.Root, cfg.Upload.BaseURL, log)
		pipeline := export.NewPipeline(export.PipelineConfig{
			WorkDir:        cfg.Export.WorkDir,
			EnableCompress: cfg.Export.EnableCompress,
			MaxAttempts:    cfg.Export.MaxRetryAttempts,
			RetryWait:      time.Duration(cfg.Export.RetryWaitSeconds) * time.Second,
		}, uploader, log)

		coordinator := export.NewCoordinator(
			store, registry,
			export.NewCacheMatcher(log),
			pipeline,
			export.NewHookChain(log),
			notify.NewLogNotifier(log),
			log,
		)

		limiter := export.NewRateLimiter(cfg.Export.RatePerSecond, cfg.Export.RateBurst)
		service := export.NewService(store, registry, limiter, dispatcher, cfg.Export.AppID, log)
		if err := service.RegisterTasks(); err != nil {
			return err
		}

		consumer := trigger.NewConsumer(
			redisOpt, cfg.Trigger.Queue, cfg.Trigger.Concurrency,
			triggerStore, coordinator, cfg.Trigger.MaxTriggerCount, log,
		)
		consumer.Start()
		defer consumer.Shutdown()

		scanner := trigger.NewScanner(triggerStore, dispatcher, trigger.ScannerConfig{
			Interval:        time.Duration(cfg.Trigger.ScanIntervalSecs) * time.Second,
			WaitingTimeout:  time.Duration(cfg.Trigger.WaitingTimeoutSecs) * time.Second,
			LookBack:        time.Duration(cfg.Trigger.LookBackSecs) * time.Second,
			MaxTriggerCount: cfg.Trigger.MaxTriggerCount,
			BatchSize:       cfg.Trigger.CompensateBatchSize,
		}, log)
		scanner.Start(cmd.Context())
		defer scanner.Stop()

		log.Infow("exportd started",
			"config", cfg.String(),
			"task_codes", registry.Codes(),
		)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Infow("exportd shutting down")
		return nil
	},
}

// registerJobs installs the export job specs this daemon serves. The
// sample job echoes the request params as CSV; real deployments replace
// this with their own specs.
func registerJobs(registry *export.Registry) {
	registry.Register(&export.JobSpec{
		Code:        "sample-export",
		Description: "sample parameter dump",
		FileSuffix:  ".csv",
		EnableCache: true,
		Export: func(ctx context.Context, w export.ProgressWriter, params map[string]any) error {
			if _, err := w.Write([]byte("key,value\n")); err != nil {
				return err
			}
			for k, v := range params {
				if _, err := w.Write([]byte(k + "," + toCSVValue(v) + "\n")); err != nil {
					return err
				}
			}
			w.ReportProgress(90)
			return nil
		},
	})
}

func toCSVValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
