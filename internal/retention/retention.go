// Package retention is the optional purge runner: on a cron schedule it
// removes completed relay records older than the configured age. Deletion
// is an operational concern; the relay pipeline itself never deletes.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"fedbridge/pkg/config"
	"fedbridge/pkg/logger"
	"fedbridge/pkg/models"
	"fedbridge/pkg/relay"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", cfg.Cron))
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	maxAge, err := time.ParseDuration(cfg.MaxAge)
	if err != nil || maxAge <= 0 {
		return nil, fmt.Errorf("invalid retention max_age %q", cfg.MaxAge)
	}

	logger.Log.Info("retention_enabled", zap.String("cron", cronExpr), zap.Duration("max_age", maxAge))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, maxAge)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, maxAge time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(maxAge); err != nil {
				logger.Log.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce purges completed relay records whose last update is older than
// maxAge. Records in new or error status are kept for inspection.
func RunOnce(maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	recs, err := relay.List()
	if err != nil {
		return err
	}
	purged := 0
	for _, rec := range recs {
		if rec.Status != models.StatusComplete || rec.UpdatedTS >= cutoff {
			continue
		}
		if err := relay.Remove(rec.ID); err != nil {
			logger.Log.Warn("retention_remove_failed", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		purged++
	}
	logger.Log.Info("retention_run_complete", zap.Int("purged", purged), zap.Int("scanned", len(recs)))
	return nil
}
