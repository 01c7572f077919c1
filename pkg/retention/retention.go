package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/metrics"
	"groupchat/pkg/store"
)

var storedCfg *config.RetentionConfig

// SetConfig stores the retention config so admin triggers and tests can
// invoke runs on-demand.
func SetConfig(rc config.RetentionConfig) {
	storedCfg = &rc
}

// RunImmediate triggers a single retention run using the stored config.
func RunImmediate() (int, error) {
	if storedCfg == nil {
		return 0, fmt.Errorf("no retention config registered")
	}
	return runOnce(context.Background(), *storedCfg)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, rc config.RetentionConfig) (context.CancelFunc, error) {
	if !rc.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if rc.Period.Duration() <= 0 {
		return nil, fmt.Errorf("retention enabled but period is not set")
	}

	cronExpr := rc.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", rc.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", rc.Cron)
	}

	SetConfig(rc)
	logger.Info("retention_enabled", "cron", cronExpr, "period", rc.Period.Duration().String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, rc, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, rc config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := runOnce(ctx, rc); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce purges messages older than the configured period.
func runOnce(ctx context.Context, rc config.RetentionConfig) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-rc.Period.Duration()).UnixNano()
	batch := rc.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	start := time.Now()
	n, err := store.PurgeOlderThan(cutoff, batch, rc.DryRun)
	if err != nil {
		return n, err
	}
	if !rc.DryRun {
		metrics.AddPurged(n)
	}
	logger.Info("retention_run_complete", "purged", n, "dry_run", rc.DryRun, "took", time.Since(start).String())
	return n, nil
}
