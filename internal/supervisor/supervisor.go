// Package supervisor restarts a long-running worker loop with capped
// exponential backoff when it returns an error, mirroring
// attach_issues_aggregator/attach_cluster_enricher's dedicated-thread +
// backoff pattern (translated from a Python daemon thread to a goroutine).
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second
)

// Run calls work repeatedly until ctx is cancelled. Each time work returns
// a non-nil error (other than context cancellation), it's logged and
// restarted after a backoff that doubles from 1s up to a 10s cap,
// resetting to 1s after any run that returns (cleanly or not) at least 10s
// (the backoff cap) after it started.
func Run(ctx context.Context, name string, logger zerolog.Logger, work func(ctx context.Context) error) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		startedAt := time.Now()
		err := work(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			logger.Warn().Str("worker", name).Msg("worker exited without error; restarting")
		} else {
			logger.Error().Str("worker", name).Err(err).Msg("worker crashed; restarting")
		}

		if time.Since(startedAt) >= maxBackoff {
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
