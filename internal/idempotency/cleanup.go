package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry is how long a cached response stays replayable.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes records older than expiry and logs the result.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("idempotency cleanup failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.Info("expired idempotency records removed", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup runs CleanupOldKeys once immediately and then on
// every tick until stop is closed. Blocks; run it in a goroutine.
func RunPeriodicCleanup(repo Repository, interval, expiry time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := CleanupOldKeys(repo, expiry); err != nil {
		slog.Error("initial idempotency cleanup failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := CleanupOldKeys(repo, expiry); err != nil {
				slog.Error("periodic idempotency cleanup failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}
