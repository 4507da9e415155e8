package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// AnonymizationJobConfig configures the IP anonymization job.
type AnonymizationJobConfig struct {
	Anonymizer Anonymizer   // Repository implementing batch anonymization
	Logger     *slog.Logger // Logger for job execution
	BatchSize  int          // Number of logs to process per batch
}

// AnonymizationJob coarsens IP addresses on audit entries older than
// the retention cutoff. Run it periodically from a scheduler.
type AnonymizationJob struct {
	config AnonymizationJobConfig
}

// NewAnonymizationJob creates a new IP anonymization job.
func NewAnonymizationJob(config AnonymizationJobConfig) *AnonymizationJob {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &AnonymizationJob{config: config}
}

// Run processes batches until no eligible entries remain or the
// context is cancelled. Returns the total number of entries updated.
func (j *AnonymizationJob) Run(ctx context.Context) (int, error) {
	if j.config.Anonymizer == nil {
		return 0, fmt.Errorf("anonymization job requires a repository")
	}

	cutoff := IPAnonymizationCutoff()
	j.config.Logger.InfoContext(ctx, "starting IP anonymization job",
		"cutoff", cutoff,
		"batch_size", j.config.BatchSize,
	)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := j.config.Anonymizer.AnonymizeIPs(ctx, cutoff, j.config.BatchSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("anonymization batch failed: %w", err)
		}
		if n < j.config.BatchSize {
			break
		}
	}

	j.config.Logger.InfoContext(ctx, "IP anonymization job finished", "anonymized", total)
	return total, nil
}
