package retention

import (
	"log/slog"
	"time"

	"mercator-hq/callisto/pkg/admission/ratelimit"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxIdle is the age past which a key's bucket state is pruned.
	// Zero disables pruning entirely.
	MaxIdle time.Duration

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "*/10 * * * *" (every 10 minutes). Empty disables the
	// scheduler.
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration: pruning
// disabled, preserving the bucket's unbounded per-key state.
func DefaultConfig() *Config {
	return &Config{}
}

// Pruner removes idle per-key bucket state.
type Pruner struct {
	bucket    *ratelimit.TokenBucket
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a retention pruner over the given bucket.
func NewPruner(bucket *ratelimit.TokenBucket, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		bucket: bucket,
		config: config,
		logger: slog.Default().With("component", "admission.retention"),
	}
	pruner.scheduler = NewScheduler(pruner)
	return pruner
}

// Prune removes bucket state for keys idle longer than MaxIdle and returns
// the number of keys removed. A zero MaxIdle makes Prune a no-op.
func (p *Pruner) Prune() int {
	if p.config.MaxIdle <= 0 {
		return 0
	}

	before := p.bucket.Len()
	pruned := p.bucket.PruneIdle(p.config.MaxIdle)
	if pruned > 0 {
		p.logger.Info("pruned idle bucket state",
			"pruned_keys", pruned,
			"remaining_keys", before-pruned,
			"max_idle", p.config.MaxIdle,
		)
	}
	return pruned
}

// Scheduler returns the cron scheduler driving this pruner.
func (p *Pruner) Scheduler() *Scheduler {
	return p.scheduler
}
