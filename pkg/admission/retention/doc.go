// Package retention prunes idle token bucket state on an explicit schedule.
//
// The token bucket never evicts per-key state on its own: under unbounded key
// cardinality its map grows without limit. That behavior is deliberate and
// preserved by default. Operators who accept the trade-off (a pruned key's
// next request starts a fresh, full bucket) can bound the map by enabling
// this package:
//
//	pruner := retention.NewPruner(limiter.Bucket(), &retention.Config{
//	    MaxIdle:       time.Hour,
//	    PruneSchedule: "*/10 * * * *", // every 10 minutes
//	})
//	if err := pruner.Scheduler().Start(ctx); err != nil {
//	    return err
//	}
//
// With an empty PruneSchedule the scheduler does nothing, which is the
// default configuration.
package retention
