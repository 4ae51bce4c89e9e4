// Package distlock provides a Redis-based distributed lock for
// coordinating event consumers across process instances, such as electing
// one instance to drain a queue or to run a compensation sweep.
//
//	locker := distlock.New(client)
//
//	lease, err := locker.Lock(ctx, "consumer:orders", 30*time.Second)
//	if errors.Is(err, distlock.ErrNotAcquired) {
//		return // another instance holds the lock
//	}
//	defer lease.Release(ctx)
//
// Each lease carries a random token; release and extension are
// compare-and-delete/compare-and-expire scripts, so an expired lease can
// never release a lock that another instance has since acquired.
//
// This is a single-node lock: it is as available as the Redis instance
// behind it and does not implement quorum acquisition across replicas.
package distlock
