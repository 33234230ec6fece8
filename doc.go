// Package netsched is the adaptive network-request scheduling layer for a
// mobile client. It decides which outbound calls to admit, when to batch or
// merge them, how hard to throttle under poor connectivity, and which future
// calls to warm speculatively:
//
//   - Request coalescing (merges concurrent identical in-flight requests)
//   - Network-condition-aware batching with a sliding per-minute rate window
//   - Priority admission control with per-tier and global concurrency ceilings
//   - A learned access-pattern predictor issuing background prefetches
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Explicit dependency injection: no package-level singletons, every
//     component is constructed once and passed by reference
//   - Safe concurrent use of a single instance of each component
//   - Deterministic timing: all timers run off an injected clock
//
// Typical usage:
//
//	batcher := netsched.NewBatchScheduler(transport, connectivity,
//	    netsched.WithBatchMaxSize(5),
//	    netsched.WithBaseRatePerMinute(60),
//	)
//	sched := netsched.NewScheduler(batcher,
//	    netsched.WithGlobalCeiling(8),
//	)
//	resp, err := sched.Get(ctx, "https://api.example.com/products", nil)
//
// The transport, connectivity detection and durable storage are external
// collaborators supplied at construction; see Transport, ConnectivityObserver
// and Store. Timeouts at this layer are advisory bookkeeping only; they evict
// tracking records without cancelling the underlying transport call.
package netsched
