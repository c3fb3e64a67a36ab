// Package medley federates heterogeneous media content providers behind a
// uniform asynchronous query surface: browse a container, free-text search,
// provider-specific query, resolve metadata for an item, probe a URI for the
// provider that owns it, store, remove, and watch for changes.
//
// Medley dispatches one logical user request to one or more providers,
// streams results back as they arrive through a mandatory relay pipeline
// (source-stamping, cancellation gating, ordering), optionally enriches each
// item by chaining resolve requests against auxiliary metadata providers
// (full resolution), optionally shards a large count request into sequential
// chunks against one provider (auto-split), and optionally fans a search out
// across several providers with per-provider quotas and follow-up chaining
// (multi-source federation).
//
// Construction
//
//	fw := medley.New(medley.WithRegistry(reg))
//	go fw.Scheduler().Run(ctx)
//
// fw is not started automatically: the caller drives the cooperative
// scheduler returned by fw.Scheduler() the same way a run loop drives idle
// sources — see the scheduler package. Every Framework dispatch method
// invokes the target provider directly and returns the allocated operation
// id immediately; the scheduler only comes into play for the suspension
// points the pipeline itself introduces (an idle-relay hop, an auto-split
// chunk boundary, a federated cancel's terminal frame, a no-sources error).
//
// Concurrency
//
// The engine assumes a single-threaded cooperative scheduler: dispatch,
// relay, full-resolution and federation bookkeeping all execute as tasks on
// one scheduler goroutine. Providers are opaque and may do their own I/O on
// other goroutines, but must hand results back in through
// Scheduler.PostDefault/PostHigh rather than invoking the callback directly
// from a foreign goroutine.
package medley
