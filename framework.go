package medley

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/ygrebnov/medley/metrics"
	"github.com/ygrebnov/medley/scheduler"
)

// Framework is the top-level handle: the explicitly-owned replacement for
// what used to be a set of global mutable registries. Every dispatch
// method threads through its own operation registry, scheduler and source
// registry rather than reaching for package-level state.
//
// A Framework is inert until its Scheduler() is driven by the caller, e.g.
// `go fw.Scheduler().Run(ctx)`.
type Framework struct {
	cfg      config
	logger   logr.Logger
	metrics  metrics.EngineMetrics
	registry SourceRegistry
	keyset   KeysetFilter
	sched    *scheduler.Scheduler
	ops      *operationRegistry
	cache    *sourceCache
}

// Scheduler returns the cooperative scheduler backing this Framework.
func (fw *Framework) Scheduler() *scheduler.Scheduler { return fw.sched }

// newOperation allocates a fresh operation id and records it against the
// engine's operations-started instrument. Every user-facing dispatch method
// goes through this instead of calling fw.ops.NewID() directly; internal
// sub-operations (a federator's per-provider sub-search, a full-resolution
// auxiliary resolve) are not user-facing operations and allocate their ids
// directly.
func (fw *Framework) newOperation() OperationID {
	id := fw.ops.NewID()
	fw.metrics.OperationsStarted.Add(1)
	return id
}

// Cancel requests cancellation of id. Safe to call from any goroutine, any
// number of times.
func (fw *Framework) Cancel(id OperationID) { fw.ops.Cancel(id) }

// keysetFilter resolves the KeysetFilter to consult: the explicit one
// passed to WithKeysetFilter, or the registry itself if it happens to
// implement the interface.
func (fw *Framework) keysetFilter() (KeysetFilter, bool) {
	if fw.keyset != nil {
		return fw.keyset, true
	}
	kf, ok := fw.registry.(KeysetFilter)
	return kf, ok
}

// singleShot wraps a single-callback verb's provider callback (resolve,
// store, remove; media-from-uri builds its own) with the common completed/finished
// bookkeeping: these verbs have no intermediate frames, so the one
// invocation IS the terminal.
func (fw *Framework) singleShot(opID OperationID, provider Provider, cb Callback) Callback {
	return func(f Frame) {
		f.OperationID = opID
		if f.Item != nil {
			f.Item = stampSource(f.Item, provider.ID())
		}
		fw.ops.MarkCompleted(opID)
		if fw.ops.IsCancelled(opID) {
			f.Item = nil
			f.Err = ErrOperationCancelled
		}
		cb(f)
		fw.ops.MarkFinished(opID)
	}
}

// downstream builds the stage after the relay: the user callback directly,
// or the full-resolution engine when FlagFull is set. It returns whether
// the relay itself owns finishing the operation (chained == false) or
// defers that to the returned stage.
func (fw *Framework) downstream(opID OperationID, provider Provider, keyset []string, flags Flags, cb Callback) (next Callback, chained bool) {
	if flags.Has(FlagFull) {
		return newFullResolution(fw, opID, provider, cb, keyset, flags, false), true
	}
	return cb, false
}

// Browse streams the children of containerID from provider.
func (fw *Framework) Browse(ctx context.Context, provider Provider, containerID string, skip uint64, count int64, keyset []string, flags Flags, cb Callback) (OperationID, error) {
	browser, ok := provider.(Browser)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support browse", ErrBrowseFailed), 0, provider.ID())
	}

	opID := fw.newOperation()
	next, chained := fw.downstream(opID, provider, keyset, flags, cb)

	var relayCB Callback
	var split *autoSplitControl
	requestCount := count
	if autoSplitActive(fw.cfg.AutoSplitThreshold, count) {
		split = newAutoSplitControl(fw.cfg.AutoSplitThreshold, count, skip, func(newSkip uint64, newCount int64) {
			fw.metrics.AutoSplitChunksIssued.Add(1)
			postHighOrCall(fw, func(context.Context) {
				browser.Browse(ctx, &BrowseRequest{
					BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
					ContainerID: containerID,
					Skip:        newSkip,
					Count:       newCount,
				})
			})
		})
		requestCount = split.chunkRequested
	}
	relayCB = newRelay(fw, opID, provider, flags.Has(FlagIdleRelay), chained, split, next)

	browser.Browse(ctx, &BrowseRequest{
		BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
		ContainerID: containerID,
		Skip:        skip,
		Count:       requestCount,
	})
	return opID, nil
}

// Search issues a free-text search against a single provider. For fan-out
// across multiple providers use MultiSearch.
func (fw *Framework) Search(ctx context.Context, provider Provider, text string, skip uint64, count int64, keyset []string, flags Flags, cb Callback) (OperationID, error) {
	searcher, ok := provider.(Searcher)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support search", ErrSearchFailed), 0, provider.ID())
	}

	opID := fw.newOperation()
	next, chained := fw.downstream(opID, provider, keyset, flags, cb)

	var relayCB Callback
	var split *autoSplitControl
	requestCount := count
	if autoSplitActive(fw.cfg.AutoSplitThreshold, count) {
		split = newAutoSplitControl(fw.cfg.AutoSplitThreshold, count, skip, func(newSkip uint64, newCount int64) {
			fw.metrics.AutoSplitChunksIssued.Add(1)
			postHighOrCall(fw, func(context.Context) {
				searcher.Search(ctx, &SearchRequest{
					BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
					Text:        text,
					Skip:        newSkip,
					Count:       newCount,
				})
			})
		})
		requestCount = split.chunkRequested
	}
	relayCB = newRelay(fw, opID, provider, flags.Has(FlagIdleRelay), chained, split, next)

	searcher.Search(ctx, &SearchRequest{
		BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
		Text:        text,
		Skip:        skip,
		Count:       requestCount,
	})
	return opID, nil
}

// Query runs a provider-specific query against a single provider.
func (fw *Framework) Query(ctx context.Context, provider Provider, query string, skip uint64, count int64, keyset []string, flags Flags, cb Callback) (OperationID, error) {
	querier, ok := provider.(Querier)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support query", ErrQueryFailed), 0, provider.ID())
	}

	opID := fw.newOperation()
	next, chained := fw.downstream(opID, provider, keyset, flags, cb)

	var relayCB Callback
	var split *autoSplitControl
	requestCount := count
	if autoSplitActive(fw.cfg.AutoSplitThreshold, count) {
		split = newAutoSplitControl(fw.cfg.AutoSplitThreshold, count, skip, func(newSkip uint64, newCount int64) {
			fw.metrics.AutoSplitChunksIssued.Add(1)
			postHighOrCall(fw, func(context.Context) {
				querier.Query(ctx, &QueryRequest{
					BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
					Query:       query,
					Skip:        newSkip,
					Count:       newCount,
				})
			})
		})
		requestCount = split.chunkRequested
	}
	relayCB = newRelay(fw, opID, provider, flags.Has(FlagIdleRelay), chained, split, next)

	querier.Query(ctx, &QueryRequest{
		BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: relayCB},
		Query:       query,
		Skip:        skip,
		Count:       requestCount,
	})
	return opID, nil
}

// Resolve asks provider to fill in keyset's still-missing keys on item.
// Single-callback contract.
func (fw *Framework) Resolve(ctx context.Context, provider Provider, item any, keyset []string, flags Flags, cb Callback) (OperationID, error) {
	resolver, ok := provider.(Resolver)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support resolve", ErrResolveFailed), 0, provider.ID())
	}
	opID := fw.newOperation()
	resolver.Resolve(ctx, &ResolveRequest{
		BaseRequest: BaseRequest{OperationID: opID, Keyset: keyset, Flags: flags, Callback: fw.singleShot(opID, provider, cb)},
		Item:        item,
	})
	return opID, nil
}

// MediaFromURI probes every CapMediaFromURI provider and hands off to the
// first that claims uri.
func (fw *Framework) MediaFromURI(ctx context.Context, uri string, keyset []string, flags Flags, cb Callback) OperationID {
	return fw.mediaFromURI(ctx, uri, keyset, flags, cb)
}

// Store persists item under containerID via provider.
func (fw *Framework) Store(ctx context.Context, provider Provider, containerID string, item any, flags Flags, cb Callback) (OperationID, error) {
	storer, ok := provider.(Storer)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support store", ErrStoreFailed), 0, provider.ID())
	}
	opID := fw.newOperation()
	storer.Store(ctx, &StoreRequest{
		BaseRequest: BaseRequest{OperationID: opID, Flags: flags, Callback: fw.singleShot(opID, provider, cb)},
		ContainerID: containerID,
		Item:        item,
	})
	return opID, nil
}

// Remove deletes itemID via provider.
func (fw *Framework) Remove(ctx context.Context, provider Provider, itemID string, flags Flags, cb Callback) (OperationID, error) {
	remover, ok := provider.(Remover)
	if !ok {
		return 0, newOperationError(fmt.Errorf("%w: provider does not support remove", ErrRemoveFailed), 0, provider.ID())
	}
	opID := fw.newOperation()
	remover.Remove(ctx, &RemoveRequest{
		BaseRequest: BaseRequest{OperationID: opID, Flags: flags, Callback: fw.singleShot(opID, provider, cb)},
		ItemID:      itemID,
	})
	return opID, nil
}

// NotifyChange subscribes to provider's content-changed events. Cancel(id)
// stops the subscription.
func (fw *Framework) NotifyChange(ctx context.Context, provider Provider, cb ChangeCallback) (OperationID, error) {
	notifier, ok := provider.(ChangeNotifier)
	if !ok {
		return 0, newOperationError(fmt.Errorf("provider does not support notify-change"), 0, provider.ID())
	}

	opID := fw.newOperation()
	subCtx, cancel := context.WithCancel(ctx)
	fw.ops.SetCancelHook(opID, cancel)

	notifier.NotifyChange(subCtx, &NotifyChangeRequest{
		OperationID: opID,
		Callback: func(ev ChangeEvent) {
			if fw.ops.IsCancelled(opID) {
				return
			}
			for _, it := range ev.Items {
				stampSource(it, provider.ID())
			}
			cb(ev)
		},
	})
	return opID, nil
}

// MultiSearch fans text across sources (every search-capable registered
// provider when sources is nil), allocating count across them and chaining
// follow-up rounds against providers that exhaust their quota exactly.
func (fw *Framework) MultiSearch(sources []Provider, text string, keyset []string, count int64, flags Flags, cb Callback) OperationID {
	return fw.multiSearch(sources, text, keyset, count, flags, cb)
}
