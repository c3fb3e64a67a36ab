package medley

import (
	"context"
	"errors"
)

// doneBlock tracks one item's in-flight enrichment: the item as it arrived
// from the primary provider, plus every auxiliary resolve still outstanding
// for it.
type doneBlock struct {
	control   *fullResolutionControl
	item      any
	remaining int64
	err       error
	pending   map[string]OperationID // auxiliary provider id -> its resolve op id
	cancelled bool
}

// fullResolutionControl is the per-operation state for the engine that sits
// between the relay and the user callback when FlagFull is set. It owns the
// emission reorder buffer and knows whether it is the chain's last stage.
type fullResolutionControl struct {
	opID    OperationID
	userCB  Callback
	keyset  []string
	flags   Flags
	chained bool
	order   emissionReorder
}

// newFullResolution returns the Callback the relay should treat as its next
// hop when full-resolution is enabled.
func newFullResolution(fw *Framework, opID OperationID, source Provider, userCB Callback, keyset []string, flags Flags, chained bool) Callback {
	c := &fullResolutionControl{opID: opID, userCB: userCB, keyset: keyset, flags: flags, chained: chained}

	return func(f Frame) {
		c.order.learn(f.Remaining)
		db := &doneBlock{control: c, item: f.Item, remaining: f.Remaining, err: f.Err, pending: make(map[string]OperationID)}

		if f.Err != nil || f.Item == nil {
			c.settle(fw, db)
			return
		}

		wantKeys := keyset
		filter, hasFilter := fw.keysetFilter()
		if flags.Has(FlagFull) && hasFilter {
			wantKeys = filter.ExpandOperationKeys(source, f.Item, keyset)
		}

		missing := missingKeysFor(f.Item, wantKeys)
		if flags.Has(FlagFastOnly) && hasFilter {
			missing = filter.FilterSlow(missing)
		}
		if len(missing) == 0 {
			c.settle(fw, db)
			return
		}

		aux, cached := fw.cache.get(source, missing)
		if !cached {
			aux = fw.registry.AdditionalSourcesFor(source, f.Item, missing)
			fw.cache.set(source, missing, aux)
		}
		dispatched := 0
		for _, p := range aux {
			resolver, ok := p.(Resolver)
			if !ok {
				continue
			}
			dispatched++
			resOpID := fw.ops.NewID()
			db.pending[p.ID()] = resOpID
			fw.metrics.ResolvesInFlight.Add(1)
			providerID := p.ID()
			req := &ResolveRequest{
				BaseRequest: BaseRequest{
					OperationID: resOpID,
					Keyset:      wantKeys,
					Flags:       flags,
					Callback: func(rf Frame) {
						fw.onResolveFrame(c, db, providerID, resOpID, rf)
					},
				},
				Item: f.Item,
			}
			resolver.Resolve(context.Background(), req)
		}

		// A resolver that completes synchronously has already drained
		// db.pending and called settle from onResolveFrame; only settle
		// here when no capable resolver was dispatched at all, so a
		// synchronous completion is never settled twice.
		if dispatched == 0 {
			c.settle(fw, db)
		}
	}
}

// onResolveFrame is the completion callback for one auxiliary resolve.
// Resolve is a single-callback verb, so one invocation always removes
// providerID from the pending map.
func (fw *Framework) onResolveFrame(c *fullResolutionControl, db *doneBlock, providerID string, resOpID OperationID, rf Frame) {
	if rf.Err != nil {
		fw.logger.V(1).Info("resolve failed, enrichment absorbed", "source", providerID, "error", rf.Err)
	}
	fw.ops.MarkCompleted(resOpID)
	fw.ops.MarkFinished(resOpID)
	delete(db.pending, providerID)
	fw.metrics.ResolvesInFlight.Add(-1)

	if !db.cancelled && fw.ops.IsCancelled(c.opID) {
		db.cancelled = true
		for _, id := range db.pending {
			fw.ops.Cancel(id)
		}
	}

	if len(db.pending) > 0 {
		return
	}
	c.settle(fw, db)
}

// settle runs the done-emission step: gate on finished, then release
// whatever run of in-order results this completion unblocks.
//
// A cancelled terminal bypasses the reorder buffer entirely: the terminal
// frame must always reach the user, even if an earlier-positioned item's
// enrichment is still outstanding and would otherwise hold this done-block
// in the waiting list indefinitely.
func (c *fullResolutionControl) settle(fw *Framework, db *doneBlock) {
	if fw.ops.IsFinished(c.opID) {
		return
	}

	if db.remaining == 0 && errors.Is(db.err, ErrOperationCancelled) {
		c.userCB(Frame{OperationID: c.opID, Item: nil, Remaining: 0, Err: db.err})
		if !c.chained {
			fw.ops.MarkFinished(c.opID)
		}
		return
	}

	for _, ready := range c.order.ready(db) {
		c.userCB(Frame{OperationID: c.opID, Item: ready.item, Remaining: ready.remaining, Err: ready.err})
		if ready.remaining == 0 && !c.chained && c.order.drained() {
			fw.ops.MarkFinished(c.opID)
		}
	}
}

// missingKeysFor delegates to the item's own KeyHolder implementation when
// present; an item that can't answer is treated conservatively as missing
// every requested key.
func missingKeysFor(item any, keyset []string) []string {
	if kh, ok := item.(KeyHolder); ok {
		return kh.MissingKeys(keyset)
	}
	return keyset
}
