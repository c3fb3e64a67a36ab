package medley

import "context"

// providerQuota is the per-provider counter the federator keeps for one
// round of a multi-source search.
type providerQuota struct {
	count     int64
	received  int64
	remaining int64
	skip      uint64
}

// federationState is the per-operation state behind multiSearch: it fans a
// search across several providers, tracks per-provider quotas, and chains
// follow-up rounds against providers that exhausted their quota exactly
// while others under-delivered.
type federationState struct {
	fw     *Framework
	opID   OperationID
	text   string
	keyset []string
	flags  Flags
	userCB Callback

	quotas    map[string]*providerQuota
	providers map[string]Provider
	subOps    []OperationID

	sourcesDone  int
	sourcesCount int
	sourcesMore  []Provider
	pending      int64
	remaining    int64

	terminalSent bool
}

// postOrCall posts t via the scheduler's default band, falling back to a
// direct call if the scheduler is closed or its band is full — the no-
// sources error frame must still reach the caller.
func postOrCall(fw *Framework, t func(context.Context)) {
	if err := fw.sched.PostDefault(t); err != nil {
		t(context.Background())
	}
}

// postHighOrCall posts t via the scheduler's high-priority band — used for
// auto-split's next-chunk requests — falling back to a direct call if the
// scheduler is closed or its band is full.
func postHighOrCall(fw *Framework, t func(context.Context)) {
	if err := fw.sched.PostHigh(t); err != nil {
		t(context.Background())
	}
}

// multiSearch fans text across sources (or, when sources is nil, every
// search-capable registered provider), allocating count across them. An
// empty text is forwarded to every sub-search untouched: only a provider
// itself may report null-text search as unsupported, through its own
// terminal frame — the federator never rejects it up front.
func (fw *Framework) multiSearch(sources []Provider, text string, keyset []string, count int64, flags Flags, cb Callback) OperationID {
	if sources == nil {
		sources = fw.registry.SourcesByCapability(CapSearch, true)
	}
	if len(sources) == 0 {
		postOrCall(fw, func(context.Context) {
			cb(Frame{OperationID: 0, Item: nil, Remaining: 0, Err: ErrNoSources})
		})
		return 0
	}

	opID := fw.newOperation()
	st := &federationState{
		fw:        fw,
		opID:      opID,
		text:      text,
		keyset:    keyset,
		flags:     flags,
		userCB:    cb,
		remaining: count,
		quotas:    make(map[string]*providerQuota),
		providers: make(map[string]Provider),
	}
	fw.ops.SetCancelHook(opID, st.cancel)
	st.dispatchRound(sources, count)
	return opID
}

// dispatchRound partitions total across providers — the first provider
// absorbs the remainder of an uneven split — and issues one sub-search per
// provider with non-zero quota.
//
// Every participating provider's quota is computed, and sourcesCount set
// to the final count, before any sub-search is dispatched. A fixture or
// otherwise synchronous provider can complete (and call back into
// onSubFrame) before dispatchSub even returns; if sourcesCount were instead
// incremented one provider at a time interleaved with dispatch, that
// synchronous completion would race the count and the round could finish
// prematurely or never finish at all.
func (s *federationState) dispatchRound(providers []Provider, total int64) {
	n := int64(len(providers))
	if n == 0 || total <= 0 {
		s.emitTerminal(nil)
		return
	}

	base := total / n
	extra := total % n

	type pendingDispatch struct {
		p Provider
		q *providerQuota
	}
	var toDispatch []pendingDispatch

	for i, p := range providers {
		quota := base
		if i == 0 {
			quota += extra
		}
		if quota <= 0 {
			continue
		}

		skip := uint64(0)
		if q, ok := s.quotas[p.ID()]; ok {
			skip = q.skip + uint64(q.received)
		}
		nq := &providerQuota{count: quota, skip: skip}
		s.quotas[p.ID()] = nq
		s.providers[p.ID()] = p
		toDispatch = append(toDispatch, pendingDispatch{p, nq})
	}

	s.sourcesDone = 0
	s.sourcesCount = len(toDispatch)

	if s.sourcesCount == 0 {
		s.emitTerminal(nil)
		return
	}

	for _, d := range toDispatch {
		s.subOps = append(s.subOps, s.dispatchSub(d.p, d.q))
	}
}

func (s *federationState) dispatchSub(p Provider, q *providerQuota) OperationID {
	subOpID := s.fw.ops.NewID()
	providerID := p.ID()

	searcher, ok := p.(Searcher)
	if !ok {
		s.fw.ops.MarkCompleted(subOpID)
		s.fw.ops.MarkFinished(subOpID)
		s.onSubFrame(providerID, Frame{OperationID: subOpID, Remaining: 0})
		return subOpID
	}

	relayCB := newRelay(s.fw, subOpID, p, false, false, nil, func(f Frame) {
		s.onSubFrame(providerID, f)
	})

	req := &SearchRequest{
		BaseRequest: BaseRequest{
			OperationID: subOpID,
			Keyset:      s.keyset,
			Flags:       s.flags,
			Callback:    relayCB,
		},
		Text:  s.text,
		Skip:  q.skip,
		Count: q.count,
	}
	searcher.Search(context.Background(), req)
	return subOpID
}

// onSubFrame is the federator's own user callback for every sub-search.
func (s *federationState) onSubFrame(providerID string, f Frame) {
	q := s.quotas[providerID]
	isTerminal := f.Remaining == 0

	if q != nil {
		if f.Item != nil {
			q.received++
		}
		// A negative remaining (RemainingUnknown) sticks for the rest of
		// this sub-search: such a provider makes no shortfall claim.
		if f.Remaining < 0 || q.remaining >= 0 {
			q.remaining = f.Remaining
		}
	}

	if isTerminal {
		s.sourcesDone++
		if q != nil {
			if q.received < q.count && q.remaining >= 0 {
				s.pending += q.count - q.received
			}
			if q.count > 0 && q.received == q.count {
				s.sourcesMore = append(s.sourcesMore, s.providers[providerID])
			}
		}
	}

	if s.terminalSent {
		return
	}

	if f.Item != nil {
		s.remaining--
		if s.remaining < 0 {
			s.remaining = 0
		}
		s.emitItem(f.Item, s.remaining)
	} else if isTerminal && f.Err != nil {
		s.fw.logger.V(1).Info("federated sub-search error, absorbed", "source", providerID, "error", f.Err)
	}

	if !s.terminalSent && isTerminal && s.allDone() {
		s.advanceRound()
	}
}

func (s *federationState) allDone() bool { return s.sourcesDone == s.sourcesCount }

func (s *federationState) advanceRound() {
	if s.pending > 0 && len(s.sourcesMore) > 0 {
		more := s.sourcesMore
		total := s.pending
		s.sourcesMore = nil
		s.pending = 0
		s.fw.metrics.FederationRoundsChained.Add(1)
		s.dispatchRound(more, total)
		return
	}
	s.emitTerminal(nil)
}

func (s *federationState) emitItem(item any, remaining int64) {
	s.userCB(Frame{OperationID: s.opID, Item: item, Remaining: remaining})
	if remaining == 0 {
		s.terminalSent = true
		s.finish()
	}
}

func (s *federationState) emitTerminal(err error) {
	if s.terminalSent {
		return
	}
	s.terminalSent = true
	s.userCB(Frame{OperationID: s.opID, Item: nil, Remaining: 0, Err: err})
	s.finish()
}

func (s *federationState) finish() {
	s.fw.ops.MarkCompleted(s.opID)
	s.fw.ops.MarkFinished(s.opID)
}

// cancel implements the federator's own cancellation: every recorded
// sub-operation is cancelled, and exactly one terminal frame is still
// delivered to the user even though sub-searches keep completing
// individually afterward.
func (s *federationState) cancel() {
	for _, id := range s.subOps {
		s.fw.ops.Cancel(id)
	}
	if err := s.fw.sched.PostHigh(func(context.Context) { s.emitTerminal(ErrOperationCancelled) }); err != nil {
		s.emitTerminal(ErrOperationCancelled)
	}
}
