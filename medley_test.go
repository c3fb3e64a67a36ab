package medley_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/medley"
	"github.com/ygrebnov/medley/internal/fixtures"
	"github.com/ygrebnov/medley/metrics"
)

func newFramework(t *testing.T, reg medley.SourceRegistry, opts ...medley.Option) *medley.Framework {
	t.Helper()
	all := append([]medley.Option{medley.WithRegistry(reg)}, opts...)
	return medley.New(all...)
}

// An empty provider yields a single terminal frame with no item.
func TestBrowse_EmptyResult(t *testing.T) {
	src := &fixtures.Source{SourceID: "s1", Caps: medley.CapBrowse}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var frames []medley.Frame
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, nil, 0, func(f medley.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	require.Len(t, frames, 1)
	assert.Nil(t, frames[0].Item)
	assert.Equal(t, int64(0), frames[0].Remaining)
	assert.NoError(t, frames[0].Err)
}

// A single item is delivered then terminated, stamped with the source id.
func TestBrowse_SingleItemStamped(t *testing.T) {
	item := &fixtures.Item{Title: "one"}
	src := &fixtures.Source{SourceID: "s2", Caps: medley.CapBrowse, Items: []*fixtures.Item{item}}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var frames []medley.Frame
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, nil, 0, func(f medley.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	require.Len(t, frames, 1)
	assert.Equal(t, int64(0), frames[0].Remaining)
	got := frames[0].Item.(*fixtures.Item)
	assert.Equal(t, "s2", got.SourceID)
}

// Every operation delivers at least one frame, exactly one terminal, and
// remaining is monotonically non-increasing.
func TestBrowse_MonotonicRemaining(t *testing.T) {
	items := []*fixtures.Item{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	src := &fixtures.Source{SourceID: "s3", Caps: medley.CapBrowse, Items: items}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var frames []medley.Frame
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, nil, 0, func(f medley.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	terminals := 0
	for i, f := range frames {
		if f.Remaining == 0 {
			terminals++
		}
		if i > 0 {
			assert.LessOrEqual(t, f.Remaining, frames[i-1].Remaining)
		}
	}
	assert.Equal(t, 1, terminals)
}

// Auto-split shards a count request against one provider into chunks.
func TestBrowse_AutoSplit(t *testing.T) {
	items := make([]*fixtures.Item, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, &fixtures.Item{Title: "x"})
	}
	src := &fixtures.Source{SourceID: "s4", Caps: medley.CapBrowse, Items: items}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg, medley.WithAutoSplitThreshold(2))

	var remainders []int64
	_, err := fw.Browse(context.Background(), src, "root", 0, 5, nil, 0, func(f medley.Frame) {
		remainders = append(remainders, f.Remaining)
	})
	require.NoError(t, err)

	// Each chunk boundary defers the next chunk's request through the
	// scheduler's high-priority band, so draining it advances the split.
	fw.Scheduler().RunUntilIdle(context.Background())

	assert.Equal(t, []int64{4, 3, 2, 1, 0}, remainders)
}

// Full-resolution preserves provider emission order even though
// enrichment completes out of order.
func TestBrowse_FullResolutionReordering(t *testing.T) {
	a := &fixtures.Item{Title: "A"}
	b := &fixtures.Item{Title: "B"}
	c := &fixtures.Item{Title: "C"}

	src := &fixtures.Source{SourceID: "primary", Caps: medley.CapBrowse, Items: []*fixtures.Item{a, b, c}}

	aux := &fixtures.Source{SourceID: "aux-resolver", Caps: medley.CapResolve}
	resolver := &switchResolver{Source: aux, slowFor: map[*fixtures.Item]bool{a: true}}

	reg := &singleResolverRegistry{base: &fixtures.Registry{All: []medley.Provider{src}}, resolver: resolver}
	fw := newFramework(t, reg)

	var titles []string
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, []string{"extra"}, medley.FlagFull, func(f medley.Frame) {
		if f.Item != nil {
			titles = append(titles, f.Item.(*fixtures.Item).Title)
		}
	})
	require.NoError(t, err)

	assert.Empty(t, titles, "no emission until the slow resolve for A completes")

	aux.Flush()

	require.Equal(t, []string{"A", "B", "C"}, titles)
}

// singleResolverRegistry always names the same auxiliary resolver for
// every item needing enrichment, matching the real contract that
// additional-source lookups depend only on the provider and the missing
// keyset, never on the specific item.
type singleResolverRegistry struct {
	base     *fixtures.Registry
	resolver medley.Provider
}

func (r *singleResolverRegistry) SourcesByCapability(cap medley.Capability, sortByRank bool) []medley.Provider {
	return r.base.SourcesByCapability(cap, sortByRank)
}

func (r *singleResolverRegistry) AdditionalSourcesFor(provider medley.Provider, _ any, missingKeys []string) []medley.Provider {
	if len(missingKeys) == 0 {
		return nil
	}
	return []medley.Provider{r.resolver}
}

// switchResolver defers resolution for items named in slowFor (simulating
// an in-flight auxiliary lookup the test controls via Flush) and resolves
// every other item synchronously.
type switchResolver struct {
	*fixtures.Source
	slowFor map[*fixtures.Item]bool
}

func (w *switchResolver) Resolve(ctx context.Context, req *medley.ResolveRequest) {
	if it, ok := req.Item.(*fixtures.Item); ok && w.slowFor[it] {
		w.Source.DeferResolve(ctx, req)
		return
	}
	w.Source.Resolve(ctx, req)
}

// Cancelling mid-stream yields a canonical terminal error and drops
// subsequent items.
func TestBrowse_CancelMidStream(t *testing.T) {
	items := make([]*fixtures.Item, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, &fixtures.Item{Title: "x"})
	}
	src := &fixtures.Source{SourceID: "s-cancel", Caps: medley.CapBrowse, Items: items}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var frames []medley.Frame
	_, err := fw.Browse(context.Background(), src, "root", 0, 5, nil, 0, func(f medley.Frame) {
		frames = append(frames, f)
		if len(frames) == 2 {
			// f.OperationID, not the id Browse will eventually return:
			// Browse dispatches this callback synchronously, so the
			// return value isn't assigned yet at this point in the call.
			fw.Cancel(f.OperationID)
		}
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(frames), 2)
	last := frames[len(frames)-1]
	assert.Equal(t, int64(0), last.Remaining)
	assert.ErrorIs(t, last.Err, medley.ErrOperationCancelled)

	terminals := 0
	for _, f := range frames {
		if f.Remaining == 0 {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

// Cancel is idempotent.
func TestCancel_Idempotent(t *testing.T) {
	src := &fixtures.Source{SourceID: "s-idem", Caps: medley.CapBrowse, Items: []*fixtures.Item{{Title: "x"}}}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	opID, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, nil, 0, func(medley.Frame) {})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		fw.Cancel(opID)
		fw.Cancel(opID)
		fw.Cancel(opID)
	})
}

// Cancelling an operation that has already run to completion is a safe
// no-op: Cancel never panics on a finished or unknown id.
func TestCancel_AfterCompletion(t *testing.T) {
	src := &fixtures.Source{SourceID: "s-pre", Caps: medley.CapSearch}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	opID, err := fw.Search(context.Background(), src, "q", 0, medley.CountAll, nil, 0, func(medley.Frame) {})
	require.NoError(t, err)

	assert.NotPanics(t, func() { fw.Cancel(opID) })
}

// MediaFromURI: no provider claims the uri.
func TestMediaFromURI_Unclaimed(t *testing.T) {
	src := &fixtures.Source{SourceID: "m1", Caps: medley.CapMediaFromURI, ClaimedURIs: map[string]*fixtures.Item{}}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var got medley.Frame
	fw.MediaFromURI(context.Background(), "file:///nope", nil, 0, func(f medley.Frame) { got = f })

	assert.Nil(t, got.Item)
	assert.NoError(t, got.Err)
	assert.Equal(t, int64(0), got.Remaining)
}

// MediaFromURI: first claiming provider wins.
func TestMediaFromURI_FirstClaimWins(t *testing.T) {
	item := &fixtures.Item{Title: "claimed"}
	src := &fixtures.Source{
		SourceID:    "m2",
		Caps:        medley.CapMediaFromURI,
		ClaimedURIs: map[string]*fixtures.Item{"file:///a": item},
	}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var got medley.Frame
	fw.MediaFromURI(context.Background(), "file:///a", nil, 0, func(f medley.Frame) { got = f })

	require.NotNil(t, got.Item)
	assert.Equal(t, "claimed", got.Item.(*fixtures.Item).Title)
	assert.Equal(t, "m2", got.Item.(*fixtures.Item).SourceID)
}

// Federated search delivers no more than the requested count.
func TestMultiSearch_FederatesAcrossProviders(t *testing.T) {
	p1 := &fixtures.Source{SourceID: "p1", Caps: medley.CapSearch, Items: []*fixtures.Item{{Title: "p1a"}, {Title: "p1b"}}}
	p2 := &fixtures.Source{SourceID: "p2", Caps: medley.CapSearch, Items: []*fixtures.Item{{Title: "p2a"}, {Title: "p2b"}, {Title: "p2c"}, {Title: "p2d"}, {Title: "p2e"}}}
	reg := &fixtures.Registry{All: []medley.Provider{p1, p2}}
	fw := newFramework(t, reg)

	var items []string
	var terminal medley.Frame
	fw.MultiSearch(nil, "q", nil, 10, 0, func(f medley.Frame) {
		if f.Item != nil {
			items = append(items, f.Item.(*fixtures.Item).Title)
		}
		if f.Remaining == 0 {
			terminal = f
		}
	})

	assert.LessOrEqual(t, len(items), 10)
	assert.Equal(t, int64(0), terminal.Remaining)
}

// No sources available for a federated search surfaces ErrNoSources.
func TestMultiSearch_NoSources(t *testing.T) {
	reg := &fixtures.Registry{}
	fw := newFramework(t, reg)

	var got medley.Frame
	id := fw.MultiSearch(nil, "q", nil, 5, 0, func(f medley.Frame) { got = f })
	fw.Scheduler().RunUntilIdle(context.Background())

	assert.Equal(t, medley.OperationID(0), id)
	assert.ErrorIs(t, got.Err, medley.ErrNoSources)
}

// Empty search text is forwarded to the provider untouched; only the
// provider itself may report null-text search as unsupported, through its
// own terminal frame.
func TestSearch_NullTextUnsupported(t *testing.T) {
	src := &fixtures.Source{SourceID: "s-null", Caps: medley.CapSearch, RejectNullText: true}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var got medley.Frame
	_, err := fw.Search(context.Background(), src, "", 0, medley.CountAll, nil, 0, func(f medley.Frame) { got = f })
	require.NoError(t, err)
	assert.ErrorIs(t, got.Err, medley.ErrSearchNullUnsupported)
}

// A provider that does support filterless search receives the empty text
// unchanged and streams normally; the framework never intercepts it.
func TestSearch_NullTextPassedThrough(t *testing.T) {
	item := &fixtures.Item{Title: "anything"}
	src := &fixtures.Source{SourceID: "s-null-ok", Caps: medley.CapSearch, Items: []*fixtures.Item{item}}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	var items []*fixtures.Item
	_, err := fw.Search(context.Background(), src, "", 0, medley.CountAll, nil, 0, func(f medley.Frame) {
		if f.Item != nil {
			items = append(items, f.Item.(*fixtures.Item))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []*fixtures.Item{item}, items)
}

// Idle-relay marshals delivery through the scheduler instead of invoking
// the callback synchronously from within Browse.
func TestBrowse_IdleRelayDefersThroughScheduler(t *testing.T) {
	src := &fixtures.Source{SourceID: "s-idle", Caps: medley.CapBrowse, Items: []*fixtures.Item{{Title: "x"}}}
	reg := &fixtures.Registry{All: []medley.Provider{src}}
	fw := newFramework(t, reg)

	delivered := false
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, nil, medley.FlagIdleRelay, func(medley.Frame) {
		delivered = true
	})
	require.NoError(t, err)
	assert.False(t, delivered, "idle relay must not deliver synchronously")

	fw.Scheduler().RunUntilIdle(context.Background())
	assert.True(t, delivered)
}

// An auto-split Browse and a federated search that chains a follow-up round
// each record against the engine's own domain instruments, not just the
// scheduler's generic ones.
func TestEngineMetrics_RecordsDomainEvents(t *testing.T) {
	items := make([]*fixtures.Item, 5)
	for i := range items {
		items[i] = &fixtures.Item{Title: fmt.Sprintf("item-%d", i)}
	}
	src := &fixtures.Source{SourceID: "s-metrics", Caps: medley.CapBrowse, Items: items}
	reg := &fixtures.Registry{All: []medley.Provider{src}}

	provider := metrics.NewBasicProvider()
	fw := newFramework(t, reg, medley.WithAutoSplitThreshold(2), medley.WithMetrics(provider))

	_, err := fw.Browse(context.Background(), src, "root", 0, 5, nil, 0, func(medley.Frame) {})
	require.NoError(t, err)
	fw.Scheduler().RunUntilIdle(context.Background())

	assert.Equal(t, int64(1), provider.CounterValue("medley_operations_started_total"))
	// 5 items at threshold 2 means 3 chunks total, 2 of them continuations.
	assert.Equal(t, int64(2), provider.CounterValue("medley_autosplit_chunks_issued_total"))

	p1 := &fixtures.Source{SourceID: "p1", Caps: medley.CapSearch, Items: []*fixtures.Item{{Title: "p1a"}, {Title: "p1b"}}}
	p2 := &fixtures.Source{SourceID: "p2", Caps: medley.CapSearch, Items: []*fixtures.Item{{Title: "p2a"}, {Title: "p2b"}, {Title: "p2c"}}}
	searchReg := &fixtures.Registry{All: []medley.Provider{p1, p2}}
	fw2 := newFramework(t, searchReg, medley.WithMetrics(provider))

	fw2.MultiSearch(nil, "q", nil, 6, 0, func(medley.Frame) {})
	fw2.Scheduler().RunUntilIdle(context.Background())

	assert.Equal(t, int64(2), provider.CounterValue("medley_operations_started_total"))
	assert.Equal(t, int64(1), provider.CounterValue("medley_federation_rounds_chained_total"))
}

// Resolves-in-flight returns to zero once every auxiliary resolve for an
// item has completed.
func TestEngineMetrics_ResolvesInFlightDrainsToZero(t *testing.T) {
	item := &fixtures.Item{Title: "A"}
	src := &fixtures.Source{SourceID: "primary", Caps: medley.CapBrowse, Items: []*fixtures.Item{item}}
	aux := &fixtures.Source{SourceID: "aux", Caps: medley.CapResolve}
	reg := &fixtures.Registry{All: []medley.Provider{src}, Resolvers: []medley.Provider{aux}}

	provider := metrics.NewBasicProvider()
	fw := newFramework(t, reg, medley.WithMetrics(provider))

	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, []string{"extra"}, medley.FlagFull, func(medley.Frame) {})
	require.NoError(t, err)

	assert.Equal(t, int64(0), provider.UpDownValue("medley_resolves_in_flight"))
}

// A cancellation raised while an earlier item's enrichment is still
// outstanding must still reach the caller as the operation's terminal
// frame, rather than wait behind that item in the reorder buffer.
func TestBrowse_FullResolutionCancelBypassesReorder(t *testing.T) {
	a := &fixtures.Item{Title: "A"}
	b := &fixtures.Item{Title: "B"}
	src := &cancelMidBrowser{a: a, b: b}

	aux := &fixtures.Source{SourceID: "aux-resolver", Caps: medley.CapResolve}
	resolver := &switchResolver{Source: aux, slowFor: map[*fixtures.Item]bool{a: true}}
	reg := &singleResolverRegistry{base: &fixtures.Registry{All: []medley.Provider{src}}, resolver: resolver}
	fw := newFramework(t, reg)
	src.fw = fw

	var frames []medley.Frame
	_, err := fw.Browse(context.Background(), src, "root", 0, medley.CountAll, []string{"extra"}, medley.FlagFull, func(f medley.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	require.Len(t, frames, 1, "the cancellation terminal must arrive even though A's enrichment never completed")
	assert.Nil(t, frames[0].Item)
	assert.Equal(t, int64(0), frames[0].Remaining)
	assert.ErrorIs(t, frames[0].Err, medley.ErrOperationCancelled)

	aux.Flush()
	assert.Len(t, frames, 1, "a late resolve for a finished operation delivers nothing further")
}

// cancelMidBrowser streams two items, cancelling the operation itself right
// after the first — simulating a cancellation raised while an earlier
// item's auxiliary enrichment is still in flight.
type cancelMidBrowser struct {
	fixtures.Source
	fw   *medley.Framework
	a, b *fixtures.Item
}

func (c *cancelMidBrowser) Browse(_ context.Context, req *medley.BrowseRequest) {
	req.Callback(medley.Frame{OperationID: req.OperationID, Item: c.a, Remaining: 1})
	c.fw.Cancel(req.OperationID)
	req.Callback(medley.Frame{OperationID: req.OperationID, Item: c.b, Remaining: 0})
}
