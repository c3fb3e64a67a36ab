package medley

import "context"

// Capability is a bitmask over the verbs a Provider advertises. The bits
// are consulted by registry lookups (SourcesByCapability). The dispatch
// methods, the federator and full-resolution do not read them: they select
// a verb by type-asserting the optional verb interfaces below.
type Capability uint32

const (
	CapBrowse Capability = 1 << iota
	CapSearch
	CapQuery
	CapResolve
	CapMediaFromURI
	CapStore
	CapRemove
	CapNotifyChange
)

// Has reports whether c includes all bits set in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// RemainingUnknown is the sentinel a provider may report in place of an
// actual remaining-count when it cannot predict how many more items it
// will emit. Negative values reported by a provider carry the same
// meaning. The engine never produces RemainingUnknown itself: it is only
// ever consumed from providers, and only affects multi-source
// pending-count bookkeeping (a provider reporting it makes no shortfall
// claim for that sub-search).
const RemainingUnknown int64 = -1

// CountAll requests "as many as the provider has" rather than a bounded
// count.
const CountAll int64 = -1

// Frame is one invocation of a streaming provider callback: an item (or
// nil), a remaining count, and an optional error. remaining == 0 marks the
// terminal frame of a stream; a stream must end with exactly one terminal
// frame.
type Frame struct {
	OperationID OperationID
	Item        any
	Remaining   int64
	Err         error
}

// Callback is what a Provider invokes one or more times per request,
// ending with exactly one terminal frame.
type Callback func(Frame)

// BaseRequest carries the fields common to every verb's request
// descriptor.
type BaseRequest struct {
	OperationID OperationID
	Keyset      []string
	Flags       Flags
	Callback    Callback
	UserData    any
}

// BrowseRequest asks a provider to stream the children of a container.
type BrowseRequest struct {
	BaseRequest
	ContainerID string
	Skip        uint64
	Count       int64
}

// SearchRequest asks a provider to stream free-text search results.
type SearchRequest struct {
	BaseRequest
	Text  string
	Skip  uint64
	Count int64
}

// QueryRequest asks a provider to run a provider-specific query.
type QueryRequest struct {
	BaseRequest
	Query string
	Skip  uint64
	Count int64
}

// ResolveRequest asks a provider to fill in the keys of Keyset that are
// still missing on Item. A provider is expected to no-op for keys already
// present. Resolve is a single-callback contract: a provider issues one
// invocation of Callback, with Remaining == 0.
type ResolveRequest struct {
	BaseRequest
	Item any
}

// MediaFromURIRequest asks the provider that owns uri to resolve it to an
// item. Single-callback contract.
type MediaFromURIRequest struct {
	BaseRequest
	URI string
}

// StoreRequest asks a provider to persist Item under ContainerID.
type StoreRequest struct {
	BaseRequest
	ContainerID string
	Item        any
}

// RemoveRequest asks a provider to remove an item by id.
type RemoveRequest struct {
	BaseRequest
	ItemID string
}

// ChangeKind classifies a notify-change event.
type ChangeKind int

const (
	ChangeKindChanged ChangeKind = iota
	ChangeKindAdded
	ChangeKindRemoved
)

// ChangeEvent is what a notify-change subscription delivers.
type ChangeEvent struct {
	Items           []any
	Kind            ChangeKind
	LocationUnknown bool
}

// ChangeCallback is invoked by a provider for every content-changed batch
// on an active notify-change subscription.
type ChangeCallback func(ChangeEvent)

// NotifyChangeRequest subscribes to content-changed events. Cancel stops
// the subscription; the provider must stop invoking Callback once Cancel
// is called.
type NotifyChangeRequest struct {
	OperationID OperationID
	UserData    any
	Callback    ChangeCallback
}

// Flags is a bitmask of user-visible knobs on an operation.
type Flags uint32

const (
	// FlagFastOnly restricts full-resolution to keys the keyset contract
	// reports as quickly resolvable.
	FlagFastOnly Flags = 1 << iota
	// FlagFull enables the full-resolution engine.
	FlagFull
	// FlagIdleRelay marshals the relay hand-off through the scheduler's
	// default-priority band instead of invoking the next stage
	// synchronously.
	FlagIdleRelay
)

// Has reports whether f includes all bits set in want. Unknown bits are
// ignored by the engine, never rejected.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Identity is the provider metadata the registry and federator sort and
// select on.
type Identity interface {
	ID() string
	Name() string
	Rank() int
	Capabilities() Capability
}

// Provider is the narrow contract the core consumes. A concrete provider
// need only implement Identity plus whichever of the optional verb
// interfaces below match the bits it advertises in Capabilities; the core
// type-asserts rather than requiring every verb to be implemented, the Go
// analogue of the original's nullable per-verb function pointers.
type Provider interface {
	Identity
}

// Browser is implemented by providers advertising CapBrowse.
type Browser interface {
	Browse(ctx context.Context, req *BrowseRequest)
}

// Searcher is implemented by providers advertising CapSearch.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest)
}

// Querier is implemented by providers advertising CapQuery.
type Querier interface {
	Query(ctx context.Context, req *QueryRequest)
}

// Resolver is implemented by providers advertising CapResolve.
type Resolver interface {
	Resolve(ctx context.Context, req *ResolveRequest)
}

// URIProber is implemented by providers advertising CapMediaFromURI.
type URIProber interface {
	TestMediaFromURI(uri string) bool
	MediaFromURI(ctx context.Context, req *MediaFromURIRequest)
}

// Storer is implemented by providers advertising CapStore.
type Storer interface {
	Store(ctx context.Context, req *StoreRequest)
}

// Remover is implemented by providers advertising CapRemove.
type Remover interface {
	Remove(ctx context.Context, req *RemoveRequest)
}

// ChangeNotifier is implemented by providers advertising CapNotifyChange.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, req *NotifyChangeRequest)
}

// SourceRegistry is the registry contract the core consumes: provider
// discovery by capability, and auxiliary-provider discovery for
// full-resolution.
type SourceRegistry interface {
	// SourcesByCapability returns providers advertising all bits in cap.
	// When sortByRank is true the result is ordered by descending Rank(),
	// mirroring the original's rank-sorted source listing.
	SourcesByCapability(cap Capability, sortByRank bool) []Provider

	// AdditionalSourcesFor returns the resolver providers (other than
	// provider itself) able to fill in some subset of missingKeys on item.
	AdditionalSourcesFor(provider Provider, item any, missingKeys []string) []Provider
}

// SourceStamper is implemented by items a provider produces so the relay
// can attribute each item to its emitting provider before it reaches the
// user. Implementations must make StampSource idempotent: stamping an
// already-stamped item is a no-op.
type SourceStamper interface {
	StampSource(sourceID string)
}

// KeyHolder is an optional interface an item produced by a provider may
// implement so the full-resolution engine can ask it directly which of the
// requested keys are still missing, instead of re-resolving the whole
// keyset on every auxiliary provider. Items that don't implement it are
// treated conservatively: the full keyset is considered missing.
type KeyHolder interface {
	MissingKeys(keyset []string) []string
}

// KeysetFilter is the keyset contract the core consumes.
type KeysetFilter interface {
	// FilterSlow returns the subset of keyset resolvable quickly, used
	// when FlagFastOnly is set.
	FilterSlow(keyset []string) []string

	// ExpandOperationKeys returns the closure of keys reachable by
	// chaining resolves for provider against item, used when FlagFull is
	// set.
	ExpandOperationKeys(provider Provider, item any, keyset []string) []string
}
