package metrics

// Provider constructs instruments used to record metrics.
// Implementations must be safe for concurrent use.
//
// Keep this interface minimal and stable. If you need new capabilities later,
// introduce separate optional interfaces rather than expanding this surface.
type Provider interface {
	Counter(name string, opts ...InstrumentOption) Counter
	UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter
	Histogram(name string, opts ...InstrumentOption) Histogram
}

// Counter records monotonic counts.
// Methods must be safe for concurrent use.
type Counter interface {
	Add(n int64)
}

// UpDownCounter records values that can move up or down (e.g., current in-flight).
// Methods must be safe for concurrent use.
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records distribution of float64 measurements (e.g., durations in seconds).
// Methods must be safe for concurrent use.
type Histogram interface {
	Record(v float64)
}

// InstrumentConfig carries optional instrument metadata. It's advisory only.
type InstrumentConfig struct {
	Description string
	Unit        string
	// Attributes are static key-value pairs associated with the instrument itself.
	// Keep cardinality bounded. Implementations may ignore attributes.
	Attributes map[string]string
}

// InstrumentOption mutates InstrumentConfig.
type InstrumentOption func(*InstrumentConfig)

// WithDescription sets an advisory description for the instrument.
func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets an advisory unit for the instrument (e.g., "1", "seconds").
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

// WithAttributes attaches static attributes to the instrument (bounded cardinality only).
func WithAttributes(attrs map[string]string) InstrumentOption {
	return func(c *InstrumentConfig) {
		if len(attrs) == 0 {
			return
		}
		// copy to avoid external mutation
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			c.Attributes[k] = v
		}
	}
}

// EngineMetrics bundles the dispatch engine's own named domain instruments,
// built once from a Provider at Framework construction and threaded through
// the engine by value rather than re-derived by name at every call site.
type EngineMetrics struct {
	// OperationsStarted counts every user-facing dispatch: Browse, Search,
	// Query, Resolve, MediaFromURI, Store, Remove, NotifyChange and
	// MultiSearch each increment it once per call that allocates an
	// operation id, regardless of how many frames the operation eventually
	// streams. A call rejected before allocating one (an unsupported verb,
	// a federated search with no sources) does not increment it.
	OperationsStarted Counter

	// ResolvesInFlight tracks auxiliary resolve operations the
	// full-resolution engine currently has outstanding: incremented when a
	// resolver is dispatched, decremented when its single callback fires.
	ResolvesInFlight UpDownCounter

	// AutoSplitChunksIssued counts chunk continuations the auto-split
	// driver dispatches after the first, one per chunk boundary crossed.
	AutoSplitChunksIssued Counter

	// FederationRoundsChained counts follow-up multi-source search rounds
	// chained against providers that exhausted an earlier round's quota
	// exactly while others under-delivered.
	FederationRoundsChained Counter
}

// NewEngineMetrics constructs the engine's named instruments from p.
func NewEngineMetrics(p Provider) EngineMetrics {
	return EngineMetrics{
		OperationsStarted: p.Counter(
			"medley_operations_started_total",
			WithDescription("operations started via the Framework's dispatch methods"),
			WithUnit("1"),
		),
		ResolvesInFlight: p.UpDownCounter(
			"medley_resolves_in_flight",
			WithDescription("auxiliary resolve operations currently outstanding in full-resolution"),
			WithUnit("1"),
		),
		AutoSplitChunksIssued: p.Counter(
			"medley_autosplit_chunks_issued_total",
			WithDescription("auto-split chunk continuations dispatched after the first chunk"),
			WithUnit("1"),
		),
		FederationRoundsChained: p.Counter(
			"medley_federation_rounds_chained_total",
			WithDescription("follow-up federation rounds chained after a provider shortfall"),
			WithUnit("1"),
		),
	}
}
