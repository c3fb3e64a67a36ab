package medley

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ygrebnov/medley/metrics"
	"github.com/ygrebnov/medley/scheduler"
)

// Option configures a Framework. Use New(opts...) to construct one.
type Option func(*configOptions)

// internal builder state for options assembly.
type configOptions struct {
	cfg     config
	logger  logr.Logger
	metrics metrics.Provider
	source  SourceRegistry
	keyset  KeysetFilter
}

// WithAutoSplitThreshold sets the chunk size T for the auto-split driver.
// T == 0 disables auto-split; a negative T is invalid configuration and
// makes New panic.
func WithAutoSplitThreshold(t int64) Option {
	return func(co *configOptions) { co.cfg.AutoSplitThreshold = t }
}

// WithSourceCacheTTL overrides the full-resolution engine's
// additional-sources lookup cache TTL.
func WithSourceCacheTTL(ttl time.Duration) Option {
	return func(co *configOptions) { co.cfg.SourceCacheTTL = ttl }
}

// WithLogger sets the logger the engine uses for the best-effort "log once
// and drop" paths. Default is logr.Discard().
func WithLogger(l logr.Logger) Option {
	return func(co *configOptions) { co.logger = l }
}

// WithMetrics sets the metrics.Provider instruments are created from.
// Default is metrics.NewNoopProvider().
func WithMetrics(p metrics.Provider) Option {
	return func(co *configOptions) { co.metrics = p }
}

// WithRegistry sets the SourceRegistry the engine consults for capability
// lookups and full-resolution auxiliary-provider discovery. Required: New
// panics without one, since a Framework with no providers to dispatch to is
// a configuration error, not a runtime one.
func WithRegistry(r SourceRegistry) Option {
	return func(co *configOptions) { co.source = r }
}

// WithKeysetFilter sets the KeysetFilter full-resolution consults for
// fast-only filtering. Optional: when omitted, the engine falls back to
// asking the registry itself (if it happens to implement KeysetFilter),
// and otherwise treats every key as quickly resolvable.
func WithKeysetFilter(kf KeysetFilter) Option {
	return func(co *configOptions) { co.keyset = kf }
}

// New creates a Framework. The Framework is inert until the caller starts
// driving its Scheduler().
func New(opts ...Option) *Framework {
	co := configOptions{cfg: defaultConfig(), logger: logr.Discard(), metrics: metrics.NewNoopProvider()}
	for _, opt := range opts {
		if opt == nil {
			panic("nil medley option")
		}
		opt(&co)
	}

	if err := validateConfig(&co.cfg); err != nil {
		panic(fmt.Errorf("invalid medley config: %w", err))
	}
	if co.source == nil {
		panic("medley: WithRegistry is required")
	}

	sched := scheduler.New(
		scheduler.WithHighBuffer(co.cfg.SchedulerHighBuffer),
		scheduler.WithDefaultBuffer(co.cfg.SchedulerDefaultBuffer),
		scheduler.WithMetrics(co.metrics),
	)

	return &Framework{
		cfg:      co.cfg,
		logger:   co.logger,
		metrics:  metrics.NewEngineMetrics(co.metrics),
		registry: co.source,
		keyset:   co.keyset,
		sched:    sched,
		ops:      newOperationRegistry(),
		cache:    newSourceCache(co.cfg.SourceCacheTTL),
	}
}
