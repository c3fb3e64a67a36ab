// Package fixtures provides deterministic fake providers used to exercise
// the dispatch engine's boundary scenarios without any real backing store.
package fixtures

import (
	"context"
	"fmt"

	"github.com/ygrebnov/medley"
)

// Item is the fixture package's own opaque media record: just enough to
// exercise source-stamping and key-based enrichment.
type Item struct {
	Title    string
	SourceID string
	Fields   map[string]string
}

// StampSource implements medley.SourceStamper; stamping twice is a no-op.
func (it *Item) StampSource(sourceID string) {
	if it.SourceID != "" {
		return
	}
	it.SourceID = sourceID
}

// MissingKeys implements medley.KeyHolder.
func (it *Item) MissingKeys(keyset []string) []string {
	var missing []string
	for _, k := range keyset {
		if _, ok := it.Fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Source is a deterministic browse/search/query provider: it serves from a
// fixed, in-memory slice of items and implements every verb the tests need.
// Caps is what it advertises to registry lookups; the verb methods
// themselves do not consult it.
type Source struct {
	SourceID   string
	SourceRank int
	Caps       medley.Capability
	Items      []*Item

	// ClaimedURIs, when non-nil, makes the source a media-from-uri
	// provider that claims exactly the URIs listed.
	ClaimedURIs map[string]*Item

	// RejectNullText makes Search report medley.ErrSearchNullUnsupported as
	// its own terminal frame when asked to search with an empty string,
	// instead of streaming Items — simulating a provider that doesn't
	// support filterless search, as only a provider (never the framework)
	// is entitled to decide.
	RejectNullText bool

	// pendingResolves accumulates callbacks registered via DeferResolve,
	// run only when Flush is called — simulates a slow auxiliary
	// provider for full-resolution reordering tests.
	pendingResolves []func()
}

func (s *Source) ID() string                     { return s.SourceID }
func (s *Source) Name() string                   { return s.SourceID }
func (s *Source) Rank() int                      { return s.SourceRank }
func (s *Source) Capabilities() medley.Capability { return s.Caps }

// Browse streams s.Items[skip:skip+count] (count<0 means "all").
func (s *Source) Browse(_ context.Context, req *medley.BrowseRequest) {
	s.stream(req.Skip, req.Count, req.Callback)
}

// Search otherwise ignores req.Text and streams the same fixed items, for
// determinism; tests differentiate providers by SourceID, not query text.
func (s *Source) Search(_ context.Context, req *medley.SearchRequest) {
	if req.Text == "" && s.RejectNullText {
		req.Callback(medley.Frame{Remaining: 0, Err: medley.ErrSearchNullUnsupported})
		return
	}
	s.stream(req.Skip, req.Count, req.Callback)
}

// Query behaves like Search.
func (s *Source) Query(_ context.Context, req *medley.QueryRequest) {
	s.stream(req.Skip, req.Count, req.Callback)
}

func (s *Source) stream(skip uint64, count int64, cb medley.Callback) {
	items := s.Items
	if int(skip) < len(items) {
		items = items[skip:]
	} else {
		items = nil
	}
	if count >= 0 && int64(len(items)) > count {
		items = items[:count]
	}

	if len(items) == 0 {
		cb(medley.Frame{Item: nil, Remaining: 0})
		return
	}
	for i, it := range items {
		remaining := int64(len(items) - i - 1)
		cb(medley.Frame{Item: it, Remaining: remaining})
	}
}

// Resolve fills every requested key this source knows about onto item,
// synchronously, with a single terminal callback.
func (s *Source) Resolve(_ context.Context, req *medley.ResolveRequest) {
	it, ok := req.Item.(*Item)
	if !ok {
		req.Callback(medley.Frame{Remaining: 0})
		return
	}
	if it.Fields == nil {
		it.Fields = map[string]string{}
	}
	for _, k := range req.Keyset {
		if _, have := it.Fields[k]; !have {
			it.Fields[k] = fmt.Sprintf("%s:%s", s.SourceID, k)
		}
	}
	req.Callback(medley.Frame{Remaining: 0})
}

// DeferResolve registers a slow resolve: the fill-in happens only once
// Flush is called, simulating an in-flight auxiliary provider.
func (s *Source) DeferResolve(_ context.Context, req *medley.ResolveRequest) {
	it, ok := req.Item.(*Item)
	s.pendingResolves = append(s.pendingResolves, func() {
		if ok {
			if it.Fields == nil {
				it.Fields = map[string]string{}
			}
			for _, k := range req.Keyset {
				if _, have := it.Fields[k]; !have {
					it.Fields[k] = fmt.Sprintf("%s:%s", s.SourceID, k)
				}
			}
		}
		req.Callback(medley.Frame{Remaining: 0})
	})
}

// Flush runs every deferred resolve callback registered via DeferResolve,
// oldest first.
func (s *Source) Flush() {
	pending := s.pendingResolves
	s.pendingResolves = nil
	for _, fn := range pending {
		fn()
	}
}

// TestMediaFromURI reports whether ClaimedURIs contains uri.
func (s *Source) TestMediaFromURI(uri string) bool {
	_, ok := s.ClaimedURIs[uri]
	return ok
}

// MediaFromURI hands back the claimed item, single callback.
func (s *Source) MediaFromURI(_ context.Context, req *medley.MediaFromURIRequest) {
	it := s.ClaimedURIs[req.URI]
	req.Callback(medley.Frame{Item: it, Remaining: 0})
}

// Registry is a minimal in-memory medley.SourceRegistry fixture.
type Registry struct {
	All       []medley.Provider
	Resolvers []medley.Provider
}

func (r *Registry) SourcesByCapability(cap medley.Capability, sortByRank bool) []medley.Provider {
	var out []medley.Provider
	for _, p := range r.All {
		if p.Capabilities().Has(cap) {
			out = append(out, p)
		}
	}
	if sortByRank {
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && out[j].Rank() > out[j-1].Rank(); j-- {
				out[j], out[j-1] = out[j-1], out[j]
			}
		}
	}
	return out
}

func (r *Registry) AdditionalSourcesFor(provider medley.Provider, _ any, missingKeys []string) []medley.Provider {
	if len(missingKeys) == 0 {
		return nil
	}
	var out []medley.Provider
	for _, p := range r.Resolvers {
		if p.ID() == provider.ID() {
			continue
		}
		out = append(out, p)
	}
	return out
}
