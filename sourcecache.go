package medley

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// sourceCache memoizes AdditionalSourcesFor lookups for a provider plus a
// missing-keys set. Full-resolution re-derives the same auxiliary-provider
// fan-out for every item a streaming provider emits; without memoization a
// busy browse of a large container re-walks the registry once per item.
type sourceCache struct {
	ttl time.Duration
	c   *gocache.Cache
}

func newSourceCache(ttl time.Duration) *sourceCache {
	if ttl <= 0 {
		return &sourceCache{ttl: gocache.NoExpiration, c: gocache.New(gocache.NoExpiration, 0)}
	}
	return &sourceCache{ttl: ttl, c: gocache.New(ttl, ttl*2)}
}

func sourceCacheKey(provider Provider, missingKeys []string) string {
	sorted := append([]string(nil), missingKeys...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s\x00%s", provider.ID(), strings.Join(sorted, ","))
}

func (s *sourceCache) get(provider Provider, missingKeys []string) ([]Provider, bool) {
	v, ok := s.c.Get(sourceCacheKey(provider, missingKeys))
	if !ok {
		return nil, false
	}
	providers, ok := v.([]Provider)
	return providers, ok
}

func (s *sourceCache) set(provider Provider, missingKeys []string, providers []Provider) {
	s.c.Set(sourceCacheKey(provider, missingKeys), providers, gocache.DefaultExpiration)
}
