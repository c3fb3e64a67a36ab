package fixtures

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/ygrebnov/medley"
)

// RemoteResolver is an auxiliary Resolver that fills in missing keys by
// fetching them from an HTTP endpoint, one request per missing key. It
// demonstrates full-resolution enrichment against a real network call
// rather than an in-memory fixture.
type RemoteResolver struct {
	ResolverID string
	BaseURL    string
	client     *resty.Client
}

func (r *RemoteResolver) ID() string                     { return r.ResolverID }
func (r *RemoteResolver) Name() string                   { return r.ResolverID }
func (r *RemoteResolver) Rank() int                      { return 0 }
func (r *RemoteResolver) Capabilities() medley.Capability { return medley.CapResolve }

func (r *RemoteResolver) httpClient() *resty.Client {
	if r.client == nil {
		r.client = resty.New().SetBaseURL(r.BaseURL)
	}
	return r.client
}

// Resolve fetches each of req.Keyset's still-missing keys from
// BaseURL/<key>/<title> and writes the response body into the item's
// Fields map. A failed request leaves that key unset rather than aborting
// the whole resolve, matching the engine's best-effort enrichment contract.
func (r *RemoteResolver) Resolve(ctx context.Context, req *medley.ResolveRequest) {
	it, ok := req.Item.(*Item)
	if !ok {
		req.Callback(medley.Frame{Remaining: 0})
		return
	}
	if it.Fields == nil {
		it.Fields = map[string]string{}
	}

	client := r.httpClient()
	for _, key := range it.MissingKeys(req.Keyset) {
		resp, err := client.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"key": key, "title": it.Title}).
			Get("/{key}/{title}")
		if err != nil || resp.IsError() {
			continue
		}
		it.Fields[key] = string(resp.Body())
	}
	req.Callback(medley.Frame{Remaining: 0})
}
