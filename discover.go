package homeai

import (
	"context"
	"net/url"
	"strings"
)

// DiscoverService reads the public discover feed.
type DiscoverService struct {
	client *Client
}

// Feed returns the discover feed, optionally filtered to one tab. The
// current token is attached when the client holds one.
func (s *DiscoverService) Feed(ctx context.Context, tab string) (*DiscoverFeed, error) {
	var q url.Values
	if tab = strings.TrimSpace(tab); tab != "" {
		q = url.Values{"tab": []string{tab}}
	}

	var resp discoverWire
	err := s.client.get(ctx, request{
		path:  "/v1/discover/feed",
		query: q,
		token: s.client.Sessions.Token(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return discoverFromWire(&resp), nil
}

// CatalogService reads the public subscription catalog.
type CatalogService struct {
	client *Client
}

// List returns every plan in the subscription catalog.
func (s *CatalogService) List(ctx context.Context) ([]Plan, error) {
	var resp []planWire
	if err := s.client.get(ctx, request{path: "/v1/subscriptions/catalog"}, &resp); err != nil {
		return nil, err
	}
	return plansFromWire(resp), nil
}
