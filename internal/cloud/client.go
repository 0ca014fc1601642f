// Package cloud talks to the Grafana Cloud control plane: stacks, access
// policies and access policy tokens.
package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/telemetry"
	"github.com/fortna/stackfleet/types"
)

// Client is a Grafana Cloud API client scoped to one organization.
type Client struct {
	rest    *restclient.Client
	orgSlug string
	logger  *telemetry.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *telemetry.Logger
}

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewClient creates a client for the cloud API at baseURL, authenticated
// with the cloud access token.
func NewClient(baseURL, token, orgSlug string, opts ...Option) (*Client, error) {
	o := options{httpClient: http.DefaultClient, logger: telemetry.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.Component("cloud")
	rest, err := restclient.New(baseURL,
		restclient.WithHTTPClient(o.httpClient),
		restclient.WithLogger(logger),
		restclient.WithBearerToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("create cloud client: %w", err)
	}

	return &Client{rest: rest, orgSlug: orgSlug, logger: logger}, nil
}

// OrgSlug returns the organization the client lists stacks for.
func (c *Client) OrgSlug() string {
	return c.orgSlug
}

// page is the envelope of paginated v1 listings.
type page[T any] struct {
	Items    []T                `json:"items"`
	Metadata types.PageMetadata `json:"metadata"`
}

// listAll follows pagination cursors until the last page. A caller-supplied
// cursor in query limits the listing to that page.
func listAll[T any](ctx context.Context, rest *restclient.Client, path string, query url.Values) ([]T, error) {
	single := query.Get("pageCursor") != ""

	var items []T
	seen := map[string]bool{}
	for {
		var p page[T]
		if err := rest.Get(ctx, path, query, &p); err != nil {
			return nil, err
		}
		items = append(items, p.Items...)

		cursor := nextCursor(p.Metadata)
		if single || cursor == "" || seen[cursor] {
			return items, nil
		}
		seen[cursor] = true
		query.Set("pageCursor", cursor)
	}
}

func nextCursor(m types.PageMetadata) string {
	if m.Pagination.PageCursor != "" {
		return m.Pagination.PageCursor
	}
	if m.Pagination.NextPage == "" {
		return ""
	}
	u, err := url.Parse(m.Pagination.NextPage)
	if err != nil {
		return ""
	}
	return u.Query().Get("pageCursor")
}

func regionQuery(region string) url.Values {
	q := url.Values{}
	if region != "" {
		q.Set("region", region)
	}
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
