// Package grafana talks to the HTTP API of one Grafana stack.
package grafana

import (
	"fmt"
	"net/http"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/telemetry"
)

// DefaultOrgID is the organization every Grafana Cloud stack starts with.
const DefaultOrgID = 1

// Client is a Grafana API client bound to one stack URL.
type Client struct {
	rest   *restclient.Client
	logger *telemetry.Logger
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

// NewClient creates a client for the Grafana instance at stackURL.
func NewClient(stackURL, token string, opts ...Option) (*Client, error) {
	o := options{httpClient: http.DefaultClient, logger: telemetry.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.Component("grafana")
	rest, err := restclient.New(stackURL,
		restclient.WithHTTPClient(o.httpClient),
		restclient.WithLogger(logger),
		restclient.WithBearerToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("create grafana client: %w", err)
	}
	return &Client{rest: rest, logger: logger}, nil
}

// URL returns the stack URL the client talks to.
func (c *Client) URL() string {
	return c.rest.BaseURL()
}

// Factory builds clients for stacks discovered at runtime.
type Factory struct {
	token string
	opts  []Option
}

// NewFactory returns a factory sharing token and options across stacks.
func NewFactory(token string, opts ...Option) *Factory {
	return &Factory{token: token, opts: opts}
}

// ForStack returns a client for the stack URL.
func (f *Factory) ForStack(stackURL string) (*Client, error) {
	return NewClient(stackURL, f.token, f.opts...)
}
