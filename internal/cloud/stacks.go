package cloud

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

// ListStacks returns every stack of the organization.
func (c *Client) ListStacks(ctx context.Context) ([]types.Stack, error) {
	var list types.StackList
	path := "/api/orgs/" + restclient.PathEscape(c.orgSlug) + "/instances"
	err := c.rest.Do(ctx, restclient.Request{Method: http.MethodGet, Path: path, Success: []int{http.StatusOK}}, &list)
	if err != nil {
		return nil, fmt.Errorf("list stacks of org %q: %w", c.orgSlug, err)
	}

	c.logger.WithContext(ctx).Debug().Int("count", len(list.Items)).Msg("listed stacks")
	return list.Items, nil
}

// GetStack fetches a stack by id or slug.
func (c *Client) GetStack(ctx context.Context, idOrSlug string) (types.Stack, bool, error) {
	var s types.Stack
	err := c.rest.Get(ctx, "/api/instances/"+restclient.PathEscape(idOrSlug), nil, &s)
	if types.IsNotFound(err) {
		return types.Stack{}, false, nil
	}
	if err != nil {
		return types.Stack{}, false, fmt.Errorf("get stack %q: %w", idOrSlug, err)
	}
	return s, true, nil
}

// CreateStack creates a stack.
func (c *Client) CreateStack(ctx context.Context, spec types.StackSpec) (types.Stack, error) {
	var s types.Stack
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodPost,
		Path:    "/api/instances",
		Body:    spec,
		Success: []int{http.StatusOK},
	}, &s)
	if err != nil {
		return types.Stack{}, fmt.Errorf("create stack %q: %w", spec.Name, err)
	}
	return s, nil
}

// UpdateStack sends the full set of mutable attributes of a stack.
func (c *Client) UpdateStack(ctx context.Context, id int64, update types.StackUpdate) (types.Stack, error) {
	var s types.Stack
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/api/instances/%d", id),
		Body:    update,
		Success: []int{http.StatusOK},
	}, &s)
	if err != nil {
		return types.Stack{}, fmt.Errorf("update stack %d: %w", id, err)
	}
	return s, nil
}

// DeleteStack deletes a stack. It is never called by the provisioning run.
func (c *Client) DeleteStack(ctx context.Context, id int64) error {
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodDelete,
		Path:    fmt.Sprintf("/api/instances/%d", id),
		Success: []int{http.StatusOK, http.StatusNoContent},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete stack %d: %w", id, err)
	}
	return nil
}

// RestartStack restarts the Grafana instance of a stack.
func (c *Client) RestartStack(ctx context.Context, slug string) error {
	if err := c.rest.Post(ctx, "/api/instances/"+restclient.PathEscape(slug)+"/restart", nil, nil, nil); err != nil {
		return fmt.Errorf("restart stack %q: %w", slug, err)
	}
	return nil
}

// ListStackDatasources lists the datasources provisioned on a stack as
// seen by the control plane.
func (c *Client) ListStackDatasources(ctx context.Context, slug string) ([]types.Datasource, error) {
	var list struct {
		Items []types.Datasource `json:"items"`
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodGet,
		Path:    "/api/instances/" + restclient.PathEscape(slug) + "/datasources",
		Success: []int{http.StatusOK},
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("list datasources of stack %q: %w", slug, err)
	}
	return list.Items, nil
}
