package cloud

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

const accessPoliciesPath = "/api/v1/accesspolicies"

// ListAccessPolicies lists access policies matching the filter.
func (c *Client) ListAccessPolicies(ctx context.Context, f types.AccessPolicyFilter) ([]types.AccessPolicy, error) {
	q := regionQuery(f.Region)
	setIf(q, "name", f.Name)
	setIf(q, "realmType", f.RealmType)
	setIf(q, "realmIdentifier", f.RealmIdentifier)
	setIf(q, "status", f.Status)
	setIf(q, "pageCursor", f.PageCursor)
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}

	items, err := listAll[types.AccessPolicy](ctx, c.rest, accessPoliciesPath, q)
	if err != nil {
		return nil, fmt.Errorf("list access policies: %w", err)
	}
	return items, nil
}

// GetAccessPolicy fetches one access policy.
func (c *Client) GetAccessPolicy(ctx context.Context, id, region string) (types.AccessPolicy, bool, error) {
	var p types.AccessPolicy
	err := c.rest.Get(ctx, accessPoliciesPath+"/"+restclient.PathEscape(id), regionQuery(region), &p)
	if types.IsNotFound(err) {
		return types.AccessPolicy{}, false, nil
	}
	if err != nil {
		return types.AccessPolicy{}, false, fmt.Errorf("get access policy %q: %w", id, err)
	}
	return p, true, nil
}

// CreateAccessPolicy creates an access policy in the spec's region.
func (c *Client) CreateAccessPolicy(ctx context.Context, spec types.AccessPolicySpec) (types.AccessPolicy, error) {
	var p types.AccessPolicy
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodPost,
		Path:    accessPoliciesPath,
		Query:   regionQuery(spec.Region),
		Body:    spec,
		Success: []int{http.StatusOK},
	}, &p)
	if err != nil {
		return types.AccessPolicy{}, fmt.Errorf("create access policy %q: %w", spec.Name, err)
	}
	return p, nil
}

// UpdateAccessPolicy replaces display name, realms and scopes of a policy.
func (c *Client) UpdateAccessPolicy(ctx context.Context, id string, spec types.AccessPolicySpec) (types.AccessPolicy, error) {
	var p types.AccessPolicy
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodPost,
		Path:    accessPoliciesPath + "/" + restclient.PathEscape(id),
		Query:   regionQuery(spec.Region),
		Body:    spec.Update(),
		Success: []int{http.StatusOK},
	}, &p)
	if err != nil {
		return types.AccessPolicy{}, fmt.Errorf("update access policy %q: %w", id, err)
	}
	return p, nil
}

// DeleteAccessPolicy deletes an access policy by id.
func (c *Client) DeleteAccessPolicy(ctx context.Context, id, region string) error {
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodDelete,
		Path:    accessPoliciesPath + "/" + restclient.PathEscape(id),
		Query:   regionQuery(region),
		Success: []int{http.StatusNoContent},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete access policy %q: %w", id, err)
	}
	return nil
}

// DeleteAccessPolicyByName deletes every policy of the region carrying
// the name, whatever realm it is bound to. It returns the ids deleted,
// including those deleted before a failure.
func (c *Client) DeleteAccessPolicyByName(ctx context.Context, name, region string) ([]string, error) {
	policies, err := c.ListAccessPolicies(ctx, types.AccessPolicyFilter{Name: name, Region: region})
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, p := range policies {
		if p.Name != name {
			continue
		}
		if err := c.DeleteAccessPolicy(ctx, p.ID, region); err != nil {
			return deleted, err
		}
		deleted = append(deleted, p.ID)
	}
	return deleted, nil
}
