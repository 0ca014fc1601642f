package cloud

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

const tokensPath = "/api/v1/tokens"

// ListTokens lists access policy tokens matching the filter. Secrets are
// never part of a listing.
func (c *Client) ListTokens(ctx context.Context, f types.TokenFilter) ([]types.Token, error) {
	q := regionQuery(f.Region)
	setIf(q, "name", f.Name)
	setIf(q, "accessPolicyId", f.AccessPolicyID)
	setIf(q, "accessPolicyName", f.AccessPolicyName)
	setIf(q, "pageCursor", f.PageCursor)
	if !f.ExpiresBefore.IsZero() {
		q.Set("expiresBefore", f.ExpiresBefore.UTC().Format(time.RFC3339))
	}
	if !f.ExpiresAfter.IsZero() {
		q.Set("expiresAfter", f.ExpiresAfter.UTC().Format(time.RFC3339))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}

	items, err := listAll[types.Token](ctx, c.rest, tokensPath, q)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return items, nil
}

// GetToken fetches one token. The secret is not returned.
func (c *Client) GetToken(ctx context.Context, id, region string) (types.Token, bool, error) {
	var t types.Token
	err := c.rest.Get(ctx, tokensPath+"/"+restclient.PathEscape(id), regionQuery(region), &t)
	if types.IsNotFound(err) {
		return types.Token{}, false, nil
	}
	if err != nil {
		return types.Token{}, false, fmt.Errorf("get token %q: %w", id, err)
	}
	return t, true, nil
}

// CreateToken mints a token. The response is the only place its secret
// ever appears.
func (c *Client) CreateToken(ctx context.Context, spec types.TokenSpec) (types.Token, error) {
	var t types.Token
	err := c.rest.Post(ctx, tokensPath, regionQuery(spec.Region), spec, &t)
	if err != nil {
		return types.Token{}, fmt.Errorf("create token %q: %w", spec.Name, err)
	}
	return t, nil
}

// UpdateTokenDisplayName renames a token. Nothing else about a token is mutable.
func (c *Client) UpdateTokenDisplayName(ctx context.Context, id, region, displayName string) (types.Token, error) {
	var t types.Token
	err := c.rest.Post(ctx, tokensPath+"/"+restclient.PathEscape(id), regionQuery(region),
		types.TokenUpdate{DisplayName: displayName}, &t)
	if err != nil {
		return types.Token{}, fmt.Errorf("update token %q: %w", id, err)
	}
	return t, nil
}

// DeleteToken revokes a token.
func (c *Client) DeleteToken(ctx context.Context, id, region string) error {
	err := c.rest.Do(ctx, restclient.Request{
		Method:  http.MethodDelete,
		Path:    tokensPath + "/" + restclient.PathEscape(id),
		Query:   regionQuery(region),
		Success: []int{http.StatusNoContent},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete token %q: %w", id, err)
	}
	return nil
}
