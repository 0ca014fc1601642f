package grafana

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

const rolesPath = "/api/access-control/roles"

// ListRoles lists the custom roles of the stack.
func (c *Client) ListRoles(ctx context.Context) ([]types.Role, error) {
	var roles []types.Role
	if err := c.rest.Get(ctx, rolesPath, nil, &roles); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// GetRole fetches a custom role by uid.
func (c *Client) GetRole(ctx context.Context, uid string) (types.Role, bool, error) {
	var r types.Role
	err := c.rest.Get(ctx, rolesPath+"/"+restclient.PathEscape(uid), nil, &r)
	if types.IsNotFound(err) {
		return types.Role{}, false, nil
	}
	if err != nil {
		return types.Role{}, false, fmt.Errorf("get role %q: %w", uid, err)
	}
	return r, true, nil
}

// CreateRole creates a custom role. When the create is refused because the
// role already exists, the stored role is returned instead.
func (c *Client) CreateRole(ctx context.Context, spec types.RoleSpec) (types.Role, error) {
	var r types.Role
	createErr := c.rest.Post(ctx, rolesPath, nil, spec, &r)
	if createErr == nil {
		return r, nil
	}

	existing, found, err := c.GetRole(ctx, spec.UID)
	if err != nil || !found {
		return types.Role{}, fmt.Errorf("create role %q: %w", spec.UID, createErr)
	}
	c.logger.WithContext(ctx).Debug().Str("uid", spec.UID).Msg("role already exists")
	return existing, nil
}

// UpdateRole replaces a custom role. Grafana requires the version to
// increase on every update.
func (c *Client) UpdateRole(ctx context.Context, current types.Role, spec types.RoleSpec) (types.Role, error) {
	body := spec
	body.UID = current.UID
	body.Version = current.Version + 1

	var r types.Role
	if err := c.rest.Put(ctx, rolesPath+"/"+restclient.PathEscape(current.UID), body, &r); err != nil {
		return types.Role{}, fmt.Errorf("update role %q: %w", current.UID, err)
	}
	return r, nil
}

// DeleteRole force-deletes a custom role, revoking existing assignments.
func (c *Client) DeleteRole(ctx context.Context, uid string) error {
	q := url.Values{"force": {"true"}}
	if err := c.rest.Delete(ctx, rolesPath+"/"+restclient.PathEscape(uid), q); err != nil {
		return fmt.Errorf("delete role %q: %w", uid, err)
	}
	return nil
}
