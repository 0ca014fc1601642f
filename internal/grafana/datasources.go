package grafana

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

// ListDatasources lists every datasource of the stack.
func (c *Client) ListDatasources(ctx context.Context) ([]types.Datasource, error) {
	var list []types.Datasource
	if err := c.rest.Get(ctx, "/api/datasources", nil, &list); err != nil {
		return nil, fmt.Errorf("list datasources: %w", err)
	}
	c.logger.WithContext(ctx).Debug().Int("count", len(list)).Msg("listed datasources")
	return list, nil
}

// GetDatasource fetches a datasource by uid.
func (c *Client) GetDatasource(ctx context.Context, uid string) (types.Datasource, bool, error) {
	var ds types.Datasource
	err := c.rest.Get(ctx, "/api/datasources/uid/"+restclient.PathEscape(uid), nil, &ds)
	if types.IsNotFound(err) {
		return types.Datasource{}, false, nil
	}
	if err != nil {
		return types.Datasource{}, false, fmt.Errorf("get datasource %q: %w", uid, err)
	}
	return ds, true, nil
}

type datasourceResponse struct {
	ID         int64            `json:"id"`
	Message    string           `json:"message"`
	Datasource types.Datasource `json:"datasource"`
}

// CreateDatasource creates a datasource.
func (c *Client) CreateDatasource(ctx context.Context, spec types.DatasourceSpec) (types.Datasource, error) {
	var resp datasourceResponse
	if err := c.rest.Post(ctx, "/api/datasources", nil, spec, &resp); err != nil {
		return types.Datasource{}, fmt.Errorf("create datasource %q: %w", spec.Name, err)
	}
	return resp.Datasource, nil
}

// UpdateDatasource replaces the datasource with the given uid.
func (c *Client) UpdateDatasource(ctx context.Context, uid string, spec types.DatasourceSpec) (types.Datasource, error) {
	var resp datasourceResponse
	if err := c.rest.Put(ctx, "/api/datasources/uid/"+restclient.PathEscape(uid), spec, &resp); err != nil {
		return types.Datasource{}, fmt.Errorf("update datasource %q: %w", uid, err)
	}
	return resp.Datasource, nil
}

// DeleteDatasourceByUID deletes a datasource by uid.
func (c *Client) DeleteDatasourceByUID(ctx context.Context, uid string) error {
	if err := c.rest.Delete(ctx, "/api/datasources/uid/"+restclient.PathEscape(uid), nil); err != nil {
		return fmt.Errorf("delete datasource %q: %w", uid, err)
	}
	return nil
}

// DeleteDatasourceByName deletes a datasource by name.
func (c *Client) DeleteDatasourceByName(ctx context.Context, name string) error {
	if err := c.rest.Delete(ctx, "/api/datasources/name/"+restclient.PathEscape(name), nil); err != nil {
		return fmt.Errorf("delete datasource named %q: %w", name, err)
	}
	return nil
}

// DatasourceParams are the inputs shared by the datasource builders.
type DatasourceParams struct {
	Name      string
	UID       string
	URL       string
	User      int64
	Password  string
	OrgID     int64
	IsDefault bool
}

// PrometheusDatasource builds a proxy-mode Mimir datasource reading from
// the metrics endpoint at params.URL with basic auth.
func PrometheusDatasource(p DatasourceParams) types.DatasourceSpec {
	return types.DatasourceSpec{
		Name:          p.Name,
		OrgID:         orgID(p.OrgID),
		UID:           p.UID,
		Type:          types.DatasourcePrometheus,
		TypeName:      "Prometheus",
		TypeLogoURL:   "public/app/plugins/datasource/prometheus/img/prometheus_logo.svg",
		Access:        "proxy",
		URL:           strings.TrimRight(p.URL, "/") + "/api/prom",
		BasicAuth:     true,
		BasicAuthUser: strconv.FormatInt(p.User, 10),
		IsDefault:     p.IsDefault,
		SecureJSONData: map[string]any{
			"basicAuthPassword": p.Password,
		},
		JSONData: map[string]any{
			"prometheusType":    "Mimir",
			"prometheusVersion": "2.9.1",
			"timeInterval":      "60s",
		},
	}
}

// SetTeamDatasourcePermission grants a team a permission level
// (Query, Edit or Admin) on a datasource.
func (c *Client) SetTeamDatasourcePermission(ctx context.Context, uid string, teamID int64, permission string) error {
	path := fmt.Sprintf("/api/access-control/datasources/%s/teams/%d", restclient.PathEscape(uid), teamID)
	if err := c.rest.Post(ctx, path, nil, map[string]string{"permission": permission}, nil); err != nil {
		return fmt.Errorf("set team %d permission on datasource %q: %w", teamID, uid, err)
	}
	return nil
}

// SetBuiltInRoleDatasourcePermission grants a basic role (Viewer, Editor,
// Admin) a permission level on a datasource.
func (c *Client) SetBuiltInRoleDatasourcePermission(ctx context.Context, uid, role, permission string) error {
	path := "/api/access-control/datasources/" + restclient.PathEscape(uid) + "/builtInRoles/" + restclient.PathEscape(role)
	if err := c.rest.Post(ctx, path, nil, map[string]string{"permission": permission}, nil); err != nil {
		return fmt.Errorf("set %s permission on datasource %q: %w", role, uid, err)
	}
	return nil
}

// RemoveBuiltInRoleDatasourcePermission revokes a basic role's access to a datasource.
func (c *Client) RemoveBuiltInRoleDatasourcePermission(ctx context.Context, uid, role string) error {
	path := "/api/access-control/datasources/" + restclient.PathEscape(uid) + "/builtInRoles/" + restclient.PathEscape(role)
	if err := c.rest.Do(ctx, restclient.Request{Method: http.MethodDelete, Path: path}, nil); err != nil {
		return fmt.Errorf("remove %s permission on datasource %q: %w", role, uid, err)
	}
	return nil
}

func orgID(id int64) int64 {
	if id == 0 {
		return DefaultOrgID
	}
	return id
}
