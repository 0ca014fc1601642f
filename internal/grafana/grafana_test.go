package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortna/stackfleet/types"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewFactory("grafana-token").ForStack(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, c.URL())
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestPrometheusDatasource(t *testing.T) {
	ds := PrometheusDatasource(DatasourceParams{
		Name:      "Acme Co",
		UID:       "fortna-acme-co",
		URL:       "https://prometheus-prod.grafana.net/",
		User:      12345,
		Password:  "glc_secret",
		IsDefault: true,
	})

	assert.Equal(t, "Acme Co", ds.Name)
	assert.Equal(t, "fortna-acme-co", ds.UID)
	assert.Equal(t, int64(1), ds.OrgID)
	assert.Equal(t, types.DatasourcePrometheus, ds.Type)
	assert.Equal(t, "proxy", ds.Access)
	assert.Equal(t, "https://prometheus-prod.grafana.net/api/prom", ds.URL)
	assert.True(t, ds.BasicAuth)
	assert.Equal(t, "12345", ds.BasicAuthUser)
	assert.Equal(t, "glc_secret", ds.SecureJSONData["basicAuthPassword"])
	assert.True(t, ds.IsDefault)
	assert.Equal(t, map[string]any{
		"prometheusType":    "Mimir",
		"prometheusVersion": "2.9.1",
		"timeInterval":      "60s",
	}, ds.JSONData)
}

func TestDatasourceCRUD(t *testing.T) {
	var created, updated map[string]any
	var deleted []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/datasources", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer grafana-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []map[string]any{{"uid": "fortna-acme-co", "name": "Acme Co", "type": "prometheus"}})
	})
	mux.HandleFunc("GET /api/datasources/uid/{uid}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("uid") != "fortna-acme-co" {
			http.Error(w, `{"message":"Data source not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"uid": "fortna-acme-co", "name": "Acme Co", "basicAuthUser": "12345"})
	})
	mux.HandleFunc("POST /api/datasources", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusOK, map[string]any{"id": 3, "message": "Datasource added",
			"datasource": map[string]any{"uid": created["uid"], "name": created["name"]}})
	})
	mux.HandleFunc("PUT /api/datasources/uid/{uid}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		writeJSON(w, http.StatusOK, map[string]any{"datasource": map[string]any{"uid": r.PathValue("uid")}})
	})
	mux.HandleFunc("DELETE /api/datasources/uid/{uid}", func(w http.ResponseWriter, r *http.Request) {
		deleted = append(deleted, "uid:"+r.PathValue("uid"))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Data source deleted"})
	})
	mux.HandleFunc("DELETE /api/datasources/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		deleted = append(deleted, "name:"+r.PathValue("name"))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Data source deleted"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.ListDatasources(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ds, found, err := c.GetDatasource(ctx, "fortna-acme-co")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "12345", ds.BasicAuthUser)

	_, found, err = c.GetDatasource(ctx, "other")
	require.NoError(t, err)
	assert.False(t, found)

	spec := PrometheusDatasource(DatasourceParams{Name: "Acme Co", UID: "fortna-acme-co", URL: "https://prom", User: 1, Password: "pw"})
	out, err := c.CreateDatasource(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "fortna-acme-co", out.UID)
	assert.Equal(t, map[string]any{"basicAuthPassword": "pw"}, created["secureJsonData"])

	_, err = c.UpdateDatasource(ctx, "fortna-acme-co", spec)
	require.NoError(t, err)
	assert.Equal(t, "Acme Co", updated["name"])

	require.NoError(t, c.DeleteDatasourceByUID(ctx, "fortna-acme-co"))
	require.NoError(t, c.DeleteDatasourceByName(ctx, "Acme Co"))
	assert.Equal(t, []string{"uid:fortna-acme-co", "name:Acme Co"}, deleted)
}

func TestDatasourcePermissions(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/access-control/datasources/{uid}/teams/{team}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, "team "+r.PathValue("team")+" "+body["permission"])
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/access-control/datasources/{uid}/builtInRoles/{role}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "grant "+r.PathValue("role"))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/access-control/datasources/{uid}/builtInRoles/{role}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "revoke "+r.PathValue("role"))
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.SetTeamDatasourcePermission(ctx, "ds", 4, types.DatasourcePermissionQuery))
	require.NoError(t, c.SetBuiltInRoleDatasourcePermission(ctx, "ds", "Editor", types.DatasourcePermissionEdit))
	require.NoError(t, c.RemoveBuiltInRoleDatasourcePermission(ctx, "ds", "Viewer"))

	assert.Equal(t, []string{"team 4 Query", "grant Editor", "revoke Viewer"}, calls)
}

func TestFolders(t *testing.T) {
	var createBody map[string]any
	var moved, permissions map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/folders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"uid": "clients", "title": "Clients"}})
	})
	mux.HandleFunc("GET /api/folders/{uid}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /api/folders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
		writeJSON(w, http.StatusOK, map[string]any{"uid": createBody["uid"], "title": createBody["title"]})
	})
	mux.HandleFunc("POST /api/folders/{uid}/move", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&moved))
		writeJSON(w, http.StatusOK, map[string]any{"uid": r.PathValue("uid"), "parentUid": moved["parentUid"]})
	})
	mux.HandleFunc("GET /api/folders/{uid}/permissions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"role": "Viewer", "permission": 1}})
	})
	mux.HandleFunc("POST /api/folders/{uid}/permissions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&permissions))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Folder permissions updated"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	folders, err := c.ListFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)

	_, found, err := c.GetFolder(ctx, "fortna-acme-co")
	require.NoError(t, err)
	assert.False(t, found)

	f, err := c.CreateFolder(ctx, types.FolderSpec{UID: "fortna-acme-co", Title: "Acme Co", ParentUID: "clients"})
	require.NoError(t, err)
	assert.Equal(t, "clients", f.ParentUID)
	assert.Equal(t, float64(1), createBody["orgId"])
	assert.NotContains(t, createBody, "parentUid")
	assert.Equal(t, "clients", moved["parentUid"])

	perms, err := c.GetFolderPermissions(ctx, "fortna-acme-co")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "Viewer", perms[0].Role)

	require.NoError(t, c.UpdateFolderPermissions(ctx, "fortna-acme-co", []types.Permission{{TeamID: 4, Permission: 1}}))
	assert.Contains(t, permissions, "items")
}

func TestTeams(t *testing.T) {
	var assigned map[string]string
	var deleted string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/teams/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Acme Co Viewers", r.URL.Query().Get("name"))
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": 0, "teams": []any{}})
	})
	mux.HandleFunc("POST /api/teams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Team created", "teamId": 4})
	})
	mux.HandleFunc("GET /api/teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 4, "name": "Acme Co Viewers"})
	})
	mux.HandleFunc("DELETE /api/teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/access-control/teams/{id}/roles", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&assigned))
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	teams, err := c.SearchTeams(ctx, "Acme Co Viewers")
	require.NoError(t, err)
	assert.Empty(t, teams)

	team, err := c.CreateTeam(ctx, types.TeamSpec{Name: "Acme Co Viewers"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), team.ID)

	require.NoError(t, c.AssignTeamRole(ctx, 4, "client-viewer"))
	assert.Equal(t, "client-viewer", assigned["roleUid"])

	require.NoError(t, c.DeleteTeam(ctx, 4))
	assert.Equal(t, "4", deleted)
}

func TestCreateRole_FallsBackToExisting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/access-control/roles", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"role already exists"}`, http.StatusBadRequest)
	})
	mux.HandleFunc("GET /api/access-control/roles/{uid}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"uid": r.PathValue("uid"), "name": "custom:client:viewer", "version": 2})
	})
	c := newTestClient(t, mux)

	role, err := c.CreateRole(context.Background(), types.RoleSpec{UID: "client-viewer", Name: "custom:client:viewer"})

	require.NoError(t, err)
	assert.Equal(t, 2, role.Version)
}

func TestCreateRole_FailureWhenMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/access-control/roles", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	c := newTestClient(t, mux)

	_, err := c.CreateRole(context.Background(), types.RoleSpec{UID: "client-viewer"})

	var httpErr *types.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestUpdateAndDeleteRole(t *testing.T) {
	var updated types.Role
	var force string

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/access-control/roles/{uid}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		writeJSON(w, http.StatusOK, updated)
	})
	mux.HandleFunc("DELETE /api/access-control/roles/{uid}", func(w http.ResponseWriter, r *http.Request) {
		force = r.URL.Query().Get("force")
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	role, err := c.UpdateRole(ctx, types.Role{UID: "client-viewer", Version: 2}, types.RoleSpec{Name: "custom:client:viewer"})
	require.NoError(t, err)
	assert.Equal(t, 3, role.Version)
	assert.Equal(t, "client-viewer", updated.UID)

	require.NoError(t, c.DeleteRole(ctx, "client-viewer"))
	assert.Equal(t, "true", force)
}
