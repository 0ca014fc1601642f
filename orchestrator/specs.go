package orchestrator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fortna/stackfleet/internal/grafana"
	"github.com/fortna/stackfleet/types"
)

// Scopes granted to every client access policy.
var ReadScopes = []string{"metrics:read", "logs:read", "traces:read"}

// StackSpecFor describes the dedicated stack of a client, created in the
// main stack's region.
func StackSpecFor(c types.Client, slug, environment string, main types.Stack) types.StackSpec {
	return types.StackSpec{
		Name:        c.Name,
		Slug:        slug,
		Region:      main.RegionSlug,
		Description: "Stack for " + c.Name,
		Labels: map[string]string{
			"client-name":        c.Name,
			"client-slug":        slug,
			"client-environment": environment,
		},
	}
}

// LabelSelector restricts a policy to the series of one client.
func LabelSelector(clientName, environment string) string {
	return fmt.Sprintf(`{client_name=%q, client_environment=%q}`, clientName, environment)
}

// AccessPolicySpecFor scopes read access on the main stack to the
// client's series, in the region of the client's stack.
func AccessPolicySpecFor(c types.Client, slug, environment string, main, stack types.Stack) types.AccessPolicySpec {
	return types.AccessPolicySpec{
		Name:        slug + "-access-policy",
		DisplayName: fmt.Sprintf("Access policy - Data from %s for %s in stack %s", main.Name, stack.Name, slug),
		Realms: []types.Realm{{
			Type:          types.RealmStack,
			Identifier:    strconv.FormatInt(main.ID, 10),
			LabelPolicies: []types.LabelPolicy{{Selector: LabelSelector(c.Name, environment)}},
		}},
		Scopes: append([]string(nil), ReadScopes...),
		Region: stack.RegionSlug,
	}
}

// TokenSpecFor binds a token to the policy, expiring at expiresAt.
func TokenSpecFor(c types.Client, slug, policyID, region string, expiresAt time.Time) types.TokenSpec {
	return types.TokenSpec{
		Name:           slug + "-token",
		DisplayName:    "Token for " + c.Name,
		AccessPolicyID: policyID,
		ExpiresAt:      expiresAt.UTC(),
		Region:         region,
	}
}

// DatasourceSpecFor points a prometheus datasource on the client stack at
// the main stack's metrics endpoint, authenticated with the client token.
func DatasourceSpecFor(c types.Client, slug string, main types.Stack, secret string, isDefault bool) types.DatasourceSpec {
	return grafana.PrometheusDatasource(grafana.DatasourceParams{
		Name:      c.Name,
		UID:       slug,
		URL:       main.PromURL,
		User:      main.PromID,
		Password:  secret,
		IsDefault: isDefault,
	})
}

// FolderSpecFor is the client's dashboard folder on its own stack.
func FolderSpecFor(c types.Client, slug string) types.FolderSpec {
	return types.FolderSpec{UID: slug, Title: c.Name}
}

// TeamSpecFor is the viewer team of a client stack.
func TeamSpecFor(c types.Client) types.TeamSpec {
	return types.TeamSpec{Name: c.Name + " Viewers"}
}

// ViewerRoleSpecFor grants query on the client datasource and read on the
// client folder.
func ViewerRoleSpecFor(c types.Client, slug string) types.RoleSpec {
	return types.RoleSpec{
		UID:         slug + "-viewer",
		Name:        "custom:" + slug + ":viewer",
		DisplayName: c.Name + " viewer",
		Description: "Query the " + c.Name + " datasource and read its dashboards",
		Group:       "stackfleet",
		Permissions: []types.RolePermission{
			{Action: "datasources:query", Scope: "datasources:uid:" + slug},
			{Action: "datasources:read", Scope: "datasources:uid:" + slug},
			{Action: "folders:read", Scope: "folders:uid:" + slug},
			{Action: "dashboards:read", Scope: "folders:uid:" + slug},
		},
	}
}
