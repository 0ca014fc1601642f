package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/types"
)

func TestLabelSelector(t *testing.T) {
	assert.Equal(t, `{client_name="Acme Co", client_environment="Production"}`, LabelSelector("Acme Co", "Production"))
}

func TestTokenSpecFor(t *testing.T) {
	c := client("acme-1", "Acme Co", "Production")
	expires := time.Date(2027, 10, 17, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	spec := TokenSpecFor(c, "fortna-acme-co", "ap-1", "prod-eu-west-2", expires)

	assert.Equal(t, "fortna-acme-co-token", spec.Name)
	assert.Equal(t, "Token for Acme Co", spec.DisplayName)
	assert.Equal(t, "ap-1", spec.AccessPolicyID)
	assert.Equal(t, "prod-eu-west-2", spec.Region)
	assert.Equal(t, time.UTC, spec.ExpiresAt.Location())
	assert.True(t, spec.ExpiresAt.Equal(expires))
}

func TestAccessPolicySpecFor_ScopesAreCopied(t *testing.T) {
	c := client("acme-1", "Acme Co", "Production")
	spec := AccessPolicySpecFor(c, "fortna-acme-co", "Production", mainStack(), types.Stack{Name: "Acme Co", RegionSlug: "prod-us-east-0"})

	spec.Scopes[0] = "metrics:write"

	assert.Equal(t, "metrics:read", ReadScopes[0])
}

func TestDatasourceFamily_NameBeatsUID(t *testing.T) {
	g := newFakeGrafana()
	g.datasources["fortna-acme-co"] = types.Datasource{UID: "fortna-acme-co", Name: "Someone else"}
	g.datasources["legacy"] = types.Datasource{UID: "legacy", Name: "Acme Co"}

	spec := DatasourceSpecFor(client("acme-1", "Acme Co", "Production"), "fortna-acme-co", mainStack(), "s3cret", true)
	plan, err := reconciler.PlanUpsert(context.Background(), reconciler.NewEngine(), DatasourceFamily(g, false), spec)

	require.NoError(t, err)
	assert.Equal(t, reconciler.ActionUpdate, plan.Action)
	assert.Equal(t, "legacy", plan.MatchID)
	assert.Zero(t, plan.Conflicts)
}

func TestTokenFamily_RereadKeepsSecret(t *testing.T) {
	cloud := newFakeCloud()
	spec := TokenSpecFor(client("acme-1", "Acme Co", "Production"), "fortna-acme-co", "ap-1", "us", time.Now().Add(time.Hour))

	out, err := reconciler.Upsert(context.Background(), reconciler.NewEngine(), TokenFamily(cloud, true), spec)

	require.NoError(t, err)
	assert.Equal(t, cloud.tokenSecrets[0], out.Entity.Secret)
}
