package orchestrator

import (
	"context"
	"strconv"

	"github.com/fortna/stackfleet/reconciler"
	"github.com/fortna/stackfleet/types"
)

// CloudAPI is the Grafana Cloud control plane as used by the pipeline.
type CloudAPI interface {
	ListStacks(ctx context.Context) ([]types.Stack, error)
	CreateStack(ctx context.Context, spec types.StackSpec) (types.Stack, error)
	UpdateStack(ctx context.Context, id int64, update types.StackUpdate) (types.Stack, error)
	DeleteStack(ctx context.Context, id int64) error

	ListAccessPolicies(ctx context.Context, f types.AccessPolicyFilter) ([]types.AccessPolicy, error)
	GetAccessPolicy(ctx context.Context, id, region string) (types.AccessPolicy, bool, error)
	CreateAccessPolicy(ctx context.Context, spec types.AccessPolicySpec) (types.AccessPolicy, error)
	UpdateAccessPolicy(ctx context.Context, id string, spec types.AccessPolicySpec) (types.AccessPolicy, error)
	DeleteAccessPolicy(ctx context.Context, id, region string) error
	DeleteAccessPolicyByName(ctx context.Context, name, region string) ([]string, error)

	ListTokens(ctx context.Context, f types.TokenFilter) ([]types.Token, error)
	GetToken(ctx context.Context, id, region string) (types.Token, bool, error)
	CreateToken(ctx context.Context, spec types.TokenSpec) (types.Token, error)
	UpdateTokenDisplayName(ctx context.Context, id, region, displayName string) (types.Token, error)
	DeleteToken(ctx context.Context, id, region string) error
}

// GrafanaAPI is the per-stack Grafana API as used by the pipeline.
type GrafanaAPI interface {
	ListDatasources(ctx context.Context) ([]types.Datasource, error)
	CreateDatasource(ctx context.Context, spec types.DatasourceSpec) (types.Datasource, error)
	UpdateDatasource(ctx context.Context, uid string, spec types.DatasourceSpec) (types.Datasource, error)
	DeleteDatasourceByUID(ctx context.Context, uid string) error
	SetTeamDatasourcePermission(ctx context.Context, uid string, teamID int64, permission string) error

	ListFolders(ctx context.Context) ([]types.Folder, error)
	CreateFolder(ctx context.Context, spec types.FolderSpec) (types.Folder, error)
	UpdateFolder(ctx context.Context, current types.Folder, spec types.FolderSpec) (types.Folder, error)
	DeleteFolder(ctx context.Context, uid string) error
	GetFolderPermissions(ctx context.Context, uid string) ([]types.Permission, error)
	UpdateFolderPermissions(ctx context.Context, uid string, items []types.Permission) error

	SearchTeams(ctx context.Context, name string) ([]types.Team, error)
	CreateTeam(ctx context.Context, spec types.TeamSpec) (types.Team, error)
	UpdateTeam(ctx context.Context, id int64, spec types.TeamSpec) (types.Team, error)
	DeleteTeam(ctx context.Context, id int64) error
	AssignTeamRole(ctx context.Context, teamID int64, roleUID string) error

	ListRoles(ctx context.Context) ([]types.Role, error)
	CreateRole(ctx context.Context, spec types.RoleSpec) (types.Role, error)
	UpdateRole(ctx context.Context, current types.Role, spec types.RoleSpec) (types.Role, error)
	DeleteRole(ctx context.Context, uid string) error
}

// Family names, as they appear in logs, metrics and the journal.
const (
	FamilyStack        = "stack"
	FamilyAccessPolicy = "access_policy"
	FamilyToken        = "token"
	FamilyDatasource   = "datasource"
	FamilyFolder       = "folder"
	FamilyTeam         = "team"
	FamilyRole         = "role"
)

// StackFamily reconciles stacks by exact name. Stacks are never replaced.
func StackFamily(api CloudAPI) reconciler.Family[types.StackSpec, types.Stack] {
	return reconciler.Family[types.StackSpec, types.Stack]{
		Name: FamilyStack,
		Key:  func(s types.StackSpec) string { return s.Name },
		ID:   func(s types.Stack) string { return strconv.FormatInt(s.ID, 10) },
		List: func(ctx context.Context, _ types.StackSpec) ([]types.Stack, error) {
			return api.ListStacks(ctx)
		},
		Create: api.CreateStack,
		Update: func(ctx context.Context, current types.Stack, spec types.StackSpec) (types.Stack, error) {
			return api.UpdateStack(ctx, current.ID, spec.Update())
		},
		Delete: func(ctx context.Context, _ types.StackSpec, s types.Stack) error {
			return api.DeleteStack(ctx, s.ID)
		},
		Match: reconciler.MatchByKey(
			func(s types.StackSpec) string { return s.Name },
			func(s types.Stack) string { return s.Name },
		),
	}
}

// AccessPolicyFamily reconciles access policies by name within the spec's
// realm and region. A failed create is retried once after deleting every
// policy of the region carrying the name, whatever its realm.
func AccessPolicyFamily(api CloudAPI) reconciler.Family[types.AccessPolicySpec, types.AccessPolicy] {
	return reconciler.Family[types.AccessPolicySpec, types.AccessPolicy]{
		Name: FamilyAccessPolicy,
		Key:  func(s types.AccessPolicySpec) string { return s.Name },
		ID:   func(p types.AccessPolicy) string { return p.ID },
		List: func(ctx context.Context, spec types.AccessPolicySpec) ([]types.AccessPolicy, error) {
			realmType, realmID := spec.RealmFilter()
			return api.ListAccessPolicies(ctx, types.AccessPolicyFilter{
				Name:            spec.Name,
				RealmType:       realmType,
				RealmIdentifier: realmID,
				Region:          spec.Region,
			})
		},
		Create: api.CreateAccessPolicy,
		Update: func(ctx context.Context, current types.AccessPolicy, spec types.AccessPolicySpec) (types.AccessPolicy, error) {
			return api.UpdateAccessPolicy(ctx, current.ID, spec)
		},
		Delete: func(ctx context.Context, spec types.AccessPolicySpec, p types.AccessPolicy) error {
			return api.DeleteAccessPolicy(ctx, p.ID, spec.Region)
		},
		Match: reconciler.MatchByKey(
			func(s types.AccessPolicySpec) string { return s.Name },
			func(p types.AccessPolicy) string { return p.Name },
		),
		OnCreateConflict: reconciler.RecreateOnConflict(func(ctx context.Context, spec types.AccessPolicySpec) ([]string, error) {
			return api.DeleteAccessPolicyByName(ctx, spec.Name, spec.Region)
		}),
		Reread: func(ctx context.Context, spec types.AccessPolicySpec, written types.AccessPolicy) (types.AccessPolicy, bool, error) {
			return api.GetAccessPolicy(ctx, written.ID, spec.Region)
		},
	}
}

// TokenFamily reconciles tokens by name. With replace an existing token is
// deleted and minted again, so every run yields a fresh secret. Without it
// only the display name is updated and the returned token has no secret.
func TokenFamily(api CloudAPI, replace bool) reconciler.Family[types.TokenSpec, types.Token] {
	onMatch := reconciler.UpdateOnMatch
	if replace {
		onMatch = reconciler.ReplaceOnMatch
	}

	return reconciler.Family[types.TokenSpec, types.Token]{
		Name: FamilyToken,
		Key:  func(s types.TokenSpec) string { return s.Name },
		ID:   func(t types.Token) string { return t.ID },
		List: func(ctx context.Context, spec types.TokenSpec) ([]types.Token, error) {
			return api.ListTokens(ctx, types.TokenFilter{Name: spec.Name, Region: spec.Region})
		},
		Create: api.CreateToken,
		Update: func(ctx context.Context, current types.Token, spec types.TokenSpec) (types.Token, error) {
			t, err := api.UpdateTokenDisplayName(ctx, current.ID, spec.Region, spec.DisplayName)
			if err == nil && t.ID == "" {
				t.ID = current.ID
			}
			return t, err
		},
		Delete: func(ctx context.Context, spec types.TokenSpec, t types.Token) error {
			return api.DeleteToken(ctx, t.ID, spec.Region)
		},
		Match: reconciler.MatchByKey(
			func(s types.TokenSpec) string { return s.Name },
			func(t types.Token) string { return t.Name },
		),
		OnMatch: onMatch,
		// The secret is only in the create response; the re-read keeps it.
		Reread: func(ctx context.Context, spec types.TokenSpec, written types.Token) (types.Token, bool, error) {
			t, found, err := api.GetToken(ctx, written.ID, spec.Region)
			if err != nil || !found {
				return t, found, err
			}
			t.Secret = written.Secret
			return t, true, nil
		},
	}
}

// DatasourceFamily reconciles datasources by name, falling back to uid.
// With deleteConflicts a datasource holding the uid under another name is
// deleted before anything is written.
func DatasourceFamily(api GrafanaAPI, deleteConflicts bool) reconciler.Family[types.DatasourceSpec, types.Datasource] {
	name := func(d types.Datasource) string { return d.Name }
	uid := func(d types.Datasource) string { return d.UID }

	f := reconciler.Family[types.DatasourceSpec, types.Datasource]{
		Name: FamilyDatasource,
		Key:  name,
		ID:   uid,
		List: func(ctx context.Context, _ types.DatasourceSpec) ([]types.Datasource, error) {
			return api.ListDatasources(ctx)
		},
		Create: api.CreateDatasource,
		Update: func(ctx context.Context, current types.Datasource, spec types.DatasourceSpec) (types.Datasource, error) {
			return api.UpdateDatasource(ctx, current.UID, spec)
		},
		Delete: func(ctx context.Context, _ types.DatasourceSpec, d types.Datasource) error {
			return api.DeleteDatasourceByUID(ctx, d.UID)
		},
		Match: reconciler.MatchFirst(
			reconciler.MatchByKey(name, name),
			reconciler.MatchByKey(uid, uid),
		),
	}
	if deleteConflicts {
		f.DeleteConflicts = reconciler.CollidesOn(uid, uid, name, name)
	}
	return f
}

// FolderFamily reconciles folders by uid.
func FolderFamily(api GrafanaAPI) reconciler.Family[types.FolderSpec, types.Folder] {
	return reconciler.Family[types.FolderSpec, types.Folder]{
		Name: FamilyFolder,
		Key:  func(s types.FolderSpec) string { return s.UID },
		ID:   func(f types.Folder) string { return f.UID },
		List: func(ctx context.Context, _ types.FolderSpec) ([]types.Folder, error) {
			return api.ListFolders(ctx)
		},
		Create: api.CreateFolder,
		Update: api.UpdateFolder,
		Delete: func(ctx context.Context, _ types.FolderSpec, f types.Folder) error {
			return api.DeleteFolder(ctx, f.UID)
		},
		Match: reconciler.MatchByKey(
			func(s types.FolderSpec) string { return s.UID },
			func(f types.Folder) string { return f.UID },
		),
	}
}

// TeamFamily reconciles teams by name.
func TeamFamily(api GrafanaAPI) reconciler.Family[types.TeamSpec, types.Team] {
	return reconciler.Family[types.TeamSpec, types.Team]{
		Name: FamilyTeam,
		Key:  func(s types.TeamSpec) string { return s.Name },
		ID:   func(t types.Team) string { return strconv.FormatInt(t.ID, 10) },
		List: func(ctx context.Context, spec types.TeamSpec) ([]types.Team, error) {
			return api.SearchTeams(ctx, spec.Name)
		},
		Create: api.CreateTeam,
		Update: func(ctx context.Context, current types.Team, spec types.TeamSpec) (types.Team, error) {
			return api.UpdateTeam(ctx, current.ID, spec)
		},
		Delete: func(ctx context.Context, _ types.TeamSpec, t types.Team) error {
			return api.DeleteTeam(ctx, t.ID)
		},
		Match: reconciler.MatchByKey(
			func(s types.TeamSpec) string { return s.Name },
			func(t types.Team) string { return t.Name },
		),
	}
}

// RoleFamily reconciles custom roles by uid. CreateRole already falls
// back to the existing role when the create is rejected.
func RoleFamily(api GrafanaAPI) reconciler.Family[types.RoleSpec, types.Role] {
	uid := func(r types.Role) string { return r.UID }
	return reconciler.Family[types.RoleSpec, types.Role]{
		Name:   FamilyRole,
		Key:    uid,
		ID:     uid,
		List:   func(ctx context.Context, _ types.RoleSpec) ([]types.Role, error) { return api.ListRoles(ctx) },
		Create: api.CreateRole,
		Update: api.UpdateRole,
		Delete: func(ctx context.Context, _ types.RoleSpec, r types.Role) error {
			return api.DeleteRole(ctx, r.UID)
		},
		Match: reconciler.MatchByKey(uid, uid),
	}
}
