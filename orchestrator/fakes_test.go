package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/fortna/stackfleet/types"
)

// fakeCloud is an in-memory Grafana Cloud control plane.
type fakeCloud struct {
	stacks   map[int64]types.Stack
	policies map[string]types.AccessPolicy
	regions  map[string]string
	tokens   map[string]types.Token
	nextID   int64
	writes   int

	listStacksErr    error
	failStackCreate  map[string]error
	failPolicyCreate map[string]error
	policyCreateErrs []error
	deletesByName    int
	tokenSecrets     []string
}

func newFakeCloud(stacks ...types.Stack) *fakeCloud {
	c := &fakeCloud{
		stacks:   map[int64]types.Stack{},
		policies: map[string]types.AccessPolicy{},
		regions:  map[string]string{},
		tokens:   map[string]types.Token{},
		nextID:   1000,
	}
	for _, s := range stacks {
		c.stacks[s.ID] = s
	}
	return c
}

func (c *fakeCloud) id() int64 {
	c.nextID++
	return c.nextID
}

func conflict(msg string) error {
	return &types.HTTPError{Method: http.MethodPost, StatusCode: http.StatusConflict, Body: msg}
}

func (c *fakeCloud) ListStacks(context.Context) ([]types.Stack, error) {
	if c.listStacksErr != nil {
		return nil, c.listStacksErr
	}
	out := make([]types.Stack, 0, len(c.stacks))
	for _, s := range c.stacks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCloud) stackByName(name string) (types.Stack, bool) {
	for _, s := range c.stacks {
		if s.Name == name {
			return s, true
		}
	}
	return types.Stack{}, false
}

func (c *fakeCloud) CreateStack(_ context.Context, spec types.StackSpec) (types.Stack, error) {
	if err := c.failStackCreate[spec.Name]; err != nil {
		return types.Stack{}, err
	}
	if _, ok := c.stackByName(spec.Name); ok {
		return types.Stack{}, conflict("stack exists")
	}
	c.writes++
	s := types.Stack{
		ID:          c.id(),
		Name:        spec.Name,
		Slug:        spec.Slug,
		URL:         "https://" + spec.Slug + ".grafana.net",
		RegionSlug:  spec.Region,
		Description: spec.Description,
		Labels:      spec.Labels,
		Status:      "active",
	}
	c.stacks[s.ID] = s
	return s, nil
}

func (c *fakeCloud) UpdateStack(_ context.Context, id int64, u types.StackUpdate) (types.Stack, error) {
	s, ok := c.stacks[id]
	if !ok {
		return types.Stack{}, &types.HTTPError{StatusCode: http.StatusNotFound}
	}
	c.writes++
	s.Name, s.Description, s.Labels = u.Name, u.Description, u.Labels
	c.stacks[id] = s
	return s, nil
}

func (c *fakeCloud) DeleteStack(_ context.Context, id int64) error {
	c.writes++
	delete(c.stacks, id)
	return nil
}

func (c *fakeCloud) ListAccessPolicies(_ context.Context, f types.AccessPolicyFilter) ([]types.AccessPolicy, error) {
	var out []types.AccessPolicy
	for id, p := range c.policies {
		if f.Name != "" && p.Name != f.Name {
			continue
		}
		if f.Region != "" && c.regions[id] != f.Region {
			continue
		}
		if f.RealmType != "" && !hasRealm(p.Realms, f.RealmType, f.RealmIdentifier) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *fakeCloud) GetAccessPolicy(_ context.Context, id, region string) (types.AccessPolicy, bool, error) {
	p, ok := c.policies[id]
	if !ok || c.regions[id] != region {
		return types.AccessPolicy{}, false, nil
	}
	return p, true, nil
}

func hasRealm(realms []types.Realm, typ, id string) bool {
	for _, r := range realms {
		if r.Type == typ && (id == "" || r.Identifier == id) {
			return true
		}
	}
	return false
}

func (c *fakeCloud) CreateAccessPolicy(_ context.Context, spec types.AccessPolicySpec) (types.AccessPolicy, error) {
	if err := c.failPolicyCreate[spec.Name]; err != nil {
		return types.AccessPolicy{}, err
	}
	if len(c.policyCreateErrs) > 0 {
		err := c.policyCreateErrs[0]
		c.policyCreateErrs = c.policyCreateErrs[1:]
		return types.AccessPolicy{}, err
	}
	for _, p := range c.policies {
		if p.Name == spec.Name {
			return types.AccessPolicy{}, conflict("policy name taken")
		}
	}
	c.writes++
	p := types.AccessPolicy{
		ID:          "ap-" + strconv.FormatInt(c.id(), 10),
		Name:        spec.Name,
		DisplayName: spec.DisplayName,
		Realms:      spec.Realms,
		Scopes:      spec.Scopes,
	}
	c.policies[p.ID] = p
	c.regions[p.ID] = spec.Region
	return p, nil
}

func (c *fakeCloud) UpdateAccessPolicy(_ context.Context, id string, spec types.AccessPolicySpec) (types.AccessPolicy, error) {
	p, ok := c.policies[id]
	if !ok {
		return types.AccessPolicy{}, &types.HTTPError{StatusCode: http.StatusNotFound}
	}
	c.writes++
	u := spec.Update()
	p.DisplayName, p.Realms, p.Scopes = u.DisplayName, u.Realms, u.Scopes
	c.policies[id] = p
	return p, nil
}

func (c *fakeCloud) DeleteAccessPolicy(_ context.Context, id, _ string) error {
	c.writes++
	delete(c.policies, id)
	return nil
}

func (c *fakeCloud) DeleteAccessPolicyByName(_ context.Context, name, region string) ([]string, error) {
	c.deletesByName++
	var deleted []string
	for id, p := range c.policies {
		if p.Name == name && c.regions[id] == region {
			delete(c.policies, id)
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	c.writes += len(deleted)
	return deleted, nil
}

func (c *fakeCloud) ListTokens(_ context.Context, f types.TokenFilter) ([]types.Token, error) {
	var out []types.Token
	for _, t := range c.tokens {
		if f.Name != "" && t.Name != f.Name {
			continue
		}
		t.Secret = ""
		out = append(out, t)
	}
	return out, nil
}

func (c *fakeCloud) GetToken(_ context.Context, id, _ string) (types.Token, bool, error) {
	t, ok := c.tokens[id]
	t.Secret = ""
	return t, ok, nil
}

func (c *fakeCloud) CreateToken(_ context.Context, spec types.TokenSpec) (types.Token, error) {
	c.writes++
	n := c.id()
	t := types.Token{
		ID:             "tok-" + strconv.FormatInt(n, 10),
		Name:           spec.Name,
		DisplayName:    spec.DisplayName,
		AccessPolicyID: spec.AccessPolicyID,
		ExpiresAt:      spec.ExpiresAt,
		Secret:         fmt.Sprintf("glc_secret_%d", n),
	}
	c.tokens[t.ID] = t
	c.tokenSecrets = append(c.tokenSecrets, t.Secret)
	return t, nil
}

func (c *fakeCloud) UpdateTokenDisplayName(_ context.Context, id, _, displayName string) (types.Token, error) {
	t, ok := c.tokens[id]
	if !ok {
		return types.Token{}, &types.HTTPError{StatusCode: http.StatusNotFound}
	}
	c.writes++
	t.DisplayName = displayName
	c.tokens[id] = t
	t.Secret = ""
	return t, nil
}

func (c *fakeCloud) DeleteToken(_ context.Context, id, _ string) error {
	c.writes++
	delete(c.tokens, id)
	return nil
}

// fakeGrafana is the in-memory Grafana API of one stack.
type fakeGrafana struct {
	datasources map[string]types.Datasource
	passwords   map[string]any
	folders     map[string]types.Folder
	teams       map[int64]types.Team
	roles       map[string]types.Role
	assignments map[int64][]string
	permissions map[string]map[int64]string
	folderPerms map[string][]types.Permission
	permUpdates int
	nextID      int64
	writes      int

	failDatasourceCreate error
}

func newFakeGrafana() *fakeGrafana {
	return &fakeGrafana{
		datasources: map[string]types.Datasource{},
		passwords:   map[string]any{},
		folders:     map[string]types.Folder{},
		teams:       map[int64]types.Team{},
		roles:       map[string]types.Role{},
		assignments: map[int64][]string{},
		permissions: map[string]map[int64]string{},
		folderPerms: map[string][]types.Permission{},
	}
}

func (g *fakeGrafana) ListDatasources(context.Context) ([]types.Datasource, error) {
	out := make([]types.Datasource, 0, len(g.datasources))
	for _, d := range g.datasources {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (g *fakeGrafana) store(spec types.DatasourceSpec) types.Datasource {
	if spec.SecureJSONData != nil {
		g.passwords[spec.UID] = spec.SecureJSONData["basicAuthPassword"]
	}
	d := spec
	d.SecureJSONData = nil
	g.datasources[d.UID] = d
	return d
}

func (g *fakeGrafana) CreateDatasource(_ context.Context, spec types.DatasourceSpec) (types.Datasource, error) {
	if g.failDatasourceCreate != nil {
		return types.Datasource{}, g.failDatasourceCreate
	}
	if _, ok := g.datasources[spec.UID]; ok {
		return types.Datasource{}, conflict("data source with the same uid already exists")
	}
	g.writes++
	g.nextID++
	spec.ID = g.nextID
	return g.store(spec), nil
}

func (g *fakeGrafana) UpdateDatasource(_ context.Context, uid string, spec types.DatasourceSpec) (types.Datasource, error) {
	current, ok := g.datasources[uid]
	if !ok {
		return types.Datasource{}, &types.HTTPError{StatusCode: http.StatusNotFound}
	}
	g.writes++
	delete(g.datasources, uid)
	if pw, ok := g.passwords[uid]; ok && spec.SecureJSONData == nil {
		delete(g.passwords, uid)
		g.passwords[spec.UID] = pw
	}
	spec.ID = current.ID
	return g.store(spec), nil
}

func (g *fakeGrafana) DeleteDatasourceByUID(_ context.Context, uid string) error {
	g.writes++
	delete(g.datasources, uid)
	delete(g.passwords, uid)
	return nil
}

func (g *fakeGrafana) SetTeamDatasourcePermission(_ context.Context, uid string, teamID int64, permission string) error {
	g.writes++
	if g.permissions[uid] == nil {
		g.permissions[uid] = map[int64]string{}
	}
	g.permissions[uid][teamID] = permission
	return nil
}

func (g *fakeGrafana) ListFolders(context.Context) ([]types.Folder, error) {
	var out []types.Folder
	for _, f := range g.folders {
		out = append(out, f)
	}
	return out, nil
}

func (g *fakeGrafana) CreateFolder(_ context.Context, spec types.FolderSpec) (types.Folder, error) {
	g.writes++
	f := types.Folder{UID: spec.UID, Title: spec.Title}
	g.folders[f.UID] = f
	return f, nil
}

func (g *fakeGrafana) UpdateFolder(_ context.Context, current types.Folder, spec types.FolderSpec) (types.Folder, error) {
	g.writes++
	current.Title = spec.Title
	g.folders[current.UID] = current
	return current, nil
}

func (g *fakeGrafana) DeleteFolder(_ context.Context, uid string) error {
	g.writes++
	delete(g.folders, uid)
	return nil
}

func (g *fakeGrafana) GetFolderPermissions(_ context.Context, uid string) ([]types.Permission, error) {
	if _, ok := g.folders[uid]; !ok {
		return nil, &types.HTTPError{StatusCode: http.StatusNotFound}
	}
	return append([]types.Permission(nil), g.folderPerms[uid]...), nil
}

func (g *fakeGrafana) UpdateFolderPermissions(_ context.Context, uid string, items []types.Permission) error {
	g.writes++
	g.permUpdates++
	g.folderPerms[uid] = append([]types.Permission(nil), items...)
	return nil
}

func (g *fakeGrafana) SearchTeams(_ context.Context, name string) ([]types.Team, error) {
	var out []types.Team
	for _, t := range g.teams {
		if name == "" || t.Name == name {
			out = append(out, t)
		}
	}
	return out, nil
}

func (g *fakeGrafana) CreateTeam(_ context.Context, spec types.TeamSpec) (types.Team, error) {
	g.writes++
	g.nextID++
	t := types.Team{ID: g.nextID, Name: spec.Name, Email: spec.Email}
	g.teams[t.ID] = t
	return t, nil
}

func (g *fakeGrafana) UpdateTeam(_ context.Context, id int64, spec types.TeamSpec) (types.Team, error) {
	g.writes++
	t := types.Team{ID: id, Name: spec.Name, Email: spec.Email}
	g.teams[id] = t
	return t, nil
}

func (g *fakeGrafana) DeleteTeam(_ context.Context, id int64) error {
	g.writes++
	delete(g.teams, id)
	return nil
}

func (g *fakeGrafana) AssignTeamRole(_ context.Context, teamID int64, roleUID string) error {
	g.writes++
	g.assignments[teamID] = append(g.assignments[teamID], roleUID)
	return nil
}

func (g *fakeGrafana) ListRoles(context.Context) ([]types.Role, error) {
	var out []types.Role
	for _, r := range g.roles {
		out = append(out, r)
	}
	return out, nil
}

func (g *fakeGrafana) CreateRole(_ context.Context, spec types.RoleSpec) (types.Role, error) {
	g.writes++
	spec.Version = 1
	g.roles[spec.UID] = spec
	return spec, nil
}

func (g *fakeGrafana) UpdateRole(_ context.Context, current types.Role, spec types.RoleSpec) (types.Role, error) {
	g.writes++
	spec.UID = current.UID
	spec.Version = current.Version + 1
	g.roles[spec.UID] = spec
	return spec, nil
}

func (g *fakeGrafana) DeleteRole(_ context.Context, uid string) error {
	g.writes++
	delete(g.roles, uid)
	return nil
}

// fakeGrafanas hands out one fakeGrafana per stack URL.
type fakeGrafanas struct {
	byURL map[string]*fakeGrafana
}

func newFakeGrafanas() *fakeGrafanas {
	return &fakeGrafanas{byURL: map[string]*fakeGrafana{}}
}

func (f *fakeGrafanas) connect(stackURL string) (GrafanaAPI, error) {
	return f.get(stackURL), nil
}

func (f *fakeGrafanas) get(stackURL string) *fakeGrafana {
	g, ok := f.byURL[stackURL]
	if !ok {
		g = newFakeGrafana()
		f.byURL[stackURL] = g
	}
	return g
}

func (f *fakeGrafanas) writes() int {
	n := 0
	for _, g := range f.byURL {
		n += g.writes
	}
	return n
}

// fakeDiscoverer returns a fixed client set.
type fakeDiscoverer struct {
	clients map[string]types.Client
	err     error
	main    *types.Stack
}

func (d *fakeDiscoverer) factory(main types.Stack) (Discoverer, error) {
	d.main = &main
	return d, nil
}

func (d *fakeDiscoverer) Clients(context.Context) (map[string]types.Client, error) {
	return d.clients, d.err
}
