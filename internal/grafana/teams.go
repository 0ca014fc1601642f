package grafana

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fortna/stackfleet/types"
)

// SearchTeams lists teams, filtered by exact name when name is set.
func (c *Client) SearchTeams(ctx context.Context, name string) ([]types.Team, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}

	var resp struct {
		TotalCount int          `json:"totalCount"`
		Teams      []types.Team `json:"teams"`
	}
	if err := c.rest.Get(ctx, "/api/teams/search", q, &resp); err != nil {
		return nil, fmt.Errorf("search teams: %w", err)
	}
	c.logger.WithContext(ctx).Debug().Int("count", resp.TotalCount).Msg("searched teams")
	return resp.Teams, nil
}

// GetTeam fetches a team by id.
func (c *Client) GetTeam(ctx context.Context, id int64) (types.Team, bool, error) {
	var t types.Team
	err := c.rest.Get(ctx, fmt.Sprintf("/api/teams/%d", id), nil, &t)
	if types.IsNotFound(err) {
		return types.Team{}, false, nil
	}
	if err != nil {
		return types.Team{}, false, fmt.Errorf("get team %d: %w", id, err)
	}
	return t, true, nil
}

// CreateTeam creates a team and returns the stored record.
func (c *Client) CreateTeam(ctx context.Context, spec types.TeamSpec) (types.Team, error) {
	body := spec
	body.OrgID = orgID(spec.OrgID)

	var resp struct {
		TeamID int64 `json:"teamId"`
	}
	if err := c.rest.Post(ctx, "/api/teams", nil, body, &resp); err != nil {
		return types.Team{}, fmt.Errorf("create team %q: %w", spec.Name, err)
	}

	t, found, err := c.GetTeam(ctx, resp.TeamID)
	if err != nil {
		return types.Team{}, err
	}
	if !found {
		return types.Team{}, fmt.Errorf("team %q (id %d) missing after create: %w", spec.Name, resp.TeamID, types.ErrNotFound)
	}
	return t, nil
}

// UpdateTeam sets the name and email of a team.
func (c *Client) UpdateTeam(ctx context.Context, id int64, spec types.TeamSpec) (types.Team, error) {
	body := map[string]string{"name": spec.Name, "email": spec.Email}
	if err := c.rest.Put(ctx, fmt.Sprintf("/api/teams/%d", id), body, nil); err != nil {
		return types.Team{}, fmt.Errorf("update team %d: %w", id, err)
	}
	return types.Team{ID: id, Name: spec.Name, Email: spec.Email}, nil
}

// DeleteTeam deletes a team.
func (c *Client) DeleteTeam(ctx context.Context, id int64) error {
	if err := c.rest.Delete(ctx, fmt.Sprintf("/api/teams/%d", id), nil); err != nil {
		return fmt.Errorf("delete team %d: %w", id, err)
	}
	return nil
}

// AssignTeamRole grants a custom role to a team.
func (c *Client) AssignTeamRole(ctx context.Context, teamID int64, roleUID string) error {
	path := fmt.Sprintf("/api/access-control/teams/%d/roles", teamID)
	if err := c.rest.Post(ctx, path, nil, map[string]string{"roleUid": roleUID}, nil); err != nil {
		return fmt.Errorf("assign role %q to team %d: %w", roleUID, teamID, err)
	}
	return nil
}
