package grafana

import (
	"context"
	"fmt"

	"github.com/fortna/stackfleet/internal/restclient"
	"github.com/fortna/stackfleet/types"
)

// ListFolders lists the top level folders of the stack.
func (c *Client) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var list []types.Folder
	if err := c.rest.Get(ctx, "/api/folders", nil, &list); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return list, nil
}

// GetFolder fetches a folder by uid.
func (c *Client) GetFolder(ctx context.Context, uid string) (types.Folder, bool, error) {
	var f types.Folder
	err := c.rest.Get(ctx, "/api/folders/"+restclient.PathEscape(uid), nil, &f)
	if types.IsNotFound(err) {
		return types.Folder{}, false, nil
	}
	if err != nil {
		return types.Folder{}, false, fmt.Errorf("get folder %q: %w", uid, err)
	}
	return f, true, nil
}

// CreateFolder creates a folder and moves it under its parent if one is set.
func (c *Client) CreateFolder(ctx context.Context, spec types.FolderSpec) (types.Folder, error) {
	body := spec
	body.OrgID = orgID(spec.OrgID)
	body.ParentUID = ""

	var f types.Folder
	if err := c.rest.Post(ctx, "/api/folders", nil, body, &f); err != nil {
		return types.Folder{}, fmt.Errorf("create folder %q: %w", spec.UID, err)
	}

	if spec.ParentUID != "" {
		return c.MoveFolder(ctx, spec.UID, spec.ParentUID)
	}
	return f, nil
}

// UpdateFolder renames a folder and moves it when the parent changed.
func (c *Client) UpdateFolder(ctx context.Context, current types.Folder, spec types.FolderSpec) (types.Folder, error) {
	f := current
	if current.Title != spec.Title {
		body := map[string]any{"title": spec.Title, "overwrite": true}
		if err := c.rest.Put(ctx, "/api/folders/"+restclient.PathEscape(current.UID), body, &f); err != nil {
			return types.Folder{}, fmt.Errorf("update folder %q: %w", current.UID, err)
		}
	}
	if spec.ParentUID != "" && current.ParentUID != spec.ParentUID {
		return c.MoveFolder(ctx, current.UID, spec.ParentUID)
	}
	return f, nil
}

// MoveFolder nests a folder under parentUID.
func (c *Client) MoveFolder(ctx context.Context, uid, parentUID string) (types.Folder, error) {
	var f types.Folder
	path := "/api/folders/" + restclient.PathEscape(uid) + "/move"
	if err := c.rest.Post(ctx, path, nil, map[string]string{"parentUid": parentUID}, &f); err != nil {
		return types.Folder{}, fmt.Errorf("move folder %q to %q: %w", uid, parentUID, err)
	}
	return f, nil
}

// DeleteFolder deletes a folder by uid.
func (c *Client) DeleteFolder(ctx context.Context, uid string) error {
	if err := c.rest.Delete(ctx, "/api/folders/"+restclient.PathEscape(uid), nil); err != nil {
		return fmt.Errorf("delete folder %q: %w", uid, err)
	}
	return nil
}

// GetFolderPermissions returns the permission entries of a folder.
func (c *Client) GetFolderPermissions(ctx context.Context, uid string) ([]types.Permission, error) {
	var items []types.Permission
	if err := c.rest.Get(ctx, "/api/folders/"+restclient.PathEscape(uid)+"/permissions", nil, &items); err != nil {
		return nil, fmt.Errorf("get permissions of folder %q: %w", uid, err)
	}
	return items, nil
}

// UpdateFolderPermissions replaces every permission entry of a folder.
func (c *Client) UpdateFolderPermissions(ctx context.Context, uid string, items []types.Permission) error {
	body := map[string]any{"items": items}
	if err := c.rest.Post(ctx, "/api/folders/"+restclient.PathEscape(uid)+"/permissions", nil, body, nil); err != nil {
		return fmt.Errorf("update permissions of folder %q: %w", uid, err)
	}
	return nil
}
