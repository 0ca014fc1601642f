package types

// DatasourcePrometheus is the only datasource type provisioned.
const DatasourcePrometheus = "prometheus"

// Datasource is a Grafana datasource as returned by the per-stack API.
// Secure fields are write-only and never returned.
type Datasource struct {
	ID             int64          `json:"id,omitempty"`
	UID            string         `json:"uid"`
	OrgID          int64          `json:"orgId,omitempty"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	TypeName       string         `json:"typeName,omitempty"`
	TypeLogoURL    string         `json:"typeLogoUrl,omitempty"`
	Access         string         `json:"access,omitempty"`
	URL            string         `json:"url"`
	BasicAuth      bool           `json:"basicAuth"`
	BasicAuthUser  string         `json:"basicAuthUser,omitempty"`
	IsDefault      bool           `json:"isDefault"`
	ReadOnly       bool           `json:"readOnly,omitempty"`
	JSONData       map[string]any `json:"jsonData,omitempty"`
	SecureJSONData map[string]any `json:"secureJsonData,omitempty"`
}

// DatasourceSpec is the desired state of a datasource. It shares the
// wire shape of Datasource, including the write-only secure fields.
type DatasourceSpec = Datasource

// Folder is a Grafana dashboard folder.
type Folder struct {
	ID        int64  `json:"id,omitempty"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	ParentUID string `json:"parentUid,omitempty"`
	URL       string `json:"url,omitempty"`
}

// FolderSpec is the desired state of a folder.
type FolderSpec struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	ParentUID string `json:"parentUid,omitempty"`
	OrgID     int64  `json:"orgId,omitempty"`
}

// Permission is one folder or datasource permission entry.
type Permission struct {
	TeamID     int64  `json:"teamId,omitempty"`
	UserID     int64  `json:"userId,omitempty"`
	Role       string `json:"role,omitempty"`
	Permission int    `json:"permission"`
}

// Team is a Grafana team.
type Team struct {
	ID          int64  `json:"id"`
	UID         string `json:"uid,omitempty"`
	OrgID       int64  `json:"orgId,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
}

// TeamSpec is the desired state of a team.
type TeamSpec struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	OrgID int64  `json:"orgId,omitempty"`
}

// RolePermission is one action/scope pair of a custom role.
type RolePermission struct {
	Action string `json:"action"`
	Scope  string `json:"scope,omitempty"`
}

// Role is a Grafana RBAC custom role.
type Role struct {
	UID         string           `json:"uid"`
	Name        string           `json:"name"`
	DisplayName string           `json:"displayName,omitempty"`
	Description string           `json:"description,omitempty"`
	Group       string           `json:"group,omitempty"`
	Version     int              `json:"version,omitempty"`
	Permissions []RolePermission `json:"permissions,omitempty"`
}

// RoleSpec is the desired state of a custom role.
type RoleSpec = Role

// FolderPermissionView is the folder permission level granted to viewer
// teams. Edit is 2 and Admin is 4.
const FolderPermissionView = 1

// Datasource permission levels.
const (
	DatasourcePermissionQuery = "Query"
	DatasourcePermissionEdit  = "Edit"
	DatasourcePermissionAdmin = "Admin"
)
