package types

import "time"

// Realm types for access policies.
const (
	RealmOrg   = "org"
	RealmStack = "stack"
)

// LabelPolicy restricts which series a realm exposes.
type LabelPolicy struct {
	Selector string `json:"selector"`
}

// Realm is the organization or stack an access policy is scoped to.
type Realm struct {
	Type          string        `json:"type"`
	Identifier    string        `json:"identifier"`
	LabelPolicies []LabelPolicy `json:"labelPolicies,omitempty"`
}

// AccessPolicy is a realm-bound Grafana Cloud access policy.
type AccessPolicy struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId,omitempty"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Realms      []Realm   `json:"realms"`
	Scopes      []string  `json:"scopes"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// AccessPolicySpec is the desired state of an access policy. Region is
// a query parameter, not part of the body.
type AccessPolicySpec struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Realms      []Realm  `json:"realms"`
	Scopes      []string `json:"scopes"`
	Region      string   `json:"-"`
}

// AccessPolicyUpdate replaces realms and scopes wholesale.
type AccessPolicyUpdate struct {
	DisplayName string   `json:"displayName"`
	Realms      []Realm  `json:"realms"`
	Scopes      []string `json:"scopes"`
}

// Update returns the mutable attributes of the spec.
func (s AccessPolicySpec) Update() AccessPolicyUpdate {
	return AccessPolicyUpdate{
		DisplayName: s.DisplayName,
		Realms:      s.Realms,
		Scopes:      s.Scopes,
	}
}

// RealmFilter returns the realm type and identifier used to list
// policies sharing this spec's scope.
func (s AccessPolicySpec) RealmFilter() (string, string) {
	if len(s.Realms) == 0 {
		return "", ""
	}
	return s.Realms[0].Type, s.Realms[0].Identifier
}

// AccessPolicyFilter narrows an access policy listing.
type AccessPolicyFilter struct {
	Name            string
	RealmType       string
	RealmIdentifier string
	Region          string
	Status          string
	PageSize        int
	PageCursor      string
}

// AccessPolicyList is the envelope returned by the access policy list endpoint.
type AccessPolicyList struct {
	Items    []AccessPolicy `json:"items"`
	Metadata PageMetadata   `json:"metadata,omitempty"`
}

// PageMetadata carries the cursor for paginated v1 listings.
type PageMetadata struct {
	Pagination struct {
		NextPage   string `json:"nextPage,omitempty"`
		PageCursor string `json:"pageCursor,omitempty"`
	} `json:"pagination"`
}
