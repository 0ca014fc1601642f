package types

import "time"

// Token is a bearer token issued under an access policy. Secret is only
// populated by the create response and can never be read back.
type Token struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DisplayName    string    `json:"displayName"`
	AccessPolicyID string    `json:"accessPolicyId"`
	ExpiresAt      time.Time `json:"expiresAt,omitzero"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	Secret         string    `json:"token,omitempty"`
}

// TokenSpec is the desired state of a token.
type TokenSpec struct {
	Name           string    `json:"name"`
	DisplayName    string    `json:"displayName"`
	AccessPolicyID string    `json:"accessPolicyId"`
	ExpiresAt      time.Time `json:"expiresAt,omitzero"`
	Region         string    `json:"-"`
}

// TokenUpdate is the only mutable attribute of a token.
type TokenUpdate struct {
	DisplayName string `json:"display_name"`
}

// TokenFilter narrows a token listing.
type TokenFilter struct {
	Region           string
	Name             string
	AccessPolicyID   string
	AccessPolicyName string
	ExpiresBefore    time.Time
	ExpiresAfter     time.Time
	PageSize         int
	PageCursor       string
}

// TokenList is the envelope returned by the token list endpoint.
type TokenList struct {
	Items    []Token      `json:"items"`
	Metadata PageMetadata `json:"metadata,omitempty"`
}
