package types

// Stack is a Grafana Cloud stack (hosted instance).
type Stack struct {
	ID          int64             `json:"id"`
	OrgID       int64             `json:"orgId,omitempty"`
	OrgSlug     string            `json:"orgSlug,omitempty"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	URL         string            `json:"url"`
	Status      string            `json:"status,omitempty"`
	RegionSlug  string            `json:"regionSlug"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`

	// Metrics (hosted Prometheus) endpoint of the stack.
	PromURL string `json:"hmInstancePromUrl,omitempty"`
	PromID  int64  `json:"hmInstancePromId,omitempty"`
}

// StackSpec is the desired state of a stack.
type StackSpec struct {
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	URL         string            `json:"url,omitempty"`
	Region      string            `json:"region,omitempty"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// StackUpdate is the mutable part of a stack. Updates always carry the
// full set so the remote side never has to merge.
type StackUpdate struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Update returns the mutable attributes of the spec.
func (s StackSpec) Update() StackUpdate {
	return StackUpdate{
		Name:        s.Name,
		Description: s.Description,
		Labels:      s.Labels,
	}
}

// StackList is the envelope returned by the stack list endpoint.
type StackList struct {
	Items []Stack `json:"items"`
}

// FindStack returns the stack with the given name.
func FindStack(stacks []Stack, name string) (Stack, bool) {
	for _, s := range stacks {
		if s.Name == name {
			return s, true
		}
	}
	return Stack{}, false
}
