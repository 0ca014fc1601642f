// Package filter selects which discovered clients get provisioned.
package filter

import (
	"sort"

	"github.com/fortna/stackfleet/types"
)

// Filter controls which client names are skipped and which label values
// a client must (or must not) carry.
type Filter struct {
	excludeNames  map[string]bool
	includeLabels map[string]string
	excludeLabels map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeNames []string, includeLabels, excludeLabels map[string]string) *Filter {
	excludeMap := make(map[string]bool)
	for _, n := range excludeNames {
		excludeMap[n] = true
	}

	return &Filter{
		excludeNames:  excludeMap,
		includeLabels: includeLabels,
		excludeLabels: excludeLabels,
	}
}

// ForEnvironment selects clients whose environment label equals value,
// minus the skipped client names and any client carrying one of the
// skipped label values.
func ForEnvironment(key, value string, skip []string, skipLabels map[string]string) *Filter {
	return New(skip, map[string]string{key: value}, skipLabels)
}

// ShouldProvisionName returns false for skipped client names.
func (f *Filter) ShouldProvisionName(name string) bool {
	return !f.excludeNames[name]
}

// ShouldIncludeClient returns true if the client passes name and label filters.
func (f *Filter) ShouldIncludeClient(c types.Client) bool {
	if !f.ShouldProvisionName(c.Name) {
		return false
	}

	// ALL include labels must match
	for k, v := range f.includeLabels {
		if c.Label(k) != v {
			return false
		}
	}

	// ANY exclude label match excludes
	for k, v := range f.excludeLabels {
		if c.Label(k) == v {
			return false
		}
	}

	return true
}

// FilterClients returns only clients that pass the filter.
func (f *Filter) FilterClients(clients []types.Client) []types.Client {
	if f.IsEmpty() {
		return clients
	}

	filtered := make([]types.Client, 0, len(clients))
	for _, c := range clients {
		if f.ShouldIncludeClient(c) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// Select reduces discovered clients to one per client name, sorted by
// name. Several keys (locations) of one client share a stack, so the
// representative is the lowest key.
func (f *Filter) Select(discovered map[string]types.Client) []types.Client {
	keys := make([]string, 0, len(discovered))
	for k := range discovered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	all := make([]types.Client, 0, len(keys))
	for _, k := range keys {
		all = append(all, discovered[k])
	}

	seen := make(map[string]bool)
	selected := make([]types.Client, 0, len(all))
	for _, c := range f.FilterClients(all) {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		selected = append(selected, c)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Name < selected[j].Name
	})
	return selected
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeNames) == 0 && len(f.includeLabels) == 0 && len(f.excludeLabels) == 0
}
