package types

import "strings"

// Client is one tenant discovered from the metrics backend.
type Client struct {
	Key         string `json:"client_key"`
	Name        string `json:"client_name"`
	Location    string `json:"client_location"`
	Environment string `json:"client_environment"`
}

// Label returns the value of a discovery label for this client.
func (c Client) Label(name string) string {
	switch name {
	case "client_key":
		return c.Key
	case "client_name":
		return c.Name
	case "client_location":
		return c.Location
	case "client_environment":
		return c.Environment
	default:
		return ""
	}
}

// ClientFromLabels builds a client from a label set keyed by discovery label name.
func ClientFromLabels(labels map[string]string) Client {
	return Client{
		Key:         labels["client_key"],
		Name:        labels["client_name"],
		Location:    labels["client_location"],
		Environment: labels["client_environment"],
	}
}

// Slug derives the stack slug for a client name: prefix, then the name
// lowercased with spaces replaced by hyphens.
func Slug(prefix, clientName string) string {
	return prefix + strings.ReplaceAll(strings.ToLower(clientName), " ", "-")
}
