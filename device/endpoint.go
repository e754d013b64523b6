// Package device implements the REST access layer for the monitored network
// device: authentication, per-cycle response caching with request
// deduplication, and cross-resource reference expansion.
package device

// ExpandOptions controls reference expansion for one reference field
type ExpandOptions struct {
	// ItemsField names the collection field holding expandable items.
	// Defaults to "items" when empty.
	ItemsField string `json:"itemsField,omitempty" yaml:"itemsField,omitempty"`

	// TruncateQuery strips the reference path at the first query-string
	// delimiter before the secondary fetch
	TruncateQuery bool `json:"truncateQuery,omitempty" yaml:"truncateQuery,omitempty"`

	// Suffix is appended to the reference path before the secondary fetch
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

// Endpoint describes one REST resource on the device. Immutable for the
// lifetime of a Loader.
type Endpoint struct {
	// Name is the catalog key; when empty the Path is used as the key
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Path is the resource path on the device (e.g. "/mgmt/tm/sys/version")
	Path string `json:"path" yaml:"path"`

	// Body, when set, turns the fetch into a POST with this JSON body
	Body map[string]any `json:"body,omitempty" yaml:"body,omitempty"`

	// Suffix is appended to Path when fetching (e.g. "/stats"). The
	// catalog key is unaffected.
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`

	// ExpandReferences maps reference field names to expansion options.
	// After the primary fetch, items in the collection field carrying a
	// link under the reference field get a secondary fetch merged back in.
	ExpandReferences map[string]ExpandOptions `json:"expandReferences,omitempty" yaml:"expandReferences,omitempty"`
}

// Key returns the catalog key for this endpoint
func (e Endpoint) Key() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Path
}
