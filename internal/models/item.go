// Package models defines the domain types shared by the timeline engine,
// its sources and its presentation surfaces.
package models

// LoadMoreHandle is the fixed handle of the synthetic "load more" entry.
const LoadMoreHandle = "strata:load-more"

// Command is an action associated with an item.
type Command struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Arguments []any  `json:"arguments,omitempty"`
}

// Item is one event from one source.
//
// Handle is unique within its source. ID, when non-empty, is the logical
// identity used for cross-page deduplication. An empty Source sorts last.
type Item struct {
	Handle       string   `json:"handle"`
	Source       string   `json:"source,omitempty"`
	ID           string   `json:"id,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Label        string   `json:"label"`
	Icon         string   `json:"icon,omitempty"`
	Description  string   `json:"description,omitempty"`
	Detail       string   `json:"detail,omitempty"`
	ContextValue string   `json:"context_value,omitempty"`
	Command      *Command `json:"command,omitempty"`

	// Sentinel marks the synthetic load-more entry; Busy is only meaningful on it.
	Sentinel bool `json:"sentinel,omitempty"`
	Busy     bool `json:"busy,omitempty"`
}

// LoadMoreItem returns the load-more sentinel.
func LoadMoreItem(busy bool) Item {
	return Item{
		Handle:   LoadMoreHandle,
		Label:    "Load more",
		Sentinel: true,
		Busy:     busy,
	}
}
