package models

// ChangeKind identifies what an external change notification is about.
type ChangeKind string

const (
	ChangeSourceSet ChangeKind = "source-set"
	ChangeTimeline  ChangeKind = "timeline"
	ChangeFullReset ChangeKind = "full-reset"
)

// Change is an external notification delivered to the controller.
//
// For ChangeSourceSet, Added and Removed list source ids.
// For ChangeTimeline, an empty Resource means "any resource" and an empty
// Source means "all sources"; Reset requests a destructive reload.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Added    []string   `json:"added,omitempty"`
	Removed  []string   `json:"removed,omitempty"`
	Resource string     `json:"resource,omitempty"`
	Source   string     `json:"source,omitempty"`
	Reset    bool       `json:"reset,omitempty"`
}

// View is a snapshot of what the presentation layer currently shows.
type View struct {
	Resource string `json:"resource"`
	State    string `json:"state"`
	Items    []Item `json:"items"`
	Message  string `json:"message,omitempty"`
}
