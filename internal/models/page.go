package models

// Direction selects which side of a cursor a fetch reads.
type Direction string

const (
	// DirectionAfter reads newer items. It is the default.
	DirectionAfter Direction = "after"
	// DirectionBefore reads older items.
	DirectionBefore Direction = "before"
)

// Cursors bounds a fetched page. Before points at its oldest edge, After at its newest.
type Cursors struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Paging is the pagination part of a page.
// A nil More means the source did not say.
type Paging struct {
	Cursors Cursors `json:"cursors"`
	More    *bool   `json:"more,omitempty"`
}

// Page is one fetch result.
type Page struct {
	Source string  `json:"source"`
	Items  []Item  `json:"items"`
	Paging *Paging `json:"paging,omitempty"`
}

// FetchOptions are passed to a source for a single fetch.
type FetchOptions struct {
	Cursor    string    `json:"cursor,omitempty"`
	Limit     int       `json:"limit"`
	Direction Direction `json:"direction"`
}

// Older reports whether the options target older items.
func (o FetchOptions) Older() bool {
	return o.Direction == DirectionBefore
}

// Bool returns a pointer to b, for Paging.More.
func Bool(b bool) *bool {
	return &b
}
