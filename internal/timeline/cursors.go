package timeline

import "github.com/starford/strata/internal/models"

// CursorPair is the pagination state of one source.
// Start bounds the oldest page fetched, End the newest.
type CursorPair struct {
	Start *models.Cursors
	End   *models.Cursors
	More  bool
}

// CursorStore holds per-source pagination cursors. It is not safe for
// concurrent use; the controller loop owns it.
type CursorStore struct {
	bySource map[string]*CursorPair
}

// NewCursorStore returns an empty store.
func NewCursorStore() *CursorStore {
	return &CursorStore{bySource: make(map[string]*CursorPair)}
}

// Get returns the cursor pair for source, if any page was recorded.
func (s *CursorStore) Get(source string) (CursorPair, bool) {
	p, ok := s.bySource[source]
	if !ok {
		return CursorPair{}, false
	}
	return *p, true
}

// RecordPage folds the paging info of a successful page into the store.
// A nil paging leaves the store untouched.
func (s *CursorStore) RecordPage(source string, paging *models.Paging, dir models.Direction) {
	if paging == nil {
		return
	}
	cursors := paging.Cursors

	p, ok := s.bySource[source]
	if !ok {
		more := false
		if paging.More != nil {
			more = *paging.More
		}
		s.bySource[source] = &CursorPair{Start: &cursors, More: more}
		return
	}

	if dir == models.DirectionBefore {
		if p.End == nil {
			p.End = p.Start
		}
		p.Start = &cursors
	} else {
		if p.Start == nil {
			p.Start = &cursors
		}
		p.End = &cursors
	}

	// A continuing page that omits the flag is assumed to have more.
	p.More = true
	if paging.More != nil {
		p.More = *paging.More
	}
}

// Clear drops the cursor pair of source.
func (s *CursorStore) Clear(source string) {
	delete(s.bySource, source)
}

// ClearAll drops every cursor pair.
func (s *CursorStore) ClearAll() {
	clear(s.bySource)
}

// AnyMore reports whether any source has older items to load.
func (s *CursorStore) AnyMore() bool {
	for _, p := range s.bySource {
		if p.More {
			return true
		}
	}
	return false
}

