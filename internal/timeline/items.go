package timeline

import (
	"slices"

	"github.com/starford/strata/internal/models"
)

// ItemStore is the merged, sorted and deduplicated item list. It is not
// safe for concurrent use; the controller loop owns it.
//
// Deduplication by logical identity only looks at the newest window
// items of the current list, so a duplicate further back survives a
// merge. Handle uniqueness is enforced over the whole list through an
// index of handles.
type ItemStore struct {
	items   []models.Item
	handles map[string]struct{}
	window  int
}

// NewItemStore returns an empty store whose dedup scan covers window items.
func NewItemStore(window int) *ItemStore {
	if window <= 0 {
		window = DefaultPageSize
	}
	return &ItemStore{
		handles: make(map[string]struct{}),
		window:  window,
	}
}

// Merge folds an incremental page into the list. Older pages are spliced
// in front, newer ones appended, and the list is re-sorted.
func (s *ItemStore) Merge(incoming []models.Item, dir models.Direction) bool {
	if len(incoming) == 0 {
		return false
	}
	incoming = uniqueByHandle(incoming)

	ids := make(map[string]struct{})
	timestamps := make(map[int64]struct{})
	for _, it := range incoming {
		if it.ID != "" {
			ids[it.ID] = struct{}{}
		} else {
			timestamps[it.Timestamp] = struct{}{}
		}
	}

	n := min(s.window, len(s.items))
	kept := make([]models.Item, 0, len(s.items)+len(incoming))
	for _, it := range s.items[:n] {
		if collides(it, ids, timestamps) {
			delete(s.handles, it.Handle)
			continue
		}
		kept = append(kept, it)
	}
	kept = append(kept, s.items[n:]...)
	kept = s.dropHandles(kept, incoming)

	if dir == models.DirectionBefore {
		kept = append(incoming, kept...)
	} else {
		kept = append(kept, incoming...)
	}
	s.items = kept
	s.index(incoming)
	s.sort()
	return true
}

// Replace swaps every item of source for items. It reports whether the
// list changed.
func (s *ItemStore) Replace(source string, items []models.Item) bool {
	items = uniqueByHandle(items)

	removed := 0
	kept := make([]models.Item, 0, len(s.items)+len(items))
	for _, it := range s.items {
		if it.Source == source {
			delete(s.handles, it.Handle)
			removed++
			continue
		}
		kept = append(kept, it)
	}
	kept = s.dropHandles(kept, items)

	s.items = append(kept, items...)
	s.index(items)
	if len(items) > 0 {
		s.sort()
	}
	return len(items) > 0 || removed > 0
}

// RemoveSource drops every item of source. Survivors keep their order.
func (s *ItemStore) RemoveSource(source string) bool {
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(it models.Item) bool {
		if it.Source == source {
			delete(s.handles, it.Handle)
			return true
		}
		return false
	})
	return len(s.items) != before
}

// Sorted returns a copy of the ordered list.
func (s *ItemStore) Sorted() []models.Item {
	return slices.Clone(s.items)
}

// Len returns the number of items.
func (s *ItemStore) Len() int {
	return len(s.items)
}

// Clear removes every item.
func (s *ItemStore) Clear() {
	s.items = nil
	clear(s.handles)
}

// dropHandles removes from list any item sharing a handle with incoming.
func (s *ItemStore) dropHandles(list, incoming []models.Item) []models.Item {
	hit := make(map[string]struct{})
	for _, it := range incoming {
		if _, ok := s.handles[it.Handle]; ok {
			hit[it.Handle] = struct{}{}
		}
	}
	if len(hit) == 0 {
		return list
	}
	return slices.DeleteFunc(list, func(it models.Item) bool {
		_, ok := hit[it.Handle]
		return ok
	})
}

func (s *ItemStore) index(items []models.Item) {
	for _, it := range items {
		s.handles[it.Handle] = struct{}{}
	}
}

func (s *ItemStore) sort() {
	slices.SortStableFunc(s.items, compareItems)
}

func collides(it models.Item, ids map[string]struct{}, timestamps map[int64]struct{}) bool {
	if it.ID != "" {
		_, ok := ids[it.ID]
		return ok
	}
	_, ok := timestamps[it.Timestamp]
	return ok
}

// uniqueByHandle keeps the last occurrence of each handle.
func uniqueByHandle(items []models.Item) []models.Item {
	seen := make(map[string]int, len(items))
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if i, ok := seen[it.Handle]; ok {
			out[i] = it
			continue
		}
		seen[it.Handle] = len(out)
		out = append(out, it)
	}
	return out
}
