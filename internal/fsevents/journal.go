// Package fsevents records file-system changes under a root directory and
// serves them as a timeline source.
package fsevents

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Op is the kind of a recorded change.
type Op string

const (
	OpCreated  Op = "created"
	OpModified Op = "modified"
	OpRemoved  Op = "removed"
	OpRenamed  Op = "renamed"
)

// Event is one journal entry.
type Event struct {
	Seq      uint64    `json:"seq"`
	Path     string    `json:"path"` // slash-separated, relative to the root
	Op       Op        `json:"op"`
	At       time.Time `json:"at"`
	Checksum string    `json:"checksum,omitempty"`
}

// DefaultCapacity bounds a journal created with a non-positive capacity.
const DefaultCapacity = 10_000

// Journal is a bounded, append-only event log. Safe for concurrent use.
type Journal struct {
	mu     sync.RWMutex
	cap    int
	seq    uint64
	events []Event // ascending Seq
	sums   map[string]string
}

// NewJournal creates a journal holding at most capacity events.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{cap: capacity, sums: make(map[string]string)}
}

// Append records ev and returns it with its sequence number. A modification
// whose checksum matches the last one recorded for the path is dropped and
// ok is false.
func (j *Journal) Append(ev Event) (Event, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch ev.Op {
	case OpModified:
		if ev.Checksum != "" && j.sums[ev.Path] == ev.Checksum {
			return Event{}, false
		}
		j.sums[ev.Path] = ev.Checksum
	case OpCreated:
		j.sums[ev.Path] = ev.Checksum
	case OpRemoved, OpRenamed:
		delete(j.sums, ev.Path)
	}

	j.seq++
	ev.Seq = j.seq
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if len(j.events) == j.cap {
		j.events[0] = Event{}
		// Drop the oldest in place; append reallocates only the retained window.
		j.events = j.events[1:]
	}
	j.events = append(j.events, ev)
	return ev, true
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// Older returns up to limit events matching prefix with Seq < before,
// newest first. before == 0 starts at the newest event. more reports whether
// further matching events exist.
func (j *Journal) Older(prefix string, before uint64, limit int) (out []Event, more bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.events) - 1; i >= 0; i-- {
		ev := j.events[i]
		if before != 0 && ev.Seq >= before {
			continue
		}
		if !matches(ev.Path, prefix) {
			continue
		}
		if len(out) == limit {
			return out, true
		}
		out = append(out, ev)
	}
	return out, false
}

// Newer returns up to limit events matching prefix with Seq > after, newest
// first. The events nearest to after are chosen when more exist.
func (j *Journal) Newer(prefix string, after uint64, limit int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for _, ev := range j.events {
		if ev.Seq <= after || !matches(ev.Path, prefix) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	slices.Reverse(out)
	return out
}

// matches reports whether path is prefix itself or lies beneath it. An empty
// prefix is the root and matches everything.
func matches(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
