package fsevents

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/strata/internal/models"
)

// SourceID identifies file-system events in the timeline.
const SourceID = "fsevents"

// Publisher receives change notifications.
type Publisher interface {
	Publish(models.Change)
}

// Source serves journal entries for resources under root.
type Source struct {
	root    string
	journal *Journal
	pub     Publisher
	logger  *slog.Logger
}

// NewSource creates a source rooted at root. pub may be nil.
func NewSource(root string, journal *Journal, pub Publisher, logger *slog.Logger) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fsevents: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fsevents: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fsevents: root is not a directory: %s", abs)
	}
	if journal == nil {
		journal = NewJournal(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{root: abs, journal: journal, pub: pub, logger: logger}, nil
}

// ID implements sources.Source.
func (s *Source) ID() string { return SourceID }

// Root returns the absolute watched directory.
func (s *Source) Root() string { return s.root }

// Journal returns the backing journal.
func (s *Source) Journal() *Journal { return s.journal }

// URI returns the file:// URI of rel.
func (s *Source) URI(rel string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(rel)))}
	return u.String()
}

// relPath maps a file or git URI to a slash path relative to root. ok is
// false for other schemes and for paths outside root.
func (s *Source) relPath(resource string) (string, bool) {
	u, err := url.Parse(resource)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "file", "git":
	default:
		return "", false
	}
	abs := filepath.Clean(filepath.FromSlash(u.Path))
	if !filepath.IsAbs(abs) {
		return "", false
	}
	if abs == s.root {
		return "", true
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Fetch implements sources.Source. Cursors are journal sequence numbers.
// Resources outside the root have no timeline.
func (s *Source) Fetch(_ context.Context, resource string, opts models.FetchOptions) (*models.Page, error) {
	rel, ok := s.relPath(resource)
	if !ok {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var cursor uint64
	if opts.Cursor != "" {
		n, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("fsevents: malformed cursor %q: %w", opts.Cursor, err)
		}
		cursor = n
	}

	if !opts.Older() && cursor != 0 {
		evs := s.journal.Newer(rel, cursor, limit)
		page := &models.Page{Source: SourceID, Items: s.toItems(evs)}
		if len(evs) == 0 {
			page.Paging = &models.Paging{Cursors: models.Cursors{Before: opts.Cursor, After: opts.Cursor}}
		} else {
			page.Paging = &models.Paging{Cursors: cursorsOf(evs)}
		}
		return page, nil
	}

	evs, more := s.journal.Older(rel, cursor, limit)
	page := &models.Page{Source: SourceID, Items: s.toItems(evs)}
	if len(evs) > 0 {
		page.Paging = &models.Paging{Cursors: cursorsOf(evs), More: models.Bool(more)}
	} else if cursor != 0 {
		page.Paging = &models.Paging{Cursors: models.Cursors{Before: opts.Cursor}, More: models.Bool(false)}
	}
	return page, nil
}

func cursorsOf(evs []Event) models.Cursors {
	return models.Cursors{
		Before: strconv.FormatUint(evs[len(evs)-1].Seq, 10),
		After:  strconv.FormatUint(evs[0].Seq, 10),
	}
}

var labels = map[Op]string{
	OpCreated:  "Created",
	OpModified: "Modified",
	OpRemoved:  "Deleted",
	OpRenamed:  "Renamed",
}

var icons = map[Op]string{
	OpCreated:  "diff-added",
	OpModified: "diff-modified",
	OpRemoved:  "diff-removed",
	OpRenamed:  "diff-renamed",
}

func (s *Source) toItems(evs []Event) []models.Item {
	items := make([]models.Item, len(evs))
	for i, ev := range evs {
		seq := strconv.FormatUint(ev.Seq, 10)
		items[i] = models.Item{
			Handle:       "fs:" + seq,
			Source:       SourceID,
			ID:           seq,
			Timestamp:    ev.At.UnixMilli(),
			Label:        labels[ev.Op],
			Icon:         icons[ev.Op],
			Description:  ev.Path,
			Detail:       ev.Checksum,
			ContextValue: "fsevent:" + string(ev.Op),
			Command: &models.Command{
				ID:        "strata.open",
				Title:     "Open",
				Arguments: []any{s.URI(ev.Path)},
			},
		}
	}
	return items
}

// record appends ev and announces it for the file's URI.
func (s *Source) record(ev Event) {
	ev, ok := s.journal.Append(ev)
	if !ok {
		return
	}
	s.logger.Debug("fsevents: recorded",
		slog.String("path", ev.Path),
		slog.String("op", string(ev.Op)),
		slog.Uint64("seq", ev.Seq))
	if s.pub != nil {
		s.pub.Publish(models.Change{Kind: models.ChangeTimeline, Resource: s.URI(ev.Path), Source: SourceID})
	}
}
