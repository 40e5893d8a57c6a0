package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/strata/internal/models"
)

// SourceID identifies comments in the timeline.
const SourceID = "comments"

// Publisher receives change notifications.
type Publisher interface {
	Publish(models.Change)
}

// Source serves comments as timeline pages.
type Source struct {
	db     *DB
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewSource creates a comments source. pub may be nil.
func NewSource(db *DB, pub Publisher, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{db: db, pub: pub, logger: logger, now: time.Now}
}

// ID implements sources.Source.
func (s *Source) ID() string { return SourceID }

// Add stores a new comment on resource and announces it.
func (s *Source) Add(ctx context.Context, resource, author, body string) (Comment, error) {
	if strings.TrimSpace(body) == "" {
		return Comment{}, fmt.Errorf("comments: add: empty body")
	}
	c, err := s.db.Insert(ctx, Comment{
		Handle:    uuid.NewString(),
		Resource:  resource,
		Author:    author,
		Body:      body,
		CreatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return Comment{}, err
	}
	s.logger.Info("comments: added",
		slog.String("resource", resource),
		slog.String("handle", c.Handle))
	s.publish(models.Change{Kind: models.ChangeTimeline, Resource: resource, Source: SourceID})
	return c, nil
}

// Remove deletes the comment with handle. Removal cannot be expressed as a
// newer page, so the announced change is a reset of this source.
func (s *Source) Remove(ctx context.Context, handle string) error {
	c, err := s.db.Delete(ctx, handle)
	if err != nil {
		return err
	}
	s.logger.Info("comments: removed", slog.String("handle", handle))
	s.publish(models.Change{Kind: models.ChangeTimeline, Resource: c.Resource, Source: SourceID, Reset: true})
	return nil
}

func (s *Source) publish(ch models.Change) {
	if s.pub != nil {
		s.pub.Publish(ch)
	}
}

// Fetch implements sources.Source.
//
// Cursors are keyset positions. Before pages report whether older rows
// remain; after pages leave More unset. An after page with nothing new
// echoes its cursor so the end position is kept.
func (s *Source) Fetch(ctx context.Context, resource string, opts models.FetchOptions) (*models.Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var from *Key
	if opts.Cursor != "" {
		k, err := ParseKey(opts.Cursor)
		if err != nil {
			return nil, err
		}
		from = &k
	}

	if !opts.Older() && from != nil {
		rows, err := s.db.Newer(ctx, resource, *from, limit)
		if err != nil {
			return nil, err
		}
		page := &models.Page{Source: SourceID, Items: toItems(rows)}
		if len(rows) == 0 {
			page.Paging = &models.Paging{Cursors: models.Cursors{Before: opts.Cursor, After: opts.Cursor}}
		} else {
			page.Paging = &models.Paging{Cursors: models.Cursors{
				Before: KeyOf(rows[len(rows)-1]).String(),
				After:  KeyOf(rows[0]).String(),
			}}
		}
		return page, nil
	}

	rows, err := s.db.Older(ctx, resource, from, limit+1)
	if err != nil {
		return nil, err
	}
	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	page := &models.Page{Source: SourceID, Items: toItems(rows)}
	if len(rows) > 0 {
		page.Paging = &models.Paging{
			Cursors: models.Cursors{
				Before: KeyOf(rows[len(rows)-1]).String(),
				After:  KeyOf(rows[0]).String(),
			},
			More: models.Bool(more),
		}
	} else if from != nil {
		page.Paging = &models.Paging{Cursors: models.Cursors{Before: opts.Cursor}, More: models.Bool(false)}
	}
	return page, nil
}

func toItems(rows []Comment) []models.Item {
	items := make([]models.Item, len(rows))
	for i, c := range rows {
		label := c.Author
		if label == "" {
			label = "Comment"
		}
		items[i] = models.Item{
			Handle:       "comment:" + c.Handle,
			Source:       SourceID,
			ID:           c.Handle,
			Timestamp:    c.CreatedAt,
			Label:        label,
			Icon:         "comment",
			Description:  summary(c.Body),
			Detail:       c.Body,
			ContextValue: "comment",
		}
	}
	return items
}

// summary returns the first line of body, cut to 80 runes.
func summary(body string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	if r := []rune(line); len(r) > 80 {
		return string(r[:79]) + "…"
	}
	return line
}
