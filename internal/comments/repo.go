package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/strata/internal/apperr"
)

// Comment represents a row in the comments table.
type Comment struct {
	RowID     int64  `json:"-"`
	Handle    string `json:"handle"`
	Resource  string `json:"resource"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds
}

// Key is a keyset position: creation time, then row id.
type Key struct {
	CreatedAt int64
	RowID     int64
}

// String encodes k as "<ts>:<rowid>".
func (k Key) String() string {
	return strconv.FormatInt(k.CreatedAt, 10) + ":" + strconv.FormatInt(k.RowID, 10)
}

// ParseKey decodes a cursor produced by Key.String.
func ParseKey(s string) (Key, error) {
	ts, id, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("comments: malformed cursor %q", s)
	}
	var k Key
	var err error
	if k.CreatedAt, err = strconv.ParseInt(ts, 10, 64); err != nil {
		return Key{}, fmt.Errorf("comments: malformed cursor %q: %w", s, err)
	}
	if k.RowID, err = strconv.ParseInt(id, 10, 64); err != nil {
		return Key{}, fmt.Errorf("comments: malformed cursor %q: %w", s, err)
	}
	return k, nil
}

// KeyOf returns the keyset position of c.
func KeyOf(c Comment) Key {
	return Key{CreatedAt: c.CreatedAt, RowID: c.RowID}
}

// Insert stores c and returns it with its row id set.
func (db *DB) Insert(ctx context.Context, c Comment) (Comment, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO comments (handle, resource, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.Handle, c.Resource, c.Author, c.Body, c.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Comment{}, fmt.Errorf("comments: insert %q: %w", c.Handle, apperr.ErrAlreadyExists)
		}
		return Comment{}, fmt.Errorf("comments: insert: %w", err)
	}
	if c.RowID, err = res.LastInsertId(); err != nil {
		return Comment{}, fmt.Errorf("comments: insert id: %w", err)
	}
	return c, nil
}

// Get returns the comment with handle.
func (db *DB) Get(ctx context.Context, handle string) (Comment, error) {
	var c Comment
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, handle, resource, author, body, created_at
		FROM comments WHERE handle = ?
	`, handle).Scan(&c.RowID, &c.Handle, &c.Resource, &c.Author, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, fmt.Errorf("comments: get %q: %w", handle, apperr.ErrNotFound)
	}
	if err != nil {
		return Comment{}, fmt.Errorf("comments: get: %w", err)
	}
	return c, nil
}

// Delete removes the comment with handle and returns what was removed.
func (db *DB) Delete(ctx context.Context, handle string) (Comment, error) {
	c, err := db.Get(ctx, handle)
	if err != nil {
		return Comment{}, err
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, c.RowID); err != nil {
		return Comment{}, fmt.Errorf("comments: delete: %w", err)
	}
	return c, nil
}

// Count returns how many comments resource has.
func (db *DB) Count(ctx context.Context, resource string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM comments WHERE resource = ?`, resource).Scan(&n); err != nil {
		return 0, fmt.Errorf("comments: count: %w", err)
	}
	return n, nil
}

// Older returns up to limit comments of resource strictly older than from,
// newest first. A nil from starts at the newest comment.
func (db *DB) Older(ctx context.Context, resource string, from *Key, limit int) ([]Comment, error) {
	if from == nil {
		return db.query(ctx, `
			SELECT id, handle, resource, author, body, created_at
			FROM comments
			WHERE resource = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, resource, limit)
	}
	return db.query(ctx, `
		SELECT id, handle, resource, author, body, created_at
		FROM comments
		WHERE resource = ?
		  AND (created_at < ? OR (created_at = ? AND id < ?))
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, resource, from.CreatedAt, from.CreatedAt, from.RowID, limit)
}

// Newer returns up to limit comments of resource strictly newer than from,
// newest first. The rows nearest to from are chosen when more exist.
func (db *DB) Newer(ctx context.Context, resource string, from Key, limit int) ([]Comment, error) {
	out, err := db.query(ctx, `
		SELECT id, handle, resource, author, body, created_at
		FROM comments
		WHERE resource = ?
		  AND (created_at > ? OR (created_at = ? AND id > ?))
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, resource, from.CreatedAt, from.CreatedAt, from.RowID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (db *DB) query(ctx context.Context, q string, args ...any) ([]Comment, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("comments: query: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.RowID, &c.Handle, &c.Resource, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
