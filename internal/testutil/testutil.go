// Package testutil provides shared test helpers for setting up databases and
// a wired timeline stack.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/strata/internal/comments"
	"github.com/starford/strata/internal/sources"
	"github.com/starford/strata/internal/sse"
	"github.com/starford/strata/internal/timeline"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *comments.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "strata-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := comments.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Stack is a visible controller over a registry holding the comments source.
type Stack struct {
	Registry   *sources.Registry
	Comments   *comments.Source
	Broker     *sse.Broker
	Controller *timeline.Controller
}

// TestStack wires a registry, comments source, SSE broker and controller.
// Everything is closed when the test ends.
func TestStack(t *testing.T) *Stack {
	t.Helper()
	logger := Logger()
	reg := sources.New(sources.Options{Logger: logger})
	cmts := comments.NewSource(TestDB(t), reg, logger)
	if err := reg.Register(cmts); err != nil {
		t.Fatal(err)
	}

	broker := sse.NewBroker(logger)
	t.Cleanup(broker.Close)

	ctl := timeline.NewController(reg, broker, timeline.Options{
		RefreshDebounce: 10 * time.Millisecond,
		LoadingDelay:    10 * time.Millisecond,
		Logger:          logger,
	})
	t.Cleanup(ctl.Close)
	ctl.SetVisible(true)

	return &Stack{Registry: reg, Comments: cmts, Broker: broker, Controller: ctl}
}
