// Package timeline aggregates paginated activity from independent sources
// into one time-ordered, deduplicated list for a single resource.
package timeline

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/models"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInitialPageSize = 20
	DefaultPageSize        = 40
	DefaultRefreshDebounce = 500 * time.Millisecond
	DefaultLoadingDelay    = 500 * time.Millisecond
)

// Messages pushed to the presenter.
const (
	MessageCannotProvide = "The active resource cannot provide timeline information."
	MessageNoTimeline    = "No timeline information was provided."
	MessageAllFiltered   = "All timeline sources have been filtered out."
	MessageLoading       = "Loading timeline..."
)

// State is the controller's load state.
type State int

const (
	StateIdle State = iota
	StateResetting
	StatePaginating
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StatePaginating:
		return "paginating"
	case StateSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Provider is the source-provider collaborator.
type Provider interface {
	// Sources returns the ids of currently known sources.
	Sources() []string
	// Fetch fetches one page. A nil page and nil error means "no timeline".
	Fetch(ctx context.Context, source, resource string, opts models.FetchOptions) (*models.Page, error)
	// Subscribe returns a change channel and a func releasing it.
	Subscribe() (<-chan models.Change, func())
}

// Presenter receives what should be displayed. Calls come from a single
// goroutine.
type Presenter interface {
	SetItems(items []models.Item)
	// SetMessage sets the informational message; "" clears it.
	SetMessage(msg string)
}

// Options configure a Controller.
type Options struct {
	InitialPageSize    int
	PageSize           int
	RefreshDebounce    time.Duration
	LoadingDelay       time.Duration
	ExcludedSources    []string
	UnsupportedSchemes []string
	Logger             *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialPageSize <= 0 {
		o.InitialPageSize = DefaultInitialPageSize
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RefreshDebounce <= 0 {
		o.RefreshDebounce = DefaultRefreshDebounce
	}
	if o.LoadingDelay <= 0 {
		o.LoadingDelay = DefaultLoadingDelay
	}
	if o.UnsupportedSchemes == nil {
		o.UnsupportedSchemes = DefaultUnsupportedSchemes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Controller owns the aggregated timeline of one view.
//
// Concurrency model: a single internal loop goroutine owns the cursor
// table, the item list and the request slots. Public methods hand their
// input to the loop over channels. Fetches run concurrently and report
// back to the same loop, which discards anything stale.
//
// A new Controller is inactive; call SetVisible(true) to subscribe to
// provider changes and start pushing to the presenter.
type Controller struct {
	provider  Provider
	presenter Presenter
	opts      Options
	logger    *slog.Logger

	focusCh    chan string
	loadMoreCh chan struct{}
	resetCh    chan struct{}
	excludeCh  chan []string
	visibleCh  chan bool
	snapshotCh chan chan models.View

	excluded atomic.Pointer[[]string]

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewController creates a controller and starts its loop.
func NewController(provider Provider, presenter Presenter, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		provider:   provider,
		presenter:  presenter,
		opts:       opts,
		logger:     opts.Logger,
		focusCh:    make(chan string),
		loadMoreCh: make(chan struct{}),
		resetCh:    make(chan struct{}),
		excludeCh:  make(chan []string),
		visibleCh:  make(chan bool),
		snapshotCh: make(chan chan models.View),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	excluded := slices.Clone(opts.ExcludedSources)
	c.excluded.Store(&excluded)
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.stopped)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newSession(ctx, c)
	defer s.teardown()

	for {
		select {
		case <-c.stopCh:
			return

		case resource := <-c.focusCh:
			s.focus(resource)

		case <-c.loadMoreCh:
			s.loadMore()

		case <-c.resetCh:
			s.fullReset()

		case ids := <-c.excludeCh:
			s.setExcluded(ids)

		case visible := <-c.visibleCh:
			s.setVisible(visible)

		case resp := <-c.snapshotCh:
			resp <- s.view()

		case change, ok := <-s.changes:
			if !ok {
				s.changes = nil
				continue
			}
			s.handleChange(change)

		case cmp := <-s.completions:
			s.complete(cmp)

		case <-s.refresh.C():
			s.refresh.Fired()
			s.publish()

		case <-s.loadingC:
			s.loadingFired()
		}
	}
}

// Focus makes resource the active resource. An empty resource clears it.
func (c *Controller) Focus(resource string) {
	send(c, c.focusCh, resource)
}

// LoadMore activates the load-more sentinel.
func (c *Controller) LoadMore() {
	send(c, c.loadMoreCh, struct{}{})
}

// Reset reloads every source for the active resource.
func (c *Controller) Reset() {
	send(c, c.resetCh, struct{}{})
}

// SetExcludedSources replaces the set of sources that are never queried.
func (c *Controller) SetExcludedSources(ids []string) {
	ids = slices.Clone(ids)
	c.excluded.Store(&ids)
	send(c, c.excludeCh, slices.Clone(ids))
}

// ExcludedSources returns the ids last passed to SetExcludedSources.
func (c *Controller) ExcludedSources() []string {
	return slices.Clone(*c.excluded.Load())
}

// SetVisible toggles the visibility lifecycle.
func (c *Controller) SetVisible(visible bool) {
	send(c, c.visibleCh, visible)
}

// Snapshot returns what the presenter was last given.
func (c *Controller) Snapshot(ctx context.Context) (models.View, error) {
	if c.closed.Load() {
		return models.View{}, apperr.ErrClosed
	}
	resp := make(chan models.View, 1)
	select {
	case c.snapshotCh <- resp:
	case <-c.stopped:
		return models.View{}, apperr.ErrClosed
	case <-ctx.Done():
		return models.View{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-c.stopped:
		return models.View{}, apperr.ErrClosed
	case <-ctx.Done():
		return models.View{}, ctx.Err()
	}
}

// Close cancels every in-flight request and stops the loop.
func (c *Controller) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	<-c.stopped
}

func send[T any](c *Controller, ch chan T, v T) {
	if c.closed.Load() {
		return
	}
	select {
	case ch <- v:
	case <-c.stopped:
	}
}
