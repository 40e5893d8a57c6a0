// Package sources routes timeline fetches to registered sources and fans out
// change notifications to subscribers.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/strata/internal/apperr"
	"github.com/starford/strata/internal/models"
)

// Source is one independent timeline source.
type Source interface {
	ID() string
	// Fetch returns one page for resource, or nil when the source has no
	// timeline for it.
	Fetch(ctx context.Context, resource string, opts models.FetchOptions) (*models.Page, error)
}

// Options configure a Registry.
type Options struct {
	// RatePerSecond limits fetches per source. Zero disables limiting.
	RatePerSecond float64
	Burst         int
	Logger        *slog.Logger
}

type entry struct {
	source  Source
	limiter *rate.Limiter
}

// Registry is safe for concurrent use.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	order   []string
	entries map[string]entry

	subMu sync.Mutex
	subs  map[chan models.Change]struct{}
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		entries: make(map[string]entry),
		subs:    make(map[chan models.Change]struct{}),
	}
}

// Register adds src and announces it to subscribers.
func (r *Registry) Register(src Source) error {
	id := src.ID()
	r.mu.Lock()
	if _, ok := r.entries[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("sources: register %q: %w", id, apperr.ErrAlreadyExists)
	}
	e := entry{source: src}
	if r.opts.RatePerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(r.opts.RatePerSecond), r.opts.Burst)
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Info("sources: registered", slog.String("source", id))
	r.Publish(models.Change{Kind: models.ChangeSourceSet, Added: []string{id}})
	return nil
}

// Unregister removes the source with id and announces the removal.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	if _, ok := r.entries[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("sources: unregister %q: %w", id, apperr.ErrNotFound)
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(x string) bool { return x == id })
	r.mu.Unlock()

	r.logger.Info("sources: unregistered", slog.String("source", id))
	r.Publish(models.Change{Kind: models.ChangeSourceSet, Removed: []string{id}})
	return nil
}

// Sources returns the registered ids in registration order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Fetch fetches one page from the source with id, waiting on its rate
// limiter first.
func (r *Registry) Fetch(ctx context.Context, source, resource string, opts models.FetchOptions) (*models.Page, error) {
	r.mu.RLock()
	e, ok := r.entries[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sources: fetch %q: %w", source, apperr.ErrNotFound)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return e.source.Fetch(ctx, resource, opts)
}

// Result is the outcome of fetching one source in FetchAll.
type Result struct {
	Source string       `json:"source"`
	Page   *models.Page `json:"page,omitempty"`
	Err    error        `json:"-"`
}

// FetchAll fetches the first page of every source concurrently. Results
// follow registration order; per-source failures are reported in Result.Err.
func (r *Registry) FetchAll(ctx context.Context, resource string, limit int) []Result {
	ids := r.Sources()
	results := make([]Result, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			page, err := r.Fetch(ctx, id, resource, models.FetchOptions{Limit: limit, Direction: models.DirectionAfter})
			results[i] = Result{Source: id, Page: page, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Subscribe registers a change listener. The returned func releases it and
// closes the channel.
func (r *Registry) Subscribe() (<-chan models.Change, func()) {
	ch := make(chan models.Change, 64)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, ch)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ch to every subscriber without blocking.
func (r *Registry) Publish(ch models.Change) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for sub := range r.subs {
		select {
		case sub <- ch:
		default:
			// Subscriber buffer full; drop rather than stall the publisher.
			r.logger.Warn("sources: change dropped", slog.String("kind", string(ch.Kind)))
		}
	}
}
