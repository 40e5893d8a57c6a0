package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/starford/strata/internal/models"
)

type fetchFn func(resource string, opts models.FetchOptions) (*models.Page, error)

type fetchCall struct {
	source   string
	resource string
	opts     models.FetchOptions
}

// fakeProvider serves pages from per-source functions. A gate registered for
// a resource holds every fetch for it until the gate is closed, regardless of
// cancellation.
type fakeProvider struct {
	mu      sync.Mutex
	sources []string
	pages   map[string]fetchFn
	gates   map[string]chan struct{}
	calls   []fetchCall
	subs    map[chan models.Change]struct{}
}

func newFakeProvider(sources ...string) *fakeProvider {
	return &fakeProvider{
		sources: sources,
		pages:   make(map[string]fetchFn),
		gates:   make(map[string]chan struct{}),
		subs:    make(map[chan models.Change]struct{}),
	}
}

func (p *fakeProvider) Sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sources...)
}

func (p *fakeProvider) Fetch(_ context.Context, source, resource string, opts models.FetchOptions) (*models.Page, error) {
	p.mu.Lock()
	p.calls = append(p.calls, fetchCall{source: source, resource: resource, opts: opts})
	fn := p.pages[source]
	gate := p.gates[resource]
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fn == nil {
		return nil, nil
	}
	return fn(resource, opts)
}

func (p *fakeProvider) Subscribe() (<-chan models.Change, func()) {
	ch := make(chan models.Change, 16)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.subs, ch)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) set(source string, fn fetchFn) {
	p.mu.Lock()
	p.pages[source] = fn
	p.mu.Unlock()
}

func (p *fakeProvider) gate(resource string) chan struct{} {
	g := make(chan struct{})
	p.mu.Lock()
	p.gates[resource] = g
	p.mu.Unlock()
	return g
}

func (p *fakeProvider) emit(ch models.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		sub <- ch
	}
}

func (p *fakeProvider) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakeProvider) callsFor(source string) []fetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fetchCall
	for _, c := range p.calls {
		if c.source == source {
			out = append(out, c)
		}
	}
	return out
}

// recorder is a Presenter that keeps the last push.
type recorder struct {
	mu       sync.Mutex
	items    []models.Item
	message  string
	setCalls int
}

func (r *recorder) SetItems(items []models.Item) {
	r.mu.Lock()
	r.items = items
	r.setCalls++
	r.mu.Unlock()
}

func (r *recorder) SetMessage(msg string) {
	r.mu.Lock()
	r.message = msg
	r.mu.Unlock()
}

func (r *recorder) last() ([]models.Item, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Item(nil), r.items...), r.message
}

// makeItems returns n items of source, newest first, timestamps n..1.
func makeItems(source string, n int) []models.Item {
	out := make([]models.Item, n)
	for i := range out {
		ts := int64(n - i)
		out[i] = models.Item{
			Handle:    fmt.Sprintf("%s-%d", source, ts),
			Source:    source,
			Timestamp: ts,
			Label:     fmt.Sprintf("%s event %d", source, ts),
		}
	}
	return out
}

// pagedFetch paginates a newest-first slice with index cursors.
func pagedFetch(all []models.Item) fetchFn {
	return func(_ string, opts models.FetchOptions) (*models.Page, error) {
		if opts.Direction == models.DirectionAfter && opts.Cursor != "" {
			return &models.Page{Paging: &models.Paging{
				Cursors: models.Cursors{Before: opts.Cursor, After: opts.Cursor},
			}}, nil
		}
		start := 0
		if opts.Direction == models.DirectionBefore && opts.Cursor != "" {
			n, err := strconv.Atoi(opts.Cursor)
			if err != nil {
				return nil, err
			}
			start = n + 1
		}
		start = min(start, len(all))
		end := min(start+opts.Limit, len(all))
		page := append([]models.Item(nil), all[start:end]...)
		return &models.Page{
			Items: page,
			Paging: &models.Paging{
				Cursors: models.Cursors{Before: strconv.Itoa(end - 1), After: strconv.Itoa(start)},
				More:    models.Bool(end < len(all)),
			},
		}, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		RefreshDebounce: 20 * time.Millisecond,
		LoadingDelay:    20 * time.Millisecond,
		Logger:          quietLogger(),
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func snapshot(t *testing.T, c *Controller) models.View {
	t.Helper()
	v, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return v
}

// waitView polls the controller until cond holds for its snapshot.
func waitView(t *testing.T, c *Controller, cond func(models.View) bool, msg string) models.View {
	t.Helper()
	var last models.View
	eventually(t, 3*time.Second, 10*time.Millisecond, func() bool {
		last = snapshot(t, c)
		return cond(last)
	}, msg)
	return last
}

func settled(v models.View) bool {
	return v.State == StateSettled.String()
}
