package timeline

import (
	"context"

	"github.com/starford/strata/internal/models"
)

// FetchFunc fetches one page for source. A nil page with a nil error means
// the source has no timeline for the resource.
type FetchFunc func(ctx context.Context, source, resource string, opts models.FetchOptions) (*models.Page, error)

// RequestKind says how a completed page is folded into the list.
type RequestKind int

const (
	// KindReset replaces every item of the source.
	KindReset RequestKind = iota
	// KindOlder merges an older page behind the current list.
	KindOlder
	// KindNewer merges newer items ahead of the current list.
	KindNewer
)

func (k RequestKind) String() string {
	switch k {
	case KindOlder:
		return "older"
	case KindNewer:
		return "newer"
	default:
		return "reset"
	}
}

// Request is one in-flight fetch for one source.
type Request struct {
	Source   string
	Resource string
	Kind     RequestKind
	Options  models.FetchOptions

	ctx    context.Context
	cancel context.CancelFunc
}

// Cancelled reports whether the request's token was triggered.
func (r *Request) Cancelled() bool {
	return r.ctx.Err() != nil
}

// Completion is the outcome of a request as delivered to the owner loop.
type Completion struct {
	Request *Request
	Page    *models.Page
	Err     error
}

// RequestCoordinator keeps at most one outstanding request per source.
//
// Fetches run on their own goroutines and report back on the completion
// channel; all other methods must be called from the goroutine that
// drains it.
type RequestCoordinator struct {
	parent  context.Context
	fetch   FetchFunc
	out     chan<- Completion
	pending map[string]*Request
}

// NewRequestCoordinator creates a coordinator whose requests derive from
// parent. Completions are sent to out until parent is done.
func NewRequestCoordinator(parent context.Context, fetch FetchFunc, out chan<- Completion) *RequestCoordinator {
	return &RequestCoordinator{
		parent:  parent,
		fetch:   fetch,
		out:     out,
		pending: make(map[string]*Request),
	}
}

// Issue starts a fetch for source, cancelling any request it supersedes.
func (c *RequestCoordinator) Issue(source, resource string, kind RequestKind, opts models.FetchOptions) *Request {
	c.Cancel(source)

	ctx, cancel := context.WithCancel(c.parent)
	req := &Request{
		Source:   source,
		Resource: resource,
		Kind:     kind,
		Options:  opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.pending[source] = req

	go func() {
		page, err := c.fetch(ctx, source, resource, opts)
		select {
		case c.out <- Completion{Request: req, Page: page, Err: err}:
		case <-c.parent.Done():
		}
	}()
	return req
}

// Cancel signals the outstanding request of source, if any, and forgets it.
func (c *RequestCoordinator) Cancel(source string) {
	if req, ok := c.pending[source]; ok {
		req.cancel()
		delete(c.pending, source)
	}
}

// CancelAll cancels every outstanding request.
func (c *RequestCoordinator) CancelAll() {
	for source, req := range c.pending {
		req.cancel()
		delete(c.pending, source)
	}
}

// Complete settles a completion. It returns false when the request was
// cancelled or superseded, in which case the result must be ignored.
func (c *RequestCoordinator) Complete(cmp Completion) bool {
	req := cmp.Request
	current, ok := c.pending[req.Source]
	if ok && current == req {
		delete(c.pending, req.Source)
	}
	if req.Cancelled() || !ok || current != req {
		return false
	}
	req.cancel()
	return true
}

// Outstanding returns the number of pending requests.
func (c *RequestCoordinator) Outstanding() int {
	return len(c.pending)
}

// Pending reports whether source has an outstanding request.
func (c *RequestCoordinator) Pending(source string) bool {
	_, ok := c.pending[source]
	return ok
}

// Get returns the outstanding request of source.
func (c *RequestCoordinator) Get(source string) (*Request, bool) {
	req, ok := c.pending[source]
	return req, ok
}
