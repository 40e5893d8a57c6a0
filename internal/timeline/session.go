package timeline

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/strata/internal/models"
)

// session is the state owned by the controller loop.
type session struct {
	ctl    *Controller
	opts   Options
	logger *slog.Logger

	completions chan Completion
	cursors     *CursorStore
	items       *ItemStore
	requests    *RequestCoordinator
	refresh     *RefreshScheduler

	resource string
	state    State
	sources  []string
	excluded map[string]struct{}
	busy     bool

	// owed holds fetches deferred until the source's pending request lands.
	owed map[string]RequestKind

	visible        bool
	changes        <-chan models.Change
	unsubscribe    func()
	pendingFocus   *string
	pendingRefresh bool

	loadingTimer *time.Timer
	loadingC     <-chan time.Time
	loadingShown bool

	shown   []models.Item
	message string
}

func newSession(ctx context.Context, c *Controller) *session {
	completions := make(chan Completion)
	s := &session{
		ctl:            c,
		opts:           c.opts,
		logger:         c.logger,
		completions:    completions,
		cursors:        NewCursorStore(),
		items:          NewItemStore(c.opts.PageSize),
		refresh:        NewRefreshScheduler(c.opts.RefreshDebounce),
		sources:        slices.Clone(c.provider.Sources()),
		excluded:       toSet(c.opts.ExcludedSources),
		owed:           make(map[string]RequestKind),
		pendingRefresh: true,
	}
	s.requests = NewRequestCoordinator(ctx, c.provider.Fetch, completions)
	return s
}

func (s *session) teardown() {
	s.requests.CancelAll()
	s.refresh.Stop()
	s.stopLoading()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// --- external events ---

func (s *session) focus(resource string) {
	if !s.visible {
		s.pendingFocus = &resource
		return
	}
	s.setResource(resource)
}

func (s *session) setResource(resource string) {
	if s.state != StateIdle || s.resource != "" {
		if sameResource(resource, s.resource) {
			return
		}
	}
	s.logger.Info("controller: resource changed",
		slog.String("from", s.resource),
		slog.String("to", resource))

	s.resource = resource
	s.resetAll()
	if !s.supported() {
		s.state = StateIdle
		s.publish()
		return
	}
	s.load()
}

func (s *session) fullReset() {
	if !s.supported() {
		return
	}
	s.resetAll()
	s.load()
}

func (s *session) setExcluded(ids []string) {
	next := toSet(ids)
	if sameSet(next, s.excluded) {
		return
	}
	s.excluded = next
	s.logger.Info("controller: excluded sources changed", slog.Any("excluded", ids))
	if !s.supported() {
		return
	}
	s.resetAll()
	s.load()
}

func (s *session) setVisible(visible bool) {
	if visible == s.visible {
		return
	}
	s.visible = visible

	if !visible {
		if s.unsubscribe != nil {
			s.unsubscribe()
			s.unsubscribe = nil
		}
		s.changes = nil
		if s.refresh.Pending() {
			s.pendingRefresh = true
		}
		s.refresh.Stop()
		return
	}

	s.changes, s.unsubscribe = s.ctl.provider.Subscribe()
	s.syncSources(s.ctl.provider.Sources())

	if s.pendingFocus != nil {
		resource := *s.pendingFocus
		s.pendingFocus = nil
		s.setResource(resource)
	}
	if s.pendingRefresh {
		s.publish()
	}
}

func (s *session) handleChange(ch models.Change) {
	switch ch.Kind {
	case models.ChangeSourceSet:
		s.sourcesChanged(ch.Added, ch.Removed)
	case models.ChangeFullReset:
		s.fullReset()
	case models.ChangeTimeline:
		if !s.supported() {
			return
		}
		if ch.Resource != "" && !sameResource(ch.Resource, s.resource) {
			return
		}
		if ch.Source == "" && ch.Reset {
			s.fullReset()
			return
		}
		s.timelineChanged(ch.Source, ch.Reset)
	}
}

// timelineChanged reloads one source, or all when source is empty. A
// non-destructive change fetches what is newer than the known end cursor
// and merges it into the list.
func (s *session) timelineChanged(source string, reset bool) {
	targets := s.sources
	if source != "" {
		if !slices.Contains(s.sources, source) {
			return
		}
		targets = []string{source}
	}

	issued := 0
	for _, src := range targets {
		if s.isExcluded(src) {
			continue
		}
		kind := KindReset
		if !reset {
			if req, ok := s.requests.Get(src); ok && req.Kind == KindOlder {
				// Keep the load-more page and fetch newer items once it lands.
				s.owed[src] = KindNewer
				continue
			} else if ok && req.Kind == KindReset {
				kind = KindReset
			} else if _, ok := s.afterCursor(src); ok {
				kind = KindNewer
			}
		}
		if kind == KindReset {
			s.cursors.Clear(src)
		}
		s.issue(src, kind)
		issued++
	}
	if issued > 0 && s.state != StatePaginating {
		s.state = StateResetting
	}
}

func (s *session) sourcesChanged(added, removed []string) {
	changed := false
	for _, id := range removed {
		if !slices.Contains(s.sources, id) {
			continue
		}
		s.sources = slices.DeleteFunc(s.sources, func(x string) bool { return x == id })
		s.requests.Cancel(id)
		delete(s.owed, id)
		s.cursors.Clear(id)
		if s.items.RemoveSource(id) {
			changed = true
		}
	}

	issued := 0
	for _, id := range added {
		if slices.Contains(s.sources, id) {
			continue
		}
		s.sources = append(s.sources, id)
		if !s.supported() || s.isExcluded(id) {
			continue
		}
		s.issue(id, KindReset)
		issued++
	}
	if issued > 0 && s.state != StatePaginating {
		s.state = StateResetting
	}

	settled := s.maybeSettle()
	if changed || settled || len(removed) > 0 {
		s.publish()
	}
}

// syncSources reconciles the known source list with the provider after a
// period without a subscription.
func (s *session) syncSources(current []string) {
	var added, removed []string
	for _, id := range current {
		if !slices.Contains(s.sources, id) {
			added = append(added, id)
		}
	}
	for _, id := range s.sources {
		if !slices.Contains(current, id) {
			removed = append(removed, id)
		}
	}
	if len(added) > 0 || len(removed) > 0 {
		s.sourcesChanged(added, removed)
	}
}

func (s *session) loadMore() {
	if s.busy || !s.supported() {
		return
	}
	issued := 0
	for _, src := range s.sources {
		if s.isExcluded(src) {
			continue
		}
		pair, ok := s.cursors.Get(src)
		if !ok || !pair.More {
			continue
		}
		if req, pending := s.requests.Get(src); pending {
			// A newer fetch in flight keeps its slot; the older page follows it.
			if req.Kind == KindNewer {
				s.owed[src] = KindOlder
				issued++
			}
			continue
		}
		s.issue(src, KindOlder)
		issued++
	}
	if issued == 0 {
		return
	}
	s.busy = true
	if s.state != StateResetting {
		s.state = StatePaginating
	}
	s.publish()
}

// --- requests ---

// load issues a reset request to every non-excluded source.
func (s *session) load() {
	s.state = StateResetting
	issued := 0
	for _, src := range s.sources {
		if s.isExcluded(src) {
			continue
		}
		s.issue(src, KindReset)
		issued++
	}
	if issued == 0 {
		s.maybeSettle()
		s.publish()
		return
	}
	s.startLoading()
	s.publish()
}

func (s *session) issue(src string, kind RequestKind) {
	opts := models.FetchOptions{Limit: s.opts.InitialPageSize, Direction: models.DirectionAfter}
	switch kind {
	case KindOlder:
		pair, _ := s.cursors.Get(src)
		opts = models.FetchOptions{Limit: s.opts.PageSize, Direction: models.DirectionBefore}
		if pair.Start != nil {
			opts.Cursor = pair.Start.Before
		}
	case KindNewer:
		cursor, _ := s.afterCursor(src)
		opts = models.FetchOptions{Cursor: cursor, Limit: s.opts.PageSize, Direction: models.DirectionAfter}
	}
	if kind == KindReset {
		delete(s.owed, src)
	}
	s.logger.Debug("controller: issuing request",
		slog.String("source", src),
		slog.String("kind", kind.String()),
		slog.String("cursor", opts.Cursor))
	s.requests.Issue(src, s.resource, kind, opts)
}

func (s *session) afterCursor(src string) (string, bool) {
	pair, ok := s.cursors.Get(src)
	if !ok {
		return "", false
	}
	switch {
	case pair.End != nil && pair.End.After != "":
		return pair.End.After, true
	case pair.Start != nil && pair.Start.After != "":
		return pair.Start.After, true
	}
	return "", false
}

func (s *session) complete(cmp Completion) {
	req := cmp.Request
	if !s.requests.Complete(cmp) || !sameResource(req.Resource, s.resource) {
		s.logger.Debug("controller: stale completion discarded",
			slog.String("source", req.Source),
			slog.String("resource", req.Resource))
		return
	}

	src := req.Source
	changed := false
	switch {
	case cmp.Err != nil:
		if !errors.Is(cmp.Err, context.Canceled) {
			s.logger.Warn("controller: fetch failed",
				slog.String("source", src),
				slog.String("kind", req.Kind.String()),
				slog.String("error", cmp.Err.Error()))
		}

	case cmp.Page == nil:
		_, had := s.cursors.Get(src)
		s.cursors.Clear(src)
		changed = had
		if req.Kind != KindOlder && s.items.Replace(src, nil) {
			changed = true
		}

	default:
		items := make([]models.Item, 0, len(cmp.Page.Items))
		for _, it := range cmp.Page.Items {
			if it.Handle == models.LoadMoreHandle {
				s.logger.Warn("controller: item with reserved handle dropped", slog.String("source", src))
				continue
			}
			it.Source = src
			it.Sentinel, it.Busy = false, false
			items = append(items, it)
		}
		paging := cmp.Page.Paging
		if req.Kind == KindNewer && paging != nil && paging.More == nil {
			// A newer page says nothing about older items; keep what we know.
			if pair, ok := s.cursors.Get(src); ok {
				p := *paging
				p.More = models.Bool(pair.More)
				paging = &p
			}
		}
		s.cursors.RecordPage(src, paging, req.Options.Direction)
		changed = paging != nil
		if req.Kind == KindReset {
			if s.items.Replace(src, items) {
				changed = true
			}
		} else if s.items.Merge(items, req.Options.Direction) {
			changed = true
		}
		if len(items) > 0 {
			s.stopLoading()
		}
	}

	if kind, ok := s.owed[src]; ok {
		delete(s.owed, src)
		s.issueOwed(src, kind)
	}

	settled := s.maybeSettle()
	if !changed && !settled {
		return
	}
	if !s.visible {
		s.pendingRefresh = true
		return
	}
	if s.refresh.Notify(s.items.Len() == 0, s.requests.Outstanding()) {
		s.publish()
	}
}

// issueOwed runs a fetch that was deferred while src had a request in flight.
func (s *session) issueOwed(src string, kind RequestKind) {
	if s.isExcluded(src) {
		return
	}
	switch kind {
	case KindOlder:
		if pair, ok := s.cursors.Get(src); !ok || !pair.More {
			return
		}
	case KindNewer:
		if _, ok := s.afterCursor(src); !ok {
			kind = KindReset
			s.cursors.Clear(src)
		}
	}
	s.issue(src, kind)
}

// maybeSettle moves to Settled once nothing is outstanding.
func (s *session) maybeSettle() bool {
	if s.requests.Outstanding() > 0 {
		return false
	}
	if s.state != StateResetting && s.state != StatePaginating {
		return false
	}
	s.state = StateSettled
	s.busy = false
	s.stopLoading()
	return true
}

func (s *session) resetAll() {
	s.requests.CancelAll()
	clear(s.owed)
	s.cursors.ClearAll()
	s.items.Clear()
	s.refresh.Reset()
	s.busy = false
	s.stopLoading()
}

// --- presentation ---

// publish pushes the current list and message to the presenter, or defers
// until the view becomes visible again.
func (s *session) publish() {
	if !s.visible {
		s.pendingRefresh = true
		return
	}
	s.pendingRefresh = false

	items := s.items.Sorted()
	if s.supported() && s.cursors.AnyMore() {
		items = append(items, models.LoadMoreItem(s.busy))
	}
	s.shown = items
	s.ctl.presenter.SetItems(slices.Clone(items))

	msg := s.messageFor()
	if msg != s.message {
		s.message = msg
		s.ctl.presenter.SetMessage(msg)
	}
}

func (s *session) messageFor() string {
	switch {
	case !s.supported():
		return MessageCannotProvide
	case s.items.Len() > 0:
		return ""
	case s.requests.Outstanding() > 0:
		if s.loadingShown {
			return MessageLoading
		}
		return ""
	case s.allExcluded():
		return MessageAllFiltered
	default:
		return MessageNoTimeline
	}
}

func (s *session) view() models.View {
	return models.View{
		Resource: s.resource,
		State:    s.state.String(),
		Items:    slices.Clone(s.shown),
		Message:  s.message,
	}
}

func (s *session) startLoading() {
	if s.loadingTimer != nil {
		return
	}
	s.loadingTimer = time.NewTimer(s.opts.LoadingDelay)
	s.loadingC = s.loadingTimer.C
}

func (s *session) loadingFired() {
	s.loadingTimer = nil
	s.loadingC = nil
	if s.items.Len() == 0 && s.requests.Outstanding() > 0 {
		s.loadingShown = true
		s.publish()
	}
}

func (s *session) stopLoading() {
	if s.loadingTimer != nil {
		s.loadingTimer.Stop()
	}
	s.loadingTimer = nil
	s.loadingC = nil
	s.loadingShown = false
}

// --- helpers ---

func (s *session) supported() bool {
	if s.resource == "" {
		return false
	}
	return !slices.Contains(s.opts.UnsupportedSchemes, scheme(s.resource))
}

func (s *session) isExcluded(src string) bool {
	_, ok := s.excluded[src]
	return ok
}

func (s *session) allExcluded() bool {
	for _, src := range s.sources {
		if !s.isExcluded(src) {
			return false
		}
	}
	return len(s.sources) > 0
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
