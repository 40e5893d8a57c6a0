package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/strata/internal/comments"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/sources"
)

// Timeline is the controller surface the API drives.
type Timeline interface {
	Focus(resource string)
	LoadMore()
	Reset()
	SetVisible(visible bool)
	ExcludedSources() []string
	Snapshot(ctx context.Context) (models.View, error)
}

// Sources lists and probes registered sources.
type Sources interface {
	Sources() []string
	FetchAll(ctx context.Context, resource string, limit int) []sources.Result
}

// Comments adds and removes comments.
type Comments interface {
	Add(ctx context.Context, resource, author, body string) (comments.Comment, error)
	Remove(ctx context.Context, handle string) error
}

// Handler holds API route handlers.
type Handler struct {
	timeline Timeline
	sources  Sources
	comments Comments
}

// NewHandler creates a new Handler. comments may be nil.
func NewHandler(timeline Timeline, srcs Sources, cmts Comments) *Handler {
	return &Handler{timeline: timeline, sources: srcs, comments: cmts}
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int) {
	view, err := h.timeline.Snapshot(r.Context())
	if err != nil {
		writeErr(w, "snapshot", err)
		return
	}
	if view.Items == nil {
		view.Items = []models.Item{}
	}
	writeJSON(w, status, view)
}

// GetTimeline handles GET /api/timeline.
//
//	@Summary		Current timeline snapshot
//	@Tags			timeline
//	@Produce		json
//	@Success		200	{object}	TimelineResponse
//	@Security		BearerAuth
//	@Router			/timeline [get]
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, http.StatusOK)
}

// FocusResource handles PUT /api/timeline/resource.
//
//	@Summary		Change the active resource
//	@Tags			timeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FocusRequest	true	"Resource URI"
//	@Success		202		{object}	TimelineResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timeline/resource [put]
func (h *Handler) FocusResource(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if !decode(w, r, &req) {
		return
	}
	h.timeline.Focus(req.Resource)
	h.writeSnapshot(w, r, http.StatusAccepted)
}

// LoadMore handles POST /api/timeline/load-more.
//
//	@Summary		Activate the load-more entry
//	@Tags			timeline
//	@Produce		json
//	@Success		202	{object}	TimelineResponse
//	@Security		BearerAuth
//	@Router			/timeline/load-more [post]
func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	h.timeline.LoadMore()
	h.writeSnapshot(w, r, http.StatusAccepted)
}

// ResetTimeline handles POST /api/timeline/reset.
//
//	@Summary		Reload every source
//	@Tags			timeline
//	@Produce		json
//	@Success		202	{object}	TimelineResponse
//	@Security		BearerAuth
//	@Router			/timeline/reset [post]
func (h *Handler) ResetTimeline(w http.ResponseWriter, r *http.Request) {
	h.timeline.Reset()
	h.writeSnapshot(w, r, http.StatusAccepted)
}

// SetVisibility handles PUT /api/timeline/visibility.
//
//	@Summary		Show or hide the timeline view
//	@Tags			timeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VisibilityRequest	true	"Visibility"
//	@Success		200		{object}	TimelineResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timeline/visibility [put]
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !decode(w, r, &req) {
		return
	}
	h.timeline.SetVisible(*req.Visible)
	h.writeSnapshot(w, r, http.StatusOK)
}

// ListSources handles GET /api/sources.
//
//	@Summary		List registered sources
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SourcesResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	excluded := h.timeline.ExcludedSources()
	ids := h.sources.Sources()
	out := make([]SourceInfo, len(ids))
	for i, id := range ids {
		out[i] = SourceInfo{ID: id, Excluded: slices.Contains(excluded, id)}
	}
	writeJSON(w, http.StatusOK, SourcesResponse{Sources: out})
}

// ProbeSources handles GET /api/sources/probe.
//
//	@Summary		Fetch the first page of every source for a resource
//	@Tags			sources
//	@Produce		json
//	@Param			resource	query		string	true	"Resource URI"
//	@Param			limit		query		int		false	"Page size"
//	@Success		200			{object}	ProbeResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/probe [get]
func (h *Handler) ProbeSources(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, ProbeResponse{
		Resource: resource,
		Results:  Probe(r.Context(), h.sources, resource, limit),
	})
}

// Probe summarises the first page of every source for resource.
func Probe(ctx context.Context, srcs Sources, resource string, limit int) []ProbeResult {
	results := srcs.FetchAll(ctx, resource, limit)
	out := make([]ProbeResult, len(results))
	for i, res := range results {
		p := ProbeResult{Source: res.Source}
		switch {
		case res.Err != nil:
			p.Error = res.Err.Error()
		case res.Page == nil:
			p.NoData = true
		default:
			p.Items = len(res.Page.Items)
			p.More = res.Page.Paging != nil && res.Page.Paging.More != nil && *res.Page.Paging.More
		}
		out[i] = p
	}
	return out
}

// CreateComment handles POST /api/comments.
//
//	@Summary		Add a comment to a resource
//	@Tags			comments
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCommentRequest	true	"Comment"
//	@Success		201		{object}	CommentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comments [post]
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	if h.comments == nil {
		writeError(w, http.StatusNotFound, "comments disabled")
		return
	}
	var req CreateCommentRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.comments.Add(r.Context(), req.Resource, req.Author, req.Body)
	if err != nil {
		writeErr(w, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, CommentResponse{
		Handle:    c.Handle,
		Resource:  c.Resource,
		Author:    c.Author,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	})
}

// DeleteComment handles DELETE /api/comments/{handle}.
//
//	@Summary		Remove a comment
//	@Tags			comments
//	@Param			handle	path	string	true	"Comment handle"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comments/{handle} [delete]
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if h.comments == nil {
		writeError(w, http.StatusNotFound, "comments disabled")
		return
	}
	handle := chi.URLParam(r, "handle")
	if err := h.comments.Remove(r.Context(), handle); err != nil {
		writeErr(w, "remove comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
