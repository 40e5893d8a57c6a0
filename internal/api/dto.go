package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/strata/internal/models"
)

// FocusRequest is the request body for changing the active resource.
type FocusRequest struct {
	Resource string `json:"resource" example:"file:///repo/main.go"`
}

// Validate implements validation.Validatable.
func (r FocusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Resource, validation.Length(0, 4096)),
	)
}

// VisibilityRequest is the request body for the visibility lifecycle.
type VisibilityRequest struct {
	Visible *bool `json:"visible" example:"true"`
}

// Validate implements validation.Validatable.
func (r VisibilityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Visible, validation.NotNil),
	)
}

// CreateCommentRequest is the request body for adding a comment.
type CreateCommentRequest struct {
	Resource string `json:"resource" example:"file:///repo/main.go" validate:"required"`
	Author   string `json:"author" example:"ann"`
	Body     string `json:"body" example:"Looks good" validate:"required"`
}

// Validate implements validation.Validatable.
func (r CreateCommentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Resource, validation.Required, validation.Length(1, 4096)),
		validation.Field(&r.Author, validation.Length(0, 200)),
		validation.Field(&r.Body, validation.Required, validation.Length(1, 10_000)),
	)
}

// TimelineResponse is the timeline snapshot.
type TimelineResponse = models.View

// SourceInfo describes one registered source.
type SourceInfo struct {
	ID       string `json:"id" example:"comments" validate:"required"`
	Excluded bool   `json:"excluded" example:"false"`
}

// SourcesResponse wraps the source list.
type SourcesResponse struct {
	Sources []SourceInfo `json:"sources" validate:"required"`
}

// ProbeResult is the outcome of fetching the first page of one source.
type ProbeResult struct {
	Source string `json:"source" example:"fsevents" validate:"required"`
	Items  int    `json:"items" example:"12"`
	More   bool   `json:"more" example:"true"`
	NoData bool   `json:"no_data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ProbeResponse wraps probe results.
type ProbeResponse struct {
	Resource string        `json:"resource" validate:"required"`
	Results  []ProbeResult `json:"results" validate:"required"`
}

// CommentResponse is returned after a comment is added.
type CommentResponse struct {
	Handle    string `json:"handle" example:"0b5c3c9e-..." validate:"required"`
	Resource  string `json:"resource" validate:"required"`
	Author    string `json:"author"`
	Body      string `json:"body" validate:"required"`
	CreatedAt int64  `json:"created_at" example:"1700000000000" validate:"required"`
}
