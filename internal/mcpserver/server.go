// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes timeline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/strata/internal/comments"
	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/sources"
	"github.com/starford/strata/internal/timeline"
)

// Timeline is the controller surface the tools drive.
type Timeline interface {
	Focus(resource string)
	LoadMore()
	Reset()
	ExcludedSources() []string
	Snapshot(ctx context.Context) (models.View, error)
}

// Sources lists and probes registered sources.
type Sources interface {
	Sources() []string
	FetchAll(ctx context.Context, resource string, limit int) []sources.Result
}

// Comments adds comments.
type Comments interface {
	Add(ctx context.Context, resource, author, body string) (comments.Comment, error)
}

// Server wraps the MCP server with timeline tools.
type Server struct {
	mcp      *server.MCPServer
	timeline Timeline
	sources  Sources
	comments Comments

	// settleTimeout bounds how long mutating tools wait for the timeline to settle.
	settleTimeout time.Duration
}

// New creates a new MCP server with all timeline tools registered. cmts may be nil.
func New(tl Timeline, srcs Sources, cmts Comments) *Server {
	s := &Server{timeline: tl, sources: srcs, comments: cmts, settleTimeout: 5 * time.Second}

	s.mcp = server.NewMCPServer(
		"Strata",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("get_timeline",
		mcp.WithDescription("Return the aggregated timeline currently shown: resource, load state, items (newest first) and message."),
	), s.getTimeline)

	s.mcp.AddTool(mcp.NewTool("focus_resource",
		mcp.WithDescription("Make a resource URI (e.g. file:///repo/main.go) the active resource and return its timeline once loaded."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource URI")),
	), s.focusResource)

	s.mcp.AddTool(mcp.NewTool("load_more",
		mcp.WithDescription("Fetch the next page of older items from every source that has more."),
	), s.loadMore)

	s.mcp.AddTool(mcp.NewTool("reset_timeline",
		mcp.WithDescription("Discard the timeline and reload every source for the active resource."),
	), s.resetTimeline)

	s.mcp.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Attach a comment to a resource. It appears in that resource's timeline."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource URI")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Comment text")),
		mcp.WithString("author", mcp.Description("Author name")),
	), s.addComment)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List timeline sources and whether each is excluded."),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("probe_sources",
		mcp.WithDescription("Fetch the first page of every source for a resource and report item counts or errors."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource URI")),
	), s.probeSources)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// settled polls the timeline until nothing is loading or the timeout passes,
// and returns the last snapshot.
func (s *Server) settled(ctx context.Context) (models.View, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for {
		v, err := s.timeline.Snapshot(ctx)
		if err != nil {
			return v, err
		}
		if v.State != timeline.StateResetting.String() && v.State != timeline.StatePaginating.String() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, nil
		case <-tick.C:
		}
	}
}

func (s *Server) viewResult(ctx context.Context) (*mcp.CallToolResult, error) {
	v, err := s.settled(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v), nil
}

func (s *Server) getTimeline(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.timeline.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v), nil
}

func (s *Server) focusResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.timeline.Focus(resource)
	return s.viewResult(ctx)
}

func (s *Server) loadMore(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.timeline.LoadMore()
	return s.viewResult(ctx)
}

func (s *Server) resetTimeline(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.timeline.Reset()
	return s.viewResult(ctx)
}

func (s *Server) addComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.comments == nil {
		return mcp.NewToolResultError("comments are disabled"), nil
	}
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	author := ""
	if a, err := req.RequireString("author"); err == nil {
		author = a
	}

	c, err := s.comments.Add(ctx, resource, author, body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", c.Handle)), nil
}

func (s *Server) listSources(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	excluded := s.timeline.ExcludedSources()
	var lines []string
	for _, id := range s.sources.Sources() {
		if slices.Contains(excluded, id) {
			lines = append(lines, id+" (excluded)")
		} else {
			lines = append(lines, id)
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no sources registered"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) probeSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, res := range s.sources.FetchAll(ctx, resource, timeline.DefaultInitialPageSize) {
		switch {
		case res.Err != nil:
			lines = append(lines, fmt.Sprintf("%s: error: %v", res.Source, res.Err))
		case res.Page == nil:
			lines = append(lines, fmt.Sprintf("%s: no timeline", res.Source))
		default:
			lines = append(lines, fmt.Sprintf("%s: %d items", res.Source, len(res.Page.Items)))
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
