package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/strata/internal/testutil"
	"github.com/starford/strata/internal/timeline"
)

func testServer(t *testing.T) (*Server, *testutil.Stack) {
	t.Helper()
	st := testutil.TestStack(t)
	srv := New(st.Controller, st.Registry, st.Comments)
	srv.settleTimeout = 2 * time.Second
	return srv, st
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper; call the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_timeline":
		result, err = srv.getTimeline(ctx, req)
	case "focus_resource":
		result, err = srv.focusResource(ctx, req)
	case "load_more":
		result, err = srv.loadMore(ctx, req)
	case "reset_timeline":
		result, err = srv.resetTimeline(ctx, req)
	case "add_comment":
		result, err = srv.addComment(ctx, req)
	case "list_sources":
		result, err = srv.listSources(ctx, req)
	case "probe_sources":
		result, err = srv.probeSources(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestFocusReturnsSettledTimeline(t *testing.T) {
	srv, st := testServer(t)
	_, _ = st.Comments.Add(context.Background(), "file:///a.go", "ann", "hello there")

	r := callTool(t, srv, "focus_resource", map[string]interface{}{"resource": "file:///a.go"})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("focus failed: %s", text)
	}
	if !strings.Contains(text, `"state": "settled"`) || !strings.Contains(text, "hello there") {
		t.Errorf("focus result = %s", text)
	}
}

func TestAddCommentAppearsInTimeline(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "focus_resource", map[string]interface{}{"resource": "file:///b.go"})

	r := callTool(t, srv, "add_comment", map[string]interface{}{
		"resource": "file:///b.go",
		"body":     "from the tool",
		"author":   "bot",
	})
	if !strings.HasPrefix(resultText(r), "added: ") {
		t.Fatalf("add result = %q", resultText(r))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(resultText(callTool(t, srv, "get_timeline", nil)), "from the tool") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("comment never reached the timeline")
}

func TestAddCommentMissingBody(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "add_comment", map[string]interface{}{"resource": "file:///a.go"})
	if !r.IsError {
		t.Error("expected error for missing body")
	}
}

func TestFocusUnsupported(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "focus_resource", map[string]interface{}{"resource": "untitled:Untitled-1"})
	if !strings.Contains(resultText(r), timeline.MessageCannotProvide) {
		t.Errorf("focus result = %s", resultText(r))
	}
}

func TestLoadMoreAndReset(t *testing.T) {
	srv, st := testServer(t)
	for range 22 {
		_, _ = st.Comments.Add(context.Background(), "file:///c.go", "", "x")
	}
	callTool(t, srv, "focus_resource", map[string]interface{}{"resource": "file:///c.go"})

	text := resultText(callTool(t, srv, "load_more", nil))
	if strings.Contains(text, `"sentinel": true`) {
		t.Errorf("sentinel should be gone after loading everything: %s", text)
	}
	if n := strings.Count(text, `"source": "comments"`); n != 22 {
		t.Errorf("items after load more = %d, want 22", n)
	}

	text = resultText(callTool(t, srv, "reset_timeline", nil))
	if !strings.Contains(text, `"sentinel": true`) {
		t.Errorf("reset should return to the first page: %s", text)
	}
}

func TestListAndProbeSources(t *testing.T) {
	srv, st := testServer(t)
	if got := resultText(callTool(t, srv, "list_sources", nil)); got != "comments" {
		t.Errorf("list = %q", got)
	}
	st.Controller.SetExcludedSources([]string{"comments"})
	if got := resultText(callTool(t, srv, "list_sources", nil)); got != "comments (excluded)" {
		t.Errorf("list = %q", got)
	}

	_, _ = st.Comments.Add(context.Background(), "file:///d.go", "", "x")
	if got := resultText(callTool(t, srv, "probe_sources", map[string]interface{}{"resource": "file:///d.go"})); got != "comments: 1 items" {
		t.Errorf("probe = %q", got)
	}
}
