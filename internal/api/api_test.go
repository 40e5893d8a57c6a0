package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/strata/internal/models"
	"github.com/starford/strata/internal/testutil"
	"github.com/starford/strata/internal/timeline"
)

// testEnv wires a real controller over the comments source and returns the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Stack, http.Handler) {
	t.Helper()
	st := testutil.TestStack(t)
	h := NewHandler(st.Controller, st.Registry, st.Comments)
	return st, NewRouter(h, authToken != "", authToken, st.Broker)
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

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getView(t *testing.T, router http.Handler) models.View {
	t.Helper()
	w := do(t, router, http.MethodGet, "/timeline", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get timeline status = %d", w.Code)
	}
	var v models.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestFocusAndCommentFlow(t *testing.T) {
	_, router := testEnv(t, "")
	const res = "file:///repo/main.go"

	w := do(t, router, http.MethodPut, "/timeline/resource", FocusRequest{Resource: res})
	if w.Code != http.StatusAccepted {
		t.Fatalf("focus status = %d, body = %s", w.Code, w.Body.String())
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		v := getView(t, router)
		return v.State == timeline.StateSettled.String() && v.Message == timeline.MessageNoTimeline
	}, "empty timeline should settle with the no-timeline message")

	w = do(t, router, http.MethodPost, "/comments", CreateCommentRequest{Resource: res, Author: "ann", Body: "first"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create comment status = %d, body = %s", w.Code, w.Body.String())
	}
	var created CommentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Handle == "" || created.Resource != res {
		t.Errorf("created = %+v", created)
	}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		v := getView(t, router)
		return len(v.Items) == 1 && v.Items[0].ID == created.Handle && v.Message == ""
	}, "comment should appear in the timeline")

	w = do(t, router, http.MethodDelete, "/comments/"+created.Handle, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return len(getView(t, router).Items) == 0
	}, "removed comment should disappear")

	w = do(t, router, http.MethodDelete, "/comments/"+created.Handle, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestLoadMoreEndpoint(t *testing.T) {
	st, router := testEnv(t, "")
	const res = "file:///repo/big.go"
	for range 25 {
		if _, err := st.Comments.Add(context.Background(), res, "bot", "note"); err != nil {
			t.Fatal(err)
		}
	}

	do(t, router, http.MethodPut, "/timeline/resource", FocusRequest{Resource: res})
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		v := getView(t, router)
		return v.State == timeline.StateSettled.String() && len(v.Items) == 21
	}, "first page plus sentinel expected")

	v := getView(t, router)
	if last := v.Items[20]; !last.Sentinel || last.Handle != models.LoadMoreHandle {
		t.Errorf("last item = %+v", last)
	}

	if w := do(t, router, http.MethodPost, "/timeline/load-more", nil); w.Code != http.StatusAccepted {
		t.Fatalf("load more status = %d", w.Code)
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		v := getView(t, router)
		return v.State == timeline.StateSettled.String() && len(v.Items) == 25
	}, "all comments expected after load more")
}

func TestResetAndVisibility(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/timeline/reset", nil); w.Code != http.StatusAccepted {
		t.Errorf("reset status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/timeline/visibility", map[string]bool{"visible": false}); w.Code != http.StatusOK {
		t.Errorf("visibility status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/timeline/visibility", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing visible = %d, want 400", w.Code)
	}
}

func TestUnsupportedResourceMessage(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/timeline/resource", FocusRequest{Resource: "output:log"})
	v := getView(t, router)
	if v.Message != timeline.MessageCannotProvide {
		t.Errorf("message = %q", v.Message)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []any{
		CreateCommentRequest{Resource: "", Body: "x"},
		CreateCommentRequest{Resource: "file:///a", Body: ""},
	}
	for _, body := range cases {
		if w := do(t, router, http.MethodPost, "/comments", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %+v status = %d, want 400", body, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/comments", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestListAndProbeSources(t *testing.T) {
	st, router := testEnv(t, "")
	st.Controller.SetExcludedSources([]string{"comments"})

	w := do(t, router, http.MethodGet, "/sources", nil)
	var list SourcesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Sources) != 1 || list.Sources[0].ID != "comments" || !list.Sources[0].Excluded {
		t.Errorf("sources = %+v", list.Sources)
	}

	_, _ = st.Comments.Add(context.Background(), "file:///a", "ann", "x")
	w = do(t, router, http.MethodGet, "/sources/probe?resource=file:///a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("probe status = %d", w.Code)
	}
	var probe ProbeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &probe)
	if len(probe.Results) != 1 || probe.Results[0].Items != 1 {
		t.Errorf("probe = %+v", probe)
	}

	if w := do(t, router, http.MethodGet, "/sources/probe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("probe without resource = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed get = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidTokenReplaysTimeline(t *testing.T) {
	_, router := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatal("SSE with valid token should not 401")
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("event: timeline.items")) {
		t.Errorf("SSE should replay the current items: %q", w.Body.String())
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	_, router := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatal("SSE with query token should not 401")
	}

	// Mutations must use the header.
	post := httptest.NewRequest(http.MethodPost, "/timeline/reset?access_token=tok", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, post)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST = %d, want 401", w.Code)
	}
}

func TestDeleteComment(t *testing.T) {
	st, router := testEnv(t, "")

	c, err := st.Comments.Add(context.Background(), "file:///a.go", "ann", "bye")
	if err != nil {
		t.Fatal(err)
	}
	if w := do(t, router, http.MethodDelete, "/comments/"+c.Handle, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/comments/"+c.Handle, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}
