package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/present"
	"github.com/example/forum-platform/internal/store"
)

func testDeps() (Deps, *store.Memory) {
	mem := store.NewMemory()
	tracker := &present.Tracker{ReadStates: mem, Comments: mem}
	presenter := &present.Presenter{Comments: mem, Tracker: tracker}
	return Deps{
		Threads:   mem,
		Comments:  mem,
		Tracker:   tracker,
		Presenter: presenter,
		Lister:    &present.Engine{Threads: mem, Comments: mem, Reads: mem, Presenter: presenter, PerPage: 20},
		Log:       zap.NewNop(),
	}, mem
}

// setupReq builds a request with chi URL params and optional user_id and
// role in context.
func setupReq(method, url string, body string, params map[string]string, userID, role string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	if role != "" {
		ctx = auth.WithRole(ctx, role)
	}
	return req.WithContext(ctx)
}

func seedThread(t *testing.T, mem *store.Memory, mutate func(*content.Thread)) *content.Thread {
	t.Helper()
	th := content.NewThread(content.Thread{
		AuthorID:      "author-1",
		CourseID:      "course-1",
		CommentableID: "unit-1",
		Title:         "title",
		Body:          "body",
	}, time.Now().UTC())
	if mutate != nil {
		mutate(&th)
	}
	if err := mem.InsertThread(context.Background(), &th); err != nil {
		t.Fatalf("InsertThread: %v", err)
	}
	return &th
}

func TestCreateThread(t *testing.T) {
	d, _ := testDeps()
	handler := CreateThread(d)

	body := `{"course_id":"course-1","commentable_id":"unit-1","title":"hi","body":"text","thread_type":"question"}`
	req := setupReq(http.MethodPost, "/v1/threads", body, nil, "user-a", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var v present.ThreadView
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.AuthorID != "user-a" || v.Type != content.Question {
		t.Fatalf("unexpected view: %+v", v)
	}
}

func TestCreateThread_Validation(t *testing.T) {
	d, _ := testDeps()
	handler := CreateThread(d)

	cases := []struct {
		name string
		body string
	}{
		{"missing course", `{"commentable_id":"u","title":"t","body":"b"}`},
		{"empty title", `{"course_id":"c","commentable_id":"u","title":" ","body":"b"}`},
		{"bad type", `{"course_id":"c","commentable_id":"u","title":"t","body":"b","thread_type":"poll"}`},
	}
	for _, tc := range cases {
		req := setupReq(http.MethodPost, "/v1/threads", tc.body, nil, "user-a", "")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rr.Code)
		}
	}
}

func TestGetThread_WithResponses(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	c := content.NewComment(content.Comment{
		ThreadID: th.ID, AuthorID: "user-b", CourseID: th.CourseID, Body: "reply",
	}, nil, time.Now().UTC())
	if err := mem.InsertComment(context.Background(), &c); err != nil {
		t.Fatalf("InsertComment: %v", err)
	}

	handler := GetThread(d)
	req := setupReq(http.MethodGet, "/v1/threads/"+th.ID, "",
		map[string]string{"thread_id": th.ID}, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var v present.ThreadView
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.Children) != 1 || v.Children[0].Body != "reply" {
		t.Fatalf("responses missing: %+v", v.Children)
	}
}

func TestGetThread_InvalidRespLimit(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)

	handler := GetThread(d)
	req := setupReq(http.MethodGet, "/v1/threads/"+th.ID+"?resp_limit=0", "",
		map[string]string{"thread_id": th.ID}, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetThread_NotFound(t *testing.T) {
	d, _ := testDeps()
	handler := GetThread(d)
	req := setupReq(http.MethodGet, "/v1/threads/nope", "",
		map[string]string{"thread_id": "nope"}, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetThread_MarkAsRead(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)

	handler := GetThread(d)
	req := setupReq(http.MethodGet, "/v1/threads/"+th.ID+"?mark_as_read=true", "",
		map[string]string{"thread_id": th.ID}, "reader", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	m, err := mem.LastReadMap(context.Background(), "reader", th.CourseID)
	if err != nil {
		t.Fatalf("LastReadMap: %v", err)
	}
	if _, ok := m[th.ID]; !ok {
		t.Fatalf("thread not marked read")
	}
}

func TestUpdateThread_Authorization(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	handler := UpdateThread(d)

	req := setupReq(http.MethodPut, "/v1/threads/"+th.ID, `{"title":"new"}`,
		map[string]string{"thread_id": th.ID}, "someone-else", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", rr.Code)
	}

	// Moderators may edit other users' threads.
	req = setupReq(http.MethodPut, "/v1/threads/"+th.ID, `{"title":"new"}`,
		map[string]string{"thread_id": th.ID}, "someone-else", "moderator")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for moderator, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteThread_Cascades(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	c := content.NewComment(content.Comment{
		ThreadID: th.ID, AuthorID: "user-b", CourseID: th.CourseID, Body: "reply",
	}, nil, time.Now().UTC())
	_ = mem.InsertComment(context.Background(), &c)

	handler := DeleteThread(d)
	req := setupReq(http.MethodDelete, "/v1/threads/"+th.ID, "",
		map[string]string{"thread_id": th.ID}, "author-1", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if _, err := mem.GetComment(context.Background(), c.ID); err == nil {
		t.Fatalf("comment survived thread deletion")
	}
}

func TestCreateComment_NestedUnderParent(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	handler := CreateComment(d)

	req := setupReq(http.MethodPost, "/v1/threads/"+th.ID+"/comments", `{"body":"root"}`,
		map[string]string{"thread_id": th.ID}, "user-a", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var root content.Comment
	if err := json.NewDecoder(rr.Body).Decode(&root); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = setupReq(http.MethodPost, "/v1/threads/"+th.ID+"/comments",
		`{"body":"child","parent_id":"`+root.ID+`"}`,
		map[string]string{"thread_id": th.ID}, "user-b", "")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var child content.Comment
	if err := json.NewDecoder(rr.Body).Decode(&child); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if child.Depth != 1 || child.SortKey != root.SortKey+"-"+child.ID {
		t.Fatalf("child hierarchy wrong: depth=%d sort_key=%q", child.Depth, child.SortKey)
	}
}

func TestCreateComment_ClosedThread(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, func(th *content.Thread) { th.Closed = true })
	handler := CreateComment(d)

	req := setupReq(http.MethodPost, "/v1/threads/"+th.ID+"/comments", `{"body":"late"}`,
		map[string]string{"thread_id": th.ID}, "user-a", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on closed thread, got %d", rr.Code)
	}

	// Moderators can still respond.
	req = setupReq(http.MethodPost, "/v1/threads/"+th.ID+"/comments", `{"body":"mod note"}`,
		map[string]string{"thread_id": th.ID}, "mod", "moderator")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for moderator, got %d", rr.Code)
	}
}

func TestVoteThread(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	handler := VoteThread(d)

	req := setupReq(http.MethodPut, "/v1/threads/"+th.ID+"/votes", `{"vote":1}`,
		map[string]string{"thread_id": th.ID}, "voter", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	got, _ := mem.GetThread(context.Background(), th.ID)
	if got.Votes.UpCount != 1 || got.Votes.Point != 1 {
		t.Fatalf("votes = %+v", got.Votes)
	}

	// DELETE clears the vote.
	req = setupReq(http.MethodDelete, "/v1/threads/"+th.ID+"/votes", "",
		map[string]string{"thread_id": th.ID}, "voter", "")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	got, _ = mem.GetThread(context.Background(), th.ID)
	if got.Votes.UpCount != 0 || got.Votes.Point != 0 {
		t.Fatalf("votes after clear = %+v", got.Votes)
	}
}

func TestVoteThread_InvalidValue(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	handler := VoteThread(d)

	req := setupReq(http.MethodPut, "/v1/threads/"+th.ID+"/votes", `{"vote":5}`,
		map[string]string{"thread_id": th.ID}, "voter", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUnflagThread_AllRequiresModerator(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, nil)
	_ = mem.FlagThread(context.Background(), th.ID, "flagger")

	handler := UnflagThread(d)
	req := setupReq(http.MethodDelete, "/v1/threads/"+th.ID+"/abuse_flags?all=true", "",
		map[string]string{"thread_id": th.ID}, "user-a", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	req = setupReq(http.MethodDelete, "/v1/threads/"+th.ID+"/abuse_flags?all=true", "",
		map[string]string{"thread_id": th.ID}, "mod", "moderator")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	got, _ := mem.GetThread(context.Background(), th.ID)
	if len(got.AbuseFlaggers) != 0 || len(got.HistoricalAbuseFlaggers) != 1 {
		t.Fatalf("flags after clear-all: %+v", got)
	}
}

func TestEndorseComment(t *testing.T) {
	d, mem := testDeps()
	th := seedThread(t, mem, func(th *content.Thread) { th.Type = content.Question })
	c := content.NewComment(content.Comment{
		ThreadID: th.ID, AuthorID: "user-b", CourseID: th.CourseID, Body: "answer",
	}, nil, time.Now().UTC())
	_ = mem.InsertComment(context.Background(), &c)

	handler := EndorseComment(d)
	req := setupReq(http.MethodPut, "/v1/comments/"+c.ID+"/endorse", `{"endorsed":true}`,
		map[string]string{"comment_id": c.ID}, "staff", "moderator")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got, _ := mem.GetComment(context.Background(), c.ID)
	if !got.Endorsed || got.Endorsement == nil || got.Endorsement.UserID != "staff" {
		t.Fatalf("endorsement not recorded: %+v", got)
	}
}

func TestListThreads(t *testing.T) {
	d, mem := testDeps()
	seedThread(t, mem, nil)
	seedThread(t, mem, func(th *content.Thread) { th.CourseID = "other-course" })

	handler := ListThreads(d)
	req := setupReq(http.MethodGet, "/v1/threads?course_id=course-1", "", nil, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page present.Page
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Collection) != 1 || page.NumPages != 1 || page.Page != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestListThreads_TextWithoutSearcher(t *testing.T) {
	d, _ := testDeps()
	handler := ListThreads(d)
	req := setupReq(http.MethodGet, "/v1/threads?course_id=course-1&text=hello", "", nil, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when search is disabled, got %d", rr.Code)
	}
}

func TestListThreads_InvalidSort(t *testing.T) {
	d, mem := testDeps()
	seedThread(t, mem, nil)

	handler := ListThreads(d)
	req := setupReq(http.MethodGet, "/v1/threads?course_id=course-1&sort_key=hotness", "", nil, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var page present.Page
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Collection) != 0 || page.NumPages != 1 {
		t.Fatalf("invalid sort must yield an empty page, got %+v", page)
	}
}
