package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestThreadSearcher_ThreadIDs(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": []map[string]string{
				{"thread_id": "t1"},
				{"thread_id": "t2"},
			},
			"estimatedTotalHits": 2,
		})
	}))
	defer srv.Close()

	s := &ThreadSearcher{Client: New(srv.URL, "secret")}
	ids, err := s.ThreadIDs(context.Background(), "course-1", "gravity")
	if err != nil {
		t.Fatalf("ThreadIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "t1" || ids[1] != "t2" {
		t.Fatalf("ids = %v", ids)
	}
	if gotPath != "/indexes/threads/search" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotPayload["q"] != "gravity" {
		t.Fatalf("query payload = %v", gotPayload)
	}
	if gotPayload["filter"] != `course_id = "course-1"` {
		t.Fatalf("filter = %v", gotPayload["filter"])
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"index not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s := &ThreadSearcher{Client: New(srv.URL, "")}
	if _, err := s.ThreadIDs(context.Background(), "", "q"); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}
