package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/events"
	"github.com/example/forum-platform/internal/platform/api"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/present"
	"github.com/example/forum-platform/internal/store"
)

type createThreadRequest struct {
	CourseID         string   `json:"course_id"`
	CommentableID    string   `json:"commentable_id"`
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	ThreadType       string   `json:"thread_type"`
	Context          string   `json:"context,omitempty"`
	GroupID          *int64   `json:"group_id,omitempty"`
	Anonymous        bool     `json:"anonymous"`
	AnonymousToPeers bool     `json:"anonymous_to_peers"`
	Tags             []string `json:"tags,omitempty"`
}

type updateThreadRequest struct {
	Title         *string `json:"title,omitempty"`
	Body          *string `json:"body,omitempty"`
	CommentableID *string `json:"commentable_id,omitempty"`
	ThreadType    *string `json:"thread_type,omitempty"`
	Closed        *bool   `json:"closed,omitempty"`
}

// ListThreads handles GET /v1/threads
func ListThreads(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID, _ := auth.UserIDFromContext(r.Context())

		req := present.ListRequest{
			CourseID:   strings.TrimSpace(q.Get("course_id")),
			AuthorID:   strings.TrimSpace(q.Get("author_id")),
			Context:    content.ThreadContext(strings.TrimSpace(q.Get("context"))),
			Flagged:    q.Get("flagged") == "true",
			Unread:     q.Get("unread") == "true",
			Unanswered: q.Get("unanswered") == "true",
			SortKey:    strings.TrimSpace(q.Get("sort_key")),
			SortOrder:  strings.TrimSpace(q.Get("sort_order")),
			UserID:     userID,
		}
		if v := q.Get("commentable_ids"); v != "" {
			req.CommentableIDs = strings.Split(v, ",")
		}
		if v := q.Get("group_ids"); v != "" {
			for _, part := range strings.Split(v, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					api.BadRequest(w, "INVALID_GROUP_ID", "group_ids must be integers", "", nil)
					return
				}
				req.GroupIDs = append(req.GroupIDs, id)
			}
		}
		if v := q.Get("page"); v != "" {
			req.Page, _ = strconv.Atoi(v)
		}
		if v := q.Get("per_page"); v != "" {
			req.PerPage, _ = strconv.Atoi(v)
		}

		if text := strings.TrimSpace(q.Get("text")); text != "" {
			if d.Searcher == nil {
				api.BadRequest(w, "SEARCH_DISABLED", "full-text search is not configured", "", nil)
				return
			}
			ids, err := d.Searcher.ThreadIDs(r.Context(), req.CourseID, text)
			if err != nil {
				d.Log.Warn("search query failed", zap.Error(err))
				api.Internal(w, "")
				return
			}
			if ids == nil {
				ids = []string{}
			}
			req.ThreadIDs = ids
		}

		page, err := d.Lister.ListThreads(r.Context(), req)
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// CreateThread handles POST /v1/threads
func CreateThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		var req createThreadRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.CourseID) == "" || strings.TrimSpace(req.CommentableID) == "" {
			api.BadRequest(w, "MISSING_FIELDS", "course_id and commentable_id are required", "", nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
			api.BadRequest(w, "MISSING_FIELDS", "title and body must not be empty", "", nil)
			return
		}
		threadType := content.ThreadType(req.ThreadType)
		if req.ThreadType != "" && !threadType.Valid() {
			api.BadRequest(w, "INVALID_TYPE", "thread_type must be discussion or question", "", nil)
			return
		}

		th := content.NewThread(content.Thread{
			AuthorID:         userID,
			CourseID:         req.CourseID,
			CommentableID:    req.CommentableID,
			Title:            req.Title,
			Body:             req.Body,
			Type:             threadType,
			Context:          content.ThreadContext(req.Context),
			GroupID:          req.GroupID,
			Anonymous:        req.Anonymous,
			AnonymousToPeers: req.AnonymousToPeers,
			Tags:             req.Tags,
		}, time.Now().UTC())
		if err := d.Threads.InsertThread(r.Context(), &th); err != nil {
			api.Internal(w, "")
			return
		}
		d.publish(r.Context(), events.SubjectThreadCreated, events.ContentEvent{
			ThreadID: th.ID, CourseID: th.CourseID, ActorID: userID,
		})

		v, err := d.Presenter.Present(r.Context(), &th, userID, present.Options{})
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusCreated, v)
	}
}

// GetThread handles GET /v1/threads/{thread_id}
func GetThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		if threadID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id is required", "", nil)
			return
		}

		th, err := d.Threads.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "thread not found", "")
				return
			}
			api.Internal(w, "")
			return
		}

		q := r.URL.Query()
		opts := present.Options{
			WithResponses: q.Get("with_responses") != "false",
			Recursive:     q.Get("recursive") != "false",
		}
		if v := q.Get("resp_skip"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				api.BadRequest(w, "INVALID_PAGE", "resp_skip must be a non-negative integer", "", nil)
				return
			}
			opts.RespSkip = n
		}
		if v := q.Get("resp_limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				api.BadRequest(w, "INVALID_PAGE", "resp_limit must be a positive integer", "", nil)
				return
			}
			opts.RespLimit = n
		}

		userID, _ := auth.UserIDFromContext(r.Context())
		view, err := d.Presenter.Present(r.Context(), th, userID, opts)
		if err != nil {
			if errors.Is(err, present.ErrInvalidPage) {
				api.BadRequest(w, "INVALID_PAGE", err.Error(), "", nil)
				return
			}
			api.Internal(w, "")
			return
		}

		if q.Get("mark_as_read") == "true" && userID != "" {
			if err := d.Tracker.MarkRead(r.Context(), userID, th); err != nil {
				d.Log.Warn("mark read failed", zap.Error(err))
			}
		}
		api.WriteJSON(w, http.StatusOK, view)
	}
}

// UpdateThread handles PUT /v1/threads/{thread_id}
func UpdateThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		th, err := d.Threads.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "thread not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		if !canModify(r.Context(), th.AuthorID) {
			api.Forbidden(w, "FORBIDDEN", "not the author", "")
			return
		}

		var req updateThreadRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				api.BadRequest(w, "MISSING_FIELDS", "title must not be empty", "", nil)
				return
			}
			th.Title = *req.Title
		}
		if req.Body != nil {
			if strings.TrimSpace(*req.Body) == "" {
				api.BadRequest(w, "MISSING_FIELDS", "body must not be empty", "", nil)
				return
			}
			th.Body = *req.Body
		}
		if req.CommentableID != nil {
			th.CommentableID = *req.CommentableID
		}
		if req.ThreadType != nil {
			t := content.ThreadType(*req.ThreadType)
			if !t.Valid() {
				api.BadRequest(w, "INVALID_TYPE", "thread_type must be discussion or question", "", nil)
				return
			}
			th.Type = t
		}
		if req.Closed != nil {
			if !auth.IsModerator(r.Context()) {
				api.Forbidden(w, "FORBIDDEN", "only moderators can close threads", "")
				return
			}
			th.Closed = *req.Closed
		}
		th.UpdatedAt = time.Now().UTC()

		if err := d.Threads.UpdateThread(r.Context(), th); err != nil {
			api.Internal(w, "")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		d.publish(r.Context(), events.SubjectThreadUpdated, events.ContentEvent{
			ThreadID: th.ID, CourseID: th.CourseID, ActorID: userID,
		})

		view, err := d.Presenter.Present(r.Context(), th, userID, present.Options{})
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, view)
	}
}

// DeleteThread handles DELETE /v1/threads/{thread_id}
func DeleteThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		th, err := d.Threads.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "thread not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		if !canModify(r.Context(), th.AuthorID) {
			api.Forbidden(w, "FORBIDDEN", "not the author", "")
			return
		}

		if err := d.Threads.DeleteThread(r.Context(), threadID); err != nil {
			api.Internal(w, "")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		d.publish(r.Context(), events.SubjectThreadDeleted, events.ContentEvent{
			ThreadID: th.ID, CourseID: th.CourseID, ActorID: userID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// MarkThreadRead handles POST /v1/threads/{thread_id}/read
func MarkThreadRead(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		th, err := d.Threads.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "thread not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		if err := d.Tracker.MarkRead(r.Context(), userID, th); err != nil {
			api.Internal(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetThreadPin handles PUT/DELETE /v1/threads/{thread_id}/pin (moderator only,
// enforced at the route level).
func SetThreadPin(d Deps, pinned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		th, err := d.Threads.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "thread not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		th.Pinned = pinned
		if err := d.Threads.UpdateThread(r.Context(), th); err != nil {
			api.Internal(w, "")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		d.publish(r.Context(), events.SubjectThreadUpdated, events.ContentEvent{
			ThreadID: th.ID, CourseID: th.CourseID, ActorID: userID,
		})
		view, err := d.Presenter.Present(r.Context(), th, userID, present.Options{})
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, view)
	}
}
