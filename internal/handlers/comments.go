package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/events"
	"github.com/example/forum-platform/internal/platform/api"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/store"
)

type createCommentRequest struct {
	Body             string  `json:"body"`
	ParentID         *string `json:"parent_id,omitempty"`
	Anonymous        bool    `json:"anonymous"`
	AnonymousToPeers bool    `json:"anonymous_to_peers"`
}

type updateCommentRequest struct {
	Body string `json:"body"`
}

type endorseRequest struct {
	Endorsed bool `json:"endorsed"`
}

// CreateComment handles POST /v1/threads/{thread_id}/comments. A parent_id
// in the body nests the comment under an existing comment of the same
// thread.
func CreateComment(d Deps) http.HandlerFunc {
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
		if th.Closed && !auth.IsModerator(r.Context()) {
			api.Forbidden(w, "THREAD_CLOSED", "thread is closed", "")
			return
		}

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Body) == "" {
			api.BadRequest(w, "EMPTY_BODY", "body must not be empty", "", nil)
			return
		}

		var parent *content.Comment
		if req.ParentID != nil {
			parent, err = d.Comments.GetComment(r.Context(), strings.TrimSpace(*req.ParentID))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					api.NotFound(w, "NOT_FOUND", "parent comment not found", "")
					return
				}
				api.Internal(w, "")
				return
			}
			if parent.ThreadID != th.ID {
				api.BadRequest(w, "WRONG_THREAD", "parent belongs to another thread", "", nil)
				return
			}
		}

		c := content.NewComment(content.Comment{
			ThreadID:         th.ID,
			AuthorID:         userID,
			CourseID:         th.CourseID,
			Body:             req.Body,
			Anonymous:        req.Anonymous,
			AnonymousToPeers: req.AnonymousToPeers,
		}, parent, time.Now().UTC())
		if parent != nil {
			pid := parent.ID
			c.ParentID = &pid
		}

		if err := d.Comments.InsertComment(r.Context(), &c); err != nil {
			api.Internal(w, "")
			return
		}
		d.publish(r.Context(), events.SubjectCommentCreated, events.ContentEvent{
			ThreadID: th.ID, CommentID: c.ID, CourseID: th.CourseID, ActorID: userID,
		})
		api.WriteJSON(w, http.StatusCreated, c)
	}
}

// GetComment handles GET /v1/comments/{comment_id}
func GetComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		c, err := d.Comments.GetComment(r.Context(), commentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "comment not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

// UpdateComment handles PUT /v1/comments/{comment_id}
func UpdateComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		c, err := d.Comments.GetComment(r.Context(), commentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "comment not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		if !canModify(r.Context(), c.AuthorID) {
			api.Forbidden(w, "FORBIDDEN", "not the author", "")
			return
		}

		var req updateCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Body) == "" {
			api.BadRequest(w, "EMPTY_BODY", "body must not be empty", "", nil)
			return
		}
		c.Body = req.Body
		c.UpdatedAt = time.Now().UTC()

		if err := d.Comments.UpdateComment(r.Context(), c); err != nil {
			api.Internal(w, "")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		d.publish(r.Context(), events.SubjectCommentUpdated, events.ContentEvent{
			ThreadID: c.ThreadID, CommentID: c.ID, CourseID: c.CourseID, ActorID: userID,
		})
		api.WriteJSON(w, http.StatusOK, c)
	}
}

// DeleteComment handles DELETE /v1/comments/{comment_id}. Descendants are
// removed with it.
func DeleteComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		c, err := d.Comments.GetComment(r.Context(), commentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "comment not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		if !canModify(r.Context(), c.AuthorID) {
			api.Forbidden(w, "FORBIDDEN", "not the author", "")
			return
		}

		if err := d.Comments.DeleteComment(r.Context(), commentID); err != nil {
			api.Internal(w, "")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		d.publish(r.Context(), events.SubjectCommentDeleted, events.ContentEvent{
			ThreadID: c.ThreadID, CommentID: c.ID, CourseID: c.CourseID, ActorID: userID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// EndorseComment handles PUT /v1/comments/{comment_id}/endorse (moderator
// only, enforced at the route level).
func EndorseComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))

		var req endorseRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}

		if err := d.Comments.Endorse(r.Context(), commentID, userID, req.Endorsed); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NOT_FOUND", "comment not found", "")
				return
			}
			api.Internal(w, "")
			return
		}
		c, err := d.Comments.GetComment(r.Context(), commentID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		d.publish(r.Context(), events.SubjectCommentUpdated, events.ContentEvent{
			ThreadID: c.ThreadID, CommentID: c.ID, CourseID: c.CourseID, ActorID: userID,
		})
		api.WriteJSON(w, http.StatusOK, c)
	}
}
