package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/forum-platform/internal/platform/api"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/store"
)

type voteRequest struct {
	Vote int `json:"vote"`
}

// VoteThread handles PUT /v1/threads/{thread_id}/votes with {vote: 1|-1}
// and DELETE to clear the caller's vote.
func VoteThread(d Deps) http.HandlerFunc {
	return vote(d, func(r *http.Request, userID string, value int) error {
		return d.Threads.VoteThread(r.Context(), chi.URLParam(r, "thread_id"), userID, value)
	})
}

// VoteComment handles PUT /v1/comments/{comment_id}/votes and DELETE to
// clear.
func VoteComment(d Deps) http.HandlerFunc {
	return vote(d, func(r *http.Request, userID string, value int) error {
		return d.Comments.VoteComment(r.Context(), chi.URLParam(r, "comment_id"), userID, value)
	})
}

func vote(d Deps, apply func(r *http.Request, userID string, value int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		value := 0
		if r.Method != http.MethodDelete {
			var req voteRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
				api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
				return
			}
			if req.Vote != 1 && req.Vote != -1 {
				api.BadRequest(w, "INVALID_VOTE", "vote must be 1 or -1", "", nil)
				return
			}
			value = req.Vote
		}

		if err := apply(r, userID, value); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				api.NotFound(w, "NOT_FOUND", "content not found", "")
			case errors.Is(err, store.ErrInvalidVote):
				api.BadRequest(w, "INVALID_VOTE", err.Error(), "", nil)
			default:
				api.Internal(w, "")
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// FlagThread handles PUT /v1/threads/{thread_id}/abuse_flags.
func FlagThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		err := d.Threads.FlagThread(r.Context(), chi.URLParam(r, "thread_id"), userID)
		writeFlagResult(w, err)
	}
}

// UnflagThread handles DELETE /v1/threads/{thread_id}/abuse_flags. With
// ?all=true a moderator clears every active flag at once.
func UnflagThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		all, ok := unflagScope(w, r)
		if !ok {
			return
		}
		err := d.Threads.UnflagThread(r.Context(), chi.URLParam(r, "thread_id"), userID, all)
		writeFlagResult(w, err)
	}
}

// FlagComment handles PUT /v1/comments/{comment_id}/abuse_flags.
func FlagComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		err := d.Comments.FlagComment(r.Context(), chi.URLParam(r, "comment_id"), userID)
		writeFlagResult(w, err)
	}
}

// UnflagComment handles DELETE /v1/comments/{comment_id}/abuse_flags.
func UnflagComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		all, ok := unflagScope(w, r)
		if !ok {
			return
		}
		err := d.Comments.UnflagComment(r.Context(), chi.URLParam(r, "comment_id"), userID, all)
		writeFlagResult(w, err)
	}
}

// unflagScope reads the all parameter, allowing it only for moderators.
func unflagScope(w http.ResponseWriter, r *http.Request) (all, ok bool) {
	if strings.TrimSpace(r.URL.Query().Get("all")) != "true" {
		return false, true
	}
	if !auth.IsModerator(r.Context()) {
		api.Forbidden(w, "FORBIDDEN", "only moderators can clear all flags", "")
		return false, false
	}
	return true, true
}

func writeFlagResult(w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "NOT_FOUND", "content not found", "")
			return
		}
		api.Internal(w, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
