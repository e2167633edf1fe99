package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/example/forum-platform/internal/platform/auth"
)

// Mount attaches the forum API to the router. Reads are public but pick up
// the caller's identity when a token is present; writes require a user and
// the moderation endpoints a moderator role.
func Mount(r chi.Router, d Deps, verifier auth.JWTVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/threads", ListThreads(d))
		r.Get("/v1/threads/{thread_id}", GetThread(d))
		r.Get("/v1/comments/{comment_id}", GetComment(d))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Post("/v1/threads", CreateThread(d))
		r.Put("/v1/threads/{thread_id}", UpdateThread(d))
		r.Delete("/v1/threads/{thread_id}", DeleteThread(d))
		r.Post("/v1/threads/{thread_id}/read", MarkThreadRead(d))
		r.Put("/v1/threads/{thread_id}/votes", VoteThread(d))
		r.Delete("/v1/threads/{thread_id}/votes", VoteThread(d))
		r.Put("/v1/threads/{thread_id}/abuse_flags", FlagThread(d))
		r.Delete("/v1/threads/{thread_id}/abuse_flags", UnflagThread(d))

		r.Post("/v1/threads/{thread_id}/comments", CreateComment(d))
		r.Put("/v1/comments/{comment_id}", UpdateComment(d))
		r.Delete("/v1/comments/{comment_id}", DeleteComment(d))
		r.Put("/v1/comments/{comment_id}/votes", VoteComment(d))
		r.Delete("/v1/comments/{comment_id}/votes", VoteComment(d))
		r.Put("/v1/comments/{comment_id}/abuse_flags", FlagComment(d))
		r.Delete("/v1/comments/{comment_id}/abuse_flags", UnflagComment(d))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireModerator)
			r.Put("/v1/threads/{thread_id}/pin", SetThreadPin(d, true))
			r.Delete("/v1/threads/{thread_id}/pin", SetThreadPin(d, false))
			r.Put("/v1/comments/{comment_id}/endorse", EndorseComment(d))
		})
	})
}
