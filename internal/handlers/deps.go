// Package handlers exposes the forum HTTP API.
package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/events"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/present"
	"github.com/example/forum-platform/internal/search"
	"github.com/example/forum-platform/internal/store"
)

// Deps is the wiring shared by the forum handlers.
type Deps struct {
	Threads   store.ThreadStore
	Comments  store.CommentStore
	Tracker   *present.Tracker
	Presenter *present.Presenter
	Lister    *present.Engine
	Events    *events.Publisher
	Searcher  search.Searcher // nil when full-text search is disabled
	Log       *zap.Logger
}

func (d Deps) publish(ctx context.Context, subject string, evt events.ContentEvent) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, subject, evt); err != nil {
		d.Log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// canModify allows the author and moderators through.
func canModify(ctx context.Context, authorID string) bool {
	uid, _ := auth.UserIDFromContext(ctx)
	if uid != "" && uid == authorID {
		return true
	}
	return auth.IsModerator(ctx)
}
