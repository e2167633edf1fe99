// Package present assembles the public representations of forum content:
// per-user read state, single-thread views with paged response trees, and
// filtered/sorted/paginated thread listings.
package present

import (
	"context"
	"time"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/store"
)

// ReadInfo is the read state of one thread relative to one user.
type ReadInfo struct {
	Read        bool
	UnreadCount int
}

// Tracker computes read/unread state from the per-user, per-course map of
// last-read timestamps.
type Tracker struct {
	ReadStates store.ReadStateStore
	Comments   store.CommentStore
}

// ForThread computes the read state of a single thread. An empty userID
// (anonymous caller) sees everything as unread.
func (tr *Tracker) ForThread(ctx context.Context, userID string, th *content.Thread) (ReadInfo, error) {
	if userID == "" {
		return ReadInfo{Read: false, UnreadCount: th.CommentCount}, nil
	}
	lastRead, err := tr.ReadStates.LastReadMap(ctx, userID, th.CourseID)
	if err != nil {
		return ReadInfo{}, err
	}
	return tr.infoFor(ctx, userID, th, lastRead)
}

// ForThreads computes read state for many threads of one course with a
// single read of the user's last-read map. Threads absent from the map
// default without further queries.
func (tr *Tracker) ForThreads(ctx context.Context, userID, courseID string, threads []*content.Thread) (map[string]ReadInfo, error) {
	out := make(map[string]ReadInfo, len(threads))
	var lastRead map[string]time.Time
	if userID != "" {
		var err error
		lastRead, err = tr.ReadStates.LastReadMap(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
	}
	for _, th := range threads {
		if userID == "" {
			out[th.ID] = ReadInfo{Read: false, UnreadCount: th.CommentCount}
			continue
		}
		info, err := tr.infoFor(ctx, userID, th, lastRead)
		if err != nil {
			return nil, err
		}
		out[th.ID] = info
	}
	return out, nil
}

func (tr *Tracker) infoFor(ctx context.Context, userID string, th *content.Thread, lastRead map[string]time.Time) (ReadInfo, error) {
	last, ok := lastRead[th.ID]
	if !ok {
		// No read record: everything under the thread is unread.
		return ReadInfo{Read: false, UnreadCount: th.CommentCount}, nil
	}
	// Read iff the mark is at or after the thread's last change.
	read := !last.Before(th.UpdatedAt)
	count, err := tr.Comments.CountUpdatedSince(ctx, th.ID, last, userID)
	if err != nil {
		return ReadInfo{}, err
	}
	return ReadInfo{Read: read, UnreadCount: count}, nil
}

// IsRead is the map-level predicate used by unread-filtered listings.
func IsRead(th *content.Thread, lastRead map[string]time.Time) bool {
	last, ok := lastRead[th.ID]
	return ok && !last.Before(th.UpdatedAt)
}

// MarkRead records now as the user's last-read time for the thread.
// Re-marking only ever moves the timestamp forward.
func (tr *Tracker) MarkRead(ctx context.Context, userID string, th *content.Thread) error {
	return tr.ReadStates.MarkRead(ctx, userID, th.CourseID, th.ID, time.Now().UTC())
}
