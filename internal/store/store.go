// Package store defines the persistence contracts consumed by the forum
// engine, plus in-memory and Postgres implementations. The engine only
// relies on the ordered/filtered query capability expressed here; it never
// issues recursive queries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/forum-platform/internal/content"
)

var (
	// ErrNotFound is returned when the requested thread or comment does
	// not exist.
	ErrNotFound = errors.New("content not found")
	// ErrInvalidVote is returned for vote values outside {-1, 0, 1}.
	ErrInvalidVote = errors.New("vote must be -1, 0 or 1")
)

// ThreadSortKey names a sortable thread field.
type ThreadSortKey string

const (
	SortByCreatedAt    ThreadSortKey = "created_at"
	SortByLastActivity ThreadSortKey = "last_activity_at"
	SortByVotePoint    ThreadSortKey = "vote_point"
	SortByCommentCount ThreadSortKey = "comment_count"
)

// SortOrder is the sort direction.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ThreadFilter narrows Find results. Zero-valued fields are ignored.
// All set fields are AND-ed.
type ThreadFilter struct {
	CourseID       string
	CommentableIDs []string
	// GroupIDs matches threads whose group id is nil (visible to all)
	// or contained in the set.
	GroupIDs []int64
	// IDs restricts results to the given id set when non-nil. An empty
	// non-nil slice matches nothing.
	IDs []string
	// AuthorID restricts to one author's threads and, as the author-activity
	// views require, excludes content posted anonymously.
	AuthorID string
	Context  content.ThreadContext
}

// ThreadStore persists threads. Find returns every matching thread already
// ordered: pinned first, then the requested key/direction, with a
// created_at desc tie-break when the key is not itself a timestamp.
type ThreadStore interface {
	InsertThread(ctx context.Context, t *content.Thread) error
	GetThread(ctx context.Context, id string) (*content.Thread, error)
	UpdateThread(ctx context.Context, t *content.Thread) error
	// DeleteThread removes the thread and cascades over all its comments.
	DeleteThread(ctx context.Context, id string) error
	Find(ctx context.Context, f ThreadFilter, key ThreadSortKey, order SortOrder) ([]*content.Thread, error)
	// FlaggedThreadIDs returns ids of threads in the course carrying an
	// active abuse flag on the thread itself.
	FlaggedThreadIDs(ctx context.Context, courseID string) ([]string, error)

	VoteThread(ctx context.Context, threadID, userID string, value int) error
	FlagThread(ctx context.Context, threadID, userID string) error
	// UnflagThread removes the user's flag. With all set it clears every
	// active flag, retaining them in the historical set.
	UnflagThread(ctx context.Context, threadID, userID string, all bool) error
}

// RootQuery selects a window of top-level responses. Endorsed nil means
// both endorsed and non-endorsed. Limit 0 means no limit.
type RootQuery struct {
	Endorsed *bool
	Skip     int
	Limit    int
}

// CommentStore persists comments. Every multi-row read comes back sorted
// ascending by sort key, i.e. in pre-order.
type CommentStore interface {
	// InsertComment stores the comment and, in the same transaction, bumps
	// the owning thread's comment_count, updated_at and last_activity_at.
	InsertComment(ctx context.Context, c *content.Comment) error
	GetComment(ctx context.Context, id string) (*content.Comment, error)
	UpdateComment(ctx context.Context, c *content.Comment) error
	// DeleteComment removes the comment with its full descendant subtree
	// and decrements the owning thread's comment_count accordingly.
	DeleteComment(ctx context.Context, id string) error

	// ByThread returns all comments of a thread in pre-order.
	ByThread(ctx context.Context, threadID string) ([]*content.Comment, error)
	// RootIDs returns one window of top-level comment ids in creation
	// order plus the total number of roots matching the endorsement filter.
	RootIDs(ctx context.Context, threadID string, q RootQuery) (ids []string, total int, err error)
	// Subtrees returns the given roots together with all their descendants,
	// in pre-order, using the sort-key prefix capability.
	Subtrees(ctx context.Context, threadID string, rootIDs []string) ([]*content.Comment, error)

	// CountUpdatedSince counts comments under the thread updated at or
	// after since, excluding those authored by excludeAuthor.
	CountUpdatedSince(ctx context.Context, threadID string, since time.Time, excludeAuthor string) (int, error)
	// HasEndorsed reports whether the thread has any endorsed comment.
	HasEndorsed(ctx context.Context, threadID string) (bool, error)
	// AnsweredThreadIDs reports which of the given threads have at least
	// one endorsed top-level comment. Endorsements at depth > 0 do not count.
	AnsweredThreadIDs(ctx context.Context, threadIDs []string) (map[string]bool, error)
	// CommentFlaggedThreadIDs returns ids of threads in the course owning
	// at least one comment with an active abuse flag.
	CommentFlaggedThreadIDs(ctx context.Context, courseID string) ([]string, error)

	Endorse(ctx context.Context, commentID, userID string, endorsed bool) error
	VoteComment(ctx context.Context, commentID, userID string, value int) error
	FlagComment(ctx context.Context, commentID, userID string) error
	UnflagComment(ctx context.Context, commentID, userID string, all bool) error
}

// ReadStateStore keeps, per user and course, the map from thread id to the
// time the user last read it.
type ReadStateStore interface {
	LastReadMap(ctx context.Context, userID, courseID string) (map[string]time.Time, error)
	// MarkRead records at as the last-read time. The operation is
	// monotonic: it never moves an existing timestamp backwards.
	MarkRead(ctx context.Context, userID, courseID, threadID string, at time.Time) error
}
