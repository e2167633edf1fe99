// Package content defines the forum content model shared by the stores and
// the presentation layer: threads, comments, vote aggregates and the
// sort-key scheme that lets a flat query reproduce tree order.
package content

import "time"

// ThreadType selects the response-presentation shape of a thread.
type ThreadType string

const (
	Discussion ThreadType = "discussion"
	Question   ThreadType = "question"
)

// Valid reports whether t is a known thread type.
func (t ThreadType) Valid() bool {
	return t == Discussion || t == Question
}

// ThreadContext scopes a thread to a course or to standalone usage.
type ThreadContext string

const (
	ContextCourse     ThreadContext = "course"
	ContextStandalone ThreadContext = "standalone"
)

// Votes is the aggregate maintained by the voting collaborator.
// Point is always UpCount - DownCount.
type Votes struct {
	UpCount   int `json:"up_count"`
	DownCount int `json:"down_count"`
	Point     int `json:"point"`
}

// Thread is a top-level conversation.
type Thread struct {
	ID               string
	AuthorID         string
	CourseID         string
	Title            string
	Body             string
	CommentableID    string
	Type             ThreadType
	Context          ThreadContext
	GroupID          *int64 // nil means visible to all groups
	Pinned           bool
	Closed           bool
	Anonymous        bool
	AnonymousToPeers bool
	Tags             []string
	CommentCount     int
	Votes            Votes
	AbuseFlaggers    []string
	// HistoricalAbuseFlaggers is retained after an unflag-all for audit only
	// and never participates in active-flag queries.
	HistoricalAbuseFlaggers []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	LastActivityAt          time.Time
}

// Endorsement records who accepted a response and when.
type Endorsement struct {
	UserID string    `json:"user_id"`
	Time   time.Time `json:"time"`
}

// Comment is a response inside a thread. ParentID nil marks a top-level
// response (Depth 0). SortKey is derived once at creation and is immutable.
type Comment struct {
	ID               string
	ThreadID         string
	AuthorID         string
	CourseID         string
	ParentID         *string
	Body             string
	Endorsed         bool
	Endorsement      *Endorsement
	Depth            int
	SortKey          string
	Anonymous        bool
	AnonymousToPeers bool
	Votes            Votes
	AbuseFlaggers    []string
	HistoricalAbuseFlaggers []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewThread fills in identity and timestamps for a thread being created.
func NewThread(t Thread, now time.Time) Thread {
	t.ID = NewID()
	if t.Type == "" {
		t.Type = Discussion
	}
	if t.Context == "" {
		t.Context = ContextCourse
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.LastActivityAt = now
	return t
}

// NewComment fills in identity, depth and sort key for a comment being
// created. parent is nil for top-level responses; otherwise the comment
// inherits the parent's thread and extends its sort key.
func NewComment(c Comment, parent *Comment, now time.Time) Comment {
	c.ID = NewID()
	if parent == nil {
		c.Depth = 0
		c.SortKey = c.ID
	} else {
		c.ThreadID = parent.ThreadID
		c.Depth = parent.Depth + 1
		c.SortKey = ChildSortKey(parent, c.ID)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return c
}
