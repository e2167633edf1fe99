package present

import (
	"context"
	"time"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/store"
)

// ThreadView is the representation of a thread returned by the API. Author
// identity is masked when the post is anonymous and the viewer is not the
// author. The response stream fields are populated only when responses were
// requested: Children for discussions, the endorsed/non-endorsed pair for
// questions.
type ThreadView struct {
	ID               string                `json:"id"`
	Type             content.ThreadType    `json:"thread_type"`
	Context          content.ThreadContext `json:"context"`
	AuthorID         string                `json:"author_id,omitempty"`
	CourseID         string                `json:"course_id"`
	CommentableID    string                `json:"commentable_id"`
	Title            string                `json:"title"`
	Body             string                `json:"body"`
	GroupID          *int64                `json:"group_id,omitempty"`
	Pinned           bool                  `json:"pinned"`
	Closed           bool                  `json:"closed"`
	Anonymous        bool                  `json:"anonymous"`
	AnonymousToPeers bool                  `json:"anonymous_to_peers"`
	Tags             []string              `json:"tags"`
	CommentsCount    int                   `json:"comments_count"`
	Votes            content.Votes         `json:"votes"`
	AbuseFlaggers    []string              `json:"abuse_flaggers"`
	Endorsed         bool                  `json:"endorsed"`
	Read             bool                  `json:"read"`
	UnreadComments   int                   `json:"unread_comments_count"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	LastActivityAt   time.Time             `json:"last_activity_at"`

	RespSkip             int           `json:"resp_skip,omitempty"`
	RespLimit            int           `json:"resp_limit,omitempty"`
	RespTotal            int           `json:"resp_total,omitempty"`
	Children             []CommentView `json:"children,omitempty"`
	EndorsedResponses    []CommentView `json:"endorsed_responses,omitempty"`
	NonEndorsedResponses []CommentView `json:"non_endorsed_responses,omitempty"`
	NonEndorsedRespTotal int           `json:"non_endorsed_resp_total,omitempty"`
}

// CommentView is the representation of a comment, with its children nested
// in pre-order.
type CommentView struct {
	ID               string               `json:"id"`
	ThreadID         string               `json:"thread_id"`
	ParentID         *string              `json:"parent_id,omitempty"`
	AuthorID         string               `json:"author_id,omitempty"`
	Body             string               `json:"body"`
	CourseID         string               `json:"course_id"`
	Anonymous        bool                 `json:"anonymous"`
	AnonymousToPeers bool                 `json:"anonymous_to_peers"`
	Endorsed         bool                 `json:"endorsed"`
	Endorsement      *content.Endorsement `json:"endorsement,omitempty"`
	Depth            int                  `json:"depth"`
	Votes            content.Votes        `json:"votes"`
	AbuseFlaggers    []string             `json:"abuse_flaggers"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Children         []CommentView        `json:"children"`
}

// Options controls how much of a thread Present materializes.
type Options struct {
	WithResponses bool
	RespSkip      int
	RespLimit     int // 0 means no limit
	Recursive     bool
}

// Presenter builds thread and comment views on top of the stores.
type Presenter struct {
	Comments store.CommentStore
	Tracker  *Tracker
}

// Present builds the view of one thread for one viewer, attaching response
// streams when requested.
func (p *Presenter) Present(ctx context.Context, th *content.Thread, userID string, opts Options) (*ThreadView, error) {
	info, err := p.Tracker.ForThread(ctx, userID, th)
	if err != nil {
		return nil, err
	}
	endorsed, err := p.Comments.HasEndorsed(ctx, th.ID)
	if err != nil {
		return nil, err
	}
	v := baseThreadView(th, userID, info, endorsed)
	if opts.WithResponses {
		if err := p.attachResponses(ctx, th, userID, v, opts); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// PresentMany builds listing views for threads of one course, reading the
// viewer's read-state map once.
func (p *Presenter) PresentMany(ctx context.Context, threads []*content.Thread, userID, courseID string) ([]ThreadView, error) {
	infos, err := p.Tracker.ForThreads(ctx, userID, courseID, threads)
	if err != nil {
		return nil, err
	}
	out := make([]ThreadView, 0, len(threads))
	for _, th := range threads {
		endorsed, err := p.Comments.HasEndorsed(ctx, th.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *baseThreadView(th, userID, infos[th.ID], endorsed))
	}
	return out, nil
}

func baseThreadView(th *content.Thread, viewerID string, info ReadInfo, endorsed bool) *ThreadView {
	return &ThreadView{
		ID:               th.ID,
		Type:             th.Type,
		Context:          th.Context,
		AuthorID:         maskAuthor(th.AuthorID, th.Anonymous, th.AnonymousToPeers, viewerID),
		CourseID:         th.CourseID,
		CommentableID:    th.CommentableID,
		Title:            th.Title,
		Body:             th.Body,
		GroupID:          th.GroupID,
		Pinned:           th.Pinned,
		Closed:           th.Closed,
		Anonymous:        th.Anonymous,
		AnonymousToPeers: th.AnonymousToPeers,
		Tags:             emptyIfNil(th.Tags),
		CommentsCount:    th.CommentCount,
		Votes:            th.Votes,
		AbuseFlaggers:    emptyIfNil(th.AbuseFlaggers),
		Endorsed:         endorsed,
		Read:             info.Read,
		UnreadComments:   info.UnreadCount,
		CreatedAt:        th.CreatedAt,
		UpdatedAt:        th.UpdatedAt,
		LastActivityAt:   th.LastActivityAt,
	}
}

func commentViews(nodes []*content.ResponseNode, viewerID string) []CommentView {
	out := make([]CommentView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, commentView(n, viewerID))
	}
	return out
}

func commentView(n *content.ResponseNode, viewerID string) CommentView {
	c := n.Comment
	return CommentView{
		ID:               c.ID,
		ThreadID:         c.ThreadID,
		ParentID:         c.ParentID,
		AuthorID:         maskAuthor(c.AuthorID, c.Anonymous, c.AnonymousToPeers, viewerID),
		Body:             c.Body,
		CourseID:         c.CourseID,
		Anonymous:        c.Anonymous,
		AnonymousToPeers: c.AnonymousToPeers,
		Endorsed:         c.Endorsed,
		Endorsement:      c.Endorsement,
		Depth:            c.Depth,
		Votes:            c.Votes,
		AbuseFlaggers:    emptyIfNil(c.AbuseFlaggers),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		Children:         commentViews(n.Children, viewerID),
	}
}

// maskAuthor hides the author id of anonymous content from everyone but the
// author.
func maskAuthor(authorID string, anonymous, anonymousToPeers bool, viewerID string) string {
	if (anonymous || anonymousToPeers) && viewerID != authorID {
		return ""
	}
	return authorID
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
