package present

import (
	"context"
	"errors"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/store"
)

// ErrInvalidPage is returned before any store access when a response page
// window is malformed.
var ErrInvalidPage = errors.New("resp_skip must be >= 0 and resp_limit >= 1")

// attachResponses merges the thread's response streams into the view.
//
// Discussion threads carry a single Children stream; when no window was
// requested the whole comment set is fetched in one pass. Question threads
// carry two streams: every endorsed response plus a paginated window of
// non-endorsed ones. Totals count top-level responses only; descendants ride
// along with their roots and are never paginated on their own.
func (p *Presenter) attachResponses(ctx context.Context, th *content.Thread, userID string, v *ThreadView, opts Options) error {
	if opts.RespSkip < 0 || opts.RespLimit < 0 {
		return ErrInvalidPage
	}
	v.RespSkip = opts.RespSkip
	v.RespLimit = opts.RespLimit

	if th.Type == content.Question {
		return p.attachQuestionResponses(ctx, th, userID, v, opts)
	}
	return p.attachDiscussionResponses(ctx, th, userID, v, opts)
}

func (p *Presenter) attachDiscussionResponses(ctx context.Context, th *content.Thread, userID string, v *ThreadView, opts Options) error {
	if opts.RespSkip == 0 && opts.RespLimit == 0 {
		// Unpaginated: one fetch of the full thread, totals derived locally.
		comments, err := p.Comments.ByThread(ctx, th.ID)
		if err != nil {
			return err
		}
		v.Children = commentViews(buildStream(comments, opts.Recursive), userID)
		v.RespTotal = countRoots(comments)
		return nil
	}

	ids, total, err := p.Comments.RootIDs(ctx, th.ID, store.RootQuery{Skip: opts.RespSkip, Limit: opts.RespLimit})
	if err != nil {
		return err
	}
	comments, err := p.subtreesFor(ctx, th.ID, ids, opts.Recursive)
	if err != nil {
		return err
	}
	v.Children = commentViews(buildStream(comments, opts.Recursive), userID)
	v.RespTotal = total
	return nil
}

func (p *Presenter) attachQuestionResponses(ctx context.Context, th *content.Thread, userID string, v *ThreadView, opts Options) error {
	endorsed := true
	endorsedIDs, endorsedTotal, err := p.Comments.RootIDs(ctx, th.ID, store.RootQuery{Endorsed: &endorsed})
	if err != nil {
		return err
	}
	notEndorsed := false
	nonIDs, nonTotal, err := p.Comments.RootIDs(ctx, th.ID, store.RootQuery{
		Endorsed: &notEndorsed,
		Skip:     opts.RespSkip,
		Limit:    opts.RespLimit,
	})
	if err != nil {
		return err
	}

	endorsedComments, err := p.subtreesFor(ctx, th.ID, endorsedIDs, opts.Recursive)
	if err != nil {
		return err
	}
	nonComments, err := p.subtreesFor(ctx, th.ID, nonIDs, opts.Recursive)
	if err != nil {
		return err
	}

	v.EndorsedResponses = commentViews(buildStream(endorsedComments, opts.Recursive), userID)
	v.NonEndorsedResponses = commentViews(buildStream(nonComments, opts.Recursive), userID)
	v.NonEndorsedRespTotal = nonTotal
	v.RespTotal = endorsedTotal + nonTotal
	return nil
}

// subtreesFor fetches the full subtrees of the selected roots, or nothing
// extra in the flat case where only the roots themselves are wanted.
func (p *Presenter) subtreesFor(ctx context.Context, threadID string, rootIDs []string, recursive bool) ([]*content.Comment, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	comments, err := p.Comments.Subtrees(ctx, threadID, rootIDs)
	if err != nil {
		return nil, err
	}
	if !recursive {
		comments = rootsOnly(comments)
	}
	return comments, nil
}

func buildStream(comments []*content.Comment, recursive bool) []*content.ResponseNode {
	if !recursive {
		comments = rootsOnly(comments)
	}
	return content.BuildResponseTree(comments)
}

func rootsOnly(comments []*content.Comment) []*content.Comment {
	out := comments[:0:0]
	for _, c := range comments {
		if c.ParentID == nil {
			out = append(out, c)
		}
	}
	return out
}

func countRoots(comments []*content.Comment) int {
	n := 0
	for _, c := range comments {
		if c.ParentID == nil {
			n++
		}
	}
	return n
}
