package present

import (
	"context"

	"github.com/example/forum-platform/internal/content"
	"github.com/example/forum-platform/internal/store"
)

// ListRequest describes one thread-listing query. All set filters are
// AND-ed. ThreadIDs, when non-nil, restricts results to that id set (the
// search path feeds matches through it).
type ListRequest struct {
	CourseID       string
	CommentableIDs []string
	GroupIDs       []int64
	AuthorID       string
	ThreadIDs      []string
	Context        content.ThreadContext

	Flagged    bool
	Unread     bool
	Unanswered bool

	SortKey   string // date | activity | votes | comments
	SortOrder string // asc | desc

	Page    int
	PerPage int
	UserID  string
}

// Page is one page of a thread listing.
type Page struct {
	Collection []ThreadView `json:"collection"`
	NumPages   int          `json:"num_pages"`
	Page       int          `json:"page"`
}

// Engine runs thread-listing queries: filter, sort, paginate, present.
type Engine struct {
	Threads   store.ThreadStore
	Comments  store.CommentStore
	Reads     store.ReadStateStore
	Presenter *Presenter
	PerPage   int
}

func emptyPage() Page {
	return Page{Collection: []ThreadView{}, NumPages: 1, Page: 1}
}

// resolveSort maps the public sort vocabulary onto store keys. Empty means
// the default (date desc); anything else unrecognized is rejected.
func resolveSort(key, order string) (store.ThreadSortKey, store.SortOrder, bool) {
	var k store.ThreadSortKey
	switch key {
	case "", "date":
		k = store.SortByCreatedAt
	case "activity":
		k = store.SortByLastActivity
	case "votes":
		k = store.SortByVotePoint
	case "comments":
		k = store.SortByCommentCount
	default:
		return "", "", false
	}
	var o store.SortOrder
	switch order {
	case "", "desc":
		o = store.Desc
	case "asc":
		o = store.Asc
	default:
		return "", "", false
	}
	return k, o, true
}

// ListThreads runs the query and returns one presented page. An
// unrecognized sort yields an empty first page rather than an error, which
// is what API consumers have historically depended on.
func (e *Engine) ListThreads(ctx context.Context, req ListRequest) (Page, error) {
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = e.PerPage
	}
	if perPage <= 0 {
		perPage = 20
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	key, order, ok := resolveSort(req.SortKey, req.SortOrder)
	if !ok {
		return emptyPage(), nil
	}

	ids := req.ThreadIDs
	if req.Flagged {
		flagged, err := e.flaggedThreadIDs(ctx, req.CourseID)
		if err != nil {
			return Page{}, err
		}
		if ids != nil {
			ids = intersect(ids, flagged)
		} else {
			ids = flagged
		}
		if ids == nil {
			ids = []string{}
		}
	}

	f := store.ThreadFilter{
		CourseID:       req.CourseID,
		CommentableIDs: req.CommentableIDs,
		GroupIDs:       req.GroupIDs,
		IDs:            ids,
		AuthorID:       req.AuthorID,
		Context:        req.Context,
	}
	threads, err := e.Threads.Find(ctx, f, key, order)
	if err != nil {
		return Page{}, err
	}

	if req.Unanswered {
		threads, err = e.unanswered(ctx, threads)
		if err != nil {
			return Page{}, err
		}
	}

	if req.Unread && req.UserID != "" {
		return e.listUnread(ctx, req, threads, page, perPage)
	}

	total := len(threads)
	numPages := pageCount(total, perPage)
	if page > numPages {
		page = numPages
	}
	window := pageWindow(threads, page, perPage)
	coll, err := e.Presenter.PresentMany(ctx, window, req.UserID, req.CourseID)
	if err != nil {
		return Page{}, err
	}
	return Page{Collection: coll, NumPages: numPages, Page: page}, nil
}

// listUnread scans the ordered candidates against the user's read map,
// stopping as soon as the requested page plus one extra match is in hand.
// The extra match is only evidence that more pages exist, so num_pages
// degrades to page+1 rather than an exact count.
func (e *Engine) listUnread(ctx context.Context, req ListRequest, threads []*content.Thread, page, perPage int) (Page, error) {
	lastRead, err := e.Reads.LastReadMap(ctx, req.UserID, req.CourseID)
	if err != nil {
		return Page{}, err
	}

	want := page*perPage + 1
	matched := make([]*content.Thread, 0, want)
	for _, th := range threads {
		if IsRead(th, lastRead) {
			continue
		}
		matched = append(matched, th)
		if len(matched) == want {
			break
		}
	}

	numPages := pageCount(len(matched), perPage)
	if len(matched) == want {
		matched = matched[:want-1]
		numPages = page + 1
	} else if page > numPages {
		page = numPages
	}
	window := pageWindow(matched, page, perPage)
	coll, err := e.Presenter.PresentMany(ctx, window, req.UserID, req.CourseID)
	if err != nil {
		return Page{}, err
	}
	return Page{Collection: coll, NumPages: numPages, Page: page}, nil
}

// unanswered keeps question threads lacking an endorsed top-level response.
func (e *Engine) unanswered(ctx context.Context, threads []*content.Thread) ([]*content.Thread, error) {
	questionIDs := make([]string, 0, len(threads))
	for _, th := range threads {
		if th.Type == content.Question {
			questionIDs = append(questionIDs, th.ID)
		}
	}
	answered, err := e.Comments.AnsweredThreadIDs(ctx, questionIDs)
	if err != nil {
		return nil, err
	}
	out := threads[:0:0]
	for _, th := range threads {
		if th.Type == content.Question && !answered[th.ID] {
			out = append(out, th)
		}
	}
	return out, nil
}

// flaggedThreadIDs unions threads flagged directly with threads owning a
// flagged comment.
func (e *Engine) flaggedThreadIDs(ctx context.Context, courseID string) ([]string, error) {
	direct, err := e.Threads.FlaggedThreadIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	viaComments, err := e.Comments.CommentFlaggedThreadIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(direct)+len(viaComments))
	out := make([]string, 0, len(direct)+len(viaComments))
	for _, id := range direct {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range viaComments {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	out := make([]string, 0, len(a))
	for _, id := range a {
		if inB[id] {
			out = append(out, id)
		}
	}
	return out
}

func pageCount(total, perPage int) int {
	n := (total + perPage - 1) / perPage
	if n < 1 {
		n = 1
	}
	return n
}

func pageWindow(threads []*content.Thread, page, perPage int) []*content.Thread {
	start := (page - 1) * perPage
	if start >= len(threads) {
		return nil
	}
	end := start + perPage
	if end > len(threads) {
		end = len(threads)
	}
	return threads[start:end]
}
