package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/forum-platform/internal/content"
)

// Memory is an in-memory implementation of every store contract, used in
// development and as the test fixture backend.
type Memory struct {
	mu           sync.RWMutex
	threads      map[string]content.Thread
	comments     map[string]content.Comment
	threadVotes  map[string]map[string]int            // threadID -> userID -> vote
	commentVotes map[string]map[string]int            // commentID -> userID -> vote
	readStates   map[string]map[string]time.Time      // userID|courseID -> threadID -> last read
}

func NewMemory() *Memory {
	return &Memory{
		threads:      make(map[string]content.Thread),
		comments:     make(map[string]content.Comment),
		threadVotes:  make(map[string]map[string]int),
		commentVotes: make(map[string]map[string]int),
		readStates:   make(map[string]map[string]time.Time),
	}
}

// ─── ThreadStore ─────────────────────────────────────────────────────────────

func (m *Memory) InsertThread(_ context.Context, t *content.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[t.ID] = cloneThread(*t)
	return nil
}

func (m *Memory) GetThread(_ context.Context, id string) (*content.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneThread(t)
	return &out, nil
}

func (m *Memory) UpdateThread(_ context.Context, t *content.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[t.ID]; !ok {
		return ErrNotFound
	}
	m.threads[t.ID] = cloneThread(*t)
	return nil
}

func (m *Memory) DeleteThread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[id]; !ok {
		return ErrNotFound
	}
	delete(m.threads, id)
	delete(m.threadVotes, id)
	for cid, c := range m.comments {
		if c.ThreadID == id {
			delete(m.comments, cid)
			delete(m.commentVotes, cid)
		}
	}
	return nil
}

func (m *Memory) Find(_ context.Context, f ThreadFilter, key ThreadSortKey, order SortOrder) ([]*content.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idSet map[string]bool
	if f.IDs != nil {
		idSet = make(map[string]bool, len(f.IDs))
		for _, id := range f.IDs {
			idSet[id] = true
		}
	}

	var out []*content.Thread
	for _, t := range m.threads {
		if !matchThread(t, f, idSet) {
			continue
		}
		c := cloneThread(t)
		out = append(out, &c)
	}
	sortThreads(out, key, order)
	return out, nil
}

func matchThread(t content.Thread, f ThreadFilter, idSet map[string]bool) bool {
	if f.CourseID != "" && t.CourseID != f.CourseID {
		return false
	}
	if f.Context != "" && t.Context != f.Context {
		return false
	}
	if len(f.CommentableIDs) > 0 && !containsString(f.CommentableIDs, t.CommentableID) {
		return false
	}
	if len(f.GroupIDs) > 0 && t.GroupID != nil && !containsInt64(f.GroupIDs, *t.GroupID) {
		return false
	}
	if f.IDs != nil && !idSet[t.ID] {
		return false
	}
	if f.AuthorID != "" {
		if t.AuthorID != f.AuthorID || t.Anonymous || t.AnonymousToPeers {
			return false
		}
	}
	return true
}

// sortThreads orders pinned threads first, then by the requested key and
// direction, tie-breaking by created_at desc for non-timestamp keys and by
// id desc as the final stabiliser.
func sortThreads(ts []*content.Thread, key ThreadSortKey, order SortOrder) {
	desc := order != Asc
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if c := compareThreads(a, b, key); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if key == SortByVotePoint || key == SortByCommentCount {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	})
}

func compareThreads(a, b *content.Thread, key ThreadSortKey) int {
	switch key {
	case SortByLastActivity:
		return compareTimes(a.LastActivityAt, b.LastActivityAt)
	case SortByVotePoint:
		return a.Votes.Point - b.Votes.Point
	case SortByCommentCount:
		return a.CommentCount - b.CommentCount
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func (m *Memory) FlaggedThreadIDs(_ context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, t := range m.threads {
		if t.CourseID == courseID && len(t.AbuseFlaggers) > 0 {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

func (m *Memory) VoteThread(_ context.Context, threadID, userID string, value int) error {
	if value < -1 || value > 1 {
		return ErrInvalidVote
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if m.threadVotes[threadID] == nil {
		m.threadVotes[threadID] = make(map[string]int)
	}
	old := m.threadVotes[threadID][userID]
	if value == 0 {
		delete(m.threadVotes[threadID], userID)
	} else {
		m.threadVotes[threadID][userID] = value
	}
	applyVote(&t.Votes, old, value)
	m.threads[threadID] = t
	return nil
}

func (m *Memory) FlagThread(_ context.Context, threadID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.AbuseFlaggers = addString(t.AbuseFlaggers, userID)
	m.threads[threadID] = t
	return nil
}

func (m *Memory) UnflagThread(_ context.Context, threadID, userID string, all bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.AbuseFlaggers, t.HistoricalAbuseFlaggers = unflag(t.AbuseFlaggers, t.HistoricalAbuseFlaggers, userID, all)
	m.threads[threadID] = t
	return nil
}

// ─── CommentStore ────────────────────────────────────────────────────────────

func (m *Memory) InsertComment(_ context.Context, c *content.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[c.ThreadID]
	if !ok {
		return ErrNotFound
	}
	m.comments[c.ID] = cloneComment(*c)
	t.CommentCount++
	t.UpdatedAt = c.CreatedAt
	t.LastActivityAt = c.CreatedAt
	m.threads[c.ThreadID] = t
	return nil
}

func (m *Memory) GetComment(_ context.Context, id string) (*content.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneComment(c)
	return &out, nil
}

func (m *Memory) UpdateComment(_ context.Context, c *content.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; !ok {
		return ErrNotFound
	}
	m.comments[c.ID] = cloneComment(*c)
	return nil
}

func (m *Memory) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	removed := 0
	for cid, c := range m.comments {
		if c.ThreadID == root.ThreadID && content.InSubtree(c.SortKey, root.SortKey) {
			delete(m.comments, cid)
			delete(m.commentVotes, cid)
			removed++
		}
	}
	if t, ok := m.threads[root.ThreadID]; ok {
		t.CommentCount -= removed
		if t.CommentCount < 0 {
			t.CommentCount = 0
		}
		m.threads[root.ThreadID] = t
	}
	return nil
}

func (m *Memory) ByThread(_ context.Context, threadID string) ([]*content.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.commentsOf(threadID, nil)
	return out, nil
}

// commentsOf collects thread comments in pre-order; keep filters by the
// first sort-key segment (the owning root) when non-nil.
func (m *Memory) commentsOf(threadID string, keep map[string]bool) []*content.Comment {
	out := []*content.Comment{}
	for _, c := range m.comments {
		if c.ThreadID != threadID {
			continue
		}
		if keep != nil && !keep[rootSegment(c.SortKey)] {
			continue
		}
		cc := cloneComment(c)
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortKey < out[j].SortKey })
	return out
}

func rootSegment(sortKey string) string {
	if i := strings.IndexByte(sortKey, '-'); i >= 0 {
		return sortKey[:i]
	}
	return sortKey
}

func (m *Memory) RootIDs(_ context.Context, threadID string, q RootQuery) ([]string, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roots []content.Comment
	for _, c := range m.comments {
		if c.ThreadID != threadID || c.ParentID != nil {
			continue
		}
		if q.Endorsed != nil && c.Endorsed != *q.Endorsed {
			continue
		}
		roots = append(roots, c)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].SortKey < roots[j].SortKey })

	total := len(roots)
	if q.Skip >= len(roots) {
		return []string{}, total, nil
	}
	roots = roots[q.Skip:]
	if q.Limit > 0 && len(roots) > q.Limit {
		roots = roots[:q.Limit]
	}
	ids := make([]string, len(roots))
	for i, c := range roots {
		ids[i] = c.ID
	}
	return ids, total, nil
}

func (m *Memory) Subtrees(_ context.Context, threadID string, rootIDs []string) ([]*content.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keep := make(map[string]bool, len(rootIDs))
	for _, id := range rootIDs {
		keep[id] = true
	}
	return m.commentsOf(threadID, keep), nil
}

func (m *Memory) CountUpdatedSince(_ context.Context, threadID string, since time.Time, excludeAuthor string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.comments {
		if c.ThreadID != threadID || c.AuthorID == excludeAuthor {
			continue
		}
		if !c.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) HasEndorsed(_ context.Context, threadID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.comments {
		if c.ThreadID == threadID && c.Endorsed {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) AnsweredThreadIDs(_ context.Context, threadIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(threadIDs))
	for _, id := range threadIDs {
		want[id] = true
	}
	out := make(map[string]bool)
	for _, c := range m.comments {
		if c.ParentID == nil && c.Endorsed && want[c.ThreadID] {
			out[c.ThreadID] = true
		}
	}
	return out, nil
}

func (m *Memory) CommentFlaggedThreadIDs(_ context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, c := range m.comments {
		if c.CourseID != courseID || len(c.AbuseFlaggers) == 0 || seen[c.ThreadID] {
			continue
		}
		seen[c.ThreadID] = true
		out = append(out, c.ThreadID)
	}
	return out, nil
}

func (m *Memory) Endorse(_ context.Context, commentID, userID string, endorsed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.Endorsed = endorsed
	if endorsed {
		c.Endorsement = &content.Endorsement{UserID: userID, Time: time.Now().UTC()}
	} else {
		c.Endorsement = nil
	}
	m.comments[commentID] = c
	return nil
}

func (m *Memory) VoteComment(_ context.Context, commentID, userID string, value int) error {
	if value < -1 || value > 1 {
		return ErrInvalidVote
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	if m.commentVotes[commentID] == nil {
		m.commentVotes[commentID] = make(map[string]int)
	}
	old := m.commentVotes[commentID][userID]
	if value == 0 {
		delete(m.commentVotes[commentID], userID)
	} else {
		m.commentVotes[commentID][userID] = value
	}
	applyVote(&c.Votes, old, value)
	m.comments[commentID] = c
	return nil
}

func (m *Memory) FlagComment(_ context.Context, commentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.AbuseFlaggers = addString(c.AbuseFlaggers, userID)
	m.comments[commentID] = c
	return nil
}

func (m *Memory) UnflagComment(_ context.Context, commentID, userID string, all bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.AbuseFlaggers, c.HistoricalAbuseFlaggers = unflag(c.AbuseFlaggers, c.HistoricalAbuseFlaggers, userID, all)
	m.comments[commentID] = c
	return nil
}

// ─── ReadStateStore ──────────────────────────────────────────────────────────

func readStateKey(userID, courseID string) string { return userID + "|" + courseID }

func (m *Memory) LastReadMap(_ context.Context, userID, courseID string) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.readStates[readStateKey(userID, courseID)]
	out := make(map[string]time.Time, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, userID, courseID, threadID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := readStateKey(userID, courseID)
	if m.readStates[key] == nil {
		m.readStates[key] = make(map[string]time.Time)
	}
	if prev, ok := m.readStates[key][threadID]; ok && prev.After(at) {
		return nil
	}
	m.readStates[key][threadID] = at
	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func applyVote(v *content.Votes, old, val int) {
	switch old {
	case 1:
		v.UpCount--
	case -1:
		v.DownCount--
	}
	switch val {
	case 1:
		v.UpCount++
	case -1:
		v.DownCount++
	}
	v.Point = v.UpCount - v.DownCount
}

func addString(s []string, v string) []string {
	if containsString(s, v) {
		return s
	}
	return append(s, v)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func unflag(active, historical []string, userID string, all bool) ([]string, []string) {
	if all {
		for _, u := range active {
			historical = addString(historical, u)
		}
		return nil, historical
	}
	return removeString(active, userID), historical
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt64(s []int64, v int64) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func cloneThread(t content.Thread) content.Thread {
	t.Tags = append([]string(nil), t.Tags...)
	t.AbuseFlaggers = append([]string(nil), t.AbuseFlaggers...)
	t.HistoricalAbuseFlaggers = append([]string(nil), t.HistoricalAbuseFlaggers...)
	if t.GroupID != nil {
		g := *t.GroupID
		t.GroupID = &g
	}
	return t
}

func cloneComment(c content.Comment) content.Comment {
	c.AbuseFlaggers = append([]string(nil), c.AbuseFlaggers...)
	c.HistoricalAbuseFlaggers = append([]string(nil), c.HistoricalAbuseFlaggers...)
	if c.ParentID != nil {
		p := *c.ParentID
		c.ParentID = &p
	}
	if c.Endorsement != nil {
		e := *c.Endorsement
		c.Endorsement = &e
	}
	return c
}
