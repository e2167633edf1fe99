package store

import (
	"context"
	"testing"
	"time"

	"github.com/example/forum-platform/internal/content"
)

func newThread(id, courseID string, created time.Time) *content.Thread {
	return &content.Thread{
		ID:             id,
		AuthorID:       "author-1",
		CourseID:       courseID,
		Title:          "title " + id,
		Body:           "body " + id,
		Type:           content.Discussion,
		Context:        content.ContextCourse,
		CreatedAt:      created,
		UpdatedAt:      created,
		LastActivityAt: created,
	}
}

func newRoot(id, threadID, courseID, author string, at time.Time) *content.Comment {
	return &content.Comment{
		ID: id, ThreadID: threadID, CourseID: courseID, AuthorID: author,
		Body: "body " + id, SortKey: id, CreatedAt: at, UpdatedAt: at,
	}
}

func newReply(id string, parent *content.Comment, author string, at time.Time) *content.Comment {
	return &content.Comment{
		ID: id, ThreadID: parent.ThreadID, CourseID: parent.CourseID, AuthorID: author,
		ParentID: &parent.ID, Depth: parent.Depth + 1,
		Body: "body " + id, SortKey: parent.SortKey + "-" + id, CreatedAt: at, UpdatedAt: at,
	}
}

func TestMemory_InsertCommentBumpsThread(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := m.InsertThread(ctx, newThread("t1", "c1", created)); err != nil {
		t.Fatalf("insert thread: %v", err)
	}

	later := created.Add(time.Hour)
	if err := m.InsertComment(ctx, newRoot("a", "t1", "c1", "u2", later)); err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	th, err := m.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if th.CommentCount != 1 {
		t.Fatalf("expected comment_count 1, got %d", th.CommentCount)
	}
	if !th.UpdatedAt.Equal(later) || !th.LastActivityAt.Equal(later) {
		t.Fatal("comment creation must propagate activity to the thread")
	}
}

func TestMemory_InsertCommentUnknownThread(t *testing.T) {
	m := NewMemory()
	err := m.InsertComment(context.Background(), newRoot("a", "missing", "c1", "u1", time.Now()))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DeleteCommentCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))
	a := newRoot("a", "t1", "c1", "u1", now)
	_ = m.InsertComment(ctx, a)
	a1 := newReply("a1", a, "u2", now)
	_ = m.InsertComment(ctx, a1)
	_ = m.InsertComment(ctx, newReply("a1x", a1, "u3", now))
	b := newRoot("b", "t1", "c1", "u1", now)
	_ = m.InsertComment(ctx, b)

	if err := m.DeleteComment(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	all, err := m.ByThread(ctx, "t1")
	if err != nil {
		t.Fatalf("by thread: %v", err)
	}
	if len(all) != 1 || all[0].ID != "b" {
		t.Fatalf("expected only b to survive, got %d comments", len(all))
	}
	th, _ := m.GetThread(ctx, "t1")
	if th.CommentCount != 1 {
		t.Fatalf("expected comment_count 1 after cascade, got %d", th.CommentCount)
	}
}

func TestMemory_RootIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		c := newRoot(id, "t1", "c1", "u1", now)
		c.Endorsed = id == "a" || id == "c"
		_ = m.InsertComment(ctx, c)
	}
	// A reply must never count as a root.
	parent, _ := m.GetComment(ctx, "a")
	_ = m.InsertComment(ctx, newReply("a1", parent, "u2", now))

	endorsed := true
	ids, total, err := m.RootIDs(ctx, "t1", RootQuery{Endorsed: &endorsed})
	if err != nil {
		t.Fatalf("root ids: %v", err)
	}
	if total != 2 || len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("endorsed roots: total=%d ids=%v", total, ids)
	}

	notEndorsed := false
	ids, total, err = m.RootIDs(ctx, "t1", RootQuery{Endorsed: &notEndorsed, Skip: 1, Limit: 1})
	if err != nil {
		t.Fatalf("root ids: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 non-endorsed roots, got %d", total)
	}
	if len(ids) != 1 || ids[0] != "d" {
		t.Fatalf("expected page [d], got %v", ids)
	}

	// Skip past the end yields an empty page but the true total.
	ids, total, _ = m.RootIDs(ctx, "t1", RootQuery{Skip: 10})
	if len(ids) != 0 || total != 5 {
		t.Fatalf("expected empty page with total 5, got ids=%v total=%d", ids, total)
	}
}

func TestMemory_Subtrees(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))
	a := newRoot("a", "t1", "c1", "u1", now)
	_ = m.InsertComment(ctx, a)
	a1 := newReply("a1", a, "u2", now)
	_ = m.InsertComment(ctx, a1)
	_ = m.InsertComment(ctx, newReply("a1x", a1, "u3", now))
	b := newRoot("b", "t1", "c1", "u1", now)
	_ = m.InsertComment(ctx, b)
	_ = m.InsertComment(ctx, newReply("b1", b, "u2", now))

	got, err := m.Subtrees(ctx, "t1", []string{"a"})
	if err != nil {
		t.Fatalf("subtrees: %v", err)
	}
	want := []string{"a", "a1", "a1x"}
	if len(got) != len(want) {
		t.Fatalf("expected %d comments, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestMemory_VoteAggregates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))

	if err := m.VoteThread(ctx, "t1", "u1", 1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := m.VoteThread(ctx, "t1", "u2", -1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	th, _ := m.GetThread(ctx, "t1")
	if th.Votes.UpCount != 1 || th.Votes.DownCount != 1 || th.Votes.Point != 0 {
		t.Fatalf("unexpected votes: %+v", th.Votes)
	}

	// Idempotent re-vote, then switch, then clear.
	_ = m.VoteThread(ctx, "t1", "u1", 1)
	th, _ = m.GetThread(ctx, "t1")
	if th.Votes.UpCount != 1 {
		t.Fatalf("re-vote must not double count: %+v", th.Votes)
	}
	_ = m.VoteThread(ctx, "t1", "u2", 1)
	th, _ = m.GetThread(ctx, "t1")
	if th.Votes.UpCount != 2 || th.Votes.DownCount != 0 || th.Votes.Point != 2 {
		t.Fatalf("switch vote: %+v", th.Votes)
	}
	_ = m.VoteThread(ctx, "t1", "u1", 0)
	th, _ = m.GetThread(ctx, "t1")
	if th.Votes.UpCount != 1 || th.Votes.Point != 1 {
		t.Fatalf("clear vote: %+v", th.Votes)
	}

	if err := m.VoteThread(ctx, "t1", "u1", 2); err != ErrInvalidVote {
		t.Fatalf("expected ErrInvalidVote, got %v", err)
	}
}

func TestMemory_UnflagAllRetainsHistory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))
	_ = m.FlagThread(ctx, "t1", "u1")
	_ = m.FlagThread(ctx, "t1", "u2")
	_ = m.FlagThread(ctx, "t1", "u1") // duplicate

	ids, _ := m.FlaggedThreadIDs(ctx, "c1")
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("expected t1 flagged, got %v", ids)
	}

	if err := m.UnflagThread(ctx, "t1", "", true); err != nil {
		t.Fatalf("unflag all: %v", err)
	}
	th, _ := m.GetThread(ctx, "t1")
	if len(th.AbuseFlaggers) != 0 {
		t.Fatalf("expected no active flaggers, got %v", th.AbuseFlaggers)
	}
	if len(th.HistoricalAbuseFlaggers) != 2 {
		t.Fatalf("expected 2 historical flaggers, got %v", th.HistoricalAbuseFlaggers)
	}
	ids, _ = m.FlaggedThreadIDs(ctx, "c1")
	if len(ids) != 0 {
		t.Fatal("historical flags must not appear in active-flag queries")
	}
}

func TestMemory_FindSorting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t1 := newThread("t1", "c1", base)
	t2 := newThread("t2", "c1", base.Add(time.Hour))
	t3 := newThread("t3", "c1", base.Add(2*time.Hour))
	t3.Pinned = true
	for _, th := range []*content.Thread{t1, t2, t3} {
		_ = m.InsertThread(ctx, th)
	}
	_ = m.VoteThread(ctx, "t1", "u1", 1)
	_ = m.VoteThread(ctx, "t2", "u1", 1)

	// Pinned always first regardless of key/direction.
	got, err := m.Find(ctx, ThreadFilter{CourseID: "c1"}, SortByCreatedAt, Asc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got[0].ID != "t3" {
		t.Fatalf("expected pinned t3 first, got %s", got[0].ID)
	}
	if got[1].ID != "t1" || got[2].ID != "t2" {
		t.Fatalf("expected t1, t2 ascending, got %s, %s", got[1].ID, got[2].ID)
	}

	// Equal vote points tie-break by created_at desc.
	got, _ = m.Find(ctx, ThreadFilter{CourseID: "c1"}, SortByVotePoint, Desc)
	if got[0].ID != "t3" {
		t.Fatalf("expected pinned first, got %s", got[0].ID)
	}
	if got[1].ID != "t2" || got[2].ID != "t1" {
		t.Fatalf("vote tie must break by created_at desc: got %s, %s", got[1].ID, got[2].ID)
	}
}

func TestMemory_FindFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	g1 := int64(7)
	open := newThread("open", "c1", now)
	grouped := newThread("grouped", "c1", now.Add(time.Second))
	grouped.GroupID = &g1
	other := newThread("other", "c1", now.Add(2*time.Second))
	g2 := int64(9)
	other.GroupID = &g2
	anon := newThread("anon", "c1", now.Add(3*time.Second))
	anon.Anonymous = true
	for _, th := range []*content.Thread{open, grouped, other, anon} {
		_ = m.InsertThread(ctx, th)
	}

	// Group filter: nil group is visible to all, others by membership.
	got, _ := m.Find(ctx, ThreadFilter{CourseID: "c1", GroupIDs: []int64{7}}, SortByCreatedAt, Desc)
	seen := map[string]bool{}
	for _, th := range got {
		seen[th.ID] = true
	}
	if !seen["open"] || !seen["grouped"] || !seen["anon"] || seen["other"] {
		t.Fatalf("unexpected group filter result: %v", seen)
	}

	// Author activity views exclude anonymous content.
	got, _ = m.Find(ctx, ThreadFilter{CourseID: "c1", AuthorID: "author-1"}, SortByCreatedAt, Desc)
	for _, th := range got {
		if th.ID == "anon" {
			t.Fatal("anonymous thread must be excluded from author views")
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 author threads, got %d", len(got))
	}

	// Explicit empty id set matches nothing.
	got, _ = m.Find(ctx, ThreadFilter{CourseID: "c1", IDs: []string{}}, SortByCreatedAt, Desc)
	if len(got) != 0 {
		t.Fatalf("expected no threads for empty id set, got %d", len(got))
	}
}

func TestMemory_MarkReadMonotonic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	if err := m.MarkRead(ctx, "u1", "c1", "t1", late); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := m.MarkRead(ctx, "u1", "c1", "t1", early); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, err := m.LastReadMap(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("last read map: %v", err)
	}
	if !got["t1"].Equal(late) {
		t.Fatalf("timestamp moved backwards: %v", got["t1"])
	}
}

func TestMemory_AnsweredThreadIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.InsertThread(ctx, newThread("t1", "c1", now))
	_ = m.InsertThread(ctx, newThread("t2", "c1", now))

	root := newRoot("a", "t1", "c1", "u1", now)
	_ = m.InsertComment(ctx, root)
	// Deep endorsement must not mark the thread answered.
	deep := newReply("a1", root, "u2", now)
	deep.Endorsed = true
	_ = m.InsertComment(ctx, deep)

	answered, err := m.AnsweredThreadIDs(ctx, []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("answered: %v", err)
	}
	if answered["t1"] || answered["t2"] {
		t.Fatalf("no thread should be answered yet: %v", answered)
	}

	if err := m.Endorse(ctx, "a", "staff-1", true); err != nil {
		t.Fatalf("endorse: %v", err)
	}
	answered, _ = m.AnsweredThreadIDs(ctx, []string{"t1", "t2"})
	if !answered["t1"] || answered["t2"] {
		t.Fatalf("expected only t1 answered: %v", answered)
	}
}

func TestStoreInterfaces(t *testing.T) {
	var _ ThreadStore = (*Memory)(nil)
	var _ CommentStore = (*Memory)(nil)
	var _ ReadStateStore = (*Memory)(nil)
	var _ ThreadStore = (*Postgres)(nil)
	var _ CommentStore = (*Postgres)(nil)
	var _ ReadStateStore = (*Postgres)(nil)
}
