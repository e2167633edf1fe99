package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/forum-platform/internal/content"
)

// Postgres persists forum content in Postgres.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by Postgres.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const threadCols = `id, author_id, course_id, title, body, commentable_id, thread_type, context,
	group_id, pinned, closed, anonymous, anonymous_to_peers, tags, comment_count,
	up_count, down_count, abuse_flaggers, historical_abuse_flaggers,
	created_at, updated_at, last_activity_at`

const commentCols = `id, thread_id, author_id, course_id, parent_id, body, endorsed,
	endorsement_user_id, endorsement_at, depth, sort_key, anonymous, anonymous_to_peers,
	up_count, down_count, abuse_flaggers, historical_abuse_flaggers, created_at, updated_at`

// ─── ThreadStore ─────────────────────────────────────────────────────────────

func (s *Postgres) InsertThread(ctx context.Context, t *content.Thread) error {
	const q = `INSERT INTO threads (` + threadCols + `)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := s.pool.Exec(ctx, q,
		t.ID, t.AuthorID, t.CourseID, t.Title, t.Body, t.CommentableID, t.Type, t.Context,
		t.GroupID, t.Pinned, t.Closed, t.Anonymous, t.AnonymousToPeers, emptyIfNil(t.Tags), t.CommentCount,
		t.Votes.UpCount, t.Votes.DownCount, emptyIfNil(t.AbuseFlaggers), emptyIfNil(t.HistoricalAbuseFlaggers),
		t.CreatedAt, t.UpdatedAt, t.LastActivityAt)
	return err
}

func (s *Postgres) GetThread(ctx context.Context, id string) (*content.Thread, error) {
	const q = `SELECT ` + threadCols + ` FROM threads WHERE id = $1`
	t, err := scanThread(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Postgres) UpdateThread(ctx context.Context, t *content.Thread) error {
	const q = `UPDATE threads SET title=$2, body=$3, commentable_id=$4, thread_type=$5, context=$6,
	           group_id=$7, pinned=$8, closed=$9, anonymous=$10, anonymous_to_peers=$11, tags=$12,
	           updated_at=$13, last_activity_at=$14
	           WHERE id=$1`
	tag, err := s.pool.Exec(ctx, q,
		t.ID, t.Title, t.Body, t.CommentableID, t.Type, t.Context,
		t.GroupID, t.Pinned, t.Closed, t.Anonymous, t.AnonymousToPeers, emptyIfNil(t.Tags),
		t.UpdatedAt, t.LastActivityAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE thread_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Find(ctx context.Context, f ThreadFilter, key ThreadSortKey, order SortOrder) ([]*content.Thread, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CourseID != "" {
		where = append(where, "course_id = "+arg(f.CourseID))
	}
	if f.Context != "" {
		where = append(where, "context = "+arg(string(f.Context)))
	}
	if len(f.CommentableIDs) > 0 {
		where = append(where, "commentable_id = ANY("+arg(f.CommentableIDs)+")")
	}
	if len(f.GroupIDs) > 0 {
		where = append(where, "(group_id IS NULL OR group_id = ANY("+arg(f.GroupIDs)+"))")
	}
	if f.IDs != nil {
		where = append(where, "id = ANY("+arg(f.IDs)+")")
	}
	if f.AuthorID != "" {
		where = append(where, "author_id = "+arg(f.AuthorID))
		where = append(where, "anonymous = false AND anonymous_to_peers = false")
	}

	q := `SELECT ` + threadCols + ` FROM threads`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + threadOrderBy(key, order)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*content.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// threadOrderBy renders the listing order: pinned first, requested key and
// direction, created_at desc tie-break for non-timestamp keys, id as the
// final stabiliser.
func threadOrderBy(key ThreadSortKey, order SortOrder) string {
	dir := "DESC"
	if order == Asc {
		dir = "ASC"
	}
	switch key {
	case SortByLastActivity:
		return "pinned DESC, last_activity_at " + dir + ", id DESC"
	case SortByVotePoint:
		return "pinned DESC, (up_count - down_count) " + dir + ", created_at DESC, id DESC"
	case SortByCommentCount:
		return "pinned DESC, comment_count " + dir + ", created_at DESC, id DESC"
	default:
		return "pinned DESC, created_at " + dir + ", id DESC"
	}
}

func (s *Postgres) FlaggedThreadIDs(ctx context.Context, courseID string) ([]string, error) {
	const q = `SELECT id FROM threads WHERE course_id = $1 AND cardinality(abuse_flaggers) > 0`
	return s.queryIDs(ctx, q, courseID)
}

func (s *Postgres) VoteThread(ctx context.Context, threadID, userID string, value int) error {
	return s.vote(ctx, "threads", "thread_votes", "thread_id", threadID, userID, value)
}

func (s *Postgres) FlagThread(ctx context.Context, threadID, userID string) error {
	const q = `UPDATE threads
	           SET abuse_flaggers = CASE WHEN $2 = ANY(abuse_flaggers) THEN abuse_flaggers
	                                     ELSE array_append(abuse_flaggers, $2) END
	           WHERE id = $1`
	return s.execExpectingRow(ctx, q, threadID, userID)
}

func (s *Postgres) UnflagThread(ctx context.Context, threadID, userID string, all bool) error {
	if all {
		const q = `UPDATE threads
		           SET historical_abuse_flaggers = ARRAY(SELECT DISTINCT unnest(historical_abuse_flaggers || abuse_flaggers)),
		               abuse_flaggers = '{}'
		           WHERE id = $1`
		return s.execExpectingRow(ctx, q, threadID)
	}
	const q = `UPDATE threads SET abuse_flaggers = array_remove(abuse_flaggers, $2) WHERE id = $1`
	return s.execExpectingRow(ctx, q, threadID, userID)
}

// ─── CommentStore ────────────────────────────────────────────────────────────

func (s *Postgres) InsertComment(ctx context.Context, c *content.Comment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `INSERT INTO comments (` + commentCols + `)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	var endorseUser *string
	var endorseAt *time.Time
	if c.Endorsement != nil {
		endorseUser, endorseAt = &c.Endorsement.UserID, &c.Endorsement.Time
	}
	if _, err := tx.Exec(ctx, q,
		c.ID, c.ThreadID, c.AuthorID, c.CourseID, c.ParentID, c.Body, c.Endorsed,
		endorseUser, endorseAt, c.Depth, c.SortKey, c.Anonymous, c.AnonymousToPeers,
		c.Votes.UpCount, c.Votes.DownCount, emptyIfNil(c.AbuseFlaggers), emptyIfNil(c.HistoricalAbuseFlaggers),
		c.CreatedAt, c.UpdatedAt); err != nil {
		return err
	}

	// Comment creation propagates activity to the owning thread.
	tag, err := tx.Exec(ctx,
		`UPDATE threads SET comment_count = comment_count + 1, updated_at = $2, last_activity_at = $2 WHERE id = $1`,
		c.ThreadID, c.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Postgres) GetComment(ctx context.Context, id string) (*content.Comment, error) {
	const q = `SELECT ` + commentCols + ` FROM comments WHERE id = $1`
	c, err := scanComment(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Postgres) UpdateComment(ctx context.Context, c *content.Comment) error {
	const q = `UPDATE comments SET body = $2, updated_at = $3 WHERE id = $1`
	return s.execExpectingRow(ctx, q, c.ID, c.Body, c.UpdatedAt)
}

func (s *Postgres) DeleteComment(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var threadID, sortKey string
	err = tx.QueryRow(ctx, `SELECT thread_id, sort_key FROM comments WHERE id = $1`, id).
		Scan(&threadID, &sortKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	// Cascade over the subtree via the sort-key prefix.
	tag, err := tx.Exec(ctx,
		`DELETE FROM comments WHERE thread_id = $1 AND (sort_key = $2 OR sort_key LIKE $3)`,
		threadID, sortKey, content.SubtreePrefix(sortKey)+"%")
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE threads SET comment_count = GREATEST(comment_count - $2, 0) WHERE id = $1`,
		threadID, tag.RowsAffected()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ByThread(ctx context.Context, threadID string) ([]*content.Comment, error) {
	const q = `SELECT ` + commentCols + ` FROM comments WHERE thread_id = $1 ORDER BY sort_key ASC`
	return s.scanComments(ctx, q, threadID)
}

func (s *Postgres) RootIDs(ctx context.Context, threadID string, rq RootQuery) ([]string, int, error) {
	where := "thread_id = $1 AND parent_id IS NULL"
	args := []any{threadID}
	if rq.Endorsed != nil {
		where += " AND endorsed = $2"
		args = append(args, *rq.Endorsed)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM comments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT id FROM comments WHERE ` + where + ` ORDER BY sort_key ASC`
	q += fmt.Sprintf(" OFFSET %d", rq.Skip)
	if rq.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", rq.Limit)
	}
	ids, err := s.queryIDs(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, total, nil
}

func (s *Postgres) Subtrees(ctx context.Context, threadID string, rootIDs []string) ([]*content.Comment, error) {
	// Top-level sort keys are the bare root id, so the owning root of any
	// comment is the first sort-key segment.
	const q = `SELECT ` + commentCols + ` FROM comments
	           WHERE thread_id = $1 AND split_part(sort_key, '-', 1) = ANY($2)
	           ORDER BY sort_key ASC`
	return s.scanComments(ctx, q, threadID, rootIDs)
}

func (s *Postgres) CountUpdatedSince(ctx context.Context, threadID string, since time.Time, excludeAuthor string) (int, error) {
	const q = `SELECT count(*) FROM comments WHERE thread_id = $1 AND updated_at >= $2 AND author_id <> $3`
	var n int
	err := s.pool.QueryRow(ctx, q, threadID, since, excludeAuthor).Scan(&n)
	return n, err
}

func (s *Postgres) HasEndorsed(ctx context.Context, threadID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM comments WHERE thread_id = $1 AND endorsed)`
	var ok bool
	err := s.pool.QueryRow(ctx, q, threadID).Scan(&ok)
	return ok, err
}

func (s *Postgres) AnsweredThreadIDs(ctx context.Context, threadIDs []string) (map[string]bool, error) {
	const q = `SELECT DISTINCT thread_id FROM comments
	           WHERE parent_id IS NULL AND endorsed AND thread_id = ANY($1)`
	ids, err := s.queryIDs(ctx, q, threadIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (s *Postgres) CommentFlaggedThreadIDs(ctx context.Context, courseID string) ([]string, error) {
	const q = `SELECT DISTINCT thread_id FROM comments
	           WHERE course_id = $1 AND cardinality(abuse_flaggers) > 0`
	return s.queryIDs(ctx, q, courseID)
}

func (s *Postgres) Endorse(ctx context.Context, commentID, userID string, endorsed bool) error {
	if endorsed {
		const q = `UPDATE comments SET endorsed = true, endorsement_user_id = $2, endorsement_at = now() WHERE id = $1`
		return s.execExpectingRow(ctx, q, commentID, userID)
	}
	const q = `UPDATE comments SET endorsed = false, endorsement_user_id = NULL, endorsement_at = NULL WHERE id = $1`
	return s.execExpectingRow(ctx, q, commentID)
}

func (s *Postgres) VoteComment(ctx context.Context, commentID, userID string, value int) error {
	return s.vote(ctx, "comments", "comment_votes", "comment_id", commentID, userID, value)
}

func (s *Postgres) FlagComment(ctx context.Context, commentID, userID string) error {
	const q = `UPDATE comments
	           SET abuse_flaggers = CASE WHEN $2 = ANY(abuse_flaggers) THEN abuse_flaggers
	                                     ELSE array_append(abuse_flaggers, $2) END
	           WHERE id = $1`
	return s.execExpectingRow(ctx, q, commentID, userID)
}

func (s *Postgres) UnflagComment(ctx context.Context, commentID, userID string, all bool) error {
	if all {
		const q = `UPDATE comments
		           SET historical_abuse_flaggers = ARRAY(SELECT DISTINCT unnest(historical_abuse_flaggers || abuse_flaggers)),
		               abuse_flaggers = '{}'
		           WHERE id = $1`
		return s.execExpectingRow(ctx, q, commentID)
	}
	const q = `UPDATE comments SET abuse_flaggers = array_remove(abuse_flaggers, $2) WHERE id = $1`
	return s.execExpectingRow(ctx, q, commentID, userID)
}

// ─── ReadStateStore ──────────────────────────────────────────────────────────

func (s *Postgres) LastReadMap(ctx context.Context, userID, courseID string) (map[string]time.Time, error) {
	const q = `SELECT thread_id, last_read_at FROM read_states WHERE user_id = $1 AND course_id = $2`
	rows, err := s.pool.Query(ctx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		out[id] = at
	}
	return out, rows.Err()
}

func (s *Postgres) MarkRead(ctx context.Context, userID, courseID, threadID string, at time.Time) error {
	const q = `INSERT INTO read_states (user_id, course_id, thread_id, last_read_at)
	           VALUES ($1, $2, $3, $4)
	           ON CONFLICT (user_id, course_id, thread_id)
	           DO UPDATE SET last_read_at = GREATEST(read_states.last_read_at, EXCLUDED.last_read_at)`
	_, err := s.pool.Exec(ctx, q, userID, courseID, threadID, at)
	return err
}

// ─── helpers ────────────────────────────────────────────────────────────────

// vote upserts one user's vote on a content row and adjusts the aggregate by
// the delta, inside one transaction. value 0 clears the vote.
func (s *Postgres) vote(ctx context.Context, table, voteTable, fkCol, contentID, userID string, value int) error {
	if value < -1 || value > 1 {
		return ErrInvalidVote
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, contentID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	var old int
	err = tx.QueryRow(ctx,
		`SELECT vote FROM `+voteTable+` WHERE `+fkCol+` = $1 AND user_id = $2`,
		contentID, userID).Scan(&old)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		old = 0
		if value != 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO `+voteTable+` (`+fkCol+`, user_id, vote) VALUES ($1, $2, $3)`,
				contentID, userID, value)
		} else {
			err = nil
		}
	case err != nil:
		return err
	case value == 0:
		_, err = tx.Exec(ctx,
			`DELETE FROM `+voteTable+` WHERE `+fkCol+` = $1 AND user_id = $2`, contentID, userID)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE `+voteTable+` SET vote = $3 WHERE `+fkCol+` = $1 AND user_id = $2`,
			contentID, userID, value)
	}
	if err != nil {
		return err
	}

	upDelta, downDelta := voteDeltas(old, value)
	if upDelta != 0 || downDelta != 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE `+table+` SET up_count = up_count + $2, down_count = down_count + $3 WHERE id = $1`,
			contentID, upDelta, downDelta); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func voteDeltas(old, val int) (up, down int) {
	switch old {
	case 1:
		up--
	case -1:
		down--
	}
	switch val {
	case 1:
		up++
	case -1:
		down++
	}
	return up, down
}

func (s *Postgres) execExpectingRow(ctx context.Context, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) queryIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Postgres) scanComments(ctx context.Context, q string, args ...any) ([]*content.Comment, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*content.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*content.Thread, error) {
	var t content.Thread
	err := row.Scan(&t.ID, &t.AuthorID, &t.CourseID, &t.Title, &t.Body, &t.CommentableID, &t.Type, &t.Context,
		&t.GroupID, &t.Pinned, &t.Closed, &t.Anonymous, &t.AnonymousToPeers, &t.Tags, &t.CommentCount,
		&t.Votes.UpCount, &t.Votes.DownCount, &t.AbuseFlaggers, &t.HistoricalAbuseFlaggers,
		&t.CreatedAt, &t.UpdatedAt, &t.LastActivityAt)
	if err != nil {
		return nil, err
	}
	t.Votes.Point = t.Votes.UpCount - t.Votes.DownCount
	return &t, nil
}

func scanComment(row rowScanner) (*content.Comment, error) {
	var c content.Comment
	var endorseUser *string
	var endorseAt *time.Time
	err := row.Scan(&c.ID, &c.ThreadID, &c.AuthorID, &c.CourseID, &c.ParentID, &c.Body, &c.Endorsed,
		&endorseUser, &endorseAt, &c.Depth, &c.SortKey, &c.Anonymous, &c.AnonymousToPeers,
		&c.Votes.UpCount, &c.Votes.DownCount, &c.AbuseFlaggers, &c.HistoricalAbuseFlaggers,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Votes.Point = c.Votes.UpCount - c.Votes.DownCount
	if endorseUser != nil && endorseAt != nil {
		c.Endorsement = &content.Endorsement{UserID: *endorseUser, Time: *endorseAt}
	}
	return &c, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
