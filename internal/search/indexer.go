package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/store"
)

// Indexer keeps the threads index in sync with the content store by
// following forum lifecycle events.
type Indexer struct {
	Threads store.ThreadStore
	Meili   *Client
	Log     *zap.Logger
	NATS    *nats.Conn
}

type eventPayload struct {
	ThreadID string `json:"thread_id"`
}

// ThreadDoc is the searchable projection of a thread.
type ThreadDoc struct {
	ThreadID      string `json:"thread_id"`
	CourseID      string `json:"course_id"`
	CommentableID string `json:"commentable_id"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	Type          string `json:"thread_type"`
	Context       string `json:"context"`
}

func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	if err := ix.Meili.EnsureIndex(ctx, indexName, "thread_id"); err != nil {
		return err
	}
	settings := map[string]any{
		"searchableAttributes": []string{"title", "body"},
		"filterableAttributes": []string{"course_id", "commentable_id", "thread_type", "context"},
	}
	return ix.Meili.UpdateSettings(ctx, indexName, settings)
}

// Run consumes forum.threads.* events until the context is cancelled,
// upserting on create/update and removing deleted threads from the index.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.EnsureIndex(ctx); err != nil {
		return err
	}
	js, err := ix.NATS.JetStream()
	if err != nil {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "FORUM",
		Subjects: []string{"forum.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return err
	}

	sub, err := js.PullSubscribe("forum.threads.*", "search_indexer")
	if err != nil {
		return err
	}

	log := ix.Log
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return err
		}
		for _, m := range msgs {
			if err := ix.handleMsg(ctx, m); err != nil {
				log.Warn("index event failed", zap.Error(err))
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

func (ix *Indexer) handleMsg(ctx context.Context, msg *nats.Msg) error {
	var payload eventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return err
	}
	payload.ThreadID = strings.TrimSpace(payload.ThreadID)
	if payload.ThreadID == "" {
		return fmt.Errorf("missing thread_id")
	}
	if strings.HasSuffix(msg.Subject, ".deleted") {
		return ix.Meili.DeleteDocument(ctx, indexName, payload.ThreadID)
	}
	return ix.indexThread(ctx, payload.ThreadID)
}

func (ix *Indexer) indexThread(ctx context.Context, threadID string) error {
	th, err := ix.Threads.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between the event and the fetch.
			return ix.Meili.DeleteDocument(ctx, indexName, threadID)
		}
		return err
	}
	doc := ThreadDoc{
		ThreadID:      th.ID,
		CourseID:      th.CourseID,
		CommentableID: th.CommentableID,
		Title:         th.Title,
		Body:          th.Body,
		Type:          string(th.Type),
		Context:       string(th.Context),
	}
	return ix.Meili.AddDocuments(ctx, indexName, []ThreadDoc{doc})
}
