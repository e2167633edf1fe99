// Package events provides NATS JetStream publishing for forum content
// lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectThreadCreated  = "forum.threads.created"
	SubjectThreadUpdated  = "forum.threads.updated"
	SubjectThreadDeleted  = "forum.threads.deleted"
	SubjectCommentCreated = "forum.comments.created"
	SubjectCommentUpdated = "forum.comments.updated"
	SubjectCommentDeleted = "forum.comments.deleted"

	streamName = "FORUM"
)

// Publisher publishes forum events to NATS JetStream.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New connects to NATS and ensures the FORUM stream exists.
// If natsURL is empty, returns a no-op publisher (stub).
func New(natsURL string, log *zap.Logger) (*Publisher, error) {
	if natsURL == "" {
		log.Warn("NATS_URL not set, forum events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"forum.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Warn("failed to create NATS stream (may already exist)", zap.Error(err))
	}

	log.Info("NATS publisher initialised", zap.String("stream", streamName))
	return &Publisher{js: js, log: log}, nil
}

// ContentEvent is the payload published for every thread or comment change.
type ContentEvent struct {
	ThreadID  string `json:"thread_id"`
	CommentID string `json:"comment_id,omitempty"`
	CourseID  string `json:"course_id"`
	ActorID   string `json:"actor_id"`
}

// Publish sends a content event to the given subject.
// If JetStream is not configured (stub), it logs and returns nil.
func (p *Publisher) Publish(_ context.Context, subject string, evt ContentEvent) error {
	if p.js == nil {
		p.log.Debug("NATS stub: skipping publish", zap.String("subject", subject), zap.String("thread_id", evt.ThreadID))
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	ack, err := p.js.Publish(subject, data)
	if err != nil {
		return err
	}

	p.log.Debug("NATS event published",
		zap.String("subject", subject),
		zap.String("thread_id", evt.ThreadID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}
