package search

import (
	"context"
	"encoding/json"
)

const indexName = "threads"

// Searcher is the port the listing path uses to resolve a text query into
// thread ids.
type Searcher interface {
	ThreadIDs(ctx context.Context, courseID, query string) ([]string, error)
}

type threadHit struct {
	ThreadID string `json:"thread_id"`
}

// ThreadSearcher resolves queries against the threads index.
type ThreadSearcher struct {
	Client *Client
}

func (s *ThreadSearcher) ThreadIDs(ctx context.Context, courseID, query string) ([]string, error) {
	payload := map[string]any{
		"q":     query,
		"limit": 1000,
	}
	if courseID != "" {
		payload["filter"] = "course_id = \"" + courseID + "\""
	}
	resp, err := s.Client.Search(ctx, indexName, payload)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		var hit threadHit
		if err := json.Unmarshal(raw, &hit); err != nil {
			return nil, err
		}
		ids = append(ids, hit.ThreadID)
	}
	return ids, nil
}
