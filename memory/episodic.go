package memory

import (
	"fmt"
	"strings"
	"sync"
)

// Episode is one stored memory entry.
type Episode struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is an episode plus its match score.
type SearchResult struct {
	Episode
	Score float64 `json:"score"`
}

// EpisodicStore is a naive process-local episodic memory:
//  1. Append-only stored episodes per session
//  2. Linear substring Search (case sensitive) assigning a constant score of
//     1.0 to every hit
//
// Suitable for tests and single-process runtimes; swap for a vector index for
// production retrieval.
type EpisodicStore struct {
	mu      sync.RWMutex
	storage map[string][]Episode // sessionID -> episodes in insertion order
}

// NewEpisodicStore creates an empty episodic store.
func NewEpisodicStore() *EpisodicStore {
	return &EpisodicStore{storage: make(map[string][]Episode)}
}

// Store appends a new episode, generating a simple incremental id.
func (m *EpisodicStore) Store(sessionID, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("mem_%d", len(m.storage[sessionID]))
	m.storage[sessionID] = append(m.storage[sessionID], Episode{ID: id, Content: content, Metadata: metadata})
	return nil
}

// Search performs a substring match over stored episodes, returning up to
// limit results in insertion order.
func (m *EpisodicStore) Search(sessionID, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]SearchResult, 0, limit)
	for _, ep := range m.storage[sessionID] {
		if len(results) >= limit {
			break
		}
		if query == "" || strings.Contains(ep.Content, query) {
			results = append(results, SearchResult{Episode: ep, Score: 1.0})
		}
	}
	return results, nil
}

// Delete removes a stored episode by id.
func (m *EpisodicStore) Delete(sessionID, episodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	episodes := m.storage[sessionID]
	for i, ep := range episodes {
		if ep.ID == episodeID {
			m.storage[sessionID] = append(episodes[:i], episodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory not found")
}
