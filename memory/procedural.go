// Package memory implements the runtime's memory managers: a procedural
// store that learns usage patterns from hooked state writes, and an episodic
// store with append-only entries and substring search.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lexlapax/go-llmspell/state"
)

// Pattern is one learned (scope, key, value) triple with its observation count.
type Pattern struct {
	Scope     string `json:"scope"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Frequency int    `json:"frequency"`
}

// ProceduralStore counts state writes per (scope, key, value) triple. It
// implements state.Recorder so a state manager built with it learns patterns
// from every hooked write.
type ProceduralStore struct {
	mu     sync.RWMutex
	counts map[string]int
	triple map[string]Pattern
}

// NewProceduralStore creates an empty procedural store.
func NewProceduralStore() *ProceduralStore {
	return &ProceduralStore{counts: map[string]int{}, triple: map[string]Pattern{}}
}

// canonValue renders a written value in a stable string form so structurally
// equal values count as the same pattern.
func canonValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}

func tripleKey(scope, key, value string) string {
	return scope + "\x1f" + key + "\x1f" + value
}

// RecordWrite implements state.Recorder.
func (p *ProceduralStore) RecordWrite(scope state.Scope, key string, value any) {
	sv := scope.String()
	vv := canonValue(value)
	tk := tripleKey(sv, key, vv)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[tk]++
	p.triple[tk] = Pattern{Scope: sv, Key: key, Value: vv, Frequency: p.counts[tk]}
}

// Frequency returns how many times the (scope, key, value) triple was written.
func (p *ProceduralStore) Frequency(scope state.Scope, key string, value any) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[tripleKey(scope.String(), key, canonValue(value))]
}

// LearnedPatterns returns every triple observed at least threshold times,
// most frequent first (ties broken by key for determinism).
func (p *ProceduralStore) LearnedPatterns(threshold int) []Pattern {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Pattern
	for _, pat := range p.triple {
		if pat.Frequency >= threshold {
			out = append(out, pat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Key < out[j].Key
	})
	return out
}
