// Package debug implements the execution/debug core for embedded scripts:
// breakpoints, single-stepping, stack navigation, variable inspection and a
// hook multiplexer that shares the interpreter's single debug hook slot
// between independent handlers.
package debug

import (
	"sync"

	"github.com/lexlapax/go-llmspell/core"
)

// Breakpoint is one registered stop location. Matching is exact on
// (source, line); Condition, when set, is evaluated in the paused frame and
// HitCount increments only on a satisfied condition.
type Breakpoint struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Line      int    `json:"line"`
	Condition string `json:"condition,omitempty"`
	HitCount  int    `json:"hit_count"`
	Enabled   bool   `json:"enabled"`
}

// breakpointStore owns the registered breakpoints, indexed for exact
// (source, line) matching.
type breakpointStore struct {
	mu     sync.RWMutex
	byID   map[string]*Breakpoint
	byLine map[string]map[int][]*Breakpoint // source -> line -> breakpoints
}

func newBreakpointStore() *breakpointStore {
	return &breakpointStore{
		byID:   map[string]*Breakpoint{},
		byLine: map[string]map[int][]*Breakpoint{},
	}
}

func (s *breakpointStore) add(source string, line int, condition string) Breakpoint {
	bp := &Breakpoint{
		ID:        core.NewID(),
		Source:    source,
		Line:      line,
		Condition: condition,
		Enabled:   true,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[bp.ID] = bp
	if s.byLine[source] == nil {
		s.byLine[source] = map[int][]*Breakpoint{}
	}
	s.byLine[source][line] = append(s.byLine[source][line], bp)
	return *bp
}

// remove deletes a breakpoint by ID. The second removal of the same ID
// returns false.
func (s *breakpointStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	line := s.byLine[bp.Source][bp.Line]
	for i, candidate := range line {
		if candidate.ID == id {
			s.byLine[bp.Source][bp.Line] = append(line[:i], line[i+1:]...)
			break
		}
	}
	return true
}

// at returns the enabled breakpoints matching (source, line) exactly.
func (s *breakpointStore) at(source string, line int) []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Breakpoint
	for _, bp := range s.byLine[source][line] {
		if bp.Enabled {
			out = append(out, bp)
		}
	}
	return out
}

func (s *breakpointStore) list() []Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Breakpoint, 0, len(s.byID))
	for _, bp := range s.byID {
		out = append(out, *bp)
	}
	return out
}

func (s *breakpointStore) get(id string) (Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.byID[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

func (s *breakpointStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// recordHit increments the hit counter of a satisfied breakpoint.
func (s *breakpointStore) recordHit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bp, ok := s.byID[id]; ok {
		bp.HitCount++
	}
}

// setEnabled toggles a breakpoint without removing it.
func (s *breakpointStore) setEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.byID[id]
	if !ok {
		return false
	}
	bp.Enabled = enabled
	return true
}
