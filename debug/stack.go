package debug

import "sync"

// StackFrame is one frame of the paused script's call stack.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Variable is one inspected binding in a paused frame. Reference is non-zero
// when the variable has children retrievable through it.
type Variable struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`
	Reference   int    `json:"reference,omitempty"`
}

// variableCache hands out variablesReference IDs that are stable within a
// pause but reset across pauses.
type variableCache struct {
	mu      sync.Mutex
	nextRef int
	byRef   map[int][]Variable
}

func newVariableCache() *variableCache {
	return &variableCache{byRef: map[int][]Variable{}}
}

// cache stores a variable set and returns its reference ID.
func (c *variableCache) cache(vars []Variable) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRef++
	c.byRef[c.nextRef] = append([]Variable(nil), vars...)
	return c.nextRef
}

func (c *variableCache) lookup(ref int) ([]Variable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vars, ok := c.byRef[ref]
	if !ok {
		return nil, false
	}
	return append([]Variable(nil), vars...), true
}

// invalidate drops every cached set and restarts reference numbering.
func (c *variableCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRef = 0
	c.byRef = map[int][]Variable{}
}
