// Package core defines the shared vocabulary of llmspell: component
// identities, agent and tool input/output shapes, the streaming chunk model,
// the shared execution context, and the error taxonomy every subsystem
// surfaces through.
//
// Values that cross the script/host boundary are represented as the JSON-ish
// Go union (nil, bool, int64, float64, string, []any, map[string]any). Script
// engine adapters are responsible for converting language values into this
// union before anything in core sees them; nothing in the host ever handles a
// language-specific type.
package core
