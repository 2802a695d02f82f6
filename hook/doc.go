// Package hook implements lifecycle hook points, the tagged HookResult
// decision model and a deterministic priority-ordered chain.
//
// Hooks observe and influence operations at named points (tool execution,
// agent lifecycle, workflow stages, state changes, script execution). Each
// hook returns one HookResult variant; the chain interprets Cancel as a
// short-circuit, Modified as a data replacement visible to later hooks, and
// treats handler errors and panics as warnings so a misbehaving hook can
// never take down the operation it observes.
//
// Priorities are signed integers; lower values run first. The PriorityProfiler
// and PriorityMonitor anchors leave room on both sides of built-ins so
// extensions can sort themselves without recompilation.
package hook
