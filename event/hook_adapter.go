package event

import (
	"github.com/lexlapax/go-llmspell/hook"
)

// HookAdapter republishes hook chain activity as bus events so subscribers
// (IOPub broadcaster, tracers) can observe lifecycle decisions without
// registering hooks of their own.
type HookAdapter struct {
	bus *Bus
}

// NewHookAdapter wires a hook chain observer onto the given bus.
func NewHookAdapter(bus *Bus) *HookAdapter {
	return &HookAdapter{bus: bus}
}

// Hook returns a monitoring hook for the given points that publishes one
// event per observed execution under the "hook.<point>" topic.
func (a *HookAdapter) Hook(points ...hook.Point) hook.Hook {
	return &hook.FuncHook{
		HookName:     "event_bus_adapter",
		HookPriority: hook.PriorityMonitor,
		HookPoints:   points,
		Fn: func(hctx *hook.Context) (hook.Result, error) {
			ev := New("hook."+string(hctx.Point), map[string]any{
				"component": hctx.ComponentID.String(),
				"operation": hctx.Operation,
			})
			ev.CorrelationID = hctx.CorrelationID
			if err := a.bus.Publish(ev); err != nil {
				return nil, err
			}
			return hook.Continue{}, nil
		},
	}
}
