package hook

// Point names a place in the component lifecycle where registered hooks run.
type Point string

const (
	// PointBeforeAgentExecution runs before an agent handles input.
	PointBeforeAgentExecution Point = "before_agent_execution"
	// PointAfterAgentExecution runs after an agent produced output.
	PointAfterAgentExecution Point = "after_agent_execution"
	// PointBeforeToolExecution runs before a tool call is dispatched.
	PointBeforeToolExecution Point = "before_tool_execution"
	// PointAfterToolExecution runs after a tool call completed.
	PointAfterToolExecution Point = "after_tool_execution"
	// PointBeforeWorkflowStart runs before a workflow begins executing steps.
	PointBeforeWorkflowStart Point = "before_workflow_start"
	// PointBeforeWorkflowStep runs before each workflow step.
	PointBeforeWorkflowStep Point = "before_workflow_step"
	// PointAfterWorkflowStep runs after each workflow step.
	PointAfterWorkflowStep Point = "after_workflow_step"
	// PointAfterWorkflowComplete runs after a workflow finished.
	PointAfterWorkflowComplete Point = "after_workflow_complete"
	// PointBeforeStateChange runs before a state write is applied.
	PointBeforeStateChange Point = "before_state_change"
	// PointAfterStateChange runs after a state write was applied.
	PointAfterStateChange Point = "after_state_change"
	// PointBeforeScriptExecution runs before the engine executes a script.
	PointBeforeScriptExecution Point = "before_script_execution"
	// PointAfterScriptExecution runs after the engine executed a script.
	PointAfterScriptExecution Point = "after_script_execution"
)

// Priority anchors. Lower numeric priority runs first.
const (
	// PriorityProfiler is the conventional priority for profiling hooks that
	// must observe the operation before anything else mutates it.
	PriorityProfiler = -1000
	// PriorityDefault is where built-in hooks sit.
	PriorityDefault = 0
	// PriorityMonitor is the conventional priority for monitoring hooks that
	// want to see the final shape of the operation.
	PriorityMonitor = 1000
)
