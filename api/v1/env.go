package v1

// Environment variables exchanged between a compiled manifest, the
// orchestrator and the worker process that dispatches a task.
const (
	// EnvTaskName selects the task a worker dispatches. Its absence means compile mode.
	EnvTaskName = "NAUTIKUS_TASK_NAME"
	// EnvSelectedBranch carries the branch chosen by an upstream selector.
	EnvSelectedBranch = "NAUTIKUS_SELECTED_BRANCH"

	EnvBranchCondition = "NAUTIKUS_BRANCH_CONDITION"
	EnvConditionSource = "NAUTIKUS_CONDITION_SOURCE"
	EnvTaskType        = "NAUTIKUS_TASK_TYPE"
	EnvBranchTargets   = "NAUTIKUS_BRANCH_TARGETS"

	// BranchResultKey prefixes the stdout line a selector task emits, e.g.
	// NAUTIKUS_BRANCH_RESULT=large. The orchestrator scrapes it and feeds the
	// value back through EnvSelectedBranch.
	BranchResultKey = "NAUTIKUS_BRANCH_RESULT"
)

// Values of EnvTaskType.
const (
	TaskKindBranch = "branch"
	TaskKindJoin   = "join"
)

// BranchTargetSeparator joins the names stored in EnvBranchTargets.
const BranchTargetSeparator = ","
