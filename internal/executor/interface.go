// Package executor turns manifest tasks into the workloads an orchestrator
// would run for them. Builders are looked up by task type in a Registry.
package executor

import (
	corev1 "k8s.io/api/core/v1"

	workflowv1 "github.com/kination/nautikus/api/v1"
)

// Executor defines the interface for building a task's workload.
// Different implementations handle different task types (Pod, Spark, etc.)
type Executor interface {
	// Type returns the task type(s) this executor handles
	Type() []workflowv1.TaskType

	// BuildPod converts a task of the DAG into the Pod that runs it
	BuildPod(dag *workflowv1.Dag, task *workflowv1.TaskSpec) (*corev1.Pod, error)
}

// ExecutorConfig holds common configuration for executors
type ExecutorConfig struct {
	// Namespace overrides the DAG namespace when set
	Namespace string

	// Images overrides the default image per task type
	Images map[workflowv1.TaskType]string
}

// BaseExecutor provides common functionality for executors
type BaseExecutor struct {
	Config ExecutorConfig
}

// NewBaseExecutor creates a new BaseExecutor
func NewBaseExecutor(cfg ExecutorConfig) BaseExecutor {
	return BaseExecutor{Config: cfg}
}

// Namespace returns the namespace a DAG's workloads are placed in.
func (b BaseExecutor) Namespace(dag *workflowv1.Dag) string {
	if b.Config.Namespace != "" {
		return b.Config.Namespace
	}
	if dag.Namespace != "" {
		return dag.Namespace
	}
	return "default"
}

// Image returns the configured image for taskType, or fallback.
func (b BaseExecutor) Image(taskType workflowv1.TaskType, fallback string) string {
	if image := b.Config.Images[taskType]; image != "" {
		return image
	}
	return fallback
}
