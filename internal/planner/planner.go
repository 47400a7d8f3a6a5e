// Package planner checks compiled DAG manifests and orders their tasks into
// execution waves, the way an orchestrator would release them.
package planner

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	ctrl "sigs.k8s.io/controller-runtime"

	workflowv1 "github.com/kination/nautikus/api/v1"
)

var log = ctrl.Log.WithName("planner")

// Validate reports every structural problem in the manifest: empty or
// duplicate task names, unknown dependencies, dependency cycles and branch
// tasks whose condition does not match a selector.
func Validate(dag *workflowv1.Dag) error {
	var err error

	index := make(map[string]*workflowv1.TaskSpec, len(dag.Spec.Tasks))
	for i := range dag.Spec.Tasks {
		task := &dag.Spec.Tasks[i]
		if task.Name == "" {
			err = multierr.Append(err, fmt.Errorf("task #%d has no name", i))
			continue
		}
		if _, exists := index[task.Name]; exists {
			err = multierr.Append(err, fmt.Errorf("duplicate task name %q", task.Name))
			continue
		}
		index[task.Name] = task
	}

	for _, task := range dag.Spec.Tasks {
		for _, dep := range task.Dependencies {
			if _, ok := index[dep]; !ok {
				err = multierr.Append(err, fmt.Errorf("task %q depends on unknown task %q", task.Name, dep))
			}
		}
		err = multierr.Append(err, validateBranch(&task, index))
	}

	if cycle := findCycle(dag.Spec.Tasks, index); cycle != nil {
		err = multierr.Append(err, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	if err != nil {
		log.V(1).Info("Manifest is invalid", "dag", dag.Name, "problems", len(multierr.Errors(err)))
	}
	return err
}

func validateBranch(task *workflowv1.TaskSpec, index map[string]*workflowv1.TaskSpec) error {
	condition := task.Env[workflowv1.EnvBranchCondition]
	if condition == "" {
		return nil
	}
	sourceName := task.Env[workflowv1.EnvConditionSource]
	source, ok := index[sourceName]
	if !ok || !source.IsBranch() {
		return fmt.Errorf("task %q: condition source %q is not a branch task", task.Name, sourceName)
	}
	for _, target := range BranchTargets(source) {
		if target == condition {
			return nil
		}
	}
	return fmt.Errorf("task %q: branch %q is not a target of %q", task.Name, condition, sourceName)
}

// BranchTargets returns the branch names a selector task may choose.
func BranchTargets(task *workflowv1.TaskSpec) []string {
	raw := task.Env[workflowv1.EnvBranchTargets]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, workflowv1.BranchTargetSeparator)
}

// findCycle returns the first dependency cycle found, in manifest order.
func findCycle(tasks []workflowv1.TaskSpec, index map[string]*workflowv1.TaskSpec) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(tasks))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range index[name].Dependencies {
			if _, ok := index[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				for i, n := range stack {
					if n == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, task := range tasks {
		if _, ok := index[task.Name]; !ok || state[task.Name] != unvisited {
			continue
		}
		if cycle := visit(task.Name); cycle != nil {
			return cycle
		}
	}
	return nil
}

// Plan groups tasks into waves. A task joins the first wave after all of its
// dependencies have been placed; a join task needs only one of them. Order
// inside a wave follows the manifest.
func Plan(dag *workflowv1.Dag) ([][]string, error) {
	if err := Validate(dag); err != nil {
		return nil, err
	}

	placed := make(map[string]bool, len(dag.Spec.Tasks))
	var waves [][]string

	for len(placed) < len(dag.Spec.Tasks) {
		var wave []string
		for i := range dag.Spec.Tasks {
			task := &dag.Spec.Tasks[i]
			if placed[task.Name] {
				continue
			}
			if isReady(task, placed) {
				wave = append(wave, task.Name)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("dag %s: %d tasks can never become ready", dag.Name, len(dag.Spec.Tasks)-len(placed))
		}
		for _, name := range wave {
			placed[name] = true
		}
		waves = append(waves, wave)
	}

	return waves, nil
}

func isReady(task *workflowv1.TaskSpec, placed map[string]bool) bool {
	if len(task.Dependencies) == 0 {
		return true
	}
	if task.IsJoin() {
		for _, dep := range task.Dependencies {
			if placed[dep] {
				return true
			}
		}
		return false
	}
	for _, dep := range task.Dependencies {
		if !placed[dep] {
			return false
		}
	}
	return true
}
