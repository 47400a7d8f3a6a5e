package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"

	ctrl "sigs.k8s.io/controller-runtime"

	workflowv1 "github.com/kination/nautikus/api/v1"
)

var log = ctrl.Log.WithName("processing")

// ErrUnknownTask is returned when the target task is not part of the DAG.
var ErrUnknownTask = errors.New("unknown task")

// TaskError reports a failure raised by a task's body.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Outcome is the terminal state of a single dispatch.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeSkipped
	OutcomeBranchEvaluated
	OutcomeExecuted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeSkipped:
		return "Skipped"
	case OutcomeBranchEvaluated:
		return "BranchEvaluated"
	case OutcomeExecuted:
		return "Executed"
	case OutcomeFailed:
		return "Failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Succeeded reports whether the outcome maps to a zero exit status.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSkipped || o == OutcomeBranchEvaluated || o == OutcomeExecuted
}

// ExecuteTask runs a specific task by name (called inside Pod). Progress lines
// and the branch result line are written to out.
func ExecuteTask(ctx context.Context, inv Invocation, tasks []TaskDef, out io.Writer) (Outcome, error) {
	targetTask := inv.TaskName
	for i := range tasks {
		task := &tasks[i]
		if task.Name != targetTask {
			continue
		}
		fmt.Fprintf(out, "🚀 Starting task: %s\n", targetTask)

		// Handle branch condition check
		if task.BranchCondition != "" {
			selected := inv.SelectedBranch
			if selected != "" && selected != task.BranchCondition {
				fmt.Fprintf(out, "⏭️  Skipping task %s (branch %s not selected, selected: %s)\n",
					targetTask, task.BranchCondition, selected)
				log.Info("Skipped task", "task", targetTask, "branch", task.BranchCondition, "selected", selected)
				return OutcomeSkipped, nil
			}
		}

		res, err := task.run(ctx)
		if err != nil {
			fmt.Fprintf(out, "❌ Task failed: %v\n", err)
			return OutcomeFailed, &TaskError{Task: targetTask, Err: err}
		}

		// Handle branch selector task. A branch task without a selector
		// reports nothing, so downstream branches are not narrowed.
		if task.TaskType == TaskTypeBranch && isSelector(task.Body) {
			fmt.Fprintf(out, "🔀 Branch selected: %s\n", res.Branch)
			// Output branch selection for downstream tasks
			fmt.Fprintf(out, "%s=%s\n", workflowv1.BranchResultKey, res.Branch)
			log.Info("Evaluated branch", "task", targetTask, "branch", res.Branch)
			return OutcomeBranchEvaluated, nil
		}

		fmt.Fprintf(out, "✅ Task completed: %s\n", targetTask)
		log.Info("Executed task", "task", targetTask, "type", task.TaskType.String())
		return OutcomeExecuted, nil
	}
	return OutcomeNotFound, fmt.Errorf("%w: %s", ErrUnknownTask, targetTask)
}

// GetFuncName extracts function name from func pointer. It returns "" when fn
// is not a non-nil function.
func GetFuncName(fn interface{}) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	fullName := runtime.FuncForPC(v.Pointer()).Name()
	parts := strings.Split(fullName, ".")
	return strings.TrimSuffix(parts[len(parts)-1], "-fm")
}
