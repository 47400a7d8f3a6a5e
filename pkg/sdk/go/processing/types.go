package processing

import (
	"context"
	"fmt"
)

// TaskType defines the execution behavior of a task
type TaskType int

const (
	TaskTypeSimple TaskType = iota // Normal task
	TaskTypeBranch                 // Conditional branch selector
	TaskTypeJoin                   // Waits for any upstream branch
)

func (t TaskType) String() string {
	switch t {
	case TaskTypeSimple:
		return "simple"
	case TaskTypeBranch:
		return "branch"
	case TaskTypeJoin:
		return "join"
	}
	return fmt.Sprintf("TaskType(%d)", int(t))
}

// Result is what a Body reports back to the dispatcher.
type Result struct {
	// Branch is the branch chosen by a selector body. Empty for other bodies.
	Branch string
}

// Body is the executable part of a task. The set of implementations is
// closed: use Noop, Action or Selector to build one.
type Body interface {
	Run(ctx context.Context) (Result, error)
	body()
}

type noopBody struct{}

func (noopBody) Run(context.Context) (Result, error) { return Result{}, nil }
func (noopBody) body()                               {}

type actionBody struct {
	fn func(ctx context.Context) error
}

func (b actionBody) Run(ctx context.Context) (Result, error) {
	return Result{}, b.fn(ctx)
}
func (actionBody) body() {}

type selectorBody struct {
	fn func(ctx context.Context) (string, error)
}

func (b selectorBody) Run(ctx context.Context) (Result, error) {
	branch, err := b.fn(ctx)
	return Result{Branch: branch}, err
}
func (selectorBody) body() {}

// isSelector reports whether b was built by Selector with a non-nil function.
func isSelector(b Body) bool {
	_, ok := b.(selectorBody)
	return ok
}

// Noop returns a body that does nothing.
func Noop() Body { return noopBody{} }

// Action wraps a user function. A nil fn yields Noop.
func Action(fn func(ctx context.Context) error) Body {
	if fn == nil {
		return noopBody{}
	}
	return actionBody{fn: fn}
}

// Selector wraps a branch selector function. A nil fn yields Noop.
func Selector(fn func(ctx context.Context) (string, error)) Body {
	if fn == nil {
		return noopBody{}
	}
	return selectorBody{fn: fn}
}

// TaskDef is the internal representation of a task for processing
type TaskDef struct {
	Name            string
	Body            Body
	Dependencies    []string
	TaskType        TaskType
	BranchTargets   []string // For branch tasks: possible branch names
	BranchCondition string   // For conditional tasks: which branch this belongs to
	ConditionSource string   // For conditional tasks: which branch task determines execution
}

// run executes the body, treating a missing one as Noop.
func (t *TaskDef) run(ctx context.Context) (res Result, err error) {
	if t.Body == nil {
		return Result{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Body.Run(ctx)
}

// Mode tells the entry point what a process invocation should do.
type Mode int

const (
	ModeCompile Mode = iota
	ModeDispatch
)

func (m Mode) String() string {
	if m == ModeDispatch {
		return "dispatch"
	}
	return "compile"
}

// Invocation describes one process invocation of a DAG program.
type Invocation struct {
	Mode           Mode
	TaskName       string
	SelectedBranch string
}

// CompileInvocation returns an invocation that emits the manifest.
func CompileInvocation() Invocation {
	return Invocation{Mode: ModeCompile}
}

// DispatchInvocation returns an invocation that runs taskName. selectedBranch
// may be empty when no upstream selector has reported yet.
func DispatchInvocation(taskName, selectedBranch string) Invocation {
	return Invocation{Mode: ModeDispatch, TaskName: taskName, SelectedBranch: selectedBranch}
}
