// Package sdk is the Go SDK for defining Nautikus DAGs.
//
// A DAG program builds its tasks with DAGBuilder and calls Serve. Outside a
// worker it prints the DAG manifest; inside a worker (NAUTIKUS_TASK_NAME set)
// it runs the named task.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kination/nautikus/pkg/sdk/go/processing"
)

var (
	// ErrDuplicateTask is recorded when a task name is added twice.
	ErrDuplicateTask = errors.New("duplicate task name")
	// ErrEmptyTaskName is recorded when a task is added without a name.
	ErrEmptyTaskName = errors.New("empty task name")
	// ErrUnnamedFunc is returned by the legacy Serve for functions that
	// cannot name a task: nil or anonymous ones.
	ErrUnnamedFunc = errors.New("function cannot name a task")
)

// TaskFunc is the body of a simple or join task.
type TaskFunc func(ctx context.Context) error

// BranchFunc returns the name of the branch to run.
type BranchFunc func(ctx context.Context) (string, error)

// Func adapts a plain function to a TaskFunc.
func Func(fn func()) TaskFunc {
	if fn == nil {
		return nil
	}
	return func(context.Context) error {
		fn()
		return nil
	}
}

// BranchOf adapts a plain selector to a BranchFunc.
func BranchOf(fn func() string) BranchFunc {
	if fn == nil {
		return nil
	}
	return func(context.Context) (string, error) {
		return fn(), nil
	}
}

// Task represents a unit of work in a DAG
type Task struct {
	Name         string
	Fn           TaskFunc
	Dependencies []string
}

// Option configures a DAGBuilder.
type Option func(*DAGBuilder)

// WithSource embeds text as the manifest script. Prefer WithEmbeddedSource
// when text is a //go:embed of the DAG file itself.
func WithSource(text string) Option {
	return func(b *DAGBuilder) { b.source = processing.SourceText(text) }
}

// WithEmbeddedSource embeds text read from fileName, usually the DAG file
// embedding itself. Workers save the script under the same name.
func WithEmbeddedSource(fileName, text string) Option {
	return func(b *DAGBuilder) { b.source = processing.EmbeddedSource(fileName, text) }
}

// WithSourceFile reads the manifest script from path at compile time.
func WithSourceFile(path string) Option {
	return func(b *DAGBuilder) { b.source = processing.SourceFile(path) }
}

// WithOutput redirects manifest and progress output. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(b *DAGBuilder) { b.out = w }
}

// WithFormat selects the manifest serialization used by Run.
func WithFormat(format processing.Format) Option {
	return func(b *DAGBuilder) { b.format = format }
}

// DAGBuilder provides fluent API for building DAGs
type DAGBuilder struct {
	name   string
	tasks  []processing.TaskDef
	names  map[string]struct{}
	err    error
	source processing.Source
	out    io.Writer
	format processing.Format
}

// NewDAG creates a new DAG builder
func NewDAG(name string, opts ...Option) *DAGBuilder {
	b := &DAGBuilder{
		name:   name,
		names:  make(map[string]struct{}),
		out:    os.Stdout,
		format: processing.FormatJSON,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the DAG name.
func (b *DAGBuilder) Name() string {
	return b.name
}

// Tasks returns a copy of the accumulated task definitions in insertion order.
func (b *DAGBuilder) Tasks() []processing.TaskDef {
	return append([]processing.TaskDef(nil), b.tasks...)
}

// Err returns the first error recorded while adding tasks.
func (b *DAGBuilder) Err() error {
	return b.err
}

// AddTask adds a simple task with optional dependencies
func (b *DAGBuilder) AddTask(name string, fn TaskFunc, deps ...string) *DAGBuilder {
	b.append(processing.TaskDef{
		Name:         name,
		Body:         processing.Action(fn),
		Dependencies: withPrefix("", deps),
		TaskType:     processing.TaskTypeSimple,
	})
	return b
}

// AddSequential adds tasks that run sequentially (each depends on previous)
func (b *DAGBuilder) AddSequential(tasks ...Task) *DAGBuilder {
	var prevName string
	for _, t := range tasks {
		b.append(processing.TaskDef{
			Name:         t.Name,
			Body:         processing.Action(t.Fn),
			Dependencies: withPrefix(prevName, t.Dependencies),
			TaskType:     processing.TaskTypeSimple,
		})
		prevName = t.Name
	}
	return b
}

// AddParallel adds tasks that run in parallel (same dependencies). An empty
// afterTask adds no shared prerequisite.
func (b *DAGBuilder) AddParallel(afterTask string, tasks ...Task) *DAGBuilder {
	for _, t := range tasks {
		b.append(processing.TaskDef{
			Name:         t.Name,
			Body:         processing.Action(t.Fn),
			Dependencies: withPrefix(afterTask, t.Dependencies),
			TaskType:     processing.TaskTypeSimple,
		})
	}
	return b
}

// AddBranch adds conditional branching (like Airflow's BranchPythonOperator).
// The condition task determines which branch to execute and runs after deps.
// Branches are added in lexicographic order of their names.
func (b *DAGBuilder) AddBranch(conditionTaskName string, conditionFn BranchFunc, branches map[string][]Task, deps ...string) *DAGBuilder {
	branchNames := getBranchNames(branches)

	// Add the condition task that returns which branch to take
	b.append(processing.TaskDef{
		Name:          conditionTaskName,
		Body:          processing.Selector(conditionFn),
		Dependencies:  withPrefix("", deps),
		TaskType:      processing.TaskTypeBranch,
		BranchTargets: branchNames,
	})

	// Add all branch tasks with skip conditions
	for _, branchName := range branchNames {
		prevName := conditionTaskName
		for _, t := range branches[branchName] {
			b.append(processing.TaskDef{
				Name:            t.Name,
				Body:            processing.Action(t.Fn),
				Dependencies:    withPrefix(prevName, t.Dependencies),
				TaskType:        processing.TaskTypeSimple,
				BranchCondition: branchName,
				ConditionSource: conditionTaskName,
			})
			prevName = t.Name
		}
	}
	return b
}

// AddJoin adds a join task that waits for any of the specified tasks
func (b *DAGBuilder) AddJoin(name string, fn TaskFunc, waitFor ...string) *DAGBuilder {
	b.append(processing.TaskDef{
		Name:         name,
		Body:         processing.Action(fn),
		Dependencies: withPrefix("", waitFor),
		TaskType:     processing.TaskTypeJoin,
	})
	return b
}

func (b *DAGBuilder) append(task processing.TaskDef) {
	if b.err == nil {
		if task.Name == "" {
			b.err = ErrEmptyTaskName
		} else if _, exists := b.names[task.Name]; exists {
			b.err = fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
		}
	}
	b.names[task.Name] = struct{}{}
	b.tasks = append(b.tasks, task)
}

// withPrefix returns a fresh slice holding first (if set) followed by deps.
func withPrefix(first string, deps []string) []string {
	out := make([]string, 0, len(deps)+1)
	if first != "" {
		out = append(out, first)
	}
	return append(out, deps...)
}

func getBranchNames(branches map[string][]Task) []string {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
