package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	workflowv1 "github.com/kination/nautikus/api/v1"
	"github.com/kination/nautikus/pkg/sdk/go/processing"
)

const dagSource = "package main\n\n// sample dag\nfunc main() {}\n"

func depsOf(b *DAGBuilder) map[string][]string {
	out := make(map[string][]string)
	for _, t := range b.Tasks() {
		out[t.Name] = t.Dependencies
	}
	return out
}

func namesOf(b *DAGBuilder) []string {
	var names []string
	for _, t := range b.Tasks() {
		names = append(names, t.Name)
	}
	return names
}

var _ = Describe("DAGBuilder", func() {
	noop := Func(func() {})

	Describe("AddTask", func() {
		It("appends a simple task with explicit dependencies", func() {
			b := NewDAG("d").AddTask("a", noop).AddTask("b", noop, "a")

			tasks := b.Tasks()
			Expect(tasks).To(HaveLen(2))
			Expect(tasks[0].TaskType).To(Equal(processing.TaskTypeSimple))
			Expect(tasks[0].Dependencies).To(BeEmpty())
			Expect(tasks[1].Dependencies).To(Equal([]string{"a"}))
			Expect(b.Err()).NotTo(HaveOccurred())
		})

		It("does not alias the caller's dependency slice", func() {
			deps := []string{"x", "y"}
			b := NewDAG("d").AddTask("a", noop, deps...)
			deps[0] = "changed"

			Expect(b.Tasks()[0].Dependencies).To(Equal([]string{"x", "y"}))
		})
	})

	Describe("AddSequential", func() {
		It("chains each task to the previous one plus its own deps", func() {
			b := NewDAG("d").AddSequential(
				Task{Name: "t1", Fn: noop, Dependencies: []string{"setup"}},
				Task{Name: "t2", Fn: noop},
				Task{Name: "t3", Fn: noop, Dependencies: []string{"extra"}},
			)

			deps := depsOf(b)
			Expect(deps["t1"]).To(Equal([]string{"setup"}))
			Expect(deps["t2"]).To(Equal([]string{"t1"}))
			Expect(deps["t3"]).To(Equal([]string{"t2", "extra"}))
		})

		It("is a no-op chain for zero or one task", func() {
			Expect(NewDAG("d").AddSequential().Tasks()).To(BeEmpty())

			b := NewDAG("d").AddSequential(Task{Name: "only", Fn: noop})
			Expect(b.Tasks()[0].Dependencies).To(BeEmpty())
		})
	})

	Describe("AddParallel", func() {
		It("makes every task depend on the prerequisite and not on each other", func() {
			b := NewDAG("d").
				AddTask("start", noop).
				AddParallel("start",
					Task{Name: "p1", Fn: noop},
					Task{Name: "p2", Fn: noop, Dependencies: []string{"cfg"}},
					Task{Name: "p3", Fn: noop},
				)

			deps := depsOf(b)
			Expect(deps["p1"]).To(Equal([]string{"start"}))
			Expect(deps["p2"]).To(Equal([]string{"start", "cfg"}))
			Expect(deps["p3"]).To(Equal([]string{"start"}))
			for _, p := range []string{"p1", "p2", "p3"} {
				for _, other := range []string{"p1", "p2", "p3"} {
					Expect(deps[p]).NotTo(ContainElement(other))
				}
			}
		})

		It("adds no prerequisite when afterTask is empty", func() {
			b := NewDAG("d").AddParallel("", Task{Name: "p1", Fn: noop}, Task{Name: "p2", Fn: noop})

			deps := depsOf(b)
			Expect(deps["p1"]).To(BeEmpty())
			Expect(deps["p2"]).To(BeEmpty())
		})
	})

	Describe("AddBranch", func() {
		var b *DAGBuilder

		BeforeEach(func() {
			b = NewDAG("d").
				AddTask("extract", noop).
				AddBranch("check", BranchOf(func() string { return "small" }), map[string][]Task{
					"small": {{Name: "s1", Fn: noop}, {Name: "s2", Fn: noop}},
					"large": {{Name: "l1", Fn: noop, Dependencies: []string{"extract"}}, {Name: "l2", Fn: noop}},
				})
		})

		It("adds the selector followed by branches in name order", func() {
			Expect(namesOf(b)).To(Equal([]string{"extract", "check", "l1", "l2", "s1", "s2"}))

			selector := b.Tasks()[1]
			Expect(selector.TaskType).To(Equal(processing.TaskTypeBranch))
			Expect(selector.BranchTargets).To(Equal([]string{"large", "small"}))
		})

		It("wires the first task of each branch to the selector and chains the rest", func() {
			deps := depsOf(b)
			Expect(deps["l1"]).To(Equal([]string{"check", "extract"}))
			Expect(deps["l2"]).To(Equal([]string{"l1"}))
			Expect(deps["s1"]).To(Equal([]string{"check"}))
			Expect(deps["s2"]).To(Equal([]string{"s1"}))
		})

		It("runs the selector after its own prerequisites", func() {
			Expect(b.Tasks()[1].Dependencies).To(BeEmpty())

			withDeps := NewDAG("d").
				AddTask("extract", noop).
				AddBranch("check", BranchOf(func() string { return "only" }), map[string][]Task{
					"only": {{Name: "o1", Fn: noop}},
				}, "extract")

			deps := depsOf(withDeps)
			Expect(deps["check"]).To(Equal([]string{"extract"}))
			Expect(deps["o1"]).To(Equal([]string{"check"}))
		})

		It("keeps branches disjoint", func() {
			deps := depsOf(b)
			for _, large := range []string{"l1", "l2"} {
				Expect(deps[large]).NotTo(ContainElement(BeElementOf("s1", "s2")))
			}
			for _, small := range []string{"s1", "s2"} {
				Expect(deps[small]).NotTo(ContainElement(BeElementOf("l1", "l2")))
			}
		})

		It("tags branch tasks with their condition and source", func() {
			want := map[string]string{"l1": "large", "l2": "large", "s1": "small", "s2": "small"}
			for _, t := range b.Tasks()[2:] {
				Expect(t.ConditionSource).To(Equal("check"))
				Expect(t.BranchCondition).To(Equal(want[t.Name]))
				Expect(t.TaskType).To(Equal(processing.TaskTypeSimple))
			}
			Expect(b.Tasks()[0].BranchCondition).To(BeEmpty())
		})
	})

	Describe("AddJoin", func() {
		It("depends exactly on the awaited tasks", func() {
			b := NewDAG("d").AddJoin("merge", noop, "l2", "s2")

			task := b.Tasks()[0]
			Expect(task.TaskType).To(Equal(processing.TaskTypeJoin))
			Expect(task.Dependencies).To(Equal([]string{"l2", "s2"}))
		})
	})

	Describe("name validation", func() {
		It("records duplicate names", func() {
			b := NewDAG("d").AddTask("a", noop).AddTask("a", noop)
			Expect(errors.Is(b.Err(), ErrDuplicateTask)).To(BeTrue())
			Expect(b.Err().Error()).To(ContainSubstring("a"))
		})

		It("records empty names", func() {
			b := NewDAG("d").AddTask("", noop)
			Expect(b.Err()).To(MatchError(ErrEmptyTaskName))
		})

		It("keeps the first error", func() {
			b := NewDAG("d").AddTask("", noop).AddTask("x", noop).AddTask("x", noop)
			Expect(b.Err()).To(MatchError(ErrEmptyTaskName))
		})

		It("refuses to run an invalid DAG", func() {
			var out bytes.Buffer
			b := NewDAG("d", WithSource(dagSource), WithOutput(&out)).AddTask("a", noop).AddTask("a", noop)

			err := b.Run(context.Background(), processing.CompileInvocation())
			Expect(errors.Is(err, ErrDuplicateTask)).To(BeTrue())
			Expect(out.Len()).To(BeZero())
		})
	})
})

var _ = Describe("Run", func() {
	var (
		out   bytes.Buffer
		calls map[string]int
		b     *DAGBuilder
	)

	track := func(name string) TaskFunc {
		return func(context.Context) error {
			calls[name]++
			return nil
		}
	}

	BeforeEach(func() {
		out.Reset()
		calls = make(map[string]int)
		b = NewDAG("etl", WithSource(dagSource), WithOutput(&out)).
			AddTask("extract", track("extract")).
			AddBranch("check", func(context.Context) (string, error) {
				calls["check"]++
				return "high", nil
			}, map[string][]Task{
				"high": {{Name: "process_high", Fn: track("process_high")}},
				"low":  {{Name: "process_low", Fn: track("process_low")}},
			}).
			AddJoin("merge", track("merge"), "process_high", "process_low").
			AddTask("fail", func(context.Context) error { return errors.New("boom") }, "merge")
	})

	Context("in compile mode", func() {
		It("writes only the manifest", func() {
			Expect(b.Run(context.Background(), processing.CompileInvocation())).To(Succeed())

			var dag workflowv1.Dag
			Expect(json.Unmarshal(out.Bytes(), &dag)).To(Succeed())
			Expect(dag.Name).To(Equal("etl"))
			Expect(dag.Kind).To(Equal("Dag"))
			Expect(dag.Spec.Tasks).To(HaveLen(6))
			Expect(calls).To(BeEmpty())
		})

		It("is deterministic", func() {
			Expect(b.Run(context.Background(), processing.CompileInvocation())).To(Succeed())
			first := out.String()
			out.Reset()
			Expect(b.Run(context.Background(), processing.CompileInvocation())).To(Succeed())
			Expect(out.String()).To(Equal(first))
		})

		It("emits YAML when asked", func() {
			y := NewDAG("etl", WithSource(dagSource), WithOutput(&out), WithFormat(processing.FormatYAML)).AddTask("a", nil)
			Expect(y.Run(context.Background(), processing.CompileInvocation())).To(Succeed())
			Expect(out.String()).To(HavePrefix("apiVersion: workflow.nautikus.io/v1"))
		})

		It("fails without a source", func() {
			nb := NewDAG("etl", WithOutput(&out)).AddTask("a", nil)
			err := nb.Run(context.Background(), processing.CompileInvocation())
			Expect(errors.Is(err, processing.ErrSourceUnavailable)).To(BeTrue())
			Expect(out.Len()).To(BeZero())
		})
	})

	Context("in dispatch mode", func() {
		It("runs only the target task", func() {
			Expect(b.Run(context.Background(), processing.DispatchInvocation("extract", ""))).To(Succeed())
			Expect(calls).To(Equal(map[string]int{"extract": 1}))
		})

		It("skips a task of an unselected branch", func() {
			Expect(b.Run(context.Background(), processing.DispatchInvocation("process_low", "high"))).To(Succeed())
			Expect(calls).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("Skipping task process_low"))
		})

		It("reports the selector result", func() {
			Expect(b.Run(context.Background(), processing.DispatchInvocation("check", ""))).To(Succeed())
			Expect(calls).To(Equal(map[string]int{"check": 1}))
			Expect(strings.Count(out.String(), "NAUTIKUS_BRANCH_RESULT=")).To(Equal(1))
			Expect(out.String()).To(ContainSubstring("NAUTIKUS_BRANCH_RESULT=high\n"))
		})

		It("fails on an unknown task", func() {
			err := b.Run(context.Background(), processing.DispatchInvocation("ghost", ""))
			Expect(errors.Is(err, processing.ErrUnknownTask)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("ghost"))
		})

		It("surfaces action failures", func() {
			err := b.Run(context.Background(), processing.DispatchInvocation("fail", ""))
			var taskErr *processing.TaskError
			Expect(errors.As(err, &taskErr)).To(BeTrue())
			Expect(taskErr.Task).To(Equal("fail"))
			Expect(err).To(MatchError(ContainSubstring("boom")))
		})
	})
})
