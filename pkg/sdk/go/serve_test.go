package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"

	workflowv1 "github.com/kination/nautikus/api/v1"
)

// serveHelperEnv makes TestServeHelper run a DAG program instead of returning.
const serveHelperEnv = "SDK_SERVE_HELPER"

func legacyExtract() {}

func legacyLoad() {}

// TestServeHelper is the DAG program the Serve specs start as a subprocess.
func TestServeHelper(t *testing.T) {
	switch os.Getenv(serveHelperEnv) {
	case "builder":
		NewDAG("etl", WithSource(dagSource)).
			AddTask("extract", Func(func() { fmt.Println("extracting") })).
			AddBranch("check", BranchOf(func() string { return "high" }), map[string][]Task{
				"high": {{Name: "process_high", Fn: Func(func() {})}},
				"low":  {{Name: "process_low", Fn: Func(func() {})}},
			}, "extract").
			AddTask("fail", func(context.Context) error { return errors.New("boom") }, "extract").
			Serve()
	case "legacy":
		Serve("legacy", legacyExtract, legacyLoad)
	default:
		return
	}
	os.Exit(0)
}

// startProgram runs TestServeHelper in mode with env added to a process
// environment stripped of NAUTIKUS_ variables.
func startProgram(mode string, env ...string) *gexec.Session {
	cmd := exec.Command(os.Args[0], "-test.run=^TestServeHelper$")
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "NAUTIKUS_") {
			cmd.Env = append(cmd.Env, kv)
		}
	}
	cmd.Env = append(cmd.Env, serveHelperEnv+"="+mode)
	cmd.Env = append(cmd.Env, env...)

	session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
	Expect(err).NotTo(HaveOccurred())
	Eventually(session, "60s").Should(gexec.Exit())
	return session
}

var _ = Describe("Serve", func() {
	It("prints the manifest when no task is selected", func() {
		session := startProgram("builder")

		Expect(session.ExitCode()).To(Equal(0))
		var dag workflowv1.Dag
		Expect(json.Unmarshal(session.Out.Contents(), &dag)).To(Succeed())
		Expect(dag.Name).To(Equal("etl"))
		Expect(dag.Task("check").Dependencies).To(Equal([]string{"extract"}))
		Expect(string(session.Out.Contents())).NotTo(ContainSubstring("Starting task"))
	})

	It("honours the output format from the environment", func() {
		session := startProgram("builder", "NAUTIKUS_OUTPUT_FORMAT=yaml")

		Expect(session.ExitCode()).To(Equal(0))
		Expect(string(session.Out.Contents())).To(HavePrefix("apiVersion: workflow.nautikus.io/v1\n"))
	})

	DescribeTable("dispatching a task",
		func(env []string, exitCode int, stdout, stderr string) {
			session := startProgram("builder", env...)

			Expect(session.ExitCode()).To(Equal(exitCode))
			Expect(string(session.Out.Contents())).To(ContainSubstring(stdout))
			Expect(string(session.Out.Contents())).NotTo(ContainSubstring("apiVersion"))
			Expect(string(session.Err.Contents())).To(ContainSubstring(stderr))
		},
		Entry("runs a simple task",
			[]string{"NAUTIKUS_TASK_NAME=extract"}, 0, "extracting", ""),
		Entry("skips a task of an unselected branch",
			[]string{"NAUTIKUS_TASK_NAME=process_low", "NAUTIKUS_SELECTED_BRANCH=high"}, 0, "Skipping task process_low", ""),
		Entry("runs a task of the selected branch",
			[]string{"NAUTIKUS_TASK_NAME=process_high", "NAUTIKUS_SELECTED_BRANCH=high"}, 0, "Task completed: process_high", ""),
		Entry("reports the selected branch",
			[]string{"NAUTIKUS_TASK_NAME=check"}, 0, "NAUTIKUS_BRANCH_RESULT=high\n", ""),
		Entry("fails on an unknown task",
			[]string{"NAUTIKUS_TASK_NAME=ghost"}, 1, "", "❌ Error: unknown task: ghost"),
		Entry("fails when the action fails",
			[]string{"NAUTIKUS_TASK_NAME=fail"}, 1, "Task failed: boom", "boom"),
		Entry("fails on invalid configuration",
			[]string{"NAUTIKUS_TASK_NAME=extract", "NAUTIKUS_OUTPUT_FORMAT=toml"}, 1, "", "output_format"),
	)

	It("compiles the legacy function chain with the calling file as script", func() {
		session := startProgram("legacy")

		Expect(session.ExitCode()).To(Equal(0))
		var dag workflowv1.Dag
		Expect(json.Unmarshal(session.Out.Contents(), &dag)).To(Succeed())
		Expect(dag.Spec.Tasks).To(HaveLen(2))
		Expect(dag.Task("legacyLoad").Dependencies).To(Equal([]string{"legacyExtract"}))
		Expect(dag.Spec.Tasks[0].ScriptFile).To(Equal("serve_test.go"))
		Expect(dag.Spec.Tasks[0].Script).To(ContainSubstring("func TestServeHelper"))
	})
})

var _ = Describe("chainFuncs", func() {
	It("chains named functions in order", func() {
		b, err := chainFuncs(NewDAG("legacy"), []func(){legacyExtract, legacyLoad})
		Expect(err).NotTo(HaveOccurred())

		Expect(namesOf(b)).To(Equal([]string{"legacyExtract", "legacyLoad"}))
		deps := depsOf(b)
		Expect(deps["legacyExtract"]).To(BeEmpty())
		Expect(deps["legacyLoad"]).To(Equal([]string{"legacyExtract"}))
	})

	It("rejects nil functions", func() {
		_, err := chainFuncs(NewDAG("legacy"), []func(){legacyExtract, nil})
		Expect(err).To(MatchError(ErrUnnamedFunc))
		Expect(err.Error()).To(ContainSubstring("#1"))
	})

	It("rejects anonymous functions", func() {
		_, err := chainFuncs(NewDAG("legacy"), []func(){legacyExtract, func() {}})
		Expect(err).To(MatchError(ErrUnnamedFunc))
		Expect(err.Error()).To(ContainSubstring("anonymous"))
	})
})
