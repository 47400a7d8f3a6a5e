// Package pod provides the PodExecutor that describes tasks as Kubernetes Pods.
package pod

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/serializer/json"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	workflowv1 "github.com/kination/nautikus/api/v1"
	"github.com/kination/nautikus/internal/executor"
)

const (
	defaultBashImage   = "ubuntu:latest"
	defaultPythonImage = "python:3.9-slim"
	defaultGoImage     = "golang:1.24-alpine"

	// scriptDelimiter terminates the heredoc that writes a Go task's source.
	scriptDelimiter = "NAUTIKUS_SCRIPT_EOF"

	// defaultScriptFile is used when the manifest does not name the script file.
	defaultScriptFile = "main.go"
)

var goFileName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*\.go$`)

// Executor implements the executor.Executor interface for Pod-based tasks
type Executor struct {
	executor.BaseExecutor
}

// New creates a new PodExecutor
func New(cfg executor.ExecutorConfig) *Executor {
	return &Executor{
		BaseExecutor: executor.NewBaseExecutor(cfg),
	}
}

// Type returns the task types this executor handles
func (e *Executor) Type() []workflowv1.TaskType {
	return []workflowv1.TaskType{
		workflowv1.TaskTypeBash,
		workflowv1.TaskTypePython,
		workflowv1.TaskTypeGo,
	}
}

// BuildPod converts TaskSpec to Pod
func (e *Executor) BuildPod(dag *workflowv1.Dag, task *workflowv1.TaskSpec) (*corev1.Pod, error) {
	image, command, args, err := e.getContainerSpec(task)
	if err != nil {
		return nil, err
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      getPodName(dag.Name, task.Name),
			Namespace: e.Namespace(dag),
			Labels: map[string]string{
				"dag":                       dag.Name,
				"task":                      task.Name,
				"app.kubernetes.io/name":    "nautikus",
				"app.kubernetes.io/part-of": "nautikus",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "task-runner",
					Image:   image,
					Command: command,
					Args:    args,
					Env:     buildEnv(task.Env),
				},
			},
		},
	}, nil
}

// getContainerSpec returns image, command, and args based on task type
func (e *Executor) getContainerSpec(task *workflowv1.TaskSpec) (string, []string, []string, error) {
	var image string
	var command []string
	var args []string

	switch task.Type {
	case workflowv1.TaskTypeBash:
		image = e.Image(task.Type, defaultBashImage)
		command = []string{"/bin/bash", "-c"}
		args = []string{task.Command}

	case workflowv1.TaskTypePython:
		image = e.Image(task.Type, defaultPythonImage)
		command = []string{"python", "-c"}
		args = []string{task.Script}

	case workflowv1.TaskTypeGo:
		image = e.Image(task.Type, defaultGoImage)
		command = []string{"/bin/sh", "-c"}
		args = []string{goRunScript(scriptFileName(task.ScriptFile), task.Script)}

	default:
		return "", nil, nil, fmt.Errorf("unsupported task type: %s", task.Type)
	}

	// Use custom image if specified
	if task.Image != "" {
		image = task.Image
	}

	return image, command, args, nil
}

// goRunScript writes the DAG program to fileName and runs it. The task's env
// makes the program dispatch instead of compiling.
func goRunScript(fileName, script string) string {
	return fmt.Sprintf("cat > %[3]s <<'%[1]s'\n%[2]s\n%[1]s\ngo mod init dag && go mod tidy && go run %[3]s",
		scriptDelimiter, script, fileName)
}

// scriptFileName returns name when it is a plain, shell-safe Go file name,
// and defaultScriptFile otherwise.
func scriptFileName(name string) string {
	if !goFileName.MatchString(name) || strings.HasSuffix(name, "_test.go") {
		return defaultScriptFile
	}
	return name
}

// buildEnv converts map to EnvVar slice, sorted by name
func buildEnv(envMap map[string]string) []corev1.EnvVar {
	names := make([]string, 0, len(envMap))
	for k := range envMap {
		names = append(names, k)
	}
	sort.Strings(names)

	envVars := make([]corev1.EnvVar, 0, len(names))
	for _, k := range names {
		envVars = append(envVars, corev1.EnvVar{
			Name:  k,
			Value: envMap[k],
		})
	}
	return envVars
}

// getPodName generates the pod name from dag and task names
func getPodName(dagName, taskName string) string {
	return fmt.Sprintf("%s-%s", dagName, taskName)
}

// Encode writes pods as a multi-document YAML stream.
func Encode(w io.Writer, pods ...*corev1.Pod) error {
	serializer := json.NewSerializerWithOptions(json.DefaultMetaFactory, clientgoscheme.Scheme, clientgoscheme.Scheme,
		json.SerializerOptions{Yaml: true})
	encoder := clientgoscheme.Codecs.EncoderForVersion(serializer, corev1.SchemeGroupVersion)

	for i, pod := range pods {
		if i > 0 {
			if _, err := fmt.Fprintln(w, "---"); err != nil {
				return err
			}
		}
		if err := encoder.Encode(pod, w); err != nil {
			return fmt.Errorf("failed to encode pod %s: %w", pod.Name, err)
		}
	}
	return nil
}
