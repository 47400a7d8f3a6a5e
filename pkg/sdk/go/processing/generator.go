package processing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"

	workflowv1 "github.com/kination/nautikus/api/v1"
)

// ErrSourceUnavailable is returned when the DAG source text cannot be obtained.
var ErrSourceUnavailable = errors.New("could not read source file")

// Source supplies the program text embedded as every task's script.
type Source interface {
	Read() (string, error)
	// FileName is the base name the program must be saved under to run,
	// or "" when any name will do.
	FileName() string
}

type textSource struct {
	name string
	text string
}

func (s textSource) Read() (string, error) {
	if s.text == "" {
		return "", fmt.Errorf("%w: empty source text", ErrSourceUnavailable)
	}
	return s.text, nil
}

func (s textSource) FileName() string { return s.name }

type fileSource string

func (p fileSource) Read() (string, error) {
	content, err := os.ReadFile(string(p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return string(content), nil
}

func (p fileSource) FileName() string { return filepath.Base(string(p)) }

// SourceText uses text verbatim.
func SourceText(text string) Source { return textSource{text: text} }

// EmbeddedSource uses text read from fileName, typically a //go:embed of the
// DAG file itself. Workers save the script under fileName so the embed
// pattern resolves again.
func EmbeddedSource(fileName, text string) Source {
	src := textSource{text: text}
	if fileName != "" {
		src.name = filepath.Base(fileName)
	}
	return src
}

// SourceFile reads the DAG program from path when the manifest is built.
func SourceFile(path string) Source { return fileSource(path) }

// Format selects the manifest serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// BuildManifest creates the DAG manifest from task definitions
func BuildManifest(dagName string, src Source, tasks []TaskDef) (*workflowv1.Dag, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}
	scriptContent, err := src.Read()
	if err != nil {
		return nil, err
	}
	scriptFile := src.FileName()

	taskSpecs := make([]workflowv1.TaskSpec, 0, len(tasks))

	for _, task := range tasks {
		spec := workflowv1.TaskSpec{
			Name:         task.Name,
			Type:         workflowv1.TaskTypeGo,
			Script:       scriptContent,
			ScriptFile:   scriptFile,
			Dependencies: append([]string{}, task.Dependencies...),
			Env: map[string]string{
				workflowv1.EnvTaskName: task.Name,
			},
		}

		// Add branch metadata for conditional tasks
		if task.BranchCondition != "" {
			spec.Env[workflowv1.EnvBranchCondition] = task.BranchCondition
			spec.Env[workflowv1.EnvConditionSource] = task.ConditionSource
		}

		switch task.TaskType {
		case TaskTypeBranch:
			spec.Env[workflowv1.EnvTaskType] = workflowv1.TaskKindBranch
			if len(task.BranchTargets) > 0 {
				spec.Env[workflowv1.EnvBranchTargets] = strings.Join(task.BranchTargets, workflowv1.BranchTargetSeparator)
			}
		case TaskTypeJoin:
			spec.Env[workflowv1.EnvTaskType] = workflowv1.TaskKindJoin
		}

		taskSpecs = append(taskSpecs, spec)
	}

	return &workflowv1.Dag{
		TypeMeta: metav1.TypeMeta{
			APIVersion: workflowv1.GroupVersion.String(),
			Kind:       workflowv1.DagKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: dagName,
		},
		Spec: workflowv1.DagSpec{
			Tasks: taskSpecs,
		},
	}, nil
}

// EncodeManifest writes dag as indented JSON or YAML. Only apiVersion, kind,
// metadata.name and spec are emitted.
func EncodeManifest(w io.Writer, dag *workflowv1.Dag, format Format) error {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(dag)
	if err != nil {
		return fmt.Errorf("failed to convert DAG: %w", err)
	}
	unstructured.RemoveNestedField(obj, "status")
	unstructured.RemoveNestedField(obj, "metadata", "creationTimestamp")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(obj); err != nil {
		return fmt.Errorf("error marshaling DAG: %w", err)
	}

	out := buf.Bytes()
	switch format {
	case FormatJSON, "":
	case FormatYAML:
		if out, err = yaml.JSONToYAML(out); err != nil {
			return fmt.Errorf("error converting DAG to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported manifest format: %q", format)
	}

	_, err = w.Write(out)
	return err
}

// GenerateManifest builds the manifest and writes it to w. Nothing is written
// when the source cannot be read.
func GenerateManifest(w io.Writer, dagName string, src Source, tasks []TaskDef, format Format) error {
	dag, err := BuildManifest(dagName, src, tasks)
	if err != nil {
		return err
	}
	log.V(1).Info("Generated manifest", "dag", dagName, "tasks", len(dag.Spec.Tasks))
	return EncodeManifest(w, dag, format)
}
