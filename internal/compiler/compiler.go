// Package compiler runs DAG programs in compile mode and stores the
// manifests they print.
package compiler

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	ctrl "sigs.k8s.io/controller-runtime"
	k8syaml "sigs.k8s.io/yaml"

	workflowv1 "github.com/kination/nautikus/api/v1"
	"github.com/kination/nautikus/pkg/sdk/go/processing"
)

var log = ctrl.Log.WithName("compiler")

// execCommand builds the process that runs a DAG program.
var execCommand = exec.Command

// DagSource is one entry of the compiler config: a named directory that is
// scanned for DAG programs.
type DagSource struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// LoadSources reads the list of DAG source locations.
func LoadSources(configPath string) ([]DagSource, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var sources []DagSource
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	for i, src := range sources {
		if src.Location == "" {
			return nil, fmt.Errorf("source #%d (%s) has no location", i, src.Name)
		}
	}
	return sources, nil
}

// CompileDags runs every DAG program found under the configured sources and
// writes one YAML manifest per program into outputDir.
func CompileDags(configPath string, outputDir string) error {
	sources, err := LoadSources(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	for _, src := range sources {
		fmt.Printf("📂 Scanning source: %s (%s)\n", src.Name, src.Location)

		err := filepath.WalkDir(src.Location, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			switch filepath.Ext(d.Name()) {
			case ".py":
				return generateManifest("python3", []string{path}, path, outputDir)
			case ".go":
				if strings.HasSuffix(d.Name(), "_test.go") {
					return nil
				}
				return generateManifest("go", []string{"run", path}, path, outputDir)
			}
			return nil
		})

		if err != nil {
			return fmt.Errorf("walk error in %s: %w", src.Location, err)
		}
	}
	return nil
}

// generateManifest runs the DAG program (py/go) in compile mode and saves
// its manifest as YAML.
func generateManifest(cmdName string, cmdArgs []string, srcPath string, outputDir string) error {
	cmd := execCommand(cmdName, cmdArgs...)
	cmd.Env = compileEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("execution failed for %s\n[Stderr]: %s", srcPath, stderr.String())
	}

	output := stdout.Bytes()
	if len(bytes.TrimSpace(output)) == 0 {
		log.Info("Program produced no output, skipping", "source", srcPath)
		fmt.Printf("⚠️  Warning: %s produced no output. Skipping.\n", srcPath)
		return nil
	}

	dag, err := DecodeManifest(output)
	if err != nil {
		return fmt.Errorf("invalid manifest from %s: %w", srcPath, err)
	}

	// example.py -> example.yaml
	baseName := filepath.Base(srcPath)
	fileName := strings.TrimSuffix(baseName, filepath.Ext(baseName)) + ".yaml"
	savePath := filepath.Join(outputDir, fileName)

	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	defer f.Close()

	if err := processing.EncodeManifest(f, dag, processing.FormatYAML); err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	fmt.Printf("   ✨ Compiled: %s -> %s (%d tasks)\n", baseName, fileName, len(dag.Spec.Tasks))
	return nil
}

// compileEnv drops the dispatch signals so the program always compiles.
func compileEnv(environ []string) []string {
	env := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, workflowv1.EnvTaskName+"=") || strings.HasPrefix(kv, workflowv1.EnvSelectedBranch+"=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// DecodeManifest parses a JSON or YAML DAG manifest.
func DecodeManifest(data []byte) (*workflowv1.Dag, error) {
	var dag workflowv1.Dag
	if err := k8syaml.UnmarshalStrict(data, &dag); err != nil {
		return nil, fmt.Errorf("manifest parse error: %w", err)
	}
	if dag.Kind != workflowv1.DagKind {
		return nil, fmt.Errorf("unexpected kind %q, want %q", dag.Kind, workflowv1.DagKind)
	}
	if dag.Name == "" {
		return nil, fmt.Errorf("manifest has no metadata.name")
	}
	return &dag, nil
}

// LoadManifest reads a manifest file written by CompileDags or a DAG program.
func LoadManifest(path string) (*workflowv1.Dag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest error: %w", err)
	}
	dag, err := DecodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dag, nil
}
