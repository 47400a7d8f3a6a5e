package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/kination/nautikus/internal/compiler"
	"github.com/kination/nautikus/internal/executor"
	"github.com/kination/nautikus/internal/executor/pod"
	"github.com/kination/nautikus/internal/planner"
)

var (
	configPath string
	outputDir  string
	namespace  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dag-cli",
	Short: "Nautikus DAG Compiler - Convert Go/Python code to Kubernetes DAG manifests",
	Long: `Nautikus DAG Compiler is a tool that compiles DAG definitions written in 
Go or Python into Kubernetes-compatible YAML manifests.

The compiler runs your code in compile mode, captures the manifest it prints,
and saves it as properly formatted YAML.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ctrl.SetLogger(zap.New(zap.WriteTo(os.Stderr), zap.UseDevMode(verbose)))
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile DAG definitions from code to YAML manifests",
	Long: `Compile DAG definitions from Go or Python source files into 
Kubernetes YAML manifests. The compiler will:
  1. Scan the configured source directories
  2. Execute .go and .py files in compile mode
  3. Capture and check the manifest output
  4. Convert to YAML format
  5. Save to the output directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("🚀 Starting Nautikus DAG Compiler...")
		fmt.Printf("   - Config: %s\n", configPath)
		fmt.Printf("   - Output: %s\n", outputDir)

		if err := compiler.CompileDags(configPath, outputDir); err != nil {
			return fmt.Errorf("compilation failed: %w", err)
		}

		fmt.Println("✅ All DAGs compiled successfully!")
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <manifest>...",
	Short: "Check manifests for duplicate names, unknown dependencies and cycles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			dag, err := compiler.LoadManifest(path)
			if err == nil {
				err = planner.Validate(dag)
			}
			if err != nil {
				failed++
				fmt.Printf("❌ %s\n", path)
				for _, line := range strings.Split(err.Error(), "; ") {
					fmt.Printf("   - %s\n", line)
				}
				continue
			}
			fmt.Printf("✅ %s (%s, %d tasks)\n", path, dag.Name, len(dag.Spec.Tasks))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d manifests are invalid", failed, len(args))
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <manifest>",
	Short: "Print the waves in which the orchestrator can release tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dag, err := compiler.LoadManifest(args[0])
		if err != nil {
			return err
		}
		waves, err := planner.Plan(dag)
		if err != nil {
			return err
		}
		fmt.Printf("📋 %s\n", dag.Name)
		for i, wave := range waves {
			fmt.Printf("   %d. %s\n", i+1, strings.Join(wave, ", "))
		}
		return nil
	},
}

var podsCmd = &cobra.Command{
	Use:   "pods <manifest>",
	Short: "Print the Pods each task of a manifest would run as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dag, err := compiler.LoadManifest(args[0])
		if err != nil {
			return err
		}

		registry := executor.NewRegistry()
		registry.Register(pod.New(executor.ExecutorConfig{Namespace: namespace}))

		pods, err := registry.BuildPods(dag)
		if err != nil {
			return err
		}
		return pod.Encode(cmd.OutOrStdout(), pods...)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of dag-cli",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Nautikus DAG CLI v0.2.0")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable development logging")

	// Add flags to compile command
	compileCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	compileCmd.Flags().StringVarP(&outputDir, "out", "o", "dist", "Directory to save generated YAML files")

	podsCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace for the rendered Pods (defaults to the DAG namespace)")

	// Add commands to root
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(podsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}
