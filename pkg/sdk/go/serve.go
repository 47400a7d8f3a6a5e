package sdk

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"runtime"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/kination/nautikus/internal/config"
	"github.com/kination/nautikus/pkg/sdk/go/processing"
)

var log = ctrl.Log.WithName("sdk")

// Run compiles the manifest or dispatches one task, depending on inv.Mode.
func (b *DAGBuilder) Run(ctx context.Context, inv processing.Invocation) error {
	if b.err != nil {
		return fmt.Errorf("invalid DAG %s: %w", b.name, b.err)
	}

	if inv.Mode == processing.ModeDispatch {
		log.V(1).Info("Dispatching task", "dag", b.name, "task", inv.TaskName, "selectedBranch", inv.SelectedBranch)
		_, err := processing.ExecuteTask(ctx, inv, b.tasks, b.out)
		return err
	}

	log.V(1).Info("Compiling manifest", "dag", b.name, "tasks", len(b.tasks))
	return processing.GenerateManifest(b.out, b.name, b.source, b.tasks, b.format)
}

// Serve executes the DAG (either generates manifest or runs task based on env)
// and exits the process with status 1 on failure.
func (b *DAGBuilder) Serve() {
	if err := b.serve(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

func (b *DAGBuilder) serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ctrl.SetLogger(zap.New(
		zap.WriteTo(os.Stderr),
		zap.UseDevMode(cfg.Development),
		zap.Level(level),
	))

	if format := cfg.Format(); format != "" {
		b.format = format
	}
	return b.Run(ctx, cfg.Invocation())
}

// anonymousFunc matches the symbol suffix the runtime gives closures.
var anonymousFunc = regexp.MustCompile(`^(func\d+|\d+)$`)

// Serve is the legacy API: each function becomes a task named after its
// symbol, chained in the given order. The file calling Serve is embedded as
// the manifest script.
func Serve(dagName string, fns ...func()) {
	var opts []Option
	if _, callerFile, _, ok := runtime.Caller(1); ok {
		opts = append(opts, WithSourceFile(callerFile))
	}
	builder, err := chainFuncs(NewDAG(dagName, opts...), fns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
	builder.Serve()
}

// chainFuncs adds every fn as a task named after its symbol that depends on
// the previous one.
func chainFuncs(b *DAGBuilder, fns []func()) (*DAGBuilder, error) {
	var prev string
	for i, fn := range fns {
		name := processing.GetFuncName(fn)
		switch {
		case name == "":
			return nil, fmt.Errorf("%w: function #%d of DAG %s is nil", ErrUnnamedFunc, i, b.name)
		case anonymousFunc.MatchString(name):
			return nil, fmt.Errorf("%w: function #%d of DAG %s is anonymous", ErrUnnamedFunc, i, b.name)
		}

		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		b.AddTask(name, Func(fn), deps...)
		prev = name
	}
	return b, nil
}
