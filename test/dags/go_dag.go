package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	sdk "github.com/kination/nautikus/pkg/sdk/go"
)

//go:embed go_dag.go
var source string

func extract(ctx context.Context) error {
	fmt.Println("Extracting records")
	return nil
}

// checkSize picks a branch from RECORD_COUNT, defaulting to the small path.
func checkSize(ctx context.Context) (string, error) {
	raw := os.Getenv("RECORD_COUNT")
	if raw == "" {
		return "small", nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return "", fmt.Errorf("invalid RECORD_COUNT %q: %w", raw, err)
	}
	if n > 1000 {
		return "large", nil
	}
	return "small", nil
}

func main() {
	sdk.NewDAG("go-generated-dag", sdk.WithEmbeddedSource("go_dag.go", source)).
		AddTask("extract", extract).
		AddBranch("check_size", checkSize, map[string][]sdk.Task{
			"small": {
				{Name: "process_small", Fn: sdk.Func(func() { fmt.Println("Processing in memory") })},
			},
			"large": {
				{Name: "partition", Fn: sdk.Func(func() { fmt.Println("Partitioning input") })},
				{Name: "process_large", Fn: sdk.Func(func() { fmt.Println("Processing partitions") })},
			},
		}, "extract").
		AddJoin("merge", sdk.Func(func() { fmt.Println("Merging results") }), "process_small", "process_large").
		AddParallel("merge",
			sdk.Task{Name: "report", Fn: sdk.Func(func() { fmt.Println("Writing report") })},
			sdk.Task{Name: "notify", Fn: sdk.Func(func() { fmt.Println("Sending notification") })},
		).
		Serve()
}
