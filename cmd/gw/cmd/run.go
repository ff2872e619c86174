package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glimmerweave/gw/internal/backend"
	"github.com/glimmerweave/gw/internal/config"
	"github.com/glimmerweave/gw/internal/evaluator"
)

var runShowResult bool

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a Glimmer-Weave program",
	Long: `Execute a program on the selected backend.

The tree backend is the reference interpreter and supports the whole
language; the vm backend compiles to Quicksilver bytecode first. Constructs
outside the VM subset report which backend to use instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runShowResult, "result", false, "print the program's final value")
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx, manifest, err := loadContext(args[0], true)
	if err != nil {
		return err
	}
	if reportDiagnostics(ctx) {
		return fmt.Errorf("aborted with %d error(s)", len(ctx.Errors))
	}

	var b backend.Backend
	switch resolveBackend(cmd, manifest) {
	case config.BackendTree:
		b = backend.NewTreeWalk()
	case config.BackendVM:
		b = backend.NewVM()
	case config.BackendNative:
		return fmt.Errorf("the native backend emits assembly; use 'gw compile' or 'gw obj'")
	default:
		return fmt.Errorf("unknown backend %q", resolveBackend(cmd, manifest))
	}

	ctx = backend.NewExecutionProcessor(b).Process(ctx)
	if reportDiagnostics(ctx) {
		return fmt.Errorf("execution failed")
	}

	if runShowResult {
		if result, ok := ctx.Result.(evaluator.Value); ok && result != nil {
			fmt.Println(result.Inspect())
		}
	}
	return nil
}
