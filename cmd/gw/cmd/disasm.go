package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glimmerweave/gw/internal/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file>",
	Short: "Show the Quicksilver bytecode for a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _, err := loadContext(args[0], true)
		if err != nil {
			return err
		}
		if reportDiagnostics(ctx) {
			return fmt.Errorf("aborted with %d error(s)", len(ctx.Errors))
		}

		chunk, compileErr := vm.Compile(ctx.AstRoot)
		if compileErr != nil {
			return compileErr
		}
		fmt.Print(vm.Disassemble(chunk))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}
