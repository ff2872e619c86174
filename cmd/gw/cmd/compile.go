package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glimmerweave/gw/internal/codegen"
)

var compileOutput string

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile to x86-64 assembly",
	Long: `Lower a program to System V AMD64 assembly in AT&T syntax. The
output is meant for a system assembler; heap allocation links against
gl_malloc/gl_free.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _, err := loadContext(args[0], true)
		if err != nil {
			return err
		}
		if reportDiagnostics(ctx) {
			return fmt.Errorf("aborted with %d error(s)", len(ctx.Errors))
		}

		asm, cgErr := codegen.CompileToAsm(ctx.AstRoot)
		if cgErr != nil {
			return cgErr
		}

		if compileOutput == "" {
			fmt.Print(asm)
			return nil
		}
		return os.WriteFile(compileOutput, []byte(asm), 0o644)
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "write assembly to file instead of stdout")
}
