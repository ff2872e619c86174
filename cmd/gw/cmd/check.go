package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Run the semantic passes without executing",
	Long: `Parse and analyze a program: monomorphization, borrow checking,
lifetime checking, and type inference. All diagnostics are reported in one
batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _, err := loadContext(args[0], false)
		if err != nil {
			return err
		}
		if reportDiagnostics(ctx) {
			return fmt.Errorf("found %d error(s)", len(ctx.Errors))
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
