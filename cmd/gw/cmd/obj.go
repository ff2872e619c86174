package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glimmerweave/gw/internal/codegen"
	"github.com/glimmerweave/gw/internal/config"
	"github.com/glimmerweave/gw/internal/elf"
)

var (
	objOutput string
	objWrap   string
)

var objCmd = &cobra.Command{
	Use:   "obj <file>",
	Short: "Produce an ELF64 relocatable object",
	Long: `Compile to assembly and hand it to the system assembler, producing
a relocatable object file.

With --wrap, the argument is a file of raw machine code instead of a source
file; it is wrapped directly by the built-in ELF64 writer with a single
global 'main' function symbol. This path needs no assembler and is
byte-reproducible.`,
	Args: cobra.ExactArgs(1),
	RunE: buildObject,
}

func init() {
	rootCmd.AddCommand(objCmd)
	objCmd.Flags().StringVarP(&objOutput, "output", "o", "", "output object file (default: input with .o)")
	objCmd.Flags().StringVar(&objWrap, "wrap", "", "wrap a raw machine-code file via the built-in ELF writer")
}

func buildObject(cmd *cobra.Command, args []string) error {
	output := objOutput

	if objWrap != "" {
		code, err := os.ReadFile(objWrap)
		if err != nil {
			return err
		}
		if output == "" {
			output = objWrap + ".o"
		}
		return os.WriteFile(output, elf.CreateObject(code, "main"), 0o644)
	}

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

	if output == "" {
		base := config.TrimSourceExt(filepath.Base(args[0]))
		output = base + ".o"
	}

	asmFile, err := os.CreateTemp("", "gw-*.s")
	if err != nil {
		return err
	}
	defer os.Remove(asmFile.Name())
	if _, err := asmFile.WriteString(asm); err != nil {
		asmFile.Close()
		return err
	}
	asmFile.Close()

	// The physical assembly step is external: the system assembler turns
	// the emitted text into the object file.
	as := exec.Command("as", "--64", "-o", output, asmFile.Name())
	as.Stderr = os.Stderr
	if err := as.Run(); err != nil {
		return fmt.Errorf("assembler failed: %w", err)
	}
	return nil
}
