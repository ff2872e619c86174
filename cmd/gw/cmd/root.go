// Package cmd wires the gw command tree: run, check, compile, obj, disasm.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/glimmerweave/gw/internal/analyzer"
	"github.com/glimmerweave/gw/internal/config"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/modules"
	"github.com/glimmerweave/gw/internal/parser"
	"github.com/glimmerweave/gw/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "gw",
	Short: "Glimmer-Weave toolchain",
	Long: `gw is the Glimmer-Weave language toolchain.

One front end feeds three interchangeable backends: a tree-walking
interpreter, the Quicksilver bytecode VM, and an ahead-of-time x86-64
code generator emitting System V AMD64 assembly and ELF64 objects.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorize("error:", "\x1b[31m"), err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("backend", "", "execution backend: tree, vm or native (default from glimmerweave.yaml)")
}

// loadContext reads and analyzes a source file, returning the processed
// pipeline context and the project manifest governing it.
func loadContext(path string, skipChecks bool) (*pipeline.PipelineContext, *config.Manifest, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := config.LoadManifest(filepath.Dir(path))
	if err != nil {
		return nil, nil, err
	}

	ctx := &pipeline.PipelineContext{
		SourceCode: string(source),
		FilePath:   path,
		Resolver:   modules.NewResolver(manifest.ProjectRoot, manifest.StdlibRoot, modules.OSReader{}),
	}

	p := pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticProcessor{SkipChecks: skipChecks},
	)
	return p.Run(ctx), manifest, nil
}

// reportDiagnostics prints every diagnostic and reports whether any exist.
func reportDiagnostics(ctx *pipeline.PipelineContext) bool {
	for _, d := range ctx.Errors {
		fmt.Fprintf(os.Stderr, "%s %s\n", colorize("error:", "\x1b[31m"), d.Error())
	}
	return ctx.Failed()
}

// colorize wraps s in an ANSI color when stderr is a terminal.
func colorize(s, color string) string {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return color + s + "\x1b[0m"
	}
	return s
}

func resolveBackend(cmd *cobra.Command, manifest *config.Manifest) string {
	if flag, _ := cmd.Flags().GetString("backend"); flag != "" {
		return flag
	}
	if manifest != nil && manifest.Backend != "" {
		return manifest.Backend
	}
	return config.BackendVM
}
