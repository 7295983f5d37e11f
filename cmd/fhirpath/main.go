// Command fhirpath is a thin demonstrator CLI over pkg/fhirpath,
// restructured from the teacher's cmd/funxy/main.go single-dispatch main
// onto spf13/cobra subcommands, the way CWBudde-go-dws structures its own
// cmd/dwscript CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lschmierer/fhirpath-go/internal/config"
	"github.com/lschmierer/fhirpath-go/pkg/fhirpath"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "fhirpath",
		Short:   "Parse, analyze, and evaluate FHIRPath expressions",
		Version: config.Version,
	}
	root.AddCommand(newParseCmd(), newEvalCmd(), newCompleteCmd(), newInspectCmd())
	return root
}

// colorize wraps s in an ANSI color code only when stdout is a real
// terminal, matching the pack's go-isatty-gated color convention.
func colorize(code, s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, s)
}

func newParseCmd() *cobra.Command {
	var diagnosticMode bool
	cmd := &cobra.Command{
		Use:   "parse <expression>",
		Short: "Parse an expression and print its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := fhirpath.ParseStandard
			if diagnosticMode {
				mode = fhirpath.ParseDiagnostic
			}
			res, err := fhirpath.Parse(args[0], mode)
			for _, d := range res.Diagnostics {
				fmt.Fprintln(cmd.OutOrStdout(), colorize("33", string(d.Code))+": "+d.Message)
			}
			if err != nil {
				return err
			}
			if res.IsPartial {
				fmt.Fprintln(cmd.OutOrStdout(), colorize("31", "partial"))
			} else if res.Root == nil {
				fmt.Fprintln(cmd.OutOrStdout(), colorize("32", "ok"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&diagnosticMode, "diagnostic", false, "parse in diagnostic mode, retaining source ranges")
	return cmd
}

func newEvalCmd() *cobra.Command {
	var inputJSON string
	var useCompiler bool
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression against a JSON input document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := decodeInput(inputJSON)
			if err != nil {
				return err
			}
			e := fhirpath.NewEngine()
			pr, err := fhirpath.Parse(args[0], fhirpath.ParseStandard)
			if err != nil {
				return err
			}
			result, err := e.Evaluate(pr.Root, fhirpath.EvalOptions{Input: input, UseCompiler: useCompiler})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "{}", "JSON document to evaluate against")
	cmd.Flags().BoolVar(&useCompiler, "compiled", false, "use the closure compiler instead of the tree-walking interpreter")
	return cmd
}

func newCompleteCmd() *cobra.Command {
	var cursor int
	cmd := &cobra.Command{
		Use:   "complete <partial-expression>",
		Short: "List completion candidates at a cursor offset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := fhirpath.NewEngine()
			pos := cursor
			if pos <= 0 || pos > len(args[0]) {
				pos = len(args[0])
			}
			result := e.Complete(args[0], pos, fhirpath.Type{}, nil)
			for _, item := range result.Items {
				fmt.Fprintln(cmd.OutOrStdout(), item.Label)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cursor, "cursor", 0, "byte offset to complete at (defaults to end of input)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var inputJSON string
	cmd := &cobra.Command{
		Use:   "inspect <expression>",
		Short: "Analyze and evaluate an expression, reporting timings and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := decodeInput(inputJSON)
			if err != nil {
				return err
			}
			e := fhirpath.NewEngine()
			pr, err := fhirpath.Parse(args[0], fhirpath.ParseDiagnostic)
			if err != nil {
				return err
			}
			report := e.Inspect(pr.Root, fhirpath.Type{}, fhirpath.EvalOptions{Input: input}, fhirpath.Lenient)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d nodes, analyze %s, evaluate %s\n",
				report.RunID, report.NodesVisited, report.AnalyzeTime, report.EvaluateTime)
			for _, d := range report.Diagnostics {
				fmt.Fprintln(cmd.OutOrStdout(), colorize("33", string(d.Code))+": "+d.Message)
			}
			if report.Err != nil {
				return report.Err
			}
			return printJSON(cmd, report.Result)
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "{}", "JSON document to evaluate against")
	return cmd
}

func decodeInput(raw string) (fhirpath.Sequence, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding --input: %w", err)
	}
	return fhirpath.Sequence{doc}, nil
}

func printJSON(cmd *cobra.Command, seq fhirpath.Sequence) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode([]any(seq))
}
