package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func validateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check workflow documents against the catalog",
		Long: `Validate workflow documents without importing them.

Each file goes through the same checks as an import: document structure,
node types and ports known to the catalog, input capacity, and
transformation rules that compile. Warnings (cycles, unconnected nodes,
unknown rule types) do not fail validation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadCatalog(loadConfig().Catalog)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			rules, err := expressions.NewEvaluator()
			if err != nil {
				return err
			}
			v, err := validation.NewDocumentValidator(reg, rules)
			if err != nil {
				return err
			}

			invalid := 0
			for _, path := range args {
				if !validateFile(cmd.OutOrStdout(), v, path, quiet) {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d documents invalid", invalid, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide warnings")
	return cmd
}

// validateFile prints the outcome for one file and reports whether it passed.
func validateFile(w io.Writer, v validation.Validator, path string, quiet bool) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "%s %s\n  %s\n", bad.Sprint("✗"), path, err)
		return false
	}

	doc, result := v.ValidateJSON(data)
	if !result.Valid() {
		fmt.Fprintf(w, "%s %s\n", bad.Sprint("✗"), path)
		printIssues(w, result.Errors, bad)
		if !quiet {
			printIssues(w, result.Warnings, warn)
		}
		return false
	}

	fmt.Fprintf(w, "%s %s %s\n", good.Sprint("✓"), path,
		subtle.Sprintf("(%d nodes, %d connections)", len(doc.Nodes), len(doc.Connections)))
	if !quiet {
		printIssues(w, result.Warnings, warn)
	}
	return true
}

func printIssues(w io.Writer, issues []schema.ValidationIssue, c *color.Color) {
	for _, is := range issues {
		fmt.Fprintf(w, "  %s %s\n", c.Sprint(is.Code), is)
	}
}
