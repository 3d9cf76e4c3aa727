package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func runCmd() *cobra.Command {
	var (
		inputs      []string
		asJSON      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a workflow document with the local runners",
		Long: `Run a workflow document once and print the state of every node.

Input ports without a connection take their text from --input:

  flowcanvas run flow.json --input gen-1.prompt="a quiet harbour"

The run is not recorded in the workflow database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqInputs, err := parseInputs(inputs)
			if err != nil {
				return err
			}
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
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, result := v.ValidateJSON(data)
			if !result.Valid() {
				printIssues(cmd.OutOrStdout(), result.Errors, bad)
				return fmt.Errorf("%s is not a valid workflow", args[0])
			}

			ex, err := engine.NewExecutor(engine.Options{Catalog: reg, Rules: rules, Concurrency: concurrency})
			if err != nil {
				return err
			}
			defer ex.Shutdown()

			st, err := ex.Execute(cmd.Context(), engine.Request{Workflow: doc, Inputs: reqInputs})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(st); err != nil {
					return err
				}
			} else {
				printRun(cmd.OutOrStdout(), doc, st)
			}
			if st.Status != schema.RunStatusCompleted {
				return fmt.Errorf("run %s %s", st.RunID, st.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "text for an unconnected input port, as node.port=text (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run state as JSON")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "nodes run in parallel per level (default 4)")
	return cmd
}

// parseInputs turns node.port=text flags into text payloads.
func parseInputs(flags []string) (map[string]map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]any)
	for _, f := range flags {
		target, text, ok := strings.Cut(f, "=")
		node, port, dotted := strings.Cut(target, ".")
		if !ok || !dotted || node == "" || port == "" {
			return nil, fmt.Errorf("invalid --input %q: want node.port=text", f)
		}
		if out[node] == nil {
			out[node] = make(map[string]any)
		}
		out[node][port] = map[string]any{"text": text}
	}
	return out, nil
}

// printRun lists node states in document order.
func printRun(w io.Writer, doc *schema.Workflow, st *engine.RunState) {
	status := good
	if st.Status != schema.RunStatusCompleted {
		status = bad
	}
	fmt.Fprintf(w, "%s %s %s\n", brand.Sprint(st.RunID), status.Sprint(st.Status), subtle.Sprintf("(%.0f%%)", st.Progress))
	for _, n := range doc.Nodes {
		ns, ok := st.Nodes[n.ID]
		if !ok {
			continue
		}
		c := subtle
		switch ns.Status {
		case schema.NodeStatusCompleted:
			c = good
		case schema.NodeStatusFailed:
			c = bad
		case schema.NodeStatusSkipped:
			c = warn
		}
		fmt.Fprintf(w, "  %-10s %s %s", c.Sprint(ns.Status), n.ID, subtle.Sprint(n.Type))
		if ns.Error != "" {
			fmt.Fprintf(w, "\n             %s", ns.Error)
		}
		fmt.Fprintln(w)
	}
	if st.Error != "" {
		fmt.Fprintf(w, "%s\n", bad.Sprint(st.Error))
	}
}
