package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func diagramCmd() *cobra.Command {
	var (
		format   string
		output   string
		selected string
	)

	cmd := &cobra.Command{
		Use:   "diagram <file>",
		Short: "Render a workflow document as a diagram",
		Long: `Render a workflow document.

  flowcanvas diagram flow.json                       # mermaid to stdout
  flowcanvas diagram flow.json --format ascii
  flowcanvas diagram flow.json --format png -o flow.png`,
		Args: cobra.ExactArgs(1),
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

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, result := v.ValidateJSON(data)
			if err := result.ToError(schema.ErrCodeValidation); err != nil {
				return err
			}

			model := diagram.Build(doc, reg)
			if selected != "" {
				model.Select(selected)
			}
			out, err := diagram.Render(cmd.Context(), model, format)
			if err != nil {
				return err
			}

			if output == "" {
				if out.Binary() {
					return fmt.Errorf("%s output needs --output", out.Format)
				}
				_, err = cmd.OutOrStdout().Write(out.Data)
				return err
			}
			if err := os.WriteFile(output, out.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", good.Sprint("wrote"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "mermaid, ascii, png, svg or dot")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&selected, "select", "", "highlight this node id")
	return cmd
}
