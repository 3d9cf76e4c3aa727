package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func catalogCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the node types of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadCatalog(loadConfig().Catalog)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reg.Groups())
			}
			printCatalog(cmd.OutOrStdout(), reg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the grouped catalog as JSON")
	return cmd
}

func printCatalog(w io.Writer, reg *registry.Registry) {
	for _, g := range reg.Groups() {
		fmt.Fprintln(w, brand.Sprint(string(g.Category)))
		for _, nt := range g.Types {
			fmt.Fprintf(w, "  %-18s %s\n", nt.ID, nt.Name)
			fmt.Fprintf(w, "  %-18s %s\n", "", subtle.Sprintf("in: %s  out: %s", portList(nt.InputPorts), portList(nt.OutputPorts)))
		}
		fmt.Fprintln(w)
	}
}

// portList renders ports as "id" or "id*" for ports accepting many connections.
func portList(ports []schema.PortDefinition) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = p.ID
		if p.AllowMultiple {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, ", ")
}
