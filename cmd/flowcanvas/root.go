package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/registry"
)

// Terminal styles.
var (
	brand  = color.New(color.FgHiCyan, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

// catalogFlag overrides the configured catalog file for every command.
var catalogFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowcanvas",
		Short:         "flowcanvas: build AI workflow graphs",
		Long:          brand.Sprint("flowcanvas") + " edits AI workflow graphs over MCP and HTTP\n" + subtle.Sprint("Node types come from a catalog; workflows are saved to a local libSQL database"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate("flowcanvas {{ .Version }}\n")
	root.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "node type catalog file (.json or .toml); default: built-in catalog")

	root.AddCommand(
		serveCmd(),
		validateCmd(),
		catalogCmd(),
		diagramCmd(),
		dbCmd(),
		runCmd(),
		versionCmd(),
	)
	return root
}

// loadCatalog loads the catalog named by --catalog, then the configured one,
// then the built-in catalog.
func loadCatalog(configured string) (*registry.Registry, error) {
	path := catalogFlag
	if path == "" {
		path = configured
	}
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}
