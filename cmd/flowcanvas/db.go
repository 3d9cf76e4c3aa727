package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/store"
)

func dbCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the workflow database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "workflow database path (default: configured path)")

	open := func(cmd *cobra.Command) (*store.LibSQLStore, error) {
		path := dbPath
		if path == "" {
			path = loadConfig().DBPath
		}
		st, err := store.NewLibSQLStore("file:" + path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(cmd.Context()); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return st, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open(cmd)
				if err != nil {
					return err
				}
				defer st.Close()
				fmt.Fprintln(cmd.OutOrStdout(), good.Sprint("schema up to date"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "vacuum",
			Short: "Compact the database file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open(cmd)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.Vacuum(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), good.Sprint("vacuumed"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List saved workflows",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open(cmd)
				if err != nil {
					return err
				}
				defer st.Close()
				wfs, err := st.ListWorkflows(cmd.Context(), store.WorkflowFilter{})
				if err != nil {
					return err
				}
				if len(wfs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), subtle.Sprint("no saved workflows"))
					return nil
				}
				for _, wf := range wfs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s %s\n", wf.ID, wf.Name,
						subtle.Sprint(wf.UpdatedAt.Format("2006-01-02 15:04")))
				}
				return nil
			},
		},
	)
	return cmd
}
