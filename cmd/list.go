package cmd

import (
	"fmt"
	"io"

	"metamcp/internal/mcpserver"
	"metamcp/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listDefinitionsPath string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List definitions from a definitions file",
}

var listServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the defined MCP servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := store.LoadDefinitions(listDefinitionsPath)
		if err != nil {
			return fmt.Errorf("failed to load definitions: %w", err)
		}
		renderServersTable(cmd.OutOrStdout(), defs.Servers)
		return nil
	},
}

var listNamespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List the defined namespaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := store.LoadDefinitions(listDefinitionsPath)
		if err != nil {
			return fmt.Errorf("failed to load definitions: %w", err)
		}
		renderNamespacesTable(cmd.OutOrStdout(), defs.Namespaces)
		return nil
	},
}

func renderServersTable(out io.Writer, servers []mcpserver.ServerConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"UUID", "Name", "Kind", "Target"})
	for _, cfg := range servers {
		t.AppendRow(table.Row{cfg.UUID, cfg.Name, cfg.Kind, serverTarget(cfg)})
	}
	t.Render()
}

func renderNamespacesTable(out io.Writer, namespaces []store.Namespace) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"UUID", "Name", "Servers", "Tool Overrides"})
	for _, ns := range namespaces {
		t.AppendRow(table.Row{ns.UUID, ns.Name, len(ns.Servers), len(ns.Tools)})
	}
	t.Render()
}

func serverTarget(cfg mcpserver.ServerConfig) string {
	if cfg.Kind == mcpserver.KindStdio {
		return cfg.Command
	}
	return cfg.URL
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.AddCommand(listServersCmd)
	listCmd.AddCommand(listNamespacesCmd)

	listCmd.PersistentFlags().StringVar(&listDefinitionsPath, "definitions", "", "Path to the definitions file (required)")
	_ = listCmd.MarkPersistentFlagRequired("definitions")
}
