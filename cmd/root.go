package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the metamcp application.
var rootCmd = &cobra.Command{
	Use:   "metamcp",
	Short: "Aggregate MCP servers behind per-namespace endpoints",
	Long: `metamcp pools connections to back-end MCP servers and exposes them
through per-namespace endpoints. Each endpoint merges the tools of its
namespace's servers under prefixed names and serves them over SSE,
streamable HTTP, and a plain HTTP/JSON API.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main to
// inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "metamcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
