package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"metamcp/internal/app"
	"metamcp/pkg/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath      string
	serveDefinitionsPath string
	serveEnvFile         string
	serveDebug           bool
	serveSilent          bool
)

// serveCmd starts the endpoint server. This is the main command of metamcp:
// it warms the connection pools, watches the definitions file, and serves
// every namespace endpoint until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metamcp endpoint server",
	Long: `Starts the metamcp endpoint server.

The server loads MCP server and namespace definitions from the given YAML
file, pre-warms one idle connection per server and one idle composite per
namespace, and serves each namespace under /metamcp/{name}/. The
definitions file is watched while the server runs; edits take effect
without a restart.

Environment variables can be loaded from a dotenv file with --env-file
before configuration is read, which is useful for API keys referenced by
stdio server definitions.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveEnvFile != "" {
		if err := godotenv.Load(serveEnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", serveEnvFile, err)
		}
	}

	application, err := app.New(app.Options{
		ConfigPath:      serveConfigPath,
		DefinitionsPath: serveDefinitionsPath,
		Debug:           serveDebug,
		Silent:          serveSilent,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logging.Error("Serve", err, "Server exited with error")
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the YAML config file (defaults apply when missing)")
	serveCmd.Flags().StringVar(&serveDefinitionsPath, "definitions", "", "Path to the server and namespace definitions file (required)")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", "", "Dotenv file to load before reading configuration")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
	_ = serveCmd.MarkFlagRequired("definitions")
}
