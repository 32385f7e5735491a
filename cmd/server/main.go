// Command scriptbox runs untrusted Starlark scripts in a capability-limited
// sandbox, over HTTP, over MCP, or straight from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scriptbox",
	Short: "Sandboxed Starlark script execution service",
	Long: `scriptbox executes short, untrusted Starlark scripts inside a sandbox that
exposes only an allow-listed set of primitives and modules. Every run is
bounded by a wall-clock timeout and recorded to an execution log.

Configuration comes from scriptbox.yaml (or --config), a .env file and
SCRIPTBOX_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, runCmd, mcpCmd, tokenCmd, policyCmd, workerCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
