package main

import (
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the sandbox as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing execute_script,
list_executions and describe_policy. Logs go to stderr so they do not
corrupt the protocol stream.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		stopPruner, err := a.startRetention(cmd.Context())
		if err != nil {
			return err
		}
		defer stopPruner()

		return a.mcpServer().ServeStdio()
	},
}
