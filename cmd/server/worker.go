package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/scriptbox/internal/executor"
)

// workerCmd is what a process-isolated run executes: one request on stdin,
// one capture on stdout. It never reads config.
var workerCmd = &cobra.Command{
	Use:    workerCommand,
	Short:  "Run one sandboxed script read from stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return executor.ServeWorker(os.Stdin, os.Stdout)
	},
}
