package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/scriptbox/internal/executor"
)

var (
	runArgs     string
	runIdentity string
)

var runCmd = &cobra.Command{
	Use:   "run <file|->",
	Short: "Run one script locally and print its outcome as JSON",
	Long: `Execute a script file (or stdin with "-") under the configured policy and
limits, without starting the server. Nothing is written to the execution log.

Examples:
  scriptbox run fib.star --args 10
  echo 'print(args)' | scriptbox run - --args '1,"two",3.5'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		execCfg := cfg.Executor()
		runner, err := newRunner(execCfg, log)
		if err != nil {
			return err
		}
		engine, err := executor.NewEngine(execCfg, runner, log)
		if err != nil {
			return err
		}
		defer engine.Close()

		out := engine.Execute(cmd.Context(), runIdentity, src, runArgs)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if !out.Succeeded {
			return fmt.Errorf("script did not succeed: %s", out.Status)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runArgs, "args", "", "comma-separated script arguments")
	runCmd.Flags().StringVar(&runIdentity, "identity", "cli", "identity attached to the run")
}

func readSource(stdin io.Reader, name string) (string, error) {
	var (
		b   []byte
		err error
	)
	if name == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(b), nil
}
