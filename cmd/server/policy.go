package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the effective capability policy as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg.Executor().Policy.Spec())
		if err != nil {
			return fmt.Errorf("encoding policy: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
