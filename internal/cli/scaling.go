package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var scalingCmd = &cobra.Command{
	Use:   "scaling",
	Short: "Print the effective scaling table as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(table.Snapshot())
		if err != nil {
			return fmt.Errorf("encode scaling: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
