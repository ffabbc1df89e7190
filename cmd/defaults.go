package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var defaultsFlags scenarioFlags

// defaultsCmd prints the effective scenario as YAML, a starting point for --config.
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the effective scenario configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		sc := defaultScenario()
		if err := defaultsFlags.apply(cmd.Flags(), &sc); err != nil {
			logrus.Fatalf("invalid configuration: %v", err)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(sc); err != nil {
			logrus.Fatalf("encoding scenario: %v", err)
		}
		if err := enc.Close(); err != nil {
			logrus.Fatalf("encoding scenario: %v", err)
		}
	},
}

func init() {
	defaultsFlags.register(defaultsCmd.Flags())
	rootCmd.AddCommand(defaultsCmd)
}
