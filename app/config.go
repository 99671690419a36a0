package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cybercore/ldap-sync/internal/config"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration without secrets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := config.DumpConfigJSON(cfg)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)

		return err
	},
}
