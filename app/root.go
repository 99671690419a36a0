// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/cybercore/ldap-sync/internal/config"
	"github.com/cybercore/ldap-sync/internal/logger"
)

var (
	configPath string // Path to the configuration file

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ldap-sync",
	Short: "ldap-sync mirrors directory user accounts into a relational database",
	Long: `ldap-sync incrementally replicates user accounts from Active Directory,
OpenLDAP or 389 Directory Server into the users table of a relational database,
resuming from a DirSync cookie or a modifyTimestamp cursor after every restart.`,
	Args:         cobra.OnlyValidArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var (
			overrides []config.Override
			err       error
		)

		if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
			overrides = append(overrides, config.Override{Key: "dryRun", Value: dryRun})
		}

		if cfg, err = config.ReadConfig(configPath, overrides...); err != nil {
			return err
		}

		return logger.Init(cfg.Log)
	},
}

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML, TOML or JSON config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
