package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cybercore/ldap-sync/internal/daemon"
	"github.com/cybercore/ldap-sync/internal/schema"
)

const detectTimeout = 2 * time.Minute

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Connect to the directory and print the detected server type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), detectTimeout)
		defer cancel()

		connector, _, err := daemon.NewConnector(&cfg)
		if err != nil {
			return err
		}

		vendor, err := daemon.Detect(ctx, connector)
		if err != nil {
			return err
		}

		s := schema.MustLookup(vendor)

		_, err = fmt.Fprintf(cmd.OutOrStdout(),
			"vendor: %s\nusername attribute: %s\nuser filter: %s\npush cursor: %t\n",
			s.Vendor, s.UsernameAttribute, s.UserFilter, s.SupportsPushCursor)

		return err
	},
}
