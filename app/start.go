package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cybercore/ldap-sync/internal/daemon"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Replay the scripted fixture feed instead of a directory")
	startCmd.Flags().BoolVar(&once, "once", false, "Run a single iteration and exit")

	rootCmd.AddCommand(startCmd)
}

var (
	dryRun bool
	once   bool

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the ldap sync loop",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(&cfg)
			if err != nil {
				return err
			}

			defer func() {
				_ = d.Close()
			}()

			return d.Start(ctx, once)
		},
	}
)
