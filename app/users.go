package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cybercore/ldap-sync/internal/daemon"
	"github.com/cybercore/ldap-sync/internal/db/controller/user"
)

func init() { //nolint: gochecknoinits
	usersCmd.Flags().BoolVar(&allUsers, "all", false, "Include inactive, suspended, banned and deleted users")

	rootCmd.AddCommand(usersCmd)
}

var (
	allUsers bool

	usersCmd = &cobra.Command{
		Use:   "users",
		Short: "List the synchronized users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *gorm.DB) error {
				return listUsers(cmd.OutOrStdout(), db)
			})
		},
	}
)

// withDB opens the configured database for the duration of fn.
func withDB(fn func(db *gorm.DB) error) error {
	db, err := daemon.OpenDB(&cfg.DB)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close database")
		}
	}()

	return fn(db)
}

func listUsers(out io.Writer, db *gorm.DB) error {
	users, err := user.List(db, !allUsers)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tSTATUS\tEMAIL\tLAST SYNC")

	for _, u := range users {
		email := ""
		if u.Email != nil {
			email = *u.Email
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			u.Username, u.Status, email, u.LastLdapSync.UTC().Format(time.RFC3339))
	}

	return w.Flush()
}
