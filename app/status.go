package app

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cybercore/ldap-sync/internal/db/controller/syncstate"
)

func init() { //nolint: gochecknoinits
	statusCmd.Flags().StringSliceVar(&clearStates, "clear", nil, "Remove the named state rows before printing")

	rootCmd.AddCommand(statusCmd)
}

var (
	clearStates []string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the recorded sync state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *gorm.DB) error {
				return showStatus(cmd.OutOrStdout(), db, clearStates)
			})
		},
	}
)

// showStatus deletes the rows in names and prints the remaining state.
// Names without a row are ignored.
func showStatus(out io.Writer, db *gorm.DB, names []string) error {
	for _, name := range names {
		if err := syncstate.Delete(db, name); err != nil && !errors.Is(err, syncstate.ErrStateNotFound) {
			return err
		}
	}

	states, err := syncstate.GetAll(db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tVALUE\tUPDATED")

	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Value, s.UpdatedAt.UTC().Format(time.RFC3339))
	}

	return w.Flush()
}
