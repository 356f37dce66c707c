package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/websql/pkg/websql"
)

func newChangeVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "change-version <database> <old> <new> [sql...]",
		Short: "Migrate a database from one version to another",
		Long: `Change-version runs the given statements in one transaction that only
starts when the database is at version <old>, and stores <new> as the
database version when every statement succeeded. On any failure the
statements are rolled back and the version is left unchanged.

Example:
  websql change-version notes 0 1 "CREATE TABLE n (id INTEGER PRIMARY KEY, body TEXT)"
  websql change-version notes 1 2 "ALTER TABLE n ADD COLUMN created TEXT"`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			name, oldV, newV, stmts := args[0], args[1], args[2], args[3:]

			s, err := a.open(cmd.Context(), name, "")
			if err != nil {
				return err
			}
			defer closeInto(&err, s.close)

			err = s.db.RunChangeVersion(cmd.Context(), oldV, newV, func(tx *websql.Transaction) error {
				for _, stmt := range stmts {
					if err := tx.ExecuteSQL(stmt, nil, nil, nil); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s -> %d\n", name, oldV, s.db.Version())
			return nil
		},
	}
}
