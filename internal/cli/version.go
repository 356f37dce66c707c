package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/websql/pkg/websql"
)

const modulePath = "github.com/mesh-intelligence/websql"

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version [database]",
		Short: "Print the websql version, or the version of a database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintf(w, "websql v%s\nmodule: %s\n", websql.Version, modulePath)
				return nil
			}

			s, err := a.open(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			defer closeInto(&err, s.close)

			if a.flags.jsonMode {
				data, err := json.Marshal(map[string]any{"database": args[0], "version": s.db.Version()})
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(data))
				return nil
			}
			fmt.Fprintln(w, s.db.Version())
			return nil
		},
	}
}
