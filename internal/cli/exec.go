package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/websql/pkg/types"
	"github.com/mesh-intelligence/websql/pkg/websql"
)

type execFlags struct {
	readOnly bool
	version  string
	extra    []string
}

func newExecCmd(a *app) *cobra.Command {
	var f execFlags
	cmd := &cobra.Command{
		Use:   "exec <database> <sql> [arg...]",
		Short: "Execute statements inside one transaction",
		Long: `Exec opens the database, runs the statement with the given bind
arguments inside a single transaction, and prints the result. Further
statements given with --then run afterwards in the same transaction; any
failure rolls the whole transaction back.

Arguments that parse as JSON are bound as the decoded value, others as
strings.

Example:
  websql exec notes "CREATE TABLE n (id INTEGER PRIMARY KEY, body TEXT)"
  websql exec notes "INSERT INTO n (body) VALUES (?)" hello
  websql exec --read-only --json notes "SELECT * FROM n WHERE id > ?" 0`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExec(cmd, f, args[0], args[1], args[2:])
		},
	}
	cmd.Flags().BoolVar(&f.readOnly, "read-only", false, "reject write statements")
	cmd.Flags().StringVar(&f.version, "expect-version", "", "fail unless the database has this version")
	cmd.Flags().StringArrayVar(&f.extra, "then", nil, "additional statement without arguments (repeatable)")
	return cmd
}

func (a *app) runExec(cmd *cobra.Command, f execFlags, name, sql string, rawArgs []string) (err error) {
	ctx := cmd.Context()
	s, err := a.open(ctx, name, f.version)
	if err != nil {
		return err
	}
	defer closeInto(&err, s.close)

	stmts := append([]string{sql}, f.extra...)
	var out []statementOutput
	body := func(tx *websql.Transaction) error {
		for i, stmt := range stmts {
			var args []any
			if i == 0 {
				args = parseArgs(rawArgs)
			}
			err := tx.ExecuteSQL(stmt, args, func(_ *websql.Transaction, rs *types.ResultSet) error {
				out = append(out, newStatementOutput(stmt, rs))
				return nil
			}, nil)
			if err != nil {
				return err
			}
		}
		return nil
	}

	if f.readOnly {
		err = s.db.RunReadTransaction(ctx, body)
	} else {
		err = s.db.RunTransaction(ctx, body)
	}
	if err != nil {
		return err
	}
	return a.printResults(cmd.OutOrStdout(), out)
}

func (a *app) printResults(w io.Writer, out []statementOutput) error {
	if a.flags.jsonMode {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	for _, o := range out {
		if len(o.Columns) == 0 {
			fmt.Fprintf(w, "%d row(s) affected, last insert id %d\n", o.RowsAffected, o.InsertID)
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, c := range o.Columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprintln(tw)
		for _, row := range o.Rows {
			for i, c := range o.Columns {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, formatValue(row[c]))
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	default:
		return fmt.Sprint(x)
	}
}
