package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a query and print its rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			s, err := rt.session(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Disconnect(ctx)

			if err := s.Query(ctx, args[1]); err != nil {
				return err
			}
			n, err := printRows(ctx, cmd.OutOrStdout(), s.FetchRow, limit)
			logging.Op().Debug("query finished", "database", args[0], "rows", n)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many rows (0 = all)")
	return cmd
}

func execCmd() *cobra.Command {
	var (
		recreate bool
		noCommit bool
	)

	cmd := &cobra.Command{
		Use:   "exec <database> <sql>",
		Short: "Execute a statement without a result set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			s, err := rt.session(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Disconnect(ctx)

			if err := execute(ctx, s, args[1], recreate); err != nil {
				s.Rollback(ctx)
				return err
			}
			if noCommit {
				return s.Rollback(ctx)
			}
			if err := s.Commit(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and re-create an object that already exists")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Roll back instead of committing")
	return cmd
}

var createStatement = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?(?:global\s+temporary\s+)?(table|view|index|sequence|synonym|materialized\s+view)\s+(?:if\s+not\s+exists\s+)?([\w.$#"]+)`)

// dropStatement derives the DROP of the object a CREATE statement makes.
func dropStatement(create string) (string, bool) {
	m := createStatement.FindStringSubmatch(create)
	if m == nil {
		return "", false
	}
	kind := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
	return "DROP " + kind + " " + m[2], true
}

// execute runs sql. With recreate, a CREATE failing because the object
// already exists is retried after dropping the object.
func execute(ctx context.Context, s db.Session, sql string, recreate bool) error {
	err := s.Execute(ctx, sql)
	if err == nil || !recreate || !db.IsCode(err, db.AlreadyExistsCodes...) {
		return err
	}
	drop, ok := dropStatement(sql)
	if !ok {
		return err
	}
	code, _ := db.ErrorCode(err)
	logging.Op().Info("object already exists, recreating", "session", s.ID(), "code", code, "drop", drop)
	if err := s.Execute(ctx, drop); err != nil {
		return err
	}
	return s.Execute(ctx, sql)
}

func procCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "proc <database> <call>",
		Short: "Call a stored function returning a cursor and print its rows",
		Long:  "Call a stored function returning a cursor, e.g. \"stations_pkg.list(20011)\", and print its rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			s, err := rt.session(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Disconnect(ctx)

			ps, ok := s.(db.ProcedureSession)
			if !ok {
				return fmt.Errorf("%s: %w", s.Kind(), db.ErrProcedureUnsupported)
			}
			if err := ps.ExecuteProcedure(ctx, args[1]); err != nil {
				return err
			}
			_, err = printRows(ctx, cmd.OutOrStdout(), ps.FetchRowFromCursor, limit)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many rows (0 = all)")
	return cmd
}

// printRows writes rows from fetch space separated until exhaustion or
// limit rows.
func printRows(ctx context.Context, w io.Writer, fetch func(context.Context) (domain.Row, error), limit int) (int, error) {
	n := 0
	for limit <= 0 || n < limit {
		row, err := fetch(ctx)
		if err != nil {
			return n, err
		}
		if row.Empty() {
			break
		}
		fmt.Fprintln(w, strings.Join(row, " "))
		n++
	}
	return n, nil
}
