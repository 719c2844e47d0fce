package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [COLUMN...]",
		Short: "Select columns (all when none are given) from the table",
		RunE:  runQuery,
	}

	cmd.Flags().String("unique", "", "print only the distinct values of this column")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	unique, _ := cmd.Flags().GetString("unique")

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	res, err := sess.client.RunQuery(ctx, args...)
	if err != nil {
		return fmt.Errorf("querying table %s: %w", sess.client.TableID(), err)
	}

	if unique != "" {
		vals, err := res.Unique(unique)
		if err != nil {
			return err
		}

		if flagJSON {
			if !vals.IsCollection() {
				v, _ := vals.First()
				return printJSON(cc.out, v)
			}

			all := vals.All()
			if all == nil {
				all = []any{}
			}

			return printJSON(cc.out, all)
		}

		for _, v := range vals.All() {
			fmt.Fprintln(cc.out, formatCell(v))
		}

		return nil
	}

	if flagJSON {
		return printJSON(cc.out, res)
	}

	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i := range cells {
			if i < len(r) {
				cells[i] = formatCell(r[i])
			}
		}

		rows = append(rows, cells)
	}

	printTable(cc.out, res.Columns, rows)
	cc.Statusf("%d rows\n", len(res.Rows))

	return nil
}
