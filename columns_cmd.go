package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eternadata/ftables-go/internal/csvheader"
	"github.com/eternadata/ftables-go/internal/fusion"
	"github.com/eternadata/ftables-go/internal/pipeline"
)

// errColumnsMissing is returned by verify-columns when local columns are
// absent from the table and --insert was not given.
var errColumnsMissing = errors.New("columns missing from table")

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the columns of the table",
		Args:  cobra.NoArgs,
		RunE:  runColumns,
	}
}

func newInsertColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert-columns NAME...",
		Short: "Add NUMBER columns to the table",
		Long: `Add NUMBER columns to the table, one request per name.

Inserts are not transactional: a rejected name does not undo the names
inserted before it, and the remaining names are still attempted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInsertColumns,
	}
}

func newVerifyColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-columns FILE",
		Short: "Check that every column in a file's header exists in the table",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerifyColumns,
	}

	cmd.Flags().Bool("insert", false, "insert the missing columns as NUMBER columns")
	cmd.Flags().String("encoding", fusion.DefaultImportOptions().Encoding, "text encoding of the file")
	cmd.Flags().String("delimiter", fusion.DefaultImportOptions().Delimiter, "field delimiter of the file")

	return cmd
}

type columnJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func runColumns(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	cols, err := sess.client.ListColumns(ctx)
	if err != nil {
		return fmt.Errorf("listing columns: %w", err)
	}

	if flagJSON {
		out := make([]columnJSON, 0, len(cols))
		for _, c := range cols {
			out = append(out, columnJSON{ID: c.ColumnID, Name: c.Name, Type: c.Type})
		}

		return printJSON(cc.out, out)
	}

	rows := make([][]string, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, []string{strconv.Itoa(c.ColumnID), c.Name, c.Type})
	}

	printTable(cc.out, []string{"ID", "NAME", "TYPE"}, rows)

	return nil
}

func runInsertColumns(cmd *cobra.Command, args []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	results, err := sess.client.InsertColumns(ctx, args)
	printColumnResults(cc, results)

	return err
}

func runVerifyColumns(cmd *cobra.Command, args []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	insert, _ := cmd.Flags().GetBool("insert")
	encoding, _ := cmd.Flags().GetString("encoding")
	delimiter, _ := cmd.Flags().GetString("delimiter")

	header, err := csvheader.Read(args[0], encoding, delimiter)
	if err != nil {
		return err
	}

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	if insert {
		v, results, err := pipeline.InsertMissingColumns(ctx, sess.client, header, cc.logger)
		if v != nil {
			printVerification(cc, v)
		}

		printColumnResults(cc, results)

		return err
	}

	v, err := pipeline.VerifyColumns(ctx, sess.client, header)
	if err != nil {
		return err
	}

	printVerification(cc, v)

	if len(v.Missing) > 0 {
		return fmt.Errorf("%w: %d of %d", errColumnsMissing, len(v.Missing), len(v.Columns))
	}

	return nil
}

func printVerification(cc *cliContext, v *pipeline.Verification) {
	if flagJSON {
		_ = printJSON(cc.out, v)
		return
	}

	rows := make([][]string, 0, len(v.Columns))
	for _, c := range v.Columns {
		state := "present"
		if !c.Present {
			state = "missing"
		}

		rows = append(rows, []string{c.Name, state})
	}

	printTable(cc.out, []string{"COLUMN", "STATUS"}, rows)
}

func printColumnResults(cc *cliContext, results []fusion.ColumnResult) {
	if len(results) == 0 {
		return
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		switch {
		case r.Err != nil:
			rows = append(rows, []string{r.Name, "", "failed: " + r.Err.Error()})
		case r.Column != nil:
			rows = append(rows, []string{r.Name, strconv.Itoa(r.Column.ColumnID), "inserted"})
		default:
			rows = append(rows, []string{r.Name, "", "inserted"})
		}
	}

	printTable(cc.out, []string{"COLUMN", "ID", "RESULT"}, rows)
}
