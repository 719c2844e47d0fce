package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"

	"github.com/eternadata/ftables-go/internal/fusion"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy",
		Short: "Duplicate the table and print the new table ID",
		Args:  cobra.NoArgs,
		RunE:  runCopy,
	}
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables the credential can access",
		Args:  cobra.NoArgs,
		RunE:  runTables,
	}
}

func runCopy(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	source := sess.client.TableID()

	id, err := sess.client.CopyTable(ctx)
	if err != nil {
		return fmt.Errorf("copying table %s: %w", source, err)
	}

	if flagJSON {
		return printJSON(cc.out, map[string]string{
			"source":   source,
			"table_id": id,
			"view_url": sess.client.Rebind(id).ViewURL(),
		})
	}

	fmt.Fprintln(cc.out, id)
	cc.Statusf("Copied %s; view at %s\n", source, sess.client.Rebind(id).ViewURL())

	return nil
}

func runTables(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	var tables []fusion.Table

	it := sess.client.Tables(ctx)

	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}

		tables = append(tables, t)
	}

	if flagJSON {
		if tables == nil {
			tables = []fusion.Table{}
		}

		return printJSON(cc.out, tables)
	}

	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		exportable := "no"
		if t.IsExportable {
			exportable = "yes"
		}

		rows = append(rows, []string{t.TableID, t.Name, exportable, t.Description})
	}

	printTable(cc.out, []string{"ID", "NAME", "EXPORTABLE", "DESCRIPTION"}, rows)

	return nil
}
