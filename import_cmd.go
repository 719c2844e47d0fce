package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eternadata/ftables-go/internal/pipeline"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Append the rows of delimited files to the table, in order",
		Long: `Append the rows of delimited files to the table, in order.

Each file must be UTF-8, comma separated, with a header row. Malformed
rows fail the whole file. The first failing file stops the run; later
files are not attempted. An interrupted upload resumes from the last
acknowledged byte when the same unchanged file is imported again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("no-history", false, "do not record this run in the import history")

	return cmd
}

type importJSON struct {
	RunID    string   `json:"run_id"`
	TableID  string   `json:"table_id"`
	Imported []string `json:"imported"`
	Rows     int64    `json:"rows"`
	Failed   string   `json:"failed,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	ViewURL  string   `json:"view_url"`
}

func runImport(cmd *cobra.Command, args []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	noHistory, _ := cmd.Flags().GetBool("no-history")

	sess, err := cc.newSession(ctx)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{Bind: pipeline.ForClient(sess.client), Logger: cc.logger}

	if cc.cfg.Import.RecordHistory && !noHistory {
		ledger, err := cc.openLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()

		cfg.Recorder = ledger
	}

	report, runErr := pipeline.New(cfg).Run(ctx, cc.cfg.Table, args)
	if report == nil {
		return runErr
	}

	printImportReport(cc, report, sess.client.ViewURL())

	return runErr
}

func printImportReport(cc *cliContext, report *pipeline.Report, viewURL string) {
	var rows int64

	imported := make([]string, 0, len(report.Imported))
	for _, f := range report.Imported {
		imported = append(imported, f.Path)
		rows += f.Rows
	}

	if flagJSON {
		_ = printJSON(cc.out, importJSON{
			RunID:    report.RunID.String(),
			TableID:  report.TableID,
			Imported: imported,
			Rows:     rows,
			Failed:   report.Failed,
			Skipped:  report.Skipped,
			ViewURL:  viewURL,
		})

		return
	}

	table := make([][]string, 0, len(report.Imported)+1+len(report.Skipped))
	for _, f := range report.Imported {
		table = append(table, []string{f.Path, "imported", fmt.Sprint(f.Rows), formatDuration(f.Duration)})
	}

	if report.Failed != "" {
		table = append(table, []string{report.Failed, "failed", "", ""})
	}

	for _, p := range report.Skipped {
		table = append(table, []string{p, "skipped", "", ""})
	}

	printTable(cc.out, []string{"FILE", "RESULT", "ROWS", "TIME"}, table)
	cc.Statusf("%d rows imported into %s\n%s\n", rows, report.TableID, viewURL)
}
