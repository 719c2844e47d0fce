package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eternadata/ftables-go/internal/history"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded imports, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", defaultHistoryLimit, "maximum entries to show (0 for all)")
	cmd.Flags().String("run", "", "show only the files of this import run")

	return cmd
}

type historyJSON struct {
	RunID      string `json:"run_id"`
	TableID    string `json:"table_id"`
	File       string `json:"file"`
	Status     string `json:"status"`
	Rows       int64  `json:"rows"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	ctx := cmd.Context()

	limit, _ := cmd.Flags().GetInt("limit")
	runFlag, _ := cmd.Flags().GetString("run")

	ledger, err := cc.openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var entries []history.Entry

	if runFlag != "" {
		runID, err := uuid.Parse(runFlag)
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", runFlag, err)
		}

		entries, err = ledger.Run(ctx, runID)
		if err != nil {
			return err
		}
	} else {
		entries, err = ledger.Recent(ctx, limit)
		if err != nil {
			return err
		}
	}

	if flagJSON {
		out := make([]historyJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, toHistoryJSON(e))
		}

		return printJSON(cc.out, out)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(e.StartedAt),
			e.RunID.String()[:8],
			e.TableID,
			e.File,
			e.Status,
			strconv.FormatInt(e.Rows, 10),
			formatDuration(e.Duration()),
			e.Error,
		})
	}

	printTable(cc.out, []string{"STARTED", "RUN", "TABLE", "FILE", "STATUS", "ROWS", "TIME", "ERROR"}, rows)

	return nil
}

func toHistoryJSON(e history.Entry) historyJSON {
	out := historyJSON{
		RunID:     e.RunID.String(),
		TableID:   e.TableID,
		File:      e.File,
		Status:    e.Status,
		Rows:      e.Rows,
		Error:     e.Error,
		StartedAt: e.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}

	if !e.FinishedAt.IsZero() {
		out.FinishedAt = e.FinishedAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	return out
}
