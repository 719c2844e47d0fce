// Package pipeline feeds local files through a table's row import, one at a
// time and in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eternadata/ftables-go/internal/fusion"
)

// ErrNoTable is returned when Run is called without a target table.
var ErrNoTable = errors.New("pipeline: no target table")

// RowImporter imports one file into the table it is bound to.
type RowImporter interface {
	ImportRows(ctx context.Context, path string) (*fusion.ImportResult, error)
}

// Binder returns a RowImporter bound to tableID.
type Binder func(tableID string) RowImporter

// ForClient reuses c for every run by rebinding it to the target table.
func ForClient(c *fusion.TableClient) Binder {
	return func(tableID string) RowImporter {
		return c.Rebind(tableID)
	}
}

// Recorder keeps a history of imports. Satisfied by *history.Ledger.
type Recorder interface {
	Begin(ctx context.Context, runID uuid.UUID, tableID, file string) (int64, error)
	Finish(ctx context.Context, id, rows int64, importErr error) error
	Skip(ctx context.Context, runID uuid.UUID, tableID, file string) error
}

// Config configures a Pipeline.
type Config struct {
	Bind Binder
	// Recorder is optional. Recording failures are logged and never fail
	// an import.
	Recorder Recorder
	Logger   *slog.Logger
}

// Pipeline runs ordered multi-file imports.
type Pipeline struct {
	bind     Binder
	recorder Recorder
	logger   *slog.Logger
	newRunID func() uuid.UUID
}

// New returns a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		bind:     cfg.Bind,
		recorder: cfg.Recorder,
		logger:   logger,
		newRunID: uuid.New,
	}
}

// FileResult is the outcome of one imported file.
type FileResult struct {
	Path     string
	Rows     int64
	Duration time.Duration
}

// Report describes a completed or aborted run.
type Report struct {
	RunID    uuid.UUID
	TableID  string
	Imported []FileResult
	// Failed is the file that aborted the run, if any.
	Failed string
	// Skipped lists files never attempted because of the failure.
	Skipped []string
}

// Run imports paths into tableID in the given order. The first failure
// stops the run: later files are not attempted and the error is returned
// along with a report of what completed.
func (p *Pipeline) Run(ctx context.Context, tableID string, paths []string) (*Report, error) {
	if tableID == "" {
		return nil, ErrNoTable
	}

	report := &Report{RunID: p.newRunID(), TableID: tableID}
	importer := p.bind(tableID)

	p.logger.Info("import run started",
		slog.String("run_id", report.RunID.String()),
		slog.String("table_id", tableID),
		slog.Int("files", len(paths)),
	)

	for i, path := range paths {
		res, err := p.importOne(ctx, importer, report, path)
		if err != nil {
			report.Failed = path
			report.Skipped = append([]string(nil), paths[i+1:]...)
			p.recordSkipped(ctx, report)

			p.logger.Error("import run aborted",
				slog.String("run_id", report.RunID.String()),
				slog.String("file", path),
				slog.Int("skipped", len(report.Skipped)),
				slog.String("error", err.Error()),
			)

			return report, fmt.Errorf("pipeline: importing %s: %w", path, err)
		}

		report.Imported = append(report.Imported, res)
	}

	p.logger.Info("import run complete",
		slog.String("run_id", report.RunID.String()),
		slog.Int("files", len(report.Imported)),
	)

	return report, nil
}

func (p *Pipeline) importOne(ctx context.Context, importer RowImporter, report *Report, path string) (FileResult, error) {
	entry := p.begin(ctx, report, path)
	start := time.Now()

	res, err := importer.ImportRows(ctx, path)

	var rows int64
	if res != nil {
		rows = res.NumRowsReceived
	}

	p.finish(ctx, entry, rows, err)

	if err != nil {
		return FileResult{}, err
	}

	p.logger.Info("file imported",
		slog.String("file", path),
		slog.Int64("rows", rows),
	)

	return FileResult{Path: path, Rows: rows, Duration: time.Since(start)}, nil
}

// begin returns the history entry id, or 0 when nothing was recorded.
func (p *Pipeline) begin(ctx context.Context, report *Report, path string) int64 {
	if p.recorder == nil {
		return 0
	}

	id, err := p.recorder.Begin(ctx, report.RunID, report.TableID, path)
	if err != nil {
		p.warnRecord(err)
		return 0
	}

	return id
}

func (p *Pipeline) finish(ctx context.Context, id, rows int64, importErr error) {
	if p.recorder == nil || id == 0 {
		return
	}

	if err := p.recorder.Finish(ctx, id, rows, importErr); err != nil {
		p.warnRecord(err)
	}
}

func (p *Pipeline) recordSkipped(ctx context.Context, report *Report) {
	if p.recorder == nil {
		return
	}

	for _, path := range report.Skipped {
		if err := p.recorder.Skip(ctx, report.RunID, report.TableID, path); err != nil {
			p.warnRecord(err)
			return
		}
	}
}

func (p *Pipeline) warnRecord(err error) {
	p.logger.Warn("failed to record import history", slog.String("error", err.Error()))
}
