package syncer

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/livinlefevreloca/fastadapter/internal/db"
)

// SummaryWriter persists a batch of summary records
type SummaryWriter interface {
	WriteSummaries(ctx context.Context, records []SummaryRecord) error
}

// MultiWriter writes every batch to each of its writers in order.
// A failing writer does not stop the others.
type MultiWriter []SummaryWriter

// WriteSummaries implements SummaryWriter
func (m MultiWriter) WriteSummaries(ctx context.Context, records []SummaryRecord) error {
	var errs []error
	for i, w := range m {
		if err := w.WriteSummaries(ctx, records); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "writer %d", i))
		}
	}
	return errors.Join(errs...)
}

// DBWriter stores summaries in the batch_summaries table
type DBWriter struct {
	db *db.DB
}

// NewDBWriter creates a writer backed by database
func NewDBWriter(database *db.DB) *DBWriter {
	return &DBWriter{db: database}
}

// WriteSummaries implements SummaryWriter in a single transaction
func (w *DBWriter) WriteSummaries(ctx context.Context, records []SummaryRecord) error {
	rows := make([]db.BatchSummary, len(records))
	for i, r := range records {
		rows[i] = db.BatchSummary{
			BatchID:   r.BatchID,
			Kind:      r.Kind,
			JobCount:  r.JobCount,
			OpenedAt:  r.OpenedAt,
			FlushedAt: r.FlushedAt,
			ElapsedMs: r.ElapsedMs,
			Faults:    r.Faults,
		}
		if r.LedgerError != "" {
			ledgerError := r.LedgerError
			rows[i].LedgerError = &ledgerError
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return pkgerrors.Wrap(w.db.CreateBatchSummaries(rows), "store batch summaries")
}
