package app

import (
	"context"

	"metalwatch/internal/importer"
)

// Import runs the one-shot CSV backfill against the price store.
func (a *App) Import(ctx context.Context, opts ImportOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	columns := make([]importer.Column, 0, len(a.Config.Import.Columns))
	for _, col := range a.Config.Import.Columns {
		columns = append(columns, importer.Column{
			Header: col.Column,
			Symbol: col.Symbol,
			Name:   col.Name,
		})
	}

	im := importer.New(importer.Options{
		Store:      store,
		TimeColumn: a.Config.Import.TimeColumn,
		TimeFormat: a.Config.Import.TimeFormat,
		Columns:    columns,
	}, a.Logger)

	report, err := im.ImportFile(ctx, opts.Path, opts.Cutoff)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("rows_processed", report.RowsProcessed).
		Int("rows_skipped", report.RowsSkipped).
		Int("inserted", report.Inserted).
		Msg("backfill finished")
	return nil
}
