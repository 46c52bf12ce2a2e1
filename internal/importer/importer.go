package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/metrics"
	"metalwatch/internal/storage"
)

// Column maps a CSV column header to an instrument.
type Column struct {
	Header string
	Symbol string
	Name   string
}

// Options wire a CSV backfill importer.
type Options struct {
	Store      storage.PriceAppender
	TimeColumn string
	TimeFormat string
	Columns    []Column
}

// Report summarises one import run.
type Report struct {
	RowsProcessed int
	RowsSkipped   int
	Inserted      int
}

// Importer loads historical prices from a CSV export into the price store.
// Rows at or after the cutoff are excluded so live ingestion is never
// double-counted.
type Importer struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs an importer.
func New(opts Options, logger zerolog.Logger) *Importer {
	if opts.TimeColumn == "" {
		opts.TimeColumn = "time"
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = "2006-01-02 15:04:05"
	}
	return &Importer{opts: opts, logger: logger.With().Str("component", "importer").Logger()}
}

// ImportFile opens a CSV file and runs Import on it.
func (im *Importer) ImportFile(ctx context.Context, path string, cutoff time.Time) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	return im.Import(ctx, file, cutoff)
}

// Import reads the CSV, validates rows, and appends every accepted entry in
// one bulk write. Bad rows and cells are skipped, never fatal.
func (im *Importer) Import(ctx context.Context, r io.Reader, cutoff time.Time) (Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Report{}, fmt.Errorf("read csv header: %w", err)
	}

	timeIdx := -1
	position := make(map[string]int, len(header))
	for i, field := range header {
		name := strings.TrimSpace(field)
		if name == im.opts.TimeColumn {
			timeIdx = i
			continue
		}
		position[name] = i
	}
	if timeIdx < 0 {
		return Report{}, fmt.Errorf("csv missing %q column", im.opts.TimeColumn)
	}

	type boundColumn struct {
		Column
		idx int
	}
	bound := make([]boundColumn, 0, len(im.opts.Columns))
	for _, col := range im.opts.Columns {
		if idx, ok := position[col.Header]; ok {
			bound = append(bound, boundColumn{Column: col, idx: idx})
		}
	}
	if len(bound) == 0 {
		return Report{}, fmt.Errorf("csv contains none of the configured instrument columns")
	}

	cutoff = cutoff.UTC()
	var report Report
	entries := make([]storage.PriceObservation, 0)

	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			report.RowsSkipped++
			im.logger.Warn().Err(readErr).Msg("skipping malformed csv row")
			continue
		}

		report.RowsProcessed++

		raw := ""
		if timeIdx < len(record) {
			raw = strings.TrimSpace(record[timeIdx])
		}
		if raw == "" {
			report.RowsSkipped++
			im.logger.Warn().Int("row", report.RowsProcessed).Msg("skipping row with missing time")
			continue
		}

		observedAt, parseErr := time.ParseInLocation(im.opts.TimeFormat, raw, time.UTC)
		if parseErr != nil {
			report.RowsSkipped++
			im.logger.Warn().Str("time", raw).Msg("skipping row with invalid time")
			continue
		}

		// Rows from the cutoff onward are assumed covered by live ingestion.
		if !observedAt.Before(cutoff) {
			report.RowsSkipped++
			continue
		}

		for _, col := range bound {
			if col.idx >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[col.idx])
			if cell == "" {
				continue
			}

			price, convErr := decimal.NewFromString(cell)
			if convErr != nil || !price.IsPositive() {
				im.logger.Warn().Str("symbol", col.Symbol).Str("time", raw).Msg("skipping invalid price cell")
				continue
			}

			entries = append(entries, storage.PriceObservation{
				Symbol:     col.Symbol,
				Name:       col.Name,
				USDPrice:   price,
				ObservedAt: observedAt,
			})
		}
	}

	if len(entries) == 0 {
		im.logger.Info().Int("rows", report.RowsProcessed).Msg("nothing to import")
		return report, nil
	}

	if err := im.opts.Store.InsertPrices(ctx, entries); err != nil {
		return report, fmt.Errorf("bulk insert: %w", err)
	}

	report.Inserted = len(entries)
	metrics.ImportRowsInsertedTotal.Add(float64(report.Inserted))
	im.logger.Info().
		Int("rows", report.RowsProcessed).
		Int("skipped", report.RowsSkipped).
		Int("inserted", report.Inserted).
		Msg("import complete")
	return report, nil
}
