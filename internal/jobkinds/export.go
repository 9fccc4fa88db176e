package jobkinds

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/target/jobtrack/internal/domain/task"
)

const maxExportRows = 100_000

var exportFields = []string{"format", "rows", "label"}

type exportParams struct {
	Format string `json:"format"`
	Rows   int64  `json:"rows"`
	Label  string `json:"label"`
}

// ExportResult summarises a finished export.
type ExportResult struct {
	Format   string `json:"format"`
	Rows     int64  `json:"rows"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"sha256"`
}

// runExport renders a synthetic table in the requested format and reports its size and checksum.
func runExport(ctx context.Context, exec *task.Execution) (any, error) {
	var p exportParams
	if err := exec.Parameters.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode export parameters: %w", err)
	}
	if p.Format == "" {
		p.Format = "csv"
	}
	if p.Format != "csv" && p.Format != "json" {
		return nil, fmt.Errorf("unsupported export format %q", p.Format)
	}
	if p.Rows < 0 {
		return nil, fmt.Errorf("rows must not be negative, got %d", p.Rows)
	}
	log := exec.Logger()
	if p.Rows > maxExportRows {
		log.WarnContext(ctx, fmt.Sprintf("rows capped at %d (requested %d)", maxExportRows, p.Rows))
		p.Rows = maxExportRows
	}
	log.InfoContext(ctx, "export started", "format", p.Format, "rows", p.Rows, "label", p.Label)

	var buf bytes.Buffer
	write, flush := newRowWriter(p, &buf)

	step := max(p.Rows/10, 1)
	for i := int64(1); i <= p.Rows; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := write(i); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
		if i%step == 0 || i == p.Rows {
			if err := exec.ReportProgress(ctx, i, p.Rows); err != nil {
				log.WarnContext(ctx, "progress update failed", "error", err)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("flush export: %w", err)
	}

	res := finishExport(p, &buf)
	log.InfoContext(ctx, "export finished", "bytes", res.Bytes)
	return res, nil
}

func finishExport(p exportParams, buf *bytes.Buffer) ExportResult {
	sum := sha256.Sum256(buf.Bytes())
	return ExportResult{
		Format:   p.Format,
		Rows:     p.Rows,
		Bytes:    buf.Len(),
		Checksum: hex.EncodeToString(sum[:]),
	}
}

// newRowWriter returns a row encoder for p.Format and a func that completes the output.
func newRowWriter(p exportParams, buf *bytes.Buffer) (write func(int64) error, flush func() error) {
	if p.Format == "json" {
		enc := json.NewEncoder(buf)
		return func(i int64) error {
			return enc.Encode(map[string]any{"row": i, "label": p.Label})
		}, func() error { return nil }
	}

	w := csv.NewWriter(buf)
	header := true
	return func(i int64) error {
			if header {
				header = false
				if err := w.Write([]string{"row", "label"}); err != nil {
					return err
				}
			}
			return w.Write([]string{strconv.FormatInt(i, 10), p.Label})
		}, func() error {
			w.Flush()
			return w.Error()
		}
}
