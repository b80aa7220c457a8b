package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
	"loan-intake/internal/records"
	"loan-intake/internal/shared/telemetry"
)

const defaultPageSize = 500

// Service renders stored records as XLSX workbooks.
type Service struct {
	Store    records.Store
	PageSize int
}

// NewService constructs a Service.
func NewService(store records.Store) *Service {
	return &Service{Store: store, PageSize: defaultPageSize}
}

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName returns the download name for a family export.
func FileName(family documents.Family, now time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", family, now.UTC().Format("20060102-150405"))
}

// XLSX returns one sheet named after family: a header row of id, created_at
// and the family's columns in column order, then one row per stored record,
// newest first.
func (s *Service) XLSX(ctx context.Context, family documents.Family) ([]byte, error) {
	start := time.Now()
	cols, err := extraction.FamilyFields(family)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", records.ErrUnknownFamily, string(family))
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := string(family)
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := append([]string{"id", "created_at"}, names(cols)...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	_ = f.SetColWidth(sheet, "B", "B", 22)
	if last, err := excelize.ColumnNumberToName(len(headers)); err == nil && len(headers) > 2 {
		_ = f.SetColWidth(sheet, "C", last, 20)
	}

	row := 2
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	for offset := 0; ; offset += pageSize {
		rows, err := s.Store.List(ctx, family, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", family, err)
		}
		for _, r := range rows {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, r.ID)
			write(2, r.CreatedAt.UTC().Format(time.RFC3339))
			values := extraction.Record{Entries: r.Fields}
			for i, c := range cols {
				if v, ok := values.Get(c.Name); ok && v != nil {
					write(i+3, v)
				}
			}
			row++
		}
		if len(rows) < pageSize {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	telemetry.Info("export.xlsx", map[string]any{
		"family":     string(family),
		"rows":       row - 2,
		"bytes":      buf.Len(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return buf.Bytes(), nil
}

func names(fields []extraction.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
