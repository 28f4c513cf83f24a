package sheet

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// CellsWriter is implemented by stores that can write several cells of one row
// in a single round trip.
type CellsWriter interface {
	WriteCells(ctx context.Context, table string, row int, cells map[int]string) error
}

// RowsAppender is implemented by stores that can append several rows in a
// single round trip.
type RowsAppender interface {
	AppendRows(ctx context.Context, table string, rows [][]string) error
}

// WriteCells writes cells (keyed by 1-based column) into row, batching when
// the store supports it.
func WriteCells(ctx context.Context, s Store, table string, row int, cells map[int]string) error {
	if w, ok := s.(CellsWriter); ok {
		return w.WriteCells(ctx, table, row, cells)
	}
	for _, col := range sortedColumns(cells) {
		if err := s.WriteCell(ctx, table, row, col, cells[col]); err != nil {
			return err
		}
	}
	return nil
}

// AppendRows appends rows in order, batching when the store supports it.
func AppendRows(ctx context.Context, s Store, table string, rows [][]string) error {
	if a, ok := s.(RowsAppender); ok {
		return a.AppendRows(ctx, table, rows)
	}
	for _, row := range rows {
		if _, err := s.Append(ctx, table, row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) WriteCells(ctx context.Context, table string, row int, cells map[int]string) error {
	return w.update(func(f *excelize.File) (bool, error) {
		if !hasSheet(f, table) {
			return false, ErrTableNotFound
		}
		for _, col := range sortedColumns(cells) {
			name, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return false, errors.Wrapf(err, "cell (%d,%d)", row, col)
			}
			if !FitsCell(cells[col]) {
				return false, errCellTooLong(table, name)
			}
			if err := f.SetCellStr(table, name, cells[col]); err != nil {
				return false, errors.Wrapf(err, "write %s!%s", table, name)
			}
		}
		return len(cells) > 0, nil
	})
}

func (w *Workbook) AppendRows(ctx context.Context, table string, rows [][]string) error {
	return w.update(func(f *excelize.File) (bool, error) {
		if !hasSheet(f, table) {
			return false, ErrTableNotFound
		}
		existing, err := f.GetRows(table, excelize.Options{RawCellValue: true})
		if err != nil {
			return false, errors.Wrapf(err, "read rows of %s", table)
		}
		next := len(existing) + 1
		for i, row := range rows {
			if err := setRow(f, table, next+i, row); err != nil {
				return false, err
			}
		}
		return len(rows) > 0, nil
	})
}

func sortedColumns(cells map[int]string) []int {
	cols := make([]int, 0, len(cells))
	for col := range cells {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	return cols
}
