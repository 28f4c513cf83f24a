package sheet

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// MaxCellChars is the longest value an .xlsx cell holds. The format truncates
// anything longer, so writes past it are refused.
const MaxCellChars = excelize.TotalCellChars

// FitsCell reports whether value can be stored in one cell intact.
func FitsCell(value string) bool {
	return utf8.RuneCountInString(value) <= MaxCellChars
}

func errCellTooLong(table, cell string) error {
	return apperr.Validation("value for %s!%s exceeds the spreadsheet cell limit of %d characters", table, cell, MaxCellChars)
}

// Workbook stores tables as worksheets of a single .xlsx file. Each primitive
// opens the file, applies its change and saves, so edits made to the file by
// hand between requests are always seen by the next request.
type Workbook struct {
	path string
	mu   sync.Mutex
}

func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

func (w *Workbook) Path() string {
	return w.path
}

func (w *Workbook) ReadAll(ctx context.Context, table string) ([][]string, error) {
	var rows [][]string
	err := w.view(func(f *excelize.File) error {
		if !hasSheet(f, table) {
			return ErrTableNotFound
		}
		var err error
		rows, err = f.GetRows(table, excelize.Options{RawCellValue: true})
		if err != nil {
			return errors.Wrapf(err, "read rows of %s", table)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (w *Workbook) Append(ctx context.Context, table string, row []string) (int, error) {
	var written int
	err := w.update(func(f *excelize.File) (bool, error) {
		if !hasSheet(f, table) {
			return false, ErrTableNotFound
		}
		existing, err := f.GetRows(table, excelize.Options{RawCellValue: true})
		if err != nil {
			return false, errors.Wrapf(err, "read rows of %s", table)
		}
		written = len(existing) + 1
		return true, setRow(f, table, written, row)
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (w *Workbook) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	return w.update(func(f *excelize.File) (bool, error) {
		if !hasSheet(f, table) {
			return false, ErrTableNotFound
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return false, errors.Wrapf(err, "cell (%d,%d)", row, col)
		}
		if !FitsCell(value) {
			return false, errCellTooLong(table, cell)
		}
		if err := f.SetCellStr(table, cell, value); err != nil {
			return false, errors.Wrapf(err, "write %s!%s", table, cell)
		}
		return true, nil
	})
}

func (w *Workbook) InsertTable(ctx context.Context, table string, header []string) error {
	return w.update(func(f *excelize.File) (bool, error) {
		if hasSheet(f, table) {
			return false, nil
		}
		if _, err := f.NewSheet(table); err != nil {
			return false, errors.Wrapf(err, "create sheet %s", table)
		}
		if len(header) == 0 {
			return true, nil
		}
		return true, setRow(f, table, 1, header)
	})
}

func (w *Workbook) DeleteRow(ctx context.Context, table string, row int) error {
	return w.update(func(f *excelize.File) (bool, error) {
		if !hasSheet(f, table) {
			return false, ErrTableNotFound
		}
		if err := f.RemoveRow(table, row); err != nil {
			return false, errors.Wrapf(err, "remove row %d of %s", row, table)
		}
		return true, nil
	})
}

func (w *Workbook) view(fn func(f *excelize.File) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return wrapUpstream(fn(f))
}

// update applies fn and saves the file when fn reports a change. Saving only
// on change keeps the file, and anything watching it, quiet for no-op calls.
func (w *Workbook) update(fn func(f *excelize.File) (bool, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	changed, err := fn(f)
	if err != nil {
		return wrapUpstream(err)
	}
	if !changed {
		return nil
	}
	if dir := filepath.Dir(w.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Upstream(err, "create workbook directory")
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return apperr.Upstream(errors.WithStack(err), "save workbook")
	}
	return nil
}

func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	return nil, apperr.Upstream(errors.WithStack(err), "open workbook")
}

func hasSheet(f *excelize.File, name string) bool {
	idx, err := f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

func setRow(f *excelize.File, table string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrapf(err, "row %d", row)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		if !FitsCell(v) {
			name, _ := excelize.CoordinatesToCellName(i+1, row)
			return errCellTooLong(table, name)
		}
		cells[i] = v
	}
	if err := f.SetSheetRow(table, cell, &cells); err != nil {
		return errors.Wrapf(err, "write row %d of %s", row, table)
	}
	return nil
}

func wrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Upstream(err, "spreadsheet operation failed")
}
