package sheet

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-process Store. It behaves like Workbook, including the
// trimming of trailing empty rows on read.
type Memory struct {
	mu     sync.Mutex
	tables map[string][][]string
}

func NewMemory() *Memory {
	return &Memory{tables: map[string][][]string{}}
}

func (m *Memory) ReadAll(ctx context.Context, table string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	rows = trimTrailingEmpty(rows)
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (m *Memory) Append(ctx context.Context, table string, row []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return 0, ErrTableNotFound
	}
	rows = trimTrailingEmpty(rows)
	rows = append(rows, append([]string(nil), row...))
	m.tables[table] = rows
	return len(rows), nil
}

// AppendRows keeps blank rows inside the batch, matching Workbook.
func (m *Memory) AppendRows(ctx context.Context, table string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	existing = trimTrailingEmpty(existing)
	for _, row := range rows {
		existing = append(existing, append([]string(nil), row...))
	}
	m.tables[table] = existing
	return nil
}

func (m *Memory) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	if row < 1 || col < 1 {
		return errors.Errorf("invalid cell coordinates (%d,%d)", row, col)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	for len(rows) < row {
		rows = append(rows, nil)
	}
	for len(rows[row-1]) < col {
		rows[row-1] = append(rows[row-1], "")
	}
	rows[row-1][col-1] = value
	m.tables[table] = rows
	return nil
}

func (m *Memory) InsertTable(ctx context.Context, table string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table]; ok {
		return nil
	}
	m.tables[table] = [][]string{append([]string(nil), header...)}
	return nil
}

func (m *Memory) DeleteRow(ctx context.Context, table string, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	if row < 1 || row > len(rows) {
		return nil
	}
	m.tables[table] = append(rows[:row-1], rows[row:]...)
	return nil
}

// Tables lists table names; tests use it to check sheet creation.
func (m *Memory) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

func trimTrailingEmpty(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && rowIsEmpty(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
