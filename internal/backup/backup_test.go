package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phillip-england/timecard/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultName(t *testing.T) {
	now := time.Date(2025, 6, 2, 17, 30, 5, 0, time.UTC)
	assert.Equal(t, "data/timecards.xlsx.20250602-173005.xz", DefaultName("data/timecards.xlsx", now))
}

func TestWriteThenRestoreWorkbook(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "timecards.xlsx")

	wb := sheet.NewWorkbook(path)
	require.NoError(t, wb.InsertTable(ctx, "Master", []string{"Submission ID", "Status"}))
	_, err := wb.Append(ctx, "Master", []string{"TC-1", "Pending"})
	require.NoError(t, err)

	backupPath := DefaultName(path, time.Now())
	require.NoError(t, WriteFile(backupPath, path))
	assert.Error(t, WriteFile(backupPath, path), "existing backups are not overwritten")

	require.NoError(t, wb.WriteCell(ctx, "Master", 2, 2, "Approved"))
	require.NoError(t, RestoreFile(backupPath, path))

	rows, err := wb.ReadAll(ctx, "Master")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Submission ID", "Status"}, {"TC-1", "Pending"}}, rows)
}

func TestRestoreRejectsGarbageAndKeepsWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timecards.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o600))

	err := Restore(bytes.NewReader([]byte("not xz at all")), path)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestWriteMissingSource(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, filepath.Join(t.TempDir(), "missing.xlsx")))
}
