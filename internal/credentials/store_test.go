package credentials

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/security"
	"github.com/phillip-england/timecard/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T) (*Store, *sheet.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := sheet.NewMemory()
	require.NoError(t, mem.InsertTable(ctx, Table, Header))
	_, err := mem.Append(ctx, Table, []string{"John Doe", security.Hash("1234"), RoleDriver})
	require.NoError(t, err)
	_, err = mem.Append(ctx, Table, []string{"", "orphan", ""})
	require.NoError(t, err)
	_, err = mem.Append(ctx, Table, []string{"Jane Smith", "5678", RoleManager})
	require.NoError(t, err)
	return NewStore(mem, discardLogger()), mem
}

func TestLookup(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	emp, err := store.Lookup(ctx, "John Doe")
	require.NoError(t, err)
	assert.Equal(t, security.Hash("1234"), emp.PasswordHash)
	assert.Equal(t, RoleDriver, emp.Role)

	_, err = store.Lookup(ctx, "john doe")
	assert.True(t, apperr.IsNotFound(err))
}

func TestLookupMissingSheet(t *testing.T) {
	store := NewStore(sheet.NewMemory(), discardLogger())
	_, err := store.Lookup(context.Background(), "John Doe")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "Employees sheet not found")
}

func TestNamesSkipsBlankRows(t *testing.T) {
	store, _ := seededStore(t)
	names, err := store.Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"John Doe", "Jane Smith"}, names)
}

func TestNamesWithoutData(t *testing.T) {
	mem := sheet.NewMemory()
	require.NoError(t, mem.InsertTable(context.Background(), Table, Header))
	_, err := NewStore(mem, discardLogger()).Names(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No employee data found")
}

func TestRehashAllIsIdempotent(t *testing.T) {
	store, mem := seededStore(t)
	ctx := context.Background()

	n, err := store.RehashAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "plaintext 5678 and orphan row")

	rows, err := mem.ReadAll(ctx, Table)
	require.NoError(t, err)
	assert.Equal(t, security.Hash("5678"), rows[3][1])
	assert.Equal(t, security.Hash("1234"), rows[1][1])

	n, err = store.RehashAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRehashAllHonoursHeaderOrder(t *testing.T) {
	ctx := context.Background()
	mem := sheet.NewMemory()
	require.NoError(t, mem.InsertTable(ctx, Table, []string{"Role", "Name", "Login (Password)"}))
	_, err := mem.Append(ctx, Table, []string{RoleDriver, "Sam Hill", "pw"})
	require.NoError(t, err)

	store := NewStore(mem, discardLogger())
	_, err = store.RehashAll(ctx)
	require.NoError(t, err)

	emp, err := store.Lookup(ctx, "Sam Hill")
	require.NoError(t, err)
	assert.Equal(t, security.Hash("pw"), emp.PasswordHash)
	assert.Equal(t, RoleDriver, emp.Role)
}

func TestAddAndImport(t *testing.T) {
	ctx := context.Background()
	store := NewStore(sheet.NewMemory(), discardLogger())

	require.NoError(t, store.Add(ctx, "Jane Doe", "secret", RoleDriver))
	assert.ErrorIs(t, store.Add(ctx, "Jane Doe", "other", RoleDriver), ErrEmployeeExists)

	result, err := store.Import(ctx, [][]string{
		{"Name", "Password", "Role"},
		{"Jane Doe", "x", "Driver"},
		{"Bob Ray", "9999", "Manager"},
		{"", "", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1, Skipped: 1}, result)

	emp, err := store.Lookup(ctx, "Bob Ray")
	require.NoError(t, err)
	assert.Equal(t, security.Hash("9999"), emp.PasswordHash)

	_, err = store.Import(ctx, [][]string{{"Who", "What"}})
	assert.Error(t, err)
}

func TestSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`employees:
  - name: Jane Doe
    password: "1234"
    role: Driver
  - name: Missing Password
    role: Driver
`), 0o600))

	store := NewStore(sheet.NewMemory(), discardLogger())
	result, err := store.SeedFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	emp, err := store.Lookup(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, security.Hash("1234"), emp.PasswordHash)
}

func TestWatchWorkbookRehashesManualEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "book.xlsx")
	book := sheet.NewWorkbook(path)
	require.NoError(t, book.InsertTable(ctx, Table, Header))
	store := NewStore(book, discardLogger())

	done := make(chan error, 1)
	go func() { done <- store.WatchWorkbook(ctx, path) }()
	time.Sleep(100 * time.Millisecond)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(Table, "A2", &[]interface{}{"Jane Doe", "1234", RoleDriver}))
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		emp, err := store.Lookup(context.Background(), "Jane Doe")
		return err == nil && emp.PasswordHash == security.Hash("1234")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
