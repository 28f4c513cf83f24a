package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *sheet.Memory, *fakeClock) {
	t.Helper()
	mem := sheet.NewMemory()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 17, 30, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(mem, logger, opts...), mem, clock
}

func janeDoe() Fields {
	return Fields{
		EmployeeName: "Jane Doe",
		Date:         "2025-06-02",
		DayOfWeek:    "Monday",
		TimeIn:       "07:00",
		TimeOut:      "17:30",
		EquipmentNum: "T-12",
		BegMiles:     "1200",
		EndMiles:     "1350",
		TotalMiles:   "150",
		FuelGallons:  "22",
		TruckDefects: []string{"Brakes", "Brakes", "Horn"},
		Signature:    "Jane Doe",
		WorkLogRows: []WorkLogRow{
			{LoadTime: "07:30", DelTime: "08:15", MaterialType: "Gravel", NumLoads: "2"},
			{LoadTime: "09:00", DelTime: "10:00", JobDesc: "Site prep", JobHours: "1"},
		},
	}
}

var idPattern = regexp.MustCompile(`^TC-\d+$`)

func TestAppendThenList(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
	assert.Equal(t, fmt.Sprintf("TC-%d", clock.now.UnixMilli()), id)

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	card := cards[0]
	assert.Equal(t, 2, card.RowNumber)
	assert.Equal(t, id, card.SubmissionID)
	assert.Equal(t, "2025-06-02T17:30:00Z", card.Timestamp)
	assert.Equal(t, StatusPending, card.Status)
	assert.Equal(t, "no", card.Injured)
	assert.Equal(t, []string{"Brakes", "Horn"}, card.TruckDefects)
	assert.Equal(t, []string{}, card.TrailerDefects)
	require.Len(t, card.WorkLogRows, 2)
	assert.Equal(t, "Gravel", card.WorkLogRows[0].MaterialType)
	assert.Equal(t, "Site prep", card.WorkLogRows[1].JobDesc)
	assert.Empty(t, card.ManagerNotes)
}

func TestAppendIgnoresReviewFields(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	fields := janeDoe()
	fields.ManagerNotes = "sneaky"
	fields.InvoiceNum = "INV-1"
	_, err := l.Append(ctx, fields)
	require.NoError(t, err)

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Empty(t, cards[0].ManagerNotes)
	assert.Empty(t, cards[0].InvoiceNum)
}

func TestAppendIDsAreUniqueWithinOneMillisecond(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := l.Append(ctx, janeDoe())
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestAppendIDsSkipPastHandEnteredFutureIDs(t *testing.T) {
	l, mem, clock := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, mem.InsertTable(ctx, Table, Header()))
	future := clock.now.Add(time.Hour).UnixMilli()
	_, err := mem.Append(ctx, Table, []string{fmt.Sprintf("TC-%d", future)})
	require.NoError(t, err)

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("TC-%d", future+1), id)
}

func TestFindBySubmissionID(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.FindBySubmissionID(ctx, "TC-1")
	assert.True(t, apperr.IsNotFound(err), "missing sheet")

	first, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)
	second, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)

	row, err := l.FindBySubmissionID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	row, err = l.FindBySubmissionID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, row)

	_, err = l.FindBySubmissionID(ctx, "TC-0")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "Time card not found with submission ID: TC-0", err.Error())
}

func TestListAllOnMissingSheetIsEmpty(t *testing.T) {
	l, _, _ := newTestLedger(t)
	cards, err := l.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.NotNil(t, cards)
}

func TestListAllNormalisesHandEditedCells(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)

	// 45810 is 2025-06-02; 0.3125 of a day is 07:30.
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 4, "45810"))
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 6, "0.3125"))
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 7, "5:15 PM"))
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 15, "{not json"))
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 21, `[{"load_time":"0.5","del_time":"13:45:00"}]`))
	require.NoError(t, mem.WriteCell(ctx, Table, 2, 18, ""))

	_, err = mem.Append(ctx, Table, []string{"", "", "orphan row without an id"})
	require.NoError(t, err)

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	card := cards[0]
	assert.Equal(t, id, card.SubmissionID)
	assert.Equal(t, "2025-06-02", card.Date)
	assert.Equal(t, "07:30", card.TimeIn)
	assert.Equal(t, "17:15", card.TimeOut)
	assert.Equal(t, []string{}, card.TruckDefects)
	assert.Equal(t, "no", card.Injured)
	require.Len(t, card.WorkLogRows, 1)
	assert.Equal(t, "12:00", card.WorkLogRows[0].LoadTime)
	assert.Equal(t, "13:45", card.WorkLogRows[0].DelTime)
}

func TestLegacySchemaIsExtended(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()

	legacy := []string{
		"Submission ID", "Timestamp", "Employee Name", "Date", "Day of Week",
		"Equipment #", "Beg Miles/Hrs", "End Miles/Hrs", "Total Miles", "Fuel Gallons",
		"Injured", "Injury Details", "Signature", "Work Log JSON", "Status", "Manager Notes",
	}
	require.NoError(t, mem.InsertTable(ctx, Table, legacy))
	_, err := mem.Append(ctx, Table, []string{
		"TC-100", "2024-01-05T10:00:00Z", "Old Driver", "2024-01-05", "Friday",
		"T-1", "10", "20", "10", "5", "yes", "cut finger", "OD", "[]", "Approved", "fine",
	})
	require.NoError(t, err)

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Old Driver", cards[0].EmployeeName)
	assert.Equal(t, "T-1", cards[0].EquipmentNum)
	assert.Equal(t, StatusApproved, cards[0].Status)
	assert.Equal(t, "fine", cards[0].ManagerNotes)
	assert.Empty(t, cards[0].TimeIn)

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)

	rows, err := mem.ReadAll(ctx, Table)
	require.NoError(t, err)
	assert.Len(t, rows[0], len(columns))
	assert.Equal(t, legacy, rows[0][:len(legacy)])

	cards, err = l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, id, cards[1].SubmissionID)
	assert.Equal(t, "07:00", cards[1].TimeIn)
	assert.Equal(t, []string{"Brakes", "Horn"}, cards[1].TruckDefects)
}

func TestApproveOverwritesAndExports(t *testing.T) {
	l, mem, _ := newTestLedger(t, WithExport(true, "ACME HAULING"))
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)

	reviewed := janeDoe()
	reviewed.TotalMiles = "151"
	reviewed.ManagerNotes = "checked"
	reviewed.InvoiceNum = "INV-9"
	require.NoError(t, l.Approve(ctx, id, reviewed))

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, StatusApproved, cards[0].Status)
	assert.Equal(t, "151", cards[0].TotalMiles)
	assert.Equal(t, "checked", cards[0].ManagerNotes)
	assert.Equal(t, "INV-9", cards[0].InvoiceNum)
	assert.Equal(t, id, cards[0].SubmissionID)
	assert.Equal(t, "2025-06-02T17:30:00Z", cards[0].Timestamp)

	block, err := mem.ReadAll(ctx, "Jane Doe")
	require.NoError(t, err)
	require.NotEmpty(t, block)
	assert.Equal(t, []string{""}, block[0])
	assert.Equal(t, "ACME HAULING - EMPLOYEE TIME CARD", block[1][0])
	assert.Equal(t, []string{"SUBMISSION ID:", id}, block[2])
	assert.Contains(t, block, []string{"MANAGER NOTES:", "checked"})
	assert.Contains(t, block, []string{"INVOICE #:", "INV-9"})
	assert.Contains(t, block, []string{"TOTAL MILES:", "151"})
	assert.Contains(t, block, []string{"TRUCK DEFECTS:", "Brakes, Horn"})
	assert.Contains(t, block, workLogHeader)
	assert.Equal(t, "1", block[indexOf(block, workLogHeader)+1][0])
	assert.Equal(t, "2", block[indexOf(block, workLogHeader)+2][0])
	assert.Equal(t, []string{"END OF TIME CARD"}, block[len(block)-1])

	require.NoError(t, l.Approve(ctx, id, reviewed))
	again, err := mem.ReadAll(ctx, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, 2*len(block), len(again), "re-approval appends another block")
}

func indexOf(rows [][]string, want []string) int {
	for i, row := range rows {
		if assert.ObjectsAreEqual(want, row) {
			return i
		}
	}
	return -1
}

func TestApproveWithoutExport(t *testing.T) {
	l, mem, _ := newTestLedger(t, WithExport(false, ""))
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)
	require.NoError(t, l.Approve(ctx, id, janeDoe()))

	_, err = mem.ReadAll(ctx, "Jane Doe")
	assert.True(t, apperr.IsNotFound(err))
}

func TestApproveUnknownID(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.Approve(ctx, "TC-404", janeDoe())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = l.Append(ctx, janeDoe())
	require.NoError(t, err)
	err = l.Approve(ctx, "TC-404", janeDoe())
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "TC-404")
}

func TestUpdateKeepsStatus(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)

	changed := janeDoe()
	changed.FuelGallons = "30"
	changed.WorkLogRows = nil
	require.NoError(t, l.Update(ctx, id, changed))

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, StatusPending, cards[0].Status)
	assert.Equal(t, "30", cards[0].FuelGallons)
	assert.Equal(t, []WorkLogRow{}, cards[0].WorkLogRows)

	require.NoError(t, l.Approve(ctx, id, changed))
	require.NoError(t, l.Update(ctx, id, changed))
	cards, err = l.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, cards[0].Status, "update never reverts approval")
}

func TestEmployeeSheet(t *testing.T) {
	assert.Equal(t, "Jane Doe", EmployeeSheet("Jane Doe"))
	assert.Equal(t, "Employee - master", EmployeeSheet("master"))
	assert.Equal(t, "Employee - Sessions", EmployeeSheet("Sessions"))
	assert.Equal(t, "Unnamed", EmployeeSheet("  "))
	assert.Equal(t, "O-Brien (night)", EmployeeSheet("O/Brien [night]"))
}

func oversizedWorkLog() []WorkLogRow {
	rows := make([]WorkLogRow, 400)
	for i := range rows {
		rows[i] = WorkLogRow{LoadTime: "07:30", DelTime: "08:15", JobDesc: strings.Repeat("x", 100)}
	}
	return rows
}

func TestAppendRejectsCellsPastWorkbookLimit(t *testing.T) {
	ctx := context.Background()
	wb := sheet.NewWorkbook(filepath.Join(t.TempDir(), "timecards.xlsx"))
	l := New(wb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	fields := janeDoe()
	fields.WorkLogRows = oversizedWorkLog()
	require.Greater(t, len(encodeWorkLog(fields.WorkLogRows)), sheet.MaxCellChars)

	_, err := l.Append(ctx, fields)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Work Log JSON exceeds the spreadsheet cell limit")

	cards, err := l.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, cards)

	// A large log that still fits is stored and read back whole.
	fields.WorkLogRows = fields.WorkLogRows[:100]
	require.LessOrEqual(t, len(encodeWorkLog(fields.WorkLogRows)), sheet.MaxCellChars)
	id, err := l.Append(ctx, fields)
	require.NoError(t, err)
	cards, err = l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, id, cards[0].SubmissionID)
	assert.Len(t, cards[0].WorkLogRows, 100)
}

func TestApproveRejectsCellsPastWorkbookLimit(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Append(ctx, janeDoe())
	require.NoError(t, err)
	before, err := mem.ReadAll(ctx, Table)
	require.NoError(t, err)

	fields := janeDoe()
	fields.WorkLogRows = oversizedWorkLog()
	err = l.Approve(ctx, id, fields)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	after, err := mem.ReadAll(ctx, Table)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
