// Package ledger stores submitted time cards in the Master sheet and carries
// them through review and approval.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/sheet"
)

const (
	Table          = "Master"
	idPrefix       = "TC-"
	defaultCompany = "MAPLE CREEK BACKHOE SERVICE INC."
)

type Ledger struct {
	sheets  sheet.Store
	logger  *slog.Logger
	now     func() time.Time
	company string
	export  bool

	// mu serialises writers so id allocation and schema growth see a
	// consistent sheet.
	mu sync.Mutex
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithExport controls the per-employee copy written on approval. An empty
// company keeps the default title.
func WithExport(enabled bool, company string) Option {
	return func(l *Ledger) {
		l.export = enabled
		if strings.TrimSpace(company) != "" {
			l.company = strings.TrimSpace(company)
		}
	}
}

func New(sheets sheet.Store, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		sheets:  sheets,
		logger:  logger,
		now:     time.Now,
		company: defaultCompany,
		export:  true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// layout maps column keys to 0-based indexes in the sheet as it exists.
type layout map[string]int

func resolveLayout(header []string) layout {
	index := sheet.HeaderIndex(header)
	out := make(layout, len(columns))
	for _, c := range columns {
		names := append([]string{c.header}, c.aliases...)
		for _, name := range names {
			if idx, ok := index[sheet.NormalizeHeader(name)]; ok {
				out[c.key] = idx
				break
			}
		}
	}
	return out
}

func (lay layout) cell(row []string, key string) string {
	idx, ok := lay[key]
	if !ok {
		return ""
	}
	return sheet.Cell(row, idx)
}

// load returns the Master rows, creating the sheet and appending any missing
// headers first.
func (l *Ledger) load(ctx context.Context) ([][]string, layout, error) {
	if err := l.sheets.InsertTable(ctx, Table, Header()); err != nil {
		return nil, nil, err
	}
	rows, err := l.sheets.ReadAll(ctx, Table)
	if err != nil {
		return nil, nil, err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	lay, err := l.ensureSchema(ctx, header)
	if err != nil {
		return nil, nil, err
	}
	return rows, lay, nil
}

func (l *Ledger) ensureSchema(ctx context.Context, header []string) (layout, error) {
	lay := resolveLayout(header)
	width := len(header)
	added := map[int]string{}
	for _, c := range columns {
		if _, ok := lay[c.key]; ok {
			continue
		}
		lay[c.key] = width
		added[width+1] = c.header
		width++
	}
	if len(added) == 0 {
		return lay, nil
	}
	if err := sheet.WriteCells(ctx, l.sheets, Table, 1, added); err != nil {
		return nil, err
	}
	l.logger.Info("extended ledger header", slog.Int("columns", len(added)))
	return lay, nil
}

// Append records a new Pending time card and returns its submission id.
func (l *Ledger) Append(ctx context.Context, fields Fields) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, lay, err := l.load(ctx)
	if err != nil {
		return "", err
	}

	now := l.now().UTC()
	id := nextID(rows, lay, now)

	fields.ManagerNotes = ""
	fields.InvoiceNum = ""
	values := fields.cells()
	values[keySubmissionID] = id
	values[keyTimestamp] = now.Format(time.RFC3339)
	values[keyStatus] = string(StatusPending)
	if err := checkCellLimits(values); err != nil {
		return "", err
	}

	row := make([]string, width(lay))
	for key, value := range values {
		row[lay[key]] = value
	}
	written, err := l.sheets.Append(ctx, Table, row)
	if err != nil {
		return "", err
	}
	l.logger.Info("time card submitted",
		slog.String("submission_id", id),
		slog.String("employee", fields.EmployeeName),
		slog.Int("row", written))
	return id, nil
}

// checkCellLimits rejects a card whose encoded column would not fit in one
// spreadsheet cell, naming the first such column in layout order.
func checkCellLimits(values map[string]string) error {
	for _, c := range columns {
		if value, ok := values[c.key]; ok && !sheet.FitsCell(value) {
			return apperr.Validation("%s exceeds the spreadsheet cell limit of %d characters", c.header, sheet.MaxCellChars)
		}
	}
	return nil
}

// nextID returns TC-<n> with n at least the current time in milliseconds and
// strictly greater than every id already in the sheet.
func nextID(rows [][]string, lay layout, now time.Time) string {
	n := now.UnixMilli()
	for i := 1; i < len(rows); i++ {
		existing := lay.cell(rows[i], keySubmissionID)
		suffix, ok := strings.CutPrefix(existing, idPrefix)
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		if v >= n {
			n = v + 1
		}
	}
	return idPrefix + strconv.FormatInt(n, 10)
}

func width(lay layout) int {
	w := 0
	for _, idx := range lay {
		if idx+1 > w {
			w = idx + 1
		}
	}
	return w
}

// FindBySubmissionID returns the 1-based row holding id. The first match wins.
func (l *Ledger) FindBySubmissionID(ctx context.Context, id string) (int, error) {
	rows, err := l.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return 0, apperr.NotFound("Master sheet not found")
		}
		return 0, err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	return findRow(rows, resolveLayout(header), id)
}

func findRow(rows [][]string, lay layout, id string) (int, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		for i := 1; i < len(rows); i++ {
			if lay.cell(rows[i], keySubmissionID) == id {
				return i + 1, nil
			}
		}
	}
	return 0, apperr.NotFound("Time card not found with submission ID: %s", id)
}

// ListAll returns every time card in sheet order. A ledger that has never
// been written to is empty, not an error.
func (l *Ledger) ListAll(ctx context.Context) ([]TimeCard, error) {
	rows, err := l.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return []TimeCard{}, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return []TimeCard{}, nil
	}

	lay := resolveLayout(rows[0])
	cards := make([]TimeCard, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		if lay.cell(rows[i], keySubmissionID) == "" {
			continue
		}
		cards = append(cards, l.decodeRow(rows[i], lay, i+1))
	}
	return cards, nil
}

func (l *Ledger) decodeRow(row []string, lay layout, rowNumber int) TimeCard {
	get := func(key string) string { return lay.cell(row, key) }
	id := get(keySubmissionID)

	card := TimeCard{
		RowNumber:    rowNumber,
		SubmissionID: id,
		Timestamp:    normalizeTimestamp(get(keyTimestamp)),
		Fields: Fields{
			EmployeeName:     get(keyEmployeeName),
			Date:             sheet.NormalizeDate(get(keyDate)),
			DayOfWeek:        get(keyDayOfWeek),
			TimeIn:           sheet.NormalizeClock(get(keyTimeIn)),
			TimeOut:          sheet.NormalizeClock(get(keyTimeOut)),
			EquipmentNum:     get(keyEquipmentNum),
			BegMiles:         get(keyBegMiles),
			EndMiles:         get(keyEndMiles),
			BegRegionalMiles: get(keyBegRegionalMiles),
			EndRegionalMiles: get(keyEndRegionalMiles),
			TotalMiles:       get(keyTotalMiles),
			FuelGallons:      get(keyFuelGallons),
			DefectRemarks:    get(keyDefectRemarks),
			Injured:          get(keyInjured),
			InjuryDetails:    get(keyInjuryDetails),
			Signature:        get(keySignature),
			ManagerNotes:     get(keyManagerNotes),
			InvoiceNum:       get(keyInvoiceNum),
		},
		Status: Status(get(keyStatus)),
	}
	if card.Injured == "" {
		card.Injured = "no"
	}
	if card.Status == "" {
		card.Status = StatusPending
	}

	card.TruckDefects = decodeJSON[[]string](l, id, keyTruckDefects, get(keyTruckDefects))
	card.TrailerDefects = decodeJSON[[]string](l, id, keyTrailerDefects, get(keyTrailerDefects))
	card.WorkLogRows = decodeJSON[[]WorkLogRow](l, id, keyWorkLog, get(keyWorkLog))
	for i := range card.WorkLogRows {
		card.WorkLogRows[i].LoadTime = sheet.NormalizeClock(card.WorkLogRows[i].LoadTime)
		card.WorkLogRows[i].DelTime = sheet.NormalizeClock(card.WorkLogRows[i].DelTime)
	}
	return card
}

// decodeJSON reads a stored sequence. Blank or malformed cells decode as an
// empty sequence.
func decodeJSON[T ~[]E, E any](l *Ledger, id, key, raw string) T {
	out := T{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		if err != nil {
			l.logger.Debug("malformed stored sequence",
				slog.String("submission_id", id),
				slog.String("column", key),
				slog.Any("error", apperr.Serialization(err, "decode %s", key)))
		}
		return T{}
	}
	return out
}

func normalizeTimestamp(value string) string {
	if t, ok := sheet.ParseTime(value); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return value
}

// Approve overwrites the card with the reviewed fields, marks it Approved and
// copies it to the employee's own sheet. A failed copy is logged only.
func (l *Ledger) Approve(ctx context.Context, id string, fields Fields) error {
	card, err := l.overwrite(ctx, id, fields, StatusApproved)
	if err != nil {
		return err
	}
	l.logger.Info("time card approved", slog.String("submission_id", card.SubmissionID), slog.String("employee", card.EmployeeName))
	if !l.export {
		return nil
	}
	if err := l.exportCard(ctx, card); err != nil {
		l.logger.Error("export approved time card",
			slog.String("submission_id", card.SubmissionID),
			slog.Any("error", err))
	}
	return nil
}

// Update overwrites the card's business fields and leaves its status alone.
func (l *Ledger) Update(ctx context.Context, id string, fields Fields) error {
	card, err := l.overwrite(ctx, id, fields, "")
	if err != nil {
		return err
	}
	l.logger.Info("time card updated", slog.String("submission_id", card.SubmissionID))
	return nil
}

// overwrite rewrites every caller-writable column of the card. A non-empty
// status is written too. Submission id and timestamp are never touched.
func (l *Ledger) overwrite(ctx context.Context, id string, fields Fields, status Status) (TimeCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return TimeCard{}, apperr.NotFound("Master sheet not found")
		}
		return TimeCard{}, err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	rowNumber, err := findRow(rows, resolveLayout(header), id)
	if err != nil {
		return TimeCard{}, err
	}
	lay, err := l.ensureSchema(ctx, header)
	if err != nil {
		return TimeCard{}, err
	}

	values := fields.cells()
	if status != "" {
		values[keyStatus] = string(status)
	}
	if err := checkCellLimits(values); err != nil {
		return TimeCard{}, err
	}
	cells := make(map[int]string, len(values))
	for key, value := range values {
		cells[lay[key]+1] = value
	}
	if err := sheet.WriteCells(ctx, l.sheets, Table, rowNumber, cells); err != nil {
		return TimeCard{}, err
	}

	existing := rows[rowNumber-1]
	card := TimeCard{
		RowNumber:    rowNumber,
		SubmissionID: lay.cell(existing, keySubmissionID),
		Timestamp:    normalizeTimestamp(lay.cell(existing, keyTimestamp)),
		Fields:       fields,
		Status:       status,
	}
	if card.Status == "" {
		card.Status = Status(lay.cell(existing, keyStatus))
	}
	if strings.TrimSpace(card.Injured) == "" {
		card.Injured = "no"
	}
	card.TruckDefects = uniqueValues(card.TruckDefects)
	card.TrailerDefects = uniqueValues(card.TrailerDefects)
	return card, nil
}
