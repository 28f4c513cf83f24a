// Package sheet is the spreadsheet persistence port. Every record in the
// system lives in a named table of string cells; row 1 of each table is the
// header. Coordinates are 1-based to match spreadsheet addressing.
package sheet

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/phillip-england/timecard/internal/apperr"
)

// Store is the five-primitive substrate the credential, session and ledger
// stores are built on.
type Store interface {
	ReadAll(ctx context.Context, table string) ([][]string, error)
	Append(ctx context.Context, table string, row []string) (int, error)
	WriteCell(ctx context.Context, table string, row, col int, value string) error
	InsertTable(ctx context.Context, table string, header []string) error
	DeleteRow(ctx context.Context, table string, row int) error
}

// ErrTableNotFound is returned by ReadAll, Append, WriteCell and DeleteRow
// when the named table does not exist.
var ErrTableNotFound = &apperr.Error{Kind: apperr.KindNotFound, Message: "sheet not found"}

const maxSheetNameLen = 31

// SanitizeName maps an arbitrary label (an employee name, say) to a valid
// worksheet name.
func SanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"[", "(", "]", ")", ":", "-", "*", "-", "?", "", "/", "-", "\\", "-",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	cleaned = strings.Trim(cleaned, "'")
	for utf8.RuneCountInString(cleaned) > maxSheetNameLen {
		_, size := utf8.DecodeLastRuneInString(cleaned)
		cleaned = cleaned[:len(cleaned)-size]
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "Unnamed"
	}
	return cleaned
}

// Cell returns row[idx] trimmed, or "" when the row is too short. Spreadsheet
// rows drop trailing empty cells so short rows are normal.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// HeaderIndex maps lowercased, trimmed header text to its 0-based column.
func HeaderIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return index
}

func NormalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}
