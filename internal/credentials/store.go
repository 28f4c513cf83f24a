// Package credentials reads employee identity rows from the Employees sheet
// and keeps their password cells hashed.
package credentials

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/security"
	"github.com/phillip-england/timecard/internal/sheet"
)

const Table = "Employees"

var Header = []string{"Name", "Login", "Role"}

const (
	RoleDriver  = "Driver"
	RoleManager = "Manager"
)

var ErrEmployeeExists = errors.New("employee already exists")

type Employee struct {
	Name         string
	PasswordHash string
	Role         string
}

type Store struct {
	sheets sheet.Store
	logger *slog.Logger
}

func NewStore(sheets sheet.Store, logger *slog.Logger) *Store {
	return &Store{sheets: sheets, logger: logger}
}

type columns struct {
	name  int
	login int
	role  int
}

func resolveColumns(header []string) columns {
	index := sheet.HeaderIndex(header)
	cols := columns{name: 0, login: 1, role: 2}
	if idx, ok := index["name"]; ok {
		cols.name = idx
	}
	for _, key := range []string{"login", "password", "login (password)"} {
		if idx, ok := index[key]; ok {
			cols.login = idx
			break
		}
	}
	if idx, ok := index["role"]; ok {
		cols.role = idx
	}
	return cols
}

func (s *Store) rows(ctx context.Context) ([][]string, columns, error) {
	rows, err := s.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, columns{}, apperr.NotFound(`Employees sheet not found. Please create a sheet named "Employees" with columns: Name, Login, Role`)
		}
		return nil, columns{}, err
	}
	if len(rows) == 0 {
		return rows, resolveColumns(Header), nil
	}
	return rows, resolveColumns(rows[0]), nil
}

// Lookup finds the employee whose name matches exactly.
func (s *Store) Lookup(ctx context.Context, name string) (Employee, error) {
	rows, cols, err := s.rows(ctx)
	if err != nil {
		return Employee{}, err
	}
	for i := 1; i < len(rows); i++ {
		rowName := sheet.Cell(rows[i], cols.name)
		if rowName == "" || rowName != name {
			continue
		}
		return Employee{
			Name:         rowName,
			PasswordHash: sheet.Cell(rows[i], cols.login),
			Role:         sheet.Cell(rows[i], cols.role),
		}, nil
	}
	return Employee{}, apperr.NotFound("employee %q not found", name)
}

// Names lists employee names in sheet order. Password cells are never read.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, cols, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, apperr.NotFound("No employee data found. Please add employees to the Employees sheet.")
	}
	names := make([]string, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		if name := sheet.Cell(rows[i], cols.name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// RehashAll is the edit hook: every password cell that is not already a
// digest is replaced with one. It returns the number of cells rewritten.
func (s *Store) RehashAll(ctx context.Context) (int, error) {
	rows, err := s.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(rows) < 2 {
		return 0, nil
	}
	cols := resolveColumns(rows[0])

	rewritten := 0
	for i := 1; i < len(rows); i++ {
		current := sheet.Cell(rows[i], cols.login)
		next, changed := security.RehashIfPlaintext(current)
		if !changed {
			continue
		}
		if err := s.sheets.WriteCell(ctx, Table, i+1, cols.login+1, next); err != nil {
			return rewritten, err
		}
		rewritten++
		s.logger.Info("rehashed employee password", slog.String("employee", sheet.Cell(rows[i], cols.name)), slog.Int("row", i+1))
	}
	return rewritten, nil
}

// Add appends an employee. password may be plaintext or a digest.
func (s *Store) Add(ctx context.Context, name, password, role string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("employee name is required")
	}
	if err := s.sheets.InsertTable(ctx, Table, Header); err != nil {
		return err
	}
	if _, err := s.Lookup(ctx, name); err == nil {
		return ErrEmployeeExists
	} else if !apperr.IsNotFound(err) {
		return err
	}

	stored, _ := security.RehashIfPlaintext(strings.TrimSpace(password))
	_, cols, err := s.rows(ctx)
	if err != nil {
		return err
	}
	width := max(cols.name, cols.login, cols.role) + 1
	row := make([]string, width)
	row[cols.name] = name
	row[cols.login] = stored
	row[cols.role] = strings.TrimSpace(role)
	_, err = s.sheets.Append(ctx, Table, row)
	return err
}
