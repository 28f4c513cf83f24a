package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/phillip-england/timecard/internal/sheet"
	"gopkg.in/yaml.v3"
)

type ImportResult struct {
	Added   int
	Skipped int
}

// Import adds the employees of an uploaded roster. rows[0] is the roster's
// header and is matched the same way as the Employees sheet header.
func (s *Store) Import(ctx context.Context, rows [][]string) (ImportResult, error) {
	var result ImportResult
	if len(rows) == 0 {
		return result, fmt.Errorf("roster is empty")
	}
	if _, ok := sheet.HeaderIndex(rows[0])["name"]; !ok {
		return result, fmt.Errorf("missing required column: name")
	}
	cols := resolveColumns(rows[0])

	for _, row := range rows[1:] {
		name := sheet.Cell(row, cols.name)
		if name == "" {
			continue
		}
		err := s.Add(ctx, name, sheet.Cell(row, cols.login), sheet.Cell(row, cols.role))
		if errors.Is(err, ErrEmployeeExists) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("add %s: %w", name, err)
		}
		result.Added++
	}
	return result, nil
}

type rosterFile struct {
	Employees []struct {
		Name     string `yaml:"name"`
		Password string `yaml:"password"`
		Role     string `yaml:"role"`
	} `yaml:"employees"`
}

// SeedFromFile adds the employees listed in a YAML roster, skipping names
// that already exist.
func (s *Store) SeedFromFile(ctx context.Context, path string) (ImportResult, error) {
	var result ImportResult
	data, err := os.ReadFile(path)
	if err != nil {
		return result, err
	}
	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return result, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, e := range roster.Employees {
		if e.Name == "" || e.Password == "" {
			continue
		}
		err := s.Add(ctx, e.Name, e.Password, e.Role)
		if errors.Is(err, ErrEmployeeExists) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("add %s: %w", e.Name, err)
		}
		result.Added++
	}
	return result, nil
}
