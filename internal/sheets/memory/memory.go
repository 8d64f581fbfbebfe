// Package memory is an in-process export target used when no spreadsheet is
// configured, and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"famfunds/internal/core"
	ports "famfunds/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	loc  *time.Location
	rows map[int][][]string
}

var _ ports.Exporter = (*Store)(nil)

func New(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{loc: loc, rows: make(map[int][][]string)}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction, balanceAfter *core.Money) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("%w: transaction without id", core.ErrInvalidArgument)
	}
	year := tx.Timestamp.In(s.loc).Year()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[year] = append(s.rows[year], ports.Row(tx, balanceAfter, s.loc))
	return fmt.Sprintf("mem:%d:%d", year, len(s.rows[year])), nil
}

func (s *Store) ExportedIDs(_ context.Context, year int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows[year]))
	for _, r := range s.rows[year] {
		out = append(out, r[1])
	}
	return out, nil
}

// Rows returns a copy of the rows exported for year.
func (s *Store) Rows(year int) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows[year]))
	for i, r := range s.rows[year] {
		out[i] = append([]string(nil), r...)
	}
	return out
}
