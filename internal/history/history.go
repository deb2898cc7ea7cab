// Package history keeps the log of uploaded attendance sheets in its own
// spreadsheet: one row per upload, columns A to H.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sheetattend/internal/sheets"
)

const (
	StatusActive   = "active"
	StatusComplete = "Complete"
)

var (
	ErrNotConfigured = errors.New("history spreadsheet not configured")
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyClosed = errors.New("session already closed")
)

var header = []any{"sheet_name", "sheet_link", "sheet_id", "event_name", "uploaded_by", "uploaded_at", "status", "closed_at"}

// Record is one uploaded sheet.
type Record struct {
	SheetName  string `json:"sheet_name"`
	SheetLink  string `json:"sheet_link"`
	SheetID    string `json:"sheet_id"`
	EventName  string `json:"event_name"`
	UploadedBy string `json:"uploaded_by"`
	UploadedAt string `json:"uploaded_at"`
	Status     string `json:"status"`
	ClosedAt   string `json:"closed_at"`

	row int
}

// Closed reports whether the session has been completed.
func (r Record) Closed() bool {
	return strings.EqualFold(r.Status, StatusComplete)
}

func (r Record) values() []any {
	return []any{r.SheetName, r.SheetLink, r.SheetID, r.EventName, r.UploadedBy, r.UploadedAt, r.Status, r.ClosedAt}
}

// Store reads and writes history rows.
type Store struct {
	client        sheets.Client
	spreadsheetID string
	tab           string
}

// NewStore creates a store over the given spreadsheet and tab.
func NewStore(client sheets.Client, spreadsheetID, tab string) *Store {
	if tab == "" {
		tab = "Sheet1"
	}
	return &Store{client: client, spreadsheetID: spreadsheetID, tab: tab}
}

// EnsureHeader writes the header row into an empty history sheet.
func (s *Store) EnsureHeader(ctx context.Context) error {
	if s.spreadsheetID == "" {
		return ErrNotConfigured
	}
	rows, err := s.client.Get(ctx, s.spreadsheetID, sheets.Range(s.tab, "A1:H1"))
	if err != nil {
		return err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		return nil
	}
	return s.client.Update(ctx, s.spreadsheetID, sheets.Range(s.tab, "A1:H1"), [][]any{header})
}

func (s *Store) all(ctx context.Context) ([]Record, error) {
	if s.spreadsheetID == "" {
		return nil, ErrNotConfigured
	}
	rows, err := s.client.Get(ctx, s.spreadsheetID, sheets.Range(s.tab, "A:H"))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var out []Record
	for i, raw := range rows {
		if i == 0 {
			continue
		}
		row := sheets.Strings(raw)
		if len(row) < 3 || strings.TrimSpace(row[2]) == "" {
			continue
		}
		for len(row) < 8 {
			row = append(row, "")
		}
		out = append(out, Record{
			SheetName:  row[0],
			SheetLink:  row[1],
			SheetID:    strings.TrimSpace(row[2]),
			EventName:  row[3],
			UploadedBy: row[4],
			UploadedAt: row[5],
			Status:     row[6],
			ClosedAt:   row[7],
			row:        i + 1,
		})
	}
	return out, nil
}

// List returns every record, newest upload first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ti, ei := time.Parse(time.RFC3339, recs[i].UploadedAt)
		tj, ej := time.Parse(time.RFC3339, recs[j].UploadedAt)
		if ei != nil || ej != nil {
			return recs[i].row > recs[j].row
		}
		return ti.After(tj)
	})
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Find returns the record for sheetID.
func (s *Store) Find(ctx context.Context, sheetID string) (Record, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range recs {
		if r.SheetID == sheetID {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// ByUploader returns the sessions uploaded by username, newest first.
func (s *Store) ByUploader(ctx context.Context, username string) ([]Record, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range recs {
		if strings.EqualFold(strings.TrimSpace(r.UploadedBy), strings.TrimSpace(username)) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Append adds rec as a new row.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s.spreadsheetID == "" {
		return ErrNotConfigured
	}
	if err := s.client.Append(ctx, s.spreadsheetID, sheets.Range(s.tab, "A:H"), [][]any{rec.values()}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Close marks the session Complete and stamps closed_at. Only that row's
// status and closed_at cells are written.
func (s *Store) Close(ctx context.Context, sheetID string, now time.Time) (Record, error) {
	rec, err := s.Find(ctx, sheetID)
	if err != nil {
		return Record{}, err
	}
	if rec.Closed() {
		return rec, ErrAlreadyClosed
	}
	rec.Status = StatusComplete
	rec.ClosedAt = now.UTC().Format(time.RFC3339)
	rng := sheets.Range(s.tab, fmt.Sprintf("G%d:H%d", rec.row, rec.row))
	if err := s.client.Update(ctx, s.spreadsheetID, rng, [][]any{{rec.Status, rec.ClosedAt}}); err != nil {
		return Record{}, fmt.Errorf("close session: %w", err)
	}
	return rec, nil
}

// IsClosed reports whether sheetID has a Complete record. Unknown sheets are
// open.
func (s *Store) IsClosed(ctx context.Context, sheetID string) (bool, error) {
	rec, err := s.Find(ctx, sheetID)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotConfigured) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Closed(), nil
}
