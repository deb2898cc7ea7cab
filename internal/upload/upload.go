// Package upload validates candidate attendance sheets and registers them in
// the history log.
package upload

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sheetattend/internal/attendance"
	"sheetattend/internal/audit"
	"sheetattend/internal/history"
	"sheetattend/internal/sheets"
)

var (
	ErrMissingLink = errors.New("missing sheet link")
	ErrInvalidLink = errors.New("invalid Google Sheet URL")
	ErrMissing     = errors.New("missing required fields: sheet_link (or sheetlink), event_name, and uploaded_by are required")
)

// RequiredHeaders must open the header row in this order.
var RequiredHeaders = []string{"name", "roll_number", "mail_id", "department", "attendance"}

// OptionalHeaders may follow the required ones in any order.
var OptionalHeaders = []string{attendance.HeaderCommit, attendance.HeaderMarkedBy, attendance.HeaderType}

// DuplicateError is returned when the sheet is already in the history log.
type DuplicateError struct {
	Existing history.Record
}

func (e *DuplicateError) Error() string {
	return "This sheet has already been uploaded to the system"
}

// InaccessibleError wraps a failed read of the candidate sheet.
type InaccessibleError struct {
	Err error
}

func (e *InaccessibleError) Error() string { return "Sheet is not accessible" }
func (e *InaccessibleError) Unwrap() error { return e.Err }

// HeaderError describes a header row that does not match the template.
type HeaderError struct {
	Expected []string `json:"expected"`
	Received []string `json:"received"`
	Reason   string   `json:"error"`
}

func (e *HeaderError) Error() string { return "Header error, check the headers" }

// RowError is one invalid cell.
type RowError struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Reason string `json:"error"`
	Value  string `json:"value"`
}

// RowErrors collects every invalid cell of a sheet.
type RowErrors []RowError

func (e RowErrors) Error() string { return "Data validation failed" }

// Service validates and uploads sheets.
type Service struct {
	client   sheets.Client
	history  *history.Store
	audit    audit.Recorder
	tab      string
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates an upload service.
func NewService(client sheets.Client, hist *history.Store, rec audit.Recorder, tab string) *Service {
	if tab == "" {
		tab = "Sheet1"
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{client: client, history: hist, audit: rec, tab: tab, validate: validator.New(), now: time.Now}
}

func (s *Service) resolve(ctx context.Context, link string) (string, error) {
	if strings.TrimSpace(link) == "" {
		return "", ErrMissingLink
	}
	id, ok := sheets.ExtractID(link)
	if !ok {
		return "", ErrInvalidLink
	}
	existing, err := s.history.Find(ctx, id)
	if err == nil {
		return "", &DuplicateError{Existing: existing}
	}
	if !errors.Is(err, history.ErrNotFound) {
		return "", err
	}
	return id, nil
}

// Validate checks the sheet behind link: not yet uploaded, readable, headers
// in template order and every non-blank row well formed. It returns the
// number of rows validated.
func (s *Service) Validate(ctx context.Context, link string) (int, error) {
	id, err := s.resolve(ctx, link)
	if err != nil {
		return 0, err
	}

	head, err := s.client.Get(ctx, id, sheets.Range(s.tab, "A1:Z1"))
	if err != nil {
		return 0, &InaccessibleError{Err: err}
	}
	var headers []string
	if len(head) > 0 {
		for _, h := range sheets.Strings(head[0]) {
			if h = strings.TrimSpace(h); h != "" {
				headers = append(headers, h)
			}
		}
	}
	if err := checkHeaders(headers); err != nil {
		return 0, err
	}

	rows, err := s.client.Get(ctx, id, sheets.Range(s.tab, "A2:Z"))
	if err != nil {
		return 0, fmt.Errorf("read sheet data: %w", err)
	}
	commitCol := -1
	for i, h := range headers {
		if h == attendance.HeaderCommit {
			commitCol = i
		}
	}

	var errs RowErrors
	validated := 0
	for i, raw := range rows {
		row := sheets.Strings(raw)
		if blankRow(row) {
			continue
		}
		validated++
		errs = append(errs, s.checkRow(i+2, row, commitCol)...)
	}
	if len(errs) > 0 {
		return 0, errs
	}
	return validated, nil
}

func checkHeaders(got []string) error {
	received := append([]string{}, got...)
	full := append(append([]string{}, RequiredHeaders...), OptionalHeaders...)
	if len(got) < len(RequiredHeaders) {
		return &HeaderError{Expected: RequiredHeaders, Received: received,
			Reason: fmt.Sprintf("Expected at least %d headers, but got %d", len(RequiredHeaders), len(got))}
	}
	if len(got) > len(full) {
		return &HeaderError{Expected: full, Received: received,
			Reason: fmt.Sprintf("Expected at most %d headers, but got %d", len(full), len(got))}
	}
	for i, want := range RequiredHeaders {
		if got[i] != want {
			return &HeaderError{Expected: RequiredHeaders, Received: received,
				Reason: fmt.Sprintf("Expected '%s' at position %d, but got '%s'", want, i+1, got[i])}
		}
	}
	seen := make(map[string]bool)
	for i, h := range got[len(RequiredHeaders):] {
		pos := len(RequiredHeaders) + i + 1
		if !optional(h) {
			return &HeaderError{Expected: full, Received: received,
				Reason: fmt.Sprintf("Unexpected header '%s' at position %d", h, pos)}
		}
		if seen[h] {
			return &HeaderError{Expected: full, Received: received,
				Reason: fmt.Sprintf("Duplicate header '%s' at position %d", h, pos)}
		}
		seen[h] = true
	}
	return nil
}

func optional(h string) bool {
	for _, o := range OptionalHeaders {
		if h == o {
			return true
		}
	}
	return false
}

var integer = regexp.MustCompile(`^\d+$`)

func (s *Service) checkRow(n int, row []string, commitCol int) []RowError {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	var errs []RowError
	if strings.TrimSpace(get(0)) == "" {
		errs = append(errs, RowError{Row: n, Column: "name", Reason: "Name must be a non-empty string", Value: get(0)})
	}
	if !integer.MatchString(get(1)) {
		errs = append(errs, RowError{Row: n, Column: "roll_number", Reason: "Roll number must be a valid integer", Value: get(1)})
	}
	if get(2) == "" || s.validate.Var(get(2), "email") != nil {
		errs = append(errs, RowError{Row: n, Column: "mail_id", Reason: "Mail ID must be a valid email address", Value: get(2)})
	}
	if strings.TrimSpace(get(3)) == "" {
		errs = append(errs, RowError{Row: n, Column: "department", Reason: "Department must be a non-empty string", Value: get(3)})
	}
	if !attendance.BoolLike(get(4)) {
		errs = append(errs, RowError{Row: n, Column: "attendance", Reason: "Attendance must be TRUE or FALSE (or YES/NO, or boolean)", Value: get(4)})
	}
	if commitCol >= 0 {
		if v := get(commitCol); v != "" && !attendance.BoolLike(v) {
			errs = append(errs, RowError{Row: n, Column: "commit", Reason: "Commit must be TRUE or FALSE (or YES/NO, or boolean) if provided", Value: v})
		}
	}
	return errs
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Upload registers the sheet behind link as an active session.
func (s *Service) Upload(ctx context.Context, link, eventName, uploadedBy string) (history.Record, error) {
	eventName = strings.TrimSpace(eventName)
	uploadedBy = strings.TrimSpace(uploadedBy)
	if strings.TrimSpace(link) == "" || eventName == "" || uploadedBy == "" {
		return history.Record{}, ErrMissing
	}
	id, err := s.resolve(ctx, link)
	if err != nil {
		return history.Record{}, err
	}
	title, err := s.client.Title(ctx, id)
	if err != nil {
		return history.Record{}, &InaccessibleError{Err: err}
	}

	rec := history.Record{
		SheetName:  title,
		SheetLink:  strings.TrimSpace(link),
		SheetID:    id,
		EventName:  eventName,
		UploadedBy: uploadedBy,
		UploadedAt: s.now().UTC().Format(time.RFC3339),
		Status:     history.StatusActive,
	}
	if err := s.history.Append(ctx, rec); err != nil {
		return history.Record{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Kind:    audit.KindUpload,
		SheetID: id,
		Actor:   uploadedBy,
		Detail:  map[string]any{"event_name": eventName, "sheet_name": title},
	})
	return rec, nil
}
