package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"sheetattend/internal/audit"
	"sheetattend/internal/export"
	"sheetattend/internal/sheets"
)

var (
	ErrInvalid       = errors.New("invalid request")
	ErrNotCached     = errors.New("no cached data found for this spreadsheet, fetch information first")
	ErrMissingColumn = errors.New("required column not found")
	ErrClosed        = errors.New("session is closed")
	ErrDuplicate     = errors.New("roll number already exists in sheet")
	ErrNoData        = errors.New("no student data available to export")
)

// SessionChecker reports whether a sheet's session has been closed.
type SessionChecker interface {
	IsClosed(ctx context.Context, sheetID string) (bool, error)
}

// Options configures a Service. Zero values get in-memory defaults.
type Options struct {
	Tab        string
	Cache      Cache
	EventCache Cache
	Sessions   SessionChecker
	Audit      audit.Recorder
	Archive    export.ArchiveStore
}

// Service reconciles attendance sheets: it caches snapshots, keeps the derived
// columns present and writes commit flags back.
type Service struct {
	client   sheets.Client
	tab      string
	cache    Cache
	events   Cache
	sessions SessionChecker
	audit    audit.Recorder
	archive  export.ArchiveStore
	locks    keyedMutex
	now      func() time.Time
}

// NewService creates a service reading and writing through client.
func NewService(client sheets.Client, opts Options) *Service {
	s := &Service{
		client:   client,
		tab:      opts.Tab,
		cache:    opts.Cache,
		events:   opts.EventCache,
		sessions: opts.Sessions,
		audit:    opts.Audit,
		archive:  opts.Archive,
		now:      time.Now,
	}
	if s.tab == "" {
		s.tab = "Sheet1"
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	if s.events == nil {
		s.events = NewMemoryCache()
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	return s
}

// Details is the result of a snapshot lookup.
type Details struct {
	Snapshot     Snapshot
	Cached       bool
	DerivedAdded []string
}

// Details returns the cached snapshot, or reads the sheet, adds any missing
// derived columns and caches the result.
func (s *Service) Details(ctx context.Context, id string) (Details, error) {
	if id == "" {
		return Details{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	if snap, ok, err := s.cache.Get(ctx, id); err != nil {
		log.Printf("attendance: cache get %s: %v", id, err)
	} else if ok {
		cacheLookups.WithLabelValues("sheet", "hit").Inc()
		return Details{Snapshot: snap, Cached: true, DerivedAdded: []string{}}, nil
	}
	cacheLookups.WithLabelValues("sheet", "miss").Inc()

	unlock := s.locks.lock(id)
	defer unlock()

	snap, added, err := s.reconciled(ctx, id)
	if err != nil {
		return Details{}, err
	}
	if err := s.cache.Set(ctx, id, snap); err != nil {
		log.Printf("attendance: cache set %s: %v", id, err)
	}
	return Details{Snapshot: snap, DerivedAdded: added}, nil
}

// Display returns the marking view of a cached sheet.
func (s *Service) Display(ctx context.Context, id string) (Display, error) {
	if id == "" {
		return Display{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	snap, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		return Display{}, err
	}
	if !ok {
		return Display{}, ErrNotCached
	}
	cols := snap.Columns()
	if cols.Roll < 0 {
		return Display{}, fmt.Errorf("%w: roll number column not found in sheet headers", ErrMissingColumn)
	}
	if cols.Attendance < 0 {
		return Display{}, fmt.Errorf("%w: attendance/status column not found in sheet headers", ErrMissingColumn)
	}
	return snap.Display(), nil
}

// CommitResult reports which roll numbers were written.
type CommitResult struct {
	UpdatedCount         int      `json:"updatedCount"`
	CommittedRollNumbers []string `json:"committedRollNumbers"`
	NotFound             []string `json:"notFound"`
}

// Commit marks the rows with the given roll numbers as present, committed and
// marked by markedBy. Rows not listed are never written.
func (s *Service) Commit(ctx context.Context, id string, rollNumbers []string, markedBy string) (CommitResult, error) {
	if id == "" {
		return CommitResult{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	want := make(map[string]bool)
	var order []string
	for _, r := range rollNumbers {
		r = strings.TrimSpace(r)
		if r == "" || want[r] {
			continue
		}
		want[r] = true
		order = append(order, r)
	}
	if len(order) == 0 {
		return CommitResult{}, fmt.Errorf("%w: roll numbers array is required and must not be empty", ErrInvalid)
	}
	if err := s.checkOpen(ctx, id); err != nil {
		return CommitResult{}, err
	}

	unlock := s.locks.lock(id)
	defer unlock()
	defer s.invalidate(ctx, id)

	snap, _, err := s.reconciled(ctx, id)
	if err != nil {
		return CommitResult{}, err
	}
	cols := snap.Columns()
	if err := requireColumns(cols); err != nil {
		return CommitResult{}, err
	}

	res := CommitResult{CommittedRollNumbers: []string{}, NotFound: []string{}}
	matched := make(map[string]bool)
	var writes []sheets.ValueRange
	for i, row := range snap.Data {
		roll := cell(row, cols.Roll)
		if roll == "" || !want[roll] {
			continue
		}
		n := i + 2
		writes = append(writes,
			sheets.ValueRange{Range: sheets.Range(s.tab, sheets.Cell(cols.Attendance, n)), Values: [][]any{{true}}},
			sheets.ValueRange{Range: sheets.Range(s.tab, sheets.Cell(cols.Commit, n)), Values: [][]any{{true}}},
			sheets.ValueRange{Range: sheets.Range(s.tab, sheets.Cell(cols.MarkedBy, n)), Values: [][]any{{markedBy}}},
		)
		matched[roll] = true
		res.UpdatedCount++
	}
	if len(writes) > 0 {
		if err := s.client.BatchUpdate(ctx, id, writes); err != nil {
			return CommitResult{}, fmt.Errorf("failed to update commit status: %w", err)
		}
	}
	for _, r := range order {
		if matched[r] {
			res.CommittedRollNumbers = append(res.CommittedRollNumbers, r)
		} else {
			res.NotFound = append(res.NotFound, r)
		}
	}

	s.audit.Record(ctx, audit.Event{
		Kind:    audit.KindCommit,
		SheetID: id,
		Actor:   markedBy,
		Detail:  map[string]any{"updated": res.UpdatedCount, "roll_numbers": res.CommittedRollNumbers},
	})
	return res, nil
}

// OnSpotStudent is a walk-in added on the day of the event.
type OnSpotStudent struct {
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	MailID     string `json:"mail_id"`
	Department string `json:"department"`
}

// AddOnSpot appends a committed ON-SPOT row for st.
func (s *Service) AddOnSpot(ctx context.Context, id string, st OnSpotStudent, markedBy string) (OnSpotStudent, error) {
	if id == "" {
		return OnSpotStudent{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	st.Name = strings.TrimSpace(st.Name)
	st.RollNumber = strings.TrimSpace(st.RollNumber)
	st.MailID = strings.TrimSpace(st.MailID)
	st.Department = strings.TrimSpace(st.Department)
	if st.Name == "" || st.RollNumber == "" || st.MailID == "" || st.Department == "" {
		return OnSpotStudent{}, fmt.Errorf("%w: all student fields are required (name, roll_number, mail_id, department)", ErrInvalid)
	}
	if err := s.checkOpen(ctx, id); err != nil {
		return OnSpotStudent{}, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	snap, _, err := s.reconciled(ctx, id)
	if err != nil {
		return OnSpotStudent{}, err
	}
	cols := snap.Columns()
	if err := requireColumns(cols); err != nil {
		return OnSpotStudent{}, err
	}
	for _, row := range snap.Data {
		if cell(row, cols.Roll) == st.RollNumber {
			return OnSpotStudent{}, fmt.Errorf("%w: %s", ErrDuplicate, st.RollNumber)
		}
	}

	row := make([]any, len(snap.Headers))
	set := func(idx int, v any) {
		if idx >= 0 && idx < len(row) {
			row[idx] = v
		}
	}
	set(cols.Name, st.Name)
	set(cols.Roll, st.RollNumber)
	set(cols.Mail, st.MailID)
	set(cols.Department, st.Department)
	set(cols.Attendance, true)
	set(cols.Commit, true)
	set(cols.Type, TypeOnSpot)
	set(cols.MarkedBy, markedBy)

	defer s.invalidate(ctx, id)
	if err := s.client.Append(ctx, id, sheets.Tab(s.tab), [][]any{row}); err != nil {
		return OnSpotStudent{}, fmt.Errorf("failed to add student on-spot: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		Kind:    audit.KindOnSpot,
		SheetID: id,
		Actor:   markedBy,
		Detail:  map[string]any{"roll_number": st.RollNumber, "name": st.Name},
	})
	return st, nil
}

// ClearCache drops one sheet from the caches, or every sheet when id is empty.
func (s *Service) ClearCache(ctx context.Context, id string) error {
	if id == "" {
		if err := s.cache.Clear(ctx); err != nil {
			return err
		}
		return s.events.Clear(ctx)
	}
	found, err := s.cache.Delete(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	if !found {
		return ErrNotCached
	}
	return nil
}

// Stats returns event statistics. Cached results are used unless fresh is set;
// a fresh read replenishes the event cache. Stats never mutates the sheet.
func (s *Service) Stats(ctx context.Context, id string, fresh bool) (EventStats, bool, error) {
	if id == "" {
		return EventStats{}, false, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	if !fresh {
		if snap, ok, err := s.events.Get(ctx, id); err != nil {
			log.Printf("attendance: event cache get %s: %v", id, err)
		} else if ok {
			cacheLookups.WithLabelValues("event", "hit").Inc()
			return snap.Stats(), true, nil
		}
		cacheLookups.WithLabelValues("event", "miss").Inc()
	}
	snap, err := s.fetch(ctx, id)
	if err != nil {
		return EventStats{}, false, err
	}
	if err := s.events.Set(ctx, id, snap); err != nil {
		log.Printf("attendance: event cache set %s: %v", id, err)
	}
	return snap.Stats(), false, nil
}

// ExportResult is a zip archive ready for download.
type ExportResult struct {
	Filename     string
	Data         []byte
	PresentCount int
	TotalCount   int
	ArchiveKey   string
}

// Export reads the sheet fresh and bundles present and all students.
func (s *Service) Export(ctx context.Context, id string) (ExportResult, error) {
	if id == "" {
		return ExportResult{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	snap, err := s.fetch(ctx, id)
	if err != nil {
		return ExportResult{}, err
	}
	return s.bundle(ctx, snap)
}

// ExportEvent is Export for the history view: the fresh read also replaces
// the event cache entry.
func (s *Service) ExportEvent(ctx context.Context, id string) (ExportResult, error) {
	if id == "" {
		return ExportResult{}, fmt.Errorf("%w: spreadsheet id is required", ErrInvalid)
	}
	snap, err := s.fetch(ctx, id)
	if err != nil {
		return ExportResult{}, err
	}
	if err := s.events.Set(ctx, id, snap); err != nil {
		log.Printf("attendance: event cache set %s: %v", id, err)
	}
	return s.bundle(ctx, snap)
}

func (s *Service) bundle(ctx context.Context, snap Snapshot) (ExportResult, error) {
	present, all := snap.ExportTables()
	if len(all.Rows) == 0 {
		return ExportResult{}, ErrNoData
	}
	presentFile, err := export.Workbook(present)
	if err != nil {
		return ExportResult{}, err
	}
	allFile, err := export.Workbook(all)
	if err != nil {
		return ExportResult{}, err
	}
	data, err := export.Zip([]export.File{
		{Name: "present_students.xlsx", Data: presentFile},
		{Name: "all_students.xlsx", Data: allFile},
	})
	if err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{
		Filename:     fmt.Sprintf("attendance_export_%d.zip", s.now().UnixMilli()),
		Data:         data,
		PresentCount: len(present.Rows),
		TotalCount:   len(all.Rows),
	}
	log.Printf("attendance: exporting %d present of %d students for %s", res.PresentCount, res.TotalCount, snap.SpreadsheetID)

	if s.archive != nil {
		key := export.ArchiveKey(snap.SpreadsheetID)
		if err := s.archive.Put(ctx, key, data); err != nil {
			log.Printf("attendance: archive export %s: %v", key, err)
		} else {
			res.ArchiveKey = key
		}
	}
	return res, nil
}

func (s *Service) fetch(ctx context.Context, id string) (Snapshot, error) {
	title, err := s.client.Title(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch sheet details: %w", err)
	}
	rows, err := s.client.Get(ctx, id, sheets.Tab(s.tab))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch sheet details: %w", err)
	}

	snap := Snapshot{SpreadsheetID: id, SheetName: title, Headers: []string{}, Data: [][]string{}}
	if len(rows) > 0 {
		snap.Headers = sheets.Strings(rows[0])
		for _, r := range rows[1:] {
			snap.Data = append(snap.Data, sheets.Strings(r))
		}
	}
	snap.TotalRows = len(snap.Data)
	return snap, nil
}

// reconciled reads the sheet, appends missing derived columns and re-reads
// when anything was added. Callers hold the sheet lock.
func (s *Service) reconciled(ctx context.Context, id string) (Snapshot, []string, error) {
	snap, err := s.fetch(ctx, id)
	if err != nil {
		return Snapshot{}, nil, err
	}
	added, err := s.ensureDerived(ctx, snap)
	if err != nil {
		return Snapshot{}, nil, err
	}
	if len(added) == 0 {
		return snap, added, nil
	}
	log.Printf("attendance: added derived columns %v to %s", added, id)
	snap, err = s.fetch(ctx, id)
	return snap, added, err
}

func (s *Service) ensureDerived(ctx context.Context, snap Snapshot) ([]string, error) {
	added := []string{}
	if len(snap.Headers) == 0 {
		return added, nil
	}
	cols := snap.Columns()
	next := len(snap.Headers)
	var writes []sheets.ValueRange

	add := func(name string, def any) {
		letter := sheets.ColumnLetter(next)
		writes = append(writes, sheets.ValueRange{
			Range:  sheets.Range(s.tab, letter+"1"),
			Values: [][]any{{name}},
		})
		if def != nil && snap.TotalRows > 0 {
			vals := make([][]any, snap.TotalRows)
			for i, row := range snap.Data {
				// nil leaves blank rows blank
				if blank(row) {
					vals[i] = []any{nil}
				} else {
					vals[i] = []any{def}
				}
			}
			writes = append(writes, sheets.ValueRange{
				Range:  sheets.Range(s.tab, fmt.Sprintf("%s2:%s%d", letter, letter, snap.TotalRows+1)),
				Values: vals,
			})
		}
		added = append(added, name)
		next++
	}

	if cols.Commit < 0 {
		add(HeaderCommit, false)
	}
	if cols.MarkedBy < 0 {
		add(HeaderMarkedBy, nil)
	}
	if cols.Type < 0 {
		add(HeaderType, TypeRegistered)
	}
	if len(writes) == 0 {
		return added, nil
	}
	if err := s.client.BatchUpdate(ctx, snap.SpreadsheetID, writes); err != nil {
		return nil, fmt.Errorf("failed to add derived columns: %w", err)
	}
	return added, nil
}

func (s *Service) checkOpen(ctx context.Context, id string) error {
	if s.sessions == nil {
		return nil
	}
	closed, err := s.sessions.IsClosed(ctx, id)
	if err != nil {
		return err
	}
	if closed {
		return ErrClosed
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if _, err := s.cache.Delete(ctx, id); err != nil {
		log.Printf("attendance: cache delete %s: %v", id, err)
	}
	if _, err := s.events.Delete(ctx, id); err != nil {
		log.Printf("attendance: event cache delete %s: %v", id, err)
	}
}

func requireColumns(cols Columns) error {
	if cols.Roll < 0 {
		return fmt.Errorf("%w: roll number column not found", ErrMissingColumn)
	}
	if cols.Attendance < 0 {
		return fmt.Errorf("%w: attendance column not found", ErrMissingColumn)
	}
	derived := []struct {
		name string
		idx  int
	}{{HeaderCommit, cols.Commit}, {HeaderMarkedBy, cols.MarkedBy}, {HeaderType, cols.Type}}
	for _, d := range derived {
		if d.idx < 0 {
			return fmt.Errorf("%w: %s column not found", ErrMissingColumn, d.name)
		}
	}
	return nil
}

// keyedMutex serializes writers to the same spreadsheet within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
