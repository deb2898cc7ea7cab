package attendance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sheetattend/internal/sheets"
)

func seed(t *testing.T, rows ...[]any) (*sheets.Memory, *Service) {
	t.Helper()
	mem := sheets.NewMemory()
	data := append([][]any{{"name", "roll_number", "mail_id", "department", "attendance"}}, rows...)
	mem.Create("sheet-1", "Hackathon", "Sheet1", data)
	return mem, NewService(mem, Options{})
}

func read(t *testing.T, mem *sheets.Memory) [][]string {
	t.Helper()
	rows, err := mem.Get(context.Background(), "sheet-1", sheets.Tab("Sheet1"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = sheets.Strings(r)
	}
	return out
}

func TestLocate(t *testing.T) {
	cols := Locate([]string{" Name ", "Student Roll No", "E-Mail", "department", "Status", "COMMIT"})
	if cols.Name != 0 || cols.Roll != 1 || cols.Mail != 2 || cols.Department != 3 || cols.Attendance != 4 || cols.Commit != 5 {
		t.Errorf("unexpected columns %+v", cols)
	}
	if cols.Type != -1 || cols.MarkedBy != -1 {
		t.Errorf("expected absent derived columns, got %+v", cols)
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"TRUE", "true", " yes ", "Yes"} {
		if !Truthy(v) {
			t.Errorf("expected %q to be true", v)
		}
	}
	for _, v := range []string{"FALSE", "no", "", "maybe", "1"} {
		if Truthy(v) {
			t.Errorf("expected %q to be false", v)
		}
	}
}

func TestCountsBalance(t *testing.T) {
	snap := Snapshot{
		Headers: []string{"name", "roll_number", "mail_id", "department", "attendance", "commit", "type"},
		Data: [][]string{
			{"A", "1", "a@x.io", "CS", "TRUE", "FALSE", "REGISTERED"},
			{"B", "2", "b@x.io", "CS", "FALSE", "TRUE", "REGISTERED"},
			{"C", "3", "c@x.io", "CS", "FALSE", "FALSE", "REGISTERED"},
			{},
			{"D", "4", "d@x.io", "EE", "TRUE", "TRUE", "ON-SPOT"},
		},
	}
	c := snap.Counts()
	if c.Registered != 3 || c.OnSpot != 1 || c.Present != 3 || c.Absent != 1 {
		t.Errorf("unexpected counts %+v", c)
	}
	if c.Present+c.Absent != c.Registered+c.OnSpot {
		t.Errorf("counts do not balance: %+v", c)
	}
	d := snap.Display()
	if d.Total != 4 || len(d.Students) != 2 {
		t.Fatalf("unexpected display %+v", d)
	}
	if d.Students[0].RollNumber != "1" || d.Students[0].Status != "Present" || d.Students[1].Status != "Absent" {
		t.Errorf("unexpected display students %+v", d.Students)
	}
}

func TestDetailsAddsDerivedColumns(t *testing.T) {
	mem, svc := seed(t,
		[]any{"Asha", "101", "asha@x.io", "CS", "FALSE"},
		[]any{},
		[]any{"Ravi", "102", "ravi@x.io", "EE", "TRUE"},
	)
	ctx := context.Background()

	d, err := svc.Details(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if d.Cached {
		t.Error("first read should not be cached")
	}
	if len(d.DerivedAdded) != 3 {
		t.Fatalf("expected 3 derived columns, got %v", d.DerivedAdded)
	}
	if d.Snapshot.SheetName != "Hackathon" || d.Snapshot.TotalRows != 3 {
		t.Errorf("unexpected snapshot %+v", d.Snapshot)
	}

	rows := read(t, mem)
	if got := rows[0][5:]; got[0] != "commit" || got[1] != "marked_by" || got[2] != "type" {
		t.Errorf("unexpected headers %v", rows[0])
	}
	if rows[1][5] != "FALSE" || rows[1][7] != "REGISTERED" {
		t.Errorf("expected defaults in row 2, got %v", rows[1])
	}
	if len(rows[2]) != 0 {
		t.Errorf("blank row should stay blank, got %v", rows[2])
	}

	d, err = svc.Details(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("second Details failed: %v", err)
	}
	if !d.Cached || len(d.DerivedAdded) != 0 {
		t.Errorf("expected cached read, got %+v", d)
	}
}

func TestDisplayRequiresCache(t *testing.T) {
	_, svc := seed(t, []any{"Asha", "101", "asha@x.io", "CS", "FALSE"})
	if _, err := svc.Display(context.Background(), "sheet-1"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
}

func TestCommitTouchesOnlyMatchedRows(t *testing.T) {
	mem, svc := seed(t,
		[]any{"Asha", "101", "asha@x.io", "CS", "FALSE"},
		[]any{"Ravi", "102", "ravi@x.io", "EE", "FALSE"},
		[]any{"Meera", "103", "meera@x.io", "ME", "FALSE"},
	)
	ctx := context.Background()
	if _, err := svc.Details(ctx, "sheet-1"); err != nil {
		t.Fatalf("Details failed: %v", err)
	}

	res, err := svc.Commit(ctx, "sheet-1", []string{" 101", "103", "999"}, "volunteer")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if res.UpdatedCount != 2 || len(res.NotFound) != 1 || res.NotFound[0] != "999" {
		t.Errorf("unexpected result %+v", res)
	}

	rows := read(t, mem)
	want := map[int][]string{
		1: {"TRUE", "TRUE", "volunteer"},
		2: {"FALSE", "FALSE", ""},
		3: {"TRUE", "TRUE", "volunteer"},
	}
	for r, w := range want {
		got := []string{rows[r][4], rows[r][5], ""}
		if len(rows[r]) > 6 {
			got[2] = rows[r][6]
		}
		for i := range w {
			if got[i] != w[i] {
				t.Errorf("row %d: expected %v, got %v", r+1, w, got)
				break
			}
		}
	}

	if _, err := svc.Display(ctx, "sheet-1"); !errors.Is(err, ErrNotCached) {
		t.Errorf("expected cache to be invalidated, got %v", err)
	}
}

func TestCommitRejectsEmptyList(t *testing.T) {
	_, svc := seed(t)
	if _, err := svc.Commit(context.Background(), "sheet-1", []string{" ", ""}, "x"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestCommitOnWideSheet(t *testing.T) {
	header := []any{"name", "roll_number", "mail_id", "department", "attendance"}
	row := []any{"Asha", "101", "asha@x.io", "CS", "FALSE"}
	for i := 1; len(header) < 25; i++ {
		header = append(header, fmt.Sprintf("extra_%02d", i))
		row = append(row, "x")
	}
	mem := sheets.NewMemory()
	mem.Create("sheet-1", "Wide", "Sheet1", [][]any{header, row})
	svc := NewService(mem, Options{})
	ctx := context.Background()

	d, err := svc.Details(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if len(d.DerivedAdded) != 3 {
		t.Fatalf("expected 3 derived columns, got %v", d.DerivedAdded)
	}
	if cols := d.Snapshot.Columns(); cols.Commit != 25 || cols.MarkedBy != 26 || cols.Type != 27 {
		t.Fatalf("derived columns past Z not located: %+v", cols)
	}

	res, err := svc.Commit(ctx, "sheet-1", []string{"101"}, "ravi")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if res.UpdatedCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	rows := read(t, mem)
	if len(rows[1]) != 28 {
		t.Fatalf("unexpected row width %d: %v", len(rows[1]), rows[1])
	}
	if rows[1][0] != "Asha" || rows[1][4] != "TRUE" || rows[1][25] != "TRUE" || rows[1][26] != "ravi" || rows[1][27] != "REGISTERED" {
		t.Errorf("unexpected row %v", rows[1])
	}

	d, err = svc.Details(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("second Details failed: %v", err)
	}
	if len(d.DerivedAdded) != 0 || len(read(t, mem)[0]) != 28 {
		t.Errorf("derived columns added twice: %v", d.DerivedAdded)
	}
}

func TestRequireColumns(t *testing.T) {
	cols := Locate([]string{"name", "roll_number", "attendance", "commit", "type"})
	if err := requireColumns(cols); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn without marked_by, got %v", err)
	}
	cols = Locate([]string{"name", "roll_number", "attendance", "commit", "marked_by", "type"})
	if err := requireColumns(cols); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

type closedSessions map[string]bool

func (c closedSessions) IsClosed(_ context.Context, id string) (bool, error) {
	return c[id], nil
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	mem := sheets.NewMemory()
	mem.Create("sheet-1", "Done", "Sheet1", [][]any{{"name", "roll_number", "mail_id", "department", "attendance"}})
	svc := NewService(mem, Options{Sessions: closedSessions{"sheet-1": true}})
	ctx := context.Background()

	if _, err := svc.Commit(ctx, "sheet-1", []string{"1"}, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Commit, got %v", err)
	}
	st := OnSpotStudent{Name: "N", RollNumber: "9", MailID: "n@x.io", Department: "CS"}
	if _, err := svc.AddOnSpot(ctx, "sheet-1", st, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from AddOnSpot, got %v", err)
	}
}

func TestAddOnSpot(t *testing.T) {
	mem, svc := seed(t, []any{"Asha", "101", "asha@x.io", "CS", "FALSE"})
	ctx := context.Background()

	st := OnSpotStudent{Name: "Kiran", RollNumber: "204", MailID: "kiran@x.io", Department: "EE"}
	if _, err := svc.AddOnSpot(ctx, "sheet-1", st, "desk"); err != nil {
		t.Fatalf("AddOnSpot failed: %v", err)
	}
	rows := read(t, mem)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"Kiran", "204", "kiran@x.io", "EE", "TRUE", "TRUE", "desk", "ON-SPOT"}
	for i, w := range want {
		if rows[2][i] != w {
			t.Errorf("column %d: expected %q, got %q", i, w, rows[2][i])
		}
	}

	if _, err := svc.AddOnSpot(ctx, "sheet-1", st, "desk"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := svc.AddOnSpot(ctx, "sheet-1", OnSpotStudent{Name: "x"}, "desk"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	stats, cached, err := svc.Stats(ctx, "sheet-1", false)
	if err != nil || cached {
		t.Fatalf("Stats: cached=%v err=%v", cached, err)
	}
	if stats.Registered != 1 || stats.OnSpot != 1 || stats.Present != 1 || stats.Absent != 1 {
		t.Errorf("unexpected stats %+v", stats.Counts)
	}
	if _, cached, _ = svc.Stats(ctx, "sheet-1", false); !cached {
		t.Error("expected second Stats call to be cached")
	}
}

func TestClearCache(t *testing.T) {
	_, svc := seed(t, []any{"Asha", "101", "asha@x.io", "CS", "FALSE"})
	ctx := context.Background()
	if err := svc.ClearCache(ctx, "sheet-1"); !errors.Is(err, ErrNotCached) {
		t.Errorf("expected ErrNotCached, got %v", err)
	}
	if _, err := svc.Details(ctx, "sheet-1"); err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if err := svc.ClearCache(ctx, "sheet-1"); err != nil {
		t.Errorf("ClearCache failed: %v", err)
	}
	if err := svc.ClearCache(ctx, ""); err != nil {
		t.Errorf("clear all failed: %v", err)
	}
}

type memArchive map[string][]byte

func (m memArchive) Put(_ context.Context, key string, data []byte) error {
	m[key] = data
	return nil
}

func TestExport(t *testing.T) {
	mem := sheets.NewMemory()
	archive := memArchive{}
	mem.Create("sheet-1", "Hackathon", "Sheet1", [][]any{
		{"name", "roll_number", "mail_id", "department", "attendance"},
		{"Asha", "101", "asha@x.io", "CS", "TRUE"},
		{"Ravi", "102", "ravi@x.io", "EE", "FALSE"},
	})
	svc := NewService(mem, Options{Archive: archive})

	res, err := svc.Export(context.Background(), "sheet-1")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.PresentCount != 1 || res.TotalCount != 2 || len(res.Data) == 0 {
		t.Errorf("unexpected export %+v", res)
	}
	if _, ok := archive[res.ArchiveKey]; !ok {
		t.Errorf("expected archive under %q", res.ArchiveKey)
	}

	mem.Create("empty", "Empty", "Sheet1", [][]any{{"name", "roll_number", "mail_id", "department", "attendance"}})
	if _, err := svc.Export(context.Background(), "empty"); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}
