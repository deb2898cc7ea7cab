package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestWorkbookRoundTrip(t *testing.T) {
	data, err := Workbook(Table{
		Sheet:  "Present Students",
		Header: []string{"Name", "Roll Number"},
		Rows:   [][]string{{"Asha", "101"}, {"Ravi", "102"}},
	})
	if err != nil {
		t.Fatalf("Workbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Present Students")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Name" || rows[2][1] != "102" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestZipKeepsOrder(t *testing.T) {
	data, err := Zip([]File{{Name: "a.txt", Data: []byte("one")}, {Name: "b.txt", Data: []byte("two")}})
	if err != nil {
		t.Fatalf("Zip failed: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "a.txt" || zr.File[1].Name != "b.txt" {
		t.Fatalf("unexpected entries")
	}
	rc, _ := zr.File[1].Open()
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "two" {
		t.Errorf("expected two, got %q", b)
	}
}

func TestArchiveKey(t *testing.T) {
	k1, k2 := ArchiveKey("abc"), ArchiveKey("abc")
	if !strings.HasPrefix(k1, "exports/abc/") || !strings.HasSuffix(k1, ".zip") {
		t.Errorf("unexpected key %s", k1)
	}
	if k1 == k2 {
		t.Error("expected unique keys")
	}
}
