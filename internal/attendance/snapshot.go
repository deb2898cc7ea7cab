package attendance

import (
	"strings"

	"sheetattend/internal/export"
)

// Snapshot is one read of an attendance sheet.
type Snapshot struct {
	SpreadsheetID string     `json:"spreadsheetId"`
	SheetName     string     `json:"sheetName"`
	Headers       []string   `json:"headers"`
	Data          [][]string `json:"data"`
	TotalRows     int        `json:"totalRows"`
}

// Counts are the derived attendance totals. Present+Absent always equals
// Registered+OnSpot.
type Counts struct {
	Registered int `json:"registered"`
	OnSpot     int `json:"onSpotCount"`
	Present    int `json:"presentCount"`
	Absent     int `json:"absentCount"`
}

// Student is a data row viewed through the located columns.
type Student struct {
	ID          int    `json:"id"`
	RollNumber  string `json:"rollNumber"`
	Name        string `json:"name"`
	MailID      string `json:"mailId"`
	Department  string `json:"department"`
	Type        string `json:"type"`
	MarkedBy    string `json:"markedBy"`
	IsPresent   bool   `json:"isPresent"`
	IsCommitted bool   `json:"isCommitted"`
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Columns locates the snapshot's columns.
func (s Snapshot) Columns() Columns {
	return Locate(s.Headers)
}

// Students returns every non-blank row. ID is the 1-based data row index.
func (s Snapshot) Students() []Student {
	cols := s.Columns()
	out := make([]Student, 0, len(s.Data))
	for i, row := range s.Data {
		if blank(row) {
			continue
		}
		st := Student{
			ID:          i + 1,
			RollNumber:  cell(row, cols.Roll),
			Name:        cell(row, cols.Name),
			MailID:      cell(row, cols.Mail),
			Department:  cell(row, cols.Department),
			MarkedBy:    cell(row, cols.MarkedBy),
			IsCommitted: Truthy(cell(row, cols.Commit)),
		}
		st.Type = TypeRegistered
		if strings.EqualFold(cell(row, cols.Type), TypeOnSpot) {
			st.Type = TypeOnSpot
		}
		// A committed row is present even if the attendance cell was edited back.
		st.IsPresent = Truthy(cell(row, cols.Attendance)) || st.IsCommitted
		out = append(out, st)
	}
	return out
}

// Counts derives the totals. Each non-blank row is counted exactly once.
func (s Snapshot) Counts() Counts {
	var c Counts
	for _, st := range s.Students() {
		if st.Type == TypeOnSpot {
			c.OnSpot++
		} else {
			c.Registered++
		}
		if st.IsPresent {
			c.Present++
		}
	}
	c.Absent = c.Registered + c.OnSpot - c.Present
	return c
}

// DisplayStudent is a row still awaiting commit.
type DisplayStudent struct {
	ID          int    `json:"id"`
	RollNumber  string `json:"rollNumber"`
	Status      string `json:"status"`
	IsCommitted bool   `json:"isCommitted"`
}

// Display is the marking view of a sheet.
type Display struct {
	Counts
	Total    int              `json:"total"`
	Students []DisplayStudent `json:"students"`
}

// Display lists uncommitted students that have a roll number.
func (s Snapshot) Display() Display {
	d := Display{Counts: s.Counts(), Students: []DisplayStudent{}}
	for _, st := range s.Students() {
		d.Total++
		if st.RollNumber == "" || st.IsCommitted {
			continue
		}
		status := "Absent"
		if st.IsPresent {
			status = "Present"
		}
		d.Students = append(d.Students, DisplayStudent{ID: st.ID, RollNumber: st.RollNumber, Status: status})
	}
	return d
}

// EventStudent is a row in the event statistics view.
type EventStudent struct {
	ID         int    `json:"id"`
	RollNumber string `json:"rollNumber"`
	Name       string `json:"name"`
	Department string `json:"department"`
	IsPresent  bool   `json:"isPresent"`
}

// EventStats summarizes a finished or running event.
type EventStats struct {
	SheetName     string `json:"sheetName"`
	SpreadsheetID string `json:"spreadsheetId"`
	Counts
	Students []EventStudent `json:"students"`
}

// Stats builds the event statistics view.
func (s Snapshot) Stats() EventStats {
	es := EventStats{
		SheetName:     s.SheetName,
		SpreadsheetID: s.SpreadsheetID,
		Counts:        s.Counts(),
		Students:      []EventStudent{},
	}
	for _, st := range s.Students() {
		if st.RollNumber == "" {
			continue
		}
		es.Students = append(es.Students, EventStudent{
			ID:         st.ID,
			RollNumber: st.RollNumber,
			Name:       st.Name,
			Department: st.Department,
			IsPresent:  st.IsPresent,
		})
	}
	return es
}

var exportHeader = []string{"Name", "Roll Number", "Mail ID", "Department", "Attendance", "Type", "Marked By"}

// ExportTables returns the present-only and full student tables.
func (s Snapshot) ExportTables() (present, all export.Table) {
	present = export.Table{Sheet: "Present Students", Header: exportHeader}
	all = export.Table{Sheet: "All Students", Header: exportHeader}
	for _, st := range s.Students() {
		if st.RollNumber == "" {
			continue
		}
		status := "Absent"
		if st.IsPresent {
			status = "Present"
		}
		row := []string{st.Name, st.RollNumber, st.MailID, st.Department, status, st.Type, st.MarkedBy}
		all.Rows = append(all.Rows, row)
		if st.IsPresent {
			present.Rows = append(present.Rows, row)
		}
	}
	return present, all
}
