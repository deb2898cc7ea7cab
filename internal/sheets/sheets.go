package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInaccessible is returned when a spreadsheet does not exist or the
// service account has no access to it.
var ErrInaccessible = errors.New("spreadsheet not accessible")

// ValueRange is one A1 range and the rows to write into it.
type ValueRange struct {
	Range  string
	Values [][]any
}

// Client is the subset of the Sheets values API the service relies on.
type Client interface {
	Title(ctx context.Context, spreadsheetID string) (string, error)
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	BatchUpdate(ctx context.Context, spreadsheetID string, data []ValueRange) error
}

var linkPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractID pulls the spreadsheet ID out of a Google Sheets URL.
func ExtractID(link string) (string, bool) {
	m := linkPattern.FindStringSubmatch(strings.TrimSpace(link))
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ColumnLetter converts a 0-based column index to its A1 letters (0=A, 26=AA).
func ColumnLetter(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}

// ColumnIndex is the inverse of ColumnLetter. It returns -1 for invalid input.
func ColumnIndex(letters string) int {
	if letters == "" {
		return -1
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return -1
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

// Range qualifies an A1 reference with a tab name.
func Range(tab, a1 string) string {
	return Tab(tab) + "!" + a1
}

// Tab is the range covering every populated cell of a tab, however wide.
func Tab(tab string) string {
	if strings.ContainsAny(tab, " '!") {
		return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab
}

// Cell returns the A1 reference of a 0-based column and 1-based row.
func Cell(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// CellString renders a value the way the Sheets API formats it.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Strings converts a row of API values to strings.
func Strings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = CellString(v)
	}
	return out
}
