package attendance

import "strings"

// Header names written by the service.
const (
	HeaderCommit   = "commit"
	HeaderMarkedBy = "marked_by"
	HeaderType     = "type"
)

// Row types stored in the type column.
const (
	TypeRegistered = "REGISTERED"
	TypeOnSpot     = "ON-SPOT"
)

// Columns holds 0-based header positions; -1 means the column is absent.
type Columns struct {
	Name       int
	Roll       int
	Mail       int
	Department int
	Attendance int
	Commit     int
	Type       int
	MarkedBy   int
}

// Locate finds columns by case-insensitive header text.
func Locate(headers []string) Columns {
	return Columns{
		Name:       find(headers, equals("name")),
		Roll:       find(headers, func(h string) bool { return h == "roll_number" || strings.Contains(h, "roll") }),
		Mail:       find(headers, func(h string) bool { return h == "mail_id" || strings.Contains(h, "mail") }),
		Department: find(headers, equals("department")),
		Attendance: find(headers, func(h string) bool { return h == "attendance" || h == "status" }),
		Commit:     find(headers, equals(HeaderCommit)),
		Type:       find(headers, equals(HeaderType)),
		MarkedBy:   find(headers, equals(HeaderMarkedBy)),
	}
}

func equals(name string) func(string) bool {
	return func(h string) bool { return h == name }
}

func find(headers []string, match func(string) bool) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && match(h) {
			return i
		}
	}
	return -1
}

// Truthy normalizes a bool-like cell: TRUE and YES in any case are true,
// everything else is false.
func Truthy(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "TRUE", "YES":
		return true
	}
	return false
}

// BoolLike reports whether v is one of TRUE, FALSE, YES or NO.
func BoolLike(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "TRUE", "FALSE", "YES", "NO":
		return true
	}
	return false
}
