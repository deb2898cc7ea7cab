package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/attendance"
	"sheetattend/internal/sheets"
)

// sheetIDFromLink reads the sheet_link query parameter. It writes the 400
// response itself and returns false when the link is missing or malformed.
func sheetIDFromLink(c *gin.Context) (string, string, bool) {
	link := c.Query("sheet_link")
	if link == "" {
		link = c.Query("sheetlink")
	}
	if link == "" {
		fail(c, http.StatusBadRequest, "Sheet link is required")
		return "", "", false
	}
	id, found := sheets.ExtractID(link)
	if !found {
		fail(c, http.StatusBadRequest, "Invalid Google Sheets link")
		return "", "", false
	}
	return id, link, true
}

func requireID(c *gin.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		fail(c, http.StatusBadRequest, "Spreadsheet ID is required")
		return false
	}
	return true
}

func (h *handler) details(c *gin.Context) {
	id, _, found := sheetIDFromLink(c)
	if !found {
		return
	}
	d, err := h.Attendance.Details(c.Request.Context(), id)
	if err != nil {
		abort(c, err, "Failed to fetch sheet information")
		return
	}
	message := "Sheet details fetched successfully"
	if d.Cached {
		message = "Sheet details retrieved from cache"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             message,
		"cached":              d.Cached,
		"commitColumnAdded":   slices.Contains(d.DerivedAdded, attendance.HeaderCommit),
		"derivedColumnsAdded": d.DerivedAdded,
		"data":                d.Snapshot,
	})
}

func (h *handler) clearCache(c *gin.Context) {
	id := c.Query("spreadsheet_id")
	if id == "" && c.Request.ContentLength != 0 {
		var req struct {
			SpreadsheetID string `json:"spreadsheet_id"`
		}
		if !bindOptional(c, &req) {
			return
		}
		id = req.SpreadsheetID
	}

	err := h.Attendance.ClearCache(c.Request.Context(), id)
	switch {
	case errors.Is(err, attendance.ErrNotCached):
		fail(c, http.StatusNotFound, "No cache found for specified sheet")
	case err != nil:
		abort(c, err, "Failed to clear cache")
	case id == "":
		ok(c, http.StatusOK, "All cache cleared", nil)
	default:
		ok(c, http.StatusOK, "Cache cleared for specified sheet", nil)
	}
}

func (h *handler) display(c *gin.Context) {
	id := c.Query("spreadsheet_id")
	if !requireID(c, id) {
		return
	}
	d, err := h.Attendance.Display(c.Request.Context(), id)
	if errors.Is(err, attendance.ErrNotCached) {
		fail(c, http.StatusNotFound, "No cached data found for this spreadsheet. Please fetch information first.")
		return
	}
	if err != nil {
		abort(c, err, "Failed to display sheet data")
		return
	}
	ok(c, http.StatusOK, "Display data retrieved successfully", d)
}

func (h *handler) commit(c *gin.Context) {
	var req struct {
		SpreadsheetID string   `json:"spreadsheet_id"`
		RollNumbers   []string `json:"roll_numbers"`
		Username      string   `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requireID(c, req.SpreadsheetID) {
		return
	}
	markedBy, allowed := actor(c, req.Username)
	if !allowed {
		return
	}
	res, err := h.Attendance.Commit(c.Request.Context(), req.SpreadsheetID, req.RollNumbers, markedBy)
	if err != nil {
		abort(c, err, "Failed to commit attendance")
		return
	}
	ok(c, http.StatusOK, fmt.Sprintf("Successfully committed %d students", res.UpdatedCount), res)
}

func (h *handler) addOnSpot(c *gin.Context) {
	var req struct {
		SpreadsheetID string `json:"spreadsheet_id"`
		attendance.OnSpotStudent
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requireID(c, req.SpreadsheetID) {
		return
	}
	markedBy, allowed := actor(c, req.Username)
	if !allowed {
		return
	}
	st, err := h.Attendance.AddOnSpot(c.Request.Context(), req.SpreadsheetID, req.OnSpotStudent, markedBy)
	if err != nil {
		abort(c, err, "Failed to add student on-spot")
		return
	}
	ok(c, http.StatusOK, "Student added on-spot successfully", gin.H{
		"name":        st.Name,
		"roll_number": st.RollNumber,
		"mail_id":     st.MailID,
		"department":  st.Department,
		"attendance":  true,
		"commit":      true,
		"type":        attendance.TypeOnSpot,
		"marked_by":   markedBy,
	})
}

func (h *handler) export(c *gin.Context) {
	id := c.Query("spreadsheet_id")
	if !requireID(c, id) {
		return
	}
	res, err := h.Attendance.Export(c.Request.Context(), id)
	if err != nil {
		exportError(c, err)
		return
	}
	sendZip(c, res)
}

func exportError(c *gin.Context, err error) {
	if errors.Is(err, attendance.ErrNoData) {
		fail(c, http.StatusBadRequest, "No student data available to export")
		return
	}
	abort(c, err, "Failed to export attendance data")
}

func sendZip(c *gin.Context, res attendance.ExportResult) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	if res.ArchiveKey != "" {
		c.Header("X-Archive-Key", res.ArchiveKey)
	}
	c.Data(http.StatusOK, "application/zip", res.Data)
}
