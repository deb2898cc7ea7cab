package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

func (h *handler) history(c *gin.Context) {
	recs, err := h.History.List(c.Request.Context())
	if err != nil {
		abort(c, err, "Failed to fetch history")
		return
	}
	ok(c, http.StatusOK, "History records retrieved successfully", recs)
}

func (h *handler) historyEvent(c *gin.Context) {
	id, _, found := sheetIDFromLink(c)
	if !found {
		return
	}
	fresh := c.Query("fresh") == "true"
	stats, cached, err := h.Attendance.Stats(c.Request.Context(), id, fresh)
	if err != nil {
		abort(c, err, "Failed to fetch event details")
		return
	}
	message := "Event details fetched successfully"
	if cached {
		message = "Event details retrieved from cache"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "cached": cached, "data": stats})
}

func (h *handler) exportEvent(c *gin.Context) {
	id := c.Query("spreadsheet_id")
	if !requireID(c, id) {
		return
	}
	res, err := h.Attendance.ExportEvent(c.Request.Context(), id)
	if err != nil {
		exportError(c, err)
		return
	}
	sendZip(c, res)
}

func (h *handler) eventQR(c *gin.Context) {
	_, link, found := sheetIDFromLink(c)
	if !found {
		return
	}
	size := 256
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 64 && v <= 1024 {
		size = v
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		abort(c, err, "Failed to render QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) eventAudit(c *gin.Context) {
	id := c.Query("spreadsheet_id")
	if !requireID(c, id) {
		return
	}
	if h.AuditLog == nil {
		fail(c, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	events, err := h.AuditLog.ListBySheet(c.Request.Context(), id, limit)
	if err != nil {
		abort(c, err, "Failed to fetch audit log")
		return
	}
	ok(c, http.StatusOK, "Audit events retrieved successfully", events)
}
