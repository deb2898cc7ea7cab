package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/attendance"
	"sheetattend/internal/audit"
	"sheetattend/internal/auth"
	"sheetattend/internal/history"
	"sheetattend/internal/sheets"
	"sheetattend/internal/users"
)

type usernameBody struct {
	Username  string `json:"username"`
	SheetID   string `json:"sheet_id"`
	SheetLink string `json:"sheet_link"`
}

func (h *handler) profile(c *gin.Context) {
	var req usernameBody
	if !bindOptional(c, &req) {
		return
	}
	username, allowed := actor(c, req.Username)
	if !allowed {
		return
	}
	if username == "" {
		fail(c, http.StatusBadRequest, "Username is required")
		return
	}
	u, err := h.Users.Profile(c.Request.Context(), username)
	if errors.Is(err, users.ErrNotFound) {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		abort(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

type session struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SheetName  string `json:"sheet_name"`
	SheetLink  string `json:"sheet_link"`
	Status     string `json:"status"`
	UploadedAt string `json:"uploaded_at"`
	ClosedAt   string `json:"closed_at"`
}

func (h *handler) sessions(c *gin.Context) {
	var req usernameBody
	if !bindOptional(c, &req) {
		return
	}
	username, allowed := actor(c, req.Username)
	if !allowed {
		return
	}
	if username == "" {
		fail(c, http.StatusBadRequest, "Username is required")
		return
	}
	recs, err := h.History.ByUploader(c.Request.Context(), username)
	if err != nil {
		abort(c, err, "Failed to fetch sessions")
		return
	}
	out := make([]session, 0, len(recs))
	for _, r := range recs {
		out = append(out, session{
			ID:         r.SheetID,
			Name:       r.EventName,
			SheetName:  r.SheetName,
			SheetLink:  r.SheetLink,
			Status:     strings.ToLower(r.Status),
			UploadedAt: r.UploadedAt,
			ClosedAt:   r.ClosedAt,
		})
	}
	ok(c, http.StatusOK, "Sessions retrieved successfully", out)
}

func (h *handler) closeSession(c *gin.Context) {
	var req usernameBody
	if !bindOptional(c, &req) {
		return
	}
	username, allowed := actor(c, req.Username)
	if !allowed {
		return
	}
	id := req.SheetID
	if id == "" && req.SheetLink != "" {
		id, _ = sheets.ExtractID(req.SheetLink)
	}
	if username == "" || id == "" {
		fail(c, http.StatusBadRequest, "username and sheet_id (or sheet_link) are required")
		return
	}
	ctx := c.Request.Context()

	rec, err := h.History.Find(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		fail(c, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		abort(c, err, "Failed to close session")
		return
	}
	if !strings.EqualFold(strings.TrimSpace(rec.UploadedBy), username) {
		allowed, err := h.isAdmin(c, username)
		if err != nil {
			abort(c, err, "Failed to close session")
			return
		}
		if !allowed {
			fail(c, http.StatusForbidden, "Only the uploader or an admin can close this session")
			return
		}
	}

	rec, err = h.History.Close(ctx, id, h.now())
	if errors.Is(err, history.ErrAlreadyClosed) {
		fail(c, http.StatusConflict, "Session is already closed")
		return
	}
	if err != nil {
		abort(c, err, "Failed to close session")
		return
	}
	if err := h.Attendance.ClearCache(ctx, id); err != nil && !errors.Is(err, attendance.ErrNotCached) {
		abort(c, err, "Failed to close session")
		return
	}
	h.Audit.Record(ctx, audit.Event{Kind: audit.KindClose, SheetID: id, Actor: username})
	ok(c, http.StatusOK, "Session closed successfully", rec)
}

func (h *handler) isAdmin(c *gin.Context, username string) (bool, error) {
	if claims, found := auth.FromContext(c); found && claims.Subject == username && claims.Admin() {
		return true, nil
	}
	return h.Users.IsAdmin(c.Request.Context(), username)
}
