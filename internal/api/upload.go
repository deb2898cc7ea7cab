package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/upload"
)

type sheetLinkBody struct {
	SheetLink  string `json:"sheet_link"`
	SheetLink2 string `json:"sheetlink"`
	EventName  string `json:"event_name"`
	UploadedBy string `json:"uploaded_by"`
}

func (b sheetLinkBody) link() string {
	if b.SheetLink != "" {
		return b.SheetLink
	}
	return b.SheetLink2
}

func (h *handler) validateSheet(c *gin.Context) {
	var req sheetLinkBody
	if !bindOptional(c, &req) {
		return
	}

	n, err := h.Upload.Validate(c.Request.Context(), req.link())
	if err != nil {
		uploadError(c, err, "Error validating sheet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Sheet validation successful",
		"rowsValidated": n,
	})
}

func (h *handler) uploadSheet(c *gin.Context) {
	var req sheetLinkBody
	if !bindOptional(c, &req) {
		return
	}
	by, allowed := actor(c, req.UploadedBy)
	if !allowed {
		return
	}

	rec, err := h.Upload.Upload(c.Request.Context(), req.link(), req.EventName, by)
	if err != nil {
		uploadError(c, err, "Error uploading sheet to history")
		return
	}
	ok(c, http.StatusOK, "Sheet uploaded to history successfully", rec)
}

func uploadError(c *gin.Context, err error, summary string) {
	var (
		dup   *upload.DuplicateError
		inacc *upload.InaccessibleError
		hdr   *upload.HeaderError
		rows  upload.RowErrors
	)
	switch {
	case errors.Is(err, upload.ErrMissingLink):
		fail(c, http.StatusBadRequest, "Missing sheet link in request body (expected 'sheetlink' or 'sheet_link')")
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": dup.Error(), "data": dup.Existing})
	case errors.As(err, &inacc):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": inacc.Error(), "error": inacc.Err.Error()})
	case errors.As(err, &hdr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":  false,
			"message":  hdr.Error(),
			"expected": hdr.Expected,
			"received": hdr.Received,
			"error":    hdr.Reason,
		})
	case errors.As(err, &rows):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": rows.Error(), "errors": []upload.RowError(rows)})
	default:
		abort(c, err, summary)
	}
}
