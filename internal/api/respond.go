package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/attendance"
	"sheetattend/internal/history"
	"sheetattend/internal/upload"
	"sheetattend/internal/users"
)

func ok(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// bindOptional decodes a JSON body that may be absent. A malformed body is
// answered with 400 and reported as false.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	var (
		dup   *upload.DuplicateError
		inacc *upload.InaccessibleError
		hdr   *upload.HeaderError
		rows  upload.RowErrors
	)
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &inacc):
		return http.StatusForbidden
	case errors.As(err, &hdr), errors.As(err, &rows):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrInvalid),
		errors.Is(err, attendance.ErrMissingColumn),
		errors.Is(err, attendance.ErrNoData),
		errors.Is(err, users.ErrInvalid),
		errors.Is(err, upload.ErrMissingLink),
		errors.Is(err, upload.ErrInvalidLink),
		errors.Is(err, upload.ErrMissing):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrNotCached),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrClosed),
		errors.Is(err, attendance.ErrDuplicate),
		errors.Is(err, users.ErrExists),
		errors.Is(err, history.ErrAlreadyClosed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// abort writes err with its mapped status. Unmapped errors become 500 with
// summary as the message and the raw error attached.
func abort(c *gin.Context, err error, summary string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"success": false, "message": summary, "error": err.Error()})
		return
	}
	fail(c, status, err.Error())
}
