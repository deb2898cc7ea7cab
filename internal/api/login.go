package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/users"
)

func (h *handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		fail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		abort(c, err, "Server error")
		return
	}

	tokens, err := h.Signer.Issue(u.Username, u.Admin)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	admin := "FALSE"
	if u.Admin {
		admin = "TRUE"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"user":    u.Row(),
		"admin":   admin,
		"tokens":  tokens,
	})
}

func (h *handler) createUser(c *gin.Context) {
	var req users.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Users.Create(c.Request.Context(), req); err != nil {
		if errors.Is(err, users.ErrExists) {
			fail(c, http.StatusConflict, "Username already exists")
			return
		}
		abort(c, err, "Failed to create user")
		return
	}
	ok(c, http.StatusCreated, "User created successfully", nil)
}
