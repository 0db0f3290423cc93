package api

import (
	"net/http"
	"time"

	"banking_ledger/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler issues tokens in dev mode so the API can be exercised
// without the real session provider.
type AuthHandler struct {
	jwtSecret string
	ttl       time.Duration
}

func NewAuthHandler(jwtSecret string, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthHandler{jwtSecret: jwtSecret, ttl: ttl}
}

// GenerateDevToken handles POST /auth/dev/token.
func (h *AuthHandler) GenerateDevToken(c *gin.Context) {
	var req DevTokenRequest
	// An empty body is fine; defaults apply.
	_ = c.ShouldBindJSON(&req)

	userID := req.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	ttl := h.ttl
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	token, expiresAt, err := middleware.IssueToken(h.jwtSecret, userID, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token", Code: "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, DevTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		UserID:    userID,
	})
}
