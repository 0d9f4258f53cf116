package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/internal/service"
)

// SessionHandler обслуживает локальные сессии аккаунтов. Токены ходят в
// JSON (mobile-style), cookies не используются.
type SessionHandler struct {
	accountService *service.AccountService
}

// NewSessionHandler создает новый обработчик сессий
func NewSessionHandler(accountService *service.AccountService) *SessionHandler {
	return &SessionHandler{accountService: accountService}
}

// RefreshRequest — запрос обновления пары токенов
type RefreshRequest struct {
	RefreshJwt string `json:"refreshJwt" binding:"required"`
}

// Refresh обменивает refresh token на свежую пару access/refresh.
// POST /api/session/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	creds, err := h.accountService.RefreshSession(c.Request.Context(), req.RefreshJwt)
	if err != nil {
		log.Printf("[Session] Refresh error: %v", err)
		// Несуществующий аккаунт неотличим для клиента от невалидного токена
		if errors.Is(err, apperrors.ErrUnauthorized) || errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token", "error_type": "token_invalid"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal"})
		}
		return
	}
	c.JSON(http.StatusOK, creds)
}
