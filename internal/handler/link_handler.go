package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/internal/service"
)

// LinkHandler обрабатывает протокол привязки внешней идентичности:
// init/callback/status/login плюс управление существующей привязкой.
// Токены возвращаются в JSON (mobile-style), cookies не используются.
type LinkHandler struct {
	linkService *service.LinkService
}

// NewLinkHandler создает новый обработчик протокола привязки
func NewLinkHandler(linkService *service.LinkService) *LinkHandler {
	return &LinkHandler{linkService: linkService}
}

// --- Request/response DTOs ---

// InitLinkRequest — запрос на открытие handshake-сессии.
// AllowCreate — указатель: отсутствие поля в JSON означает true, клиент
// должен явно прислать false, чтобы запретить создание аккаунта.
type InitLinkRequest struct {
	Link        bool  `json:"link"`
	AllowCreate *bool `json:"allowCreate"`
}

// CallbackRequest — асинхронная доставка assertion от провайдера.
// SessionId живет внутри payload, отдельного поля нет.
type CallbackRequest struct {
	service.LinkPayload
}

// StatusRequest — poll завершенности сессии
type StatusRequest struct {
	SessionID    string `json:"sessionId" binding:"required"`
	SessionToken string `json:"sessionToken" binding:"required"`
}

// LoginRequest — синхронный login с уже полученным assertion
type LoginRequest struct {
	Payload service.LinkPayload `json:"payload"`
}

// --- Handlers ---

// Init открывает handshake-сессию у провайдера.
// POST /api/linkauth/init
func (h *LinkHandler) Init(c *gin.Context) {
	var req InitLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	allowCreate := req.AllowCreate == nil || *req.AllowCreate
	result, err := h.linkService.Init(c.Request.Context(), callerDid(c), req.Link, allowCreate)
	if err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Callback принимает assertion от провайдера и запускает провижининг.
// Всегда отвечает 200 с {"ok": bool} — провайдер ждет только подтверждение
// доставки, детали исхода клиент забирает через Status.
// POST /api/linkauth/callback?session=<id>
func (h *LinkHandler) Callback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	sessionID := c.Query("session")
	if sessionID == "" {
		sessionID = req.SessionID
	}

	ok, err := h.linkService.Callback(c.Request.Context(), sessionID, &req.LinkPayload, c.ClientIP())
	if err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

// Status возвращает состояние handshake-сессии. Требует session token,
// выданный при Init.
// POST /api/linkauth/status
func (h *LinkHandler) Status(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.linkService.Status(c.Request.Context(), req.SessionID, req.SessionToken)
	if err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login выполняет синхронный login/link по готовому assertion.
// POST /api/linkauth/login
func (h *LinkHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.linkService.Login(c.Request.Context(), &req.Payload, callerDid(c), c.ClientIP())
	if err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLink сообщает, есть ли у вызывающего аккаунта привязка к провайдеру.
// GET /api/linkauth/link (RequireAuth)
func (h *LinkHandler) GetLink(c *gin.Context) {
	did := callerDid(c)
	if did == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	linked, provider, err := h.linkService.GetLink(c.Request.Context(), did)
	if err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": linked, "provider": provider})
}

// Unlink удаляет привязку вызывающего аккаунта к провайдеру.
// DELETE /api/linkauth/link (RequireAuth)
func (h *LinkHandler) Unlink(c *gin.Context) {
	did := callerDid(c)
	if did == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	if err := h.linkService.Unlink(c.Request.Context(), did); err != nil {
		h.handleLinkError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully unlinked"})
}

// callerDid достает DID из контекста, установленный auth middleware.
// Пустая строка означает анонимный запрос.
func callerDid(c *gin.Context) string {
	if did, exists := c.Get("did"); exists {
		if s, ok := did.(string); ok {
			return s
		}
	}
	return ""
}

// handleLinkError маппит доменные ошибки на HTTP статусы единообразно
// для всех endpoint'ов протокола.
func (h *LinkHandler) handleLinkError(c *gin.Context, err error) {
	log.Printf("[LinkAuth] Error: %v", err)

	if errors.Is(err, apperrors.ErrNotEnabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feature is disabled", "error_type": "feature_disabled"})
	} else if errors.Is(err, apperrors.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "error_type": "unauthorized"})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Identity already linked to a different account", "error_type": "conflict"})
	} else if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found", "error_type": "not_found"})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	} else if errors.Is(err, apperrors.ErrUpstreamFailure) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Identity provider is unavailable", "error_type": "upstream_failure"})
	} else if errors.Is(err, apperrors.ErrInternalInconsistency) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Provisioning failed with incomplete rollback", "error_type": "internal_inconsistency"})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal"})
	}
}
