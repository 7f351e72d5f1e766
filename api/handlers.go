// Package api exposes the REST surface mirroring the socket
// operations, for clients without a live connection.
package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"care-relay/contract"
	"care-relay/domain"
	"care-relay/errors"
	"care-relay/observability"
	"care-relay/services"
)

type Handlers struct {
	chat          services.IChatService
	calls         services.ICallService
	notifications services.INotificationService
	registry      contract.IRegistry
	stats         *observability.Stats
	log           *slog.Logger
}

func NewHandlers(
	chat services.IChatService,
	calls services.ICallService,
	notifications services.INotificationService,
	registry contract.IRegistry,
	stats *observability.Stats,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		chat:          chat,
		calls:         calls,
		notifications: notifications,
		registry:      registry,
		stats:         stats,
		log:           log,
	}
}

// identityFromQuery reads the ?userId=&userType= pair every listing
// endpoint requires.
func identityFromQuery(c *gin.Context) (domain.Identity, bool) {
	identity, err := domain.NewIdentity(c.Query("userType"), c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return domain.Identity{}, false
	}
	return identity, true
}

func limitFromQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case stderrors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	default:
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

type createConversationRequest struct {
	PatientID   string `json:"patientId" binding:"required"`
	DoctorID    string `json:"doctorId" binding:"required"`
	PatientName string `json:"patientName"`
	DoctorName  string `json:"doctorName"`
}

func (h *Handlers) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	conv, created, err := h.chat.CreateOrGet(req.PatientID, req.DoctorID, req.PatientName, req.DoctorName)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": conv})
}

func (h *Handlers) listConversations(c *gin.Context) {
	user, ok := identityFromQuery(c)
	if !ok {
		return
	}
	conversations, err := h.chat.ListConversations(user, limitFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversations})
}

func (h *Handlers) getConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conv})
}

func (h *Handlers) listMessages(c *gin.Context) {
	var cursor *string
	if before := c.Query("before"); before != "" {
		cursor = &before
	}
	messages, next, err := h.chat.ListMessages(c.Param("id"), cursor, limitFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages, "nextCursor": next})
}

func (h *Handlers) searchMessages(c *gin.Context) {
	terms := c.Query("q")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing query parameter q"})
		return
	}
	hits, err := h.chat.SearchMessages(c.Request.Context(), c.Param("id"), terms, limitFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": hits})
}

func (h *Handlers) sendMessage(c *gin.Context) {
	var cmd services.SendMessageCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	message, err := h.chat.SendMessage(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.chat.Deliver(c.Request.Context(), message)
	c.JSON(http.StatusCreated, gin.H{"data": message})
}

type markReadRequest struct {
	UserID   string `json:"userId" binding:"required"`
	UserType string `json:"userType" binding:"required"`
}

func (h *Handlers) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	reader, err := domain.NewIdentity(req.UserType, req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	count, err := h.chat.MarkRead(c.Param("id"), reader)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"conversationId": c.Param("id"), "count": count}})
}

func (h *Handlers) listNotifications(c *gin.Context) {
	user, ok := identityFromQuery(c)
	if !ok {
		return
	}
	notifications, err := h.notifications.ListForUser(user, limitFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

type createCallRequest struct {
	CallerID     string `json:"callerId" binding:"required"`
	CallerType   string `json:"callerType" binding:"required"`
	ReceiverID   string `json:"receiverId" binding:"required"`
	ReceiverType string `json:"receiverType" binding:"required"`
}

func (h *Handlers) createCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	caller, err := domain.NewIdentity(req.CallerType, req.CallerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	receiver, err := domain.NewIdentity(req.ReceiverType, req.ReceiverID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call, err := h.calls.CreateCall(caller, receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": call})
}

type updateCallStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handlers) updateCallStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed call id"})
		return
	}
	var req updateCallStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	call, err := h.calls.UpdateCallStatus(id, domain.CallStatus(req.Status))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": call})
}

func (h *Handlers) listCalls(c *gin.Context) {
	user, ok := identityFromQuery(c)
	if !ok {
		return
	}
	calls, err := h.calls.ListCalls(user, limitFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": calls})
}

func (h *Handlers) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.stats.Snapshot(h.registry.Online())})
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
