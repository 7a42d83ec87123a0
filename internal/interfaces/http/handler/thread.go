package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openground/backend/internal/application/messaging"
	"github.com/openground/backend/internal/interfaces/http/dto"
)

// ThreadHandler handles conversations between buyers and sellers
type ThreadHandler struct {
	BaseHandler
	threads *messaging.ThreadService
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(threads *messaging.ThreadService) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// List handles GET /threads
func (h *ThreadHandler) List(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.bindQuery(c, &q) {
		return
	}

	page, err := h.threads.ListThreads(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// Start handles POST /threads. An existing conversation about the same
// listing is reused and answered with 200 instead of 201.
func (h *ThreadHandler) Start(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req messaging.StartThreadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.threads.StartThread(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.Created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// Get handles GET /threads/:id
func (h *ThreadHandler) Get(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}

	resp, err := h.threads.GetThread(c.Request.Context(), userID, threadID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Messages handles GET /threads/:id/messages
func (h *ThreadHandler) Messages(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}
	var req messaging.ListMessagesRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.threads.ListMessages(c.Request.Context(), userID, threadID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, page)
}

// Send handles POST /threads/:id/messages
func (h *ThreadHandler) Send(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}
	var req messaging.SendMessageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.threads.SendMessage(c.Request.Context(), userID, threadID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// MarkRead handles POST /threads/:id/read
func (h *ThreadHandler) MarkRead(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}

	resp, err := h.threads.MarkRead(c.Request.Context(), userID, threadID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// SetTyping handles POST /threads/:id/typing
func (h *ThreadHandler) SetTyping(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}
	var req messaging.TypingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.threads.SetTyping(c.Request.Context(), userID, threadID, *req.Typing); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Typing handles GET /threads/:id/typing
func (h *ThreadHandler) Typing(c *gin.Context) {
	userID, threadID, ok := h.participantAndThread(c)
	if !ok {
		return
	}

	resp, err := h.threads.TypingUsers(c.Request.Context(), userID, threadID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Unread handles GET /threads/unread
func (h *ThreadHandler) Unread(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	resp, err := h.threads.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *ThreadHandler) participantAndThread(c *gin.Context) (userID, threadID uuid.UUID, ok bool) {
	if userID, ok = h.currentUser(c); !ok {
		return
	}
	threadID, ok = h.uuidParam(c, "id")
	return
}
