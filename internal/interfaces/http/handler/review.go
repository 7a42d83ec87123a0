package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openground/backend/internal/application/review"
	"github.com/openground/backend/internal/interfaces/http/dto"
	"github.com/openground/backend/internal/interfaces/http/middleware"
)

// ReviewHandler handles seller reviews
type ReviewHandler struct {
	BaseHandler
	reviews *review.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviews *review.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Create handles POST /reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req review.CreateReviewRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.reviews.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Update handles PUT /reviews/:id
func (h *ReviewHandler) Update(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req review.UpdateReviewRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.reviews.Update(c.Request.Context(), id, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete handles DELETE /reviews/:id
func (h *ReviewHandler) Delete(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.reviews.Delete(c.Request.Context(), id, userID, middleware.IsAdmin(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListForUser handles GET /users/:id/reviews
func (h *ReviewHandler) ListForUser(c *gin.Context) {
	userID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.bindQuery(c, &q) {
		return
	}

	resp, err := h.reviews.ListForUser(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.Items == nil {
		resp.Items = []review.ReviewResponse{}
	}
	h.SuccessWithMeta(c, gin.H{"items": resp.Items, "summary": resp.Summary}, resp.Total, resp.Page, resp.PageSize)
}
