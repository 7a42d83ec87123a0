package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openground/backend/internal/application/listing"
	"github.com/openground/backend/internal/interfaces/http/dto"
	"github.com/openground/backend/internal/interfaces/http/middleware"
)

// ListingHandler handles listing, photo and moderation endpoints
type ListingHandler struct {
	BaseHandler
	listings *listing.ListingService
	photos   *listing.PhotoService
}

// NewListingHandler creates a new listing handler
func NewListingHandler(listings *listing.ListingService, photos *listing.PhotoService) *ListingHandler {
	return &ListingHandler{listings: listings, photos: photos}
}

// Categories handles GET /categories
func (h *ListingHandler) Categories(c *gin.Context) {
	h.Success(c, h.listings.Categories())
}

// Search handles GET /listings
func (h *ListingHandler) Search(c *gin.Context) {
	var req listing.SearchListingsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.listings.Search(c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// ListBySeller handles GET /users/:id/listings
func (h *ListingHandler) ListBySeller(c *gin.Context) {
	sellerID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req listing.SearchListingsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.listings.ListBySeller(c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), sellerID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// Get handles GET /listings/:id. Anonymous viewers see active listings only.
func (h *ListingHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.listings.Get(c.Request.Context(), id, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Create handles POST /listings
func (h *ListingHandler) Create(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req listing.CreateListingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.listings.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Update handles PUT /listings/:id
func (h *ListingHandler) Update(c *gin.Context) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}
	var req listing.UpdateListingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.listings.Update(c.Request.Context(), id, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete handles DELETE /listings/:id
func (h *ListingHandler) Delete(c *gin.Context) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}

	if err := h.listings.Delete(c.Request.Context(), id, userID, middleware.IsAdmin(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// MarkSold handles POST /listings/:id/sold
func (h *ListingHandler) MarkSold(c *gin.Context) {
	h.transition(c, h.listings.MarkSold)
}

// Archive handles POST /listings/:id/archive
func (h *ListingHandler) Archive(c *gin.Context) {
	h.transition(c, h.listings.Archive)
}

// Reactivate handles POST /listings/:id/reactivate
func (h *ListingHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.listings.Reactivate)
}

// Approve handles POST /admin/listings/:id/approve
func (h *ListingHandler) Approve(c *gin.Context) {
	h.transition(c, h.listings.Approve)
}

// Reject handles POST /admin/listings/:id/reject
func (h *ListingHandler) Reject(c *gin.Context) {
	adminID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}
	var req listing.RejectListingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.listings.Reject(c.Request.Context(), id, adminID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListPending handles GET /admin/listings/pending
func (h *ListingHandler) ListPending(c *gin.Context) {
	var q dto.PageQuery
	if !h.bindQuery(c, &q) {
		return
	}

	page, err := h.listings.ListPending(c.Request.Context(), q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// RequestUploadURL handles POST /listings/:id/photos/upload-url
func (h *ListingHandler) RequestUploadURL(c *gin.Context) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}
	var req listing.UploadURLRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.photos.RequestUploadURL(c.Request.Context(), id, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// AttachPhoto handles POST /listings/:id/photos
func (h *ListingHandler) AttachPhoto(c *gin.Context) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}
	var req listing.AttachPhotoRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.photos.AttachPhoto(c.Request.Context(), id, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// RemovePhoto handles DELETE /listings/:id/photos/:photo_id
func (h *ListingHandler) RemovePhoto(c *gin.Context) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}
	photoID, ok := h.uuidParam(c, "photo_id")
	if !ok {
		return
	}

	if err := h.photos.RemovePhoto(c.Request.Context(), id, userID, photoID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ListingHandler) transition(c *gin.Context, apply func(ctx context.Context, id, userID uuid.UUID) (*listing.ListingResponse, error)) {
	userID, id, ok := h.ownerAndID(c)
	if !ok {
		return
	}

	resp, err := apply(c.Request.Context(), id, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *ListingHandler) ownerAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.currentUser(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
