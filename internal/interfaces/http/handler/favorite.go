package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openground/backend/internal/application/favorite"
	"github.com/openground/backend/internal/interfaces/http/dto"
)

// FavoriteHandler handles the saved-listings endpoints
type FavoriteHandler struct {
	BaseHandler
	favorites *favorite.FavoriteService
}

// NewFavoriteHandler creates a new favorite handler
func NewFavoriteHandler(favorites *favorite.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

// List handles GET /favorites
func (h *FavoriteHandler) List(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.bindQuery(c, &q) {
		return
	}

	page, err := h.favorites.List(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// IDs handles GET /favorites/ids
func (h *FavoriteHandler) IDs(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	ids, err := h.favorites.IDs(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"listing_ids": ids})
}

// Add handles PUT /favorites/:listing_id
func (h *FavoriteHandler) Add(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	listingID, ok := h.uuidParam(c, "listing_id")
	if !ok {
		return
	}

	resp, err := h.favorites.Add(c.Request.Context(), userID, listingID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Remove handles DELETE /favorites/:listing_id
func (h *FavoriteHandler) Remove(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	listingID, ok := h.uuidParam(c, "listing_id")
	if !ok {
		return
	}

	resp, err := h.favorites.Remove(c.Request.Context(), userID, listingID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
