package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openground/backend/internal/application/identity"
)

const maxBatchProfiles = 100

// UserHandler serves profiles and the admin user actions
type UserHandler struct {
	BaseHandler
	profiles *identity.ProfileService
}

// NewUserHandler creates a new user handler
func NewUserHandler(profiles *identity.ProfileService) *UserHandler {
	return &UserHandler{profiles: profiles}
}

// GetProfile handles GET /users/:id. Contact details are never included.
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.profiles.GetProfile(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// BatchProfiles handles GET /users?ids=a,b,c. Unknown ids are left out.
func (h *UserHandler) BatchProfiles(c *gin.Context) {
	raw := strings.Split(c.Query("ids"), ",")
	if len(raw) > maxBatchProfiles {
		h.BadRequest(c, "Too many ids requested")
		return
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		id, err := uuid.Parse(r)
		if err != nil {
			h.BadRequest(c, "ids must be a comma separated list of UUIDs")
			return
		}
		ids = append(ids, id)
	}

	profiles, err := h.profiles.GetProfiles(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, profiles)
}

// UpdateProfile handles PUT /profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req identity.UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.profiles.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Ban handles POST /admin/users/:id/ban
func (h *UserHandler) Ban(c *gin.Context) {
	h.moderate(c, h.profiles.Ban)
}

// Unban handles POST /admin/users/:id/unban
func (h *UserHandler) Unban(c *gin.Context) {
	h.moderate(c, h.profiles.Unban)
}

func (h *UserHandler) moderate(c *gin.Context, apply func(ctx context.Context, adminID, userID uuid.UUID) (*identity.UserResponse, error)) {
	adminID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := apply(c.Request.Context(), adminID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
