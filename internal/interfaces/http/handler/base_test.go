package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/interfaces/http/dto"
	"github.com/openground/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_SuccessResponses(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "/")
	h.Success(c, map[string]string{"key": "value"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	c, w = newTestContext(http.MethodGet, "/")
	h.SuccessWithMeta(c, []string{"a", "b"}, 41, 2, 20)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	c, w = newTestContext(http.MethodPost, "/")
	h.Created(c, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newTestContext(http.MethodDelete, "/")
	h.NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSuccessPage_EmptyItemsEncodeAsArray(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")
	successPage(&BaseHandler{}, c, shared.Paginated[string]{Page: 1, PageSize: 20})

	assert.JSONEq(t,
		`{"success":true,"data":[],"meta":{"total":0,"page":1,"page_size":20,"total_pages":0}}`,
		w.Body.String())
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.NewDomainError("NOT_FOUND", "listing not found"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"forbidden", shared.NewDomainError("FORBIDDEN", "not yours"), http.StatusForbidden, dto.ErrCodeForbidden},
		{"conflict", shared.NewDomainError("ALREADY_EXISTS", "taken"), http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"wrapped domain error", fmt.Errorf("update: %w", shared.NewDomainError("NOT_FOUND", "gone")), http.StatusNotFound, dto.ErrCodeNotFound},
		{"business rule", shared.NewDomainError("OWN_LISTING", "You cannot save your own listing"), http.StatusUnprocessableEntity, "OWN_LISTING"},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/")
			c.Set(middleware.RequestIDKey, "req-1")
			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}

	t.Run("client went away", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		(&BaseHandler{}).HandleError(c, fmt.Errorf("query: %w", context.Canceled))
		c.Writer.WriteHeaderNow()
		assert.Equal(t, 499, w.Code)
	})
}

func TestBaseHandler_UUIDParam(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "/listings/nope")
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	_, ok := h.uuidParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "id", resp.Error.Details[0].Field)

	want := uuid.New()
	c, _ = newTestContext(http.MethodGet, "/")
	c.Params = gin.Params{{Key: "id", Value: want.String()}}
	got, ok := h.uuidParam(c, "id")
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestBaseHandler_CurrentUser(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "/")
	_, ok := h.currentUser(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id := uuid.New()
	c, _ = newTestContext(http.MethodGet, "/")
	c.Set(middleware.JWTClaimsKey, &auth.Claims{UserID: id.String()})
	got, ok := h.currentUser(c)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
