package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": msg},
	})
}

func newServer(t *testing.T, h http.Handler) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, New(srv.URL, WithHTTPClient(srv.Client()))
}

func TestClient_LoginKeepsToken(t *testing.T) {
	userID := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret-pass" {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"token": map[string]string{"access_token": "at-1", "refresh_token": "rt-1"},
			"user":  map[string]any{"id": userID, "username": body["identifier"]},
		})
	})
	mux.HandleFunc("GET /api/v1/favorites/ids", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, map[string]any{"listing_ids": []uuid.UUID{userID}})
	})
	_, c := newServer(t, mux)
	ctx := context.Background()

	_, err := c.Login(ctx, "ana", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	assert.Empty(t, c.Token())

	sess, err := c.Login(ctx, "ana", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "at-1", sess.AccessToken)
	assert.Equal(t, "rt-1", sess.RefreshToken)
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, "at-1", c.Token())

	ids, err := c.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, ids)
}

func TestClient_SearchListingsQuery(t *testing.T) {
	var got string
	_, c := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		writeData(w, http.StatusOK, []map[string]any{{
			"id": uuid.New(), "title": "Road bike", "price": "120.50", "currency": "EUR",
		}})
	}))

	listings, err := c.SearchListings(context.Background(), SearchParams{Query: "bike", City: "Lyon", PageSize: 5})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Road bike", listings[0].Title)
	assert.Equal(t, "120.5", listings[0].Price.String())
	assert.Equal(t, "city=Lyon&page_size=5&q=bike", got)
}

func TestClient_SetFavoriteMethods(t *testing.T) {
	var methods []string
	_, c := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		writeData(w, http.StatusOK, map[string]bool{"changed": true})
	}))
	id := uuid.New()

	require.NoError(t, c.SetFavorite(context.Background(), id, true))
	require.NoError(t, c.SetFavorite(context.Background(), id, false))
	assert.Equal(t, []string{http.MethodPut, http.MethodDelete}, methods)
}

func TestClient_NonEnvelopeError(t *testing.T) {
	_, c := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	_, err := c.Threads(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
