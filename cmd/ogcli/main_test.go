package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	favorites map[uuid.UUID]bool
	requests  []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	write := func(status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
	}
	if r.URL.Path != "/api/v1/auth/login" && r.Header.Get("Authorization") != "Bearer tok-1" {
		write(http.StatusUnauthorized, nil)
		return
	}

	switch {
	case r.URL.Path == "/api/v1/auth/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter22" {
			write(http.StatusUnauthorized, nil)
			return
		}
		write(http.StatusOK, map[string]any{
			"token": map[string]string{"access_token": "tok-1"},
			"user":  map[string]any{"id": uuid.New(), "username": body["identifier"]},
		})
	case r.URL.Path == "/api/v1/listings":
		write(http.StatusOK, []map[string]any{{
			"id": uuid.MustParse("00000000-0000-0000-0000-000000000001"), "title": "Road bike",
			"price": "120", "currency": "EUR", "city": "Lyon", "is_favorite": true,
		}})
	case r.URL.Path == "/api/v1/favorites/ids":
		ids := []uuid.UUID{}
		for id := range f.favorites {
			ids = append(ids, id)
		}
		write(http.StatusOK, map[string]any{"listing_ids": ids})
	case strings.HasPrefix(r.URL.Path, "/api/v1/favorites/"):
		id := uuid.MustParse(strings.TrimPrefix(r.URL.Path, "/api/v1/favorites/"))
		if r.Method == http.MethodPut {
			f.favorites[id] = true
		} else {
			delete(f.favorites, id)
		}
		write(http.StatusOK, map[string]bool{"changed": true})
	default:
		write(http.StatusNotFound, nil)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoginSearchAndFavorites(t *testing.T) {
	api := &fakeAPI{favorites: map[uuid.UUID]bool{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OG_SERVER", srv.URL)

	_, err := run(t, "", "search", "bike")
	require.Error(t, err)

	_, err = run(t, "wrong\n", "login", "ana")
	require.Error(t, err)

	out, err := run(t, "hunter22\n", "login", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ana")

	out, err = run(t, "", "search", "bike", "--city", "Lyon")
	require.NoError(t, err)
	assert.Contains(t, out, "Road bike")
	assert.Contains(t, out, "120.00 EUR")

	id := uuid.New()
	out, err = run(t, "", "favourites", "toggle", id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String()+" saved\n", out)

	out, err = run(t, "", "fav", "list")
	require.NoError(t, err)
	assert.Equal(t, id.String()+"\n", out)

	out, err = run(t, "", "favorites", "toggle", id.String())
	require.NoError(t, err)
	assert.Equal(t, id.String()+" unsaved\n", out)

	_, err = run(t, "", "logout")
	require.NoError(t, err)
	_, err = run(t, "", "fav", "list")
	require.Error(t, err)
}
