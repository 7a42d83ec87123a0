// Package client is a Go client for the OpenGround API. Besides the plain
// endpoint calls it provides the stateful pieces a front end needs: a
// reconnecting message stream with a per-thread cache, an optimistic
// favourites store and a debounced typing notifier.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// ErrUnauthorized is returned when the API rejects the access token
var ErrUnauthorized = errors.New("client: unauthorized")

// APIError is a non-2xx response carrying the API error envelope
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers test 401s with errors.Is(err, ErrUnauthorized)
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Message is a chat message as delivered by the API and the stream
type Message struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is one conversation in the inbox
type Thread struct {
	ID            uuid.UUID `json:"id"`
	ListingID     uuid.UUID `json:"listing_id"`
	Subject       string    `json:"subject"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int64     `json:"unread_count"`
}

// Listing is a search result
type Listing struct {
	ID         uuid.UUID       `json:"id"`
	SellerID   uuid.UUID       `json:"seller_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Category   string          `json:"category"`
	City       string          `json:"city"`
	Status     string          `json:"status"`
	IsFavorite bool            `json:"is_favorite"`
}

// Session is the result of a login
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       uuid.UUID
	Username     string
}

// SearchParams filters GET /listings
type SearchParams struct {
	Query    string
	Category string
	City     string
	Page     int
	PageSize int
}

// Client calls the OpenGround API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the access token sent with every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at baseURL (scheme and host)
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the access token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) url(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends a request and decodes the data field of the envelope into out
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		c.logger.Debug("API error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Login exchanges credentials for tokens and keeps the access token
func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	var out struct {
		Token struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"token"`
		User struct {
			ID       uuid.UUID `json:"id"`
			Username string    `json:"username"`
		} `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token.AccessToken)
	return &Session{
		AccessToken:  out.Token.AccessToken,
		RefreshToken: out.Token.RefreshToken,
		UserID:       out.User.ID,
		Username:     out.User.Username,
	}, nil
}

// SearchListings runs a listing search
func (c *Client) SearchListings(ctx context.Context, p SearchParams) ([]Listing, error) {
	q := url.Values{}
	for k, v := range map[string]string{"q": p.Query, "category": p.Category, "city": p.City} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if p.Page > 0 {
		q.Set("page", fmt.Sprint(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", fmt.Sprint(p.PageSize))
	}
	path := "/listings"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Listing
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FavoriteIDs returns the ids of the caller's saved listings
func (c *Client) FavoriteIDs(ctx context.Context) ([]uuid.UUID, error) {
	var out struct {
		ListingIDs []uuid.UUID `json:"listing_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/favorites/ids", nil, &out); err != nil {
		return nil, err
	}
	return out.ListingIDs, nil
}

// SetFavorite saves or unsaves a listing
func (c *Client) SetFavorite(ctx context.Context, listingID uuid.UUID, saved bool) error {
	method := http.MethodPut
	if !saved {
		method = http.MethodDelete
	}
	return c.do(ctx, method, "/favorites/"+listingID.String(), nil, nil)
}

// Threads returns the first page of the caller's inbox
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	var out []Thread
	if err := c.do(ctx, http.MethodGet, "/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns the latest messages of a thread in ascending order
func (c *Client) Messages(ctx context.Context, threadID uuid.UUID) ([]Message, error) {
	var out struct {
		Items []Message `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID.String()+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// SendMessage posts a message to a thread
func (c *Client) SendMessage(ctx context.Context, threadID uuid.UUID, body string) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID.String()+"/messages",
		map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetTyping reports whether the caller is typing in a thread
func (c *Client) SetTyping(ctx context.Context, threadID uuid.UUID, typing bool) error {
	return c.do(ctx, http.MethodPost, "/threads/"+threadID.String()+"/typing",
		map[string]bool{"typing": typing}, nil)
}
