// handlers/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"flashdeck/models"
	"flashdeck/utils"

	"golang.org/x/net/publicsuffix"
)

// ErrMalformed marks a 2xx response whose body could not be understood
var ErrMalformed = errors.New("malformed backend response")

// BackendError is a non-2xx answer from the REST backend. Detail carries the
// backend's "detail" field verbatim so forms can show it to the user.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Backend holds what every per-session client shares
type Backend struct {
	baseURL   *url.URL
	transport http.RoundTripper
	timeout   time.Duration
	metrics   *Metrics
}

// NewBackend validates the base URL (e.g. http://localhost:8000/api)
func NewBackend(rawURL string, timeout time.Duration, metrics *Metrics) (*Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", rawURL)
	}
	return &Backend{
		baseURL:   u,
		transport: http.DefaultTransport,
		timeout:   timeout,
		metrics:   metrics,
	}, nil
}

// Client talks to the backend on behalf of one browser session. Its cookie
// jar carries the backend session cookies, exactly like the browser would.
type Client struct {
	backend *Backend
	http    *http.Client
	jar     *cookiejar.Jar

	// the jar does not report expiry, so it is tracked from Set-Cookie
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewClient builds a client whose jar starts with cookies (may be empty).
// Cookies whose Expires has passed are dropped.
func (b *Backend) NewClient(cookies []*http.Cookie) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c := &Client{
		backend: b,
		jar:     jar,
		expires: make(map[string]time.Time),
		now:     time.Now,
		http: &http.Client{
			Transport: b.transport,
			Jar:       jar,
			Timeout:   b.timeout,
		},
	}

	live := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		if !ck.Expires.IsZero() {
			if !ck.Expires.After(c.now()) {
				continue
			}
			c.expires[ck.Name] = ck.Expires
		}
		ck.Path = "/"
		live = append(live, ck)
	}
	if len(live) > 0 {
		jar.SetCookies(b.baseURL, live)
	}
	return c, nil
}

// Cookies returns the backend cookies currently held, for persisting.
// Expires is set for cookies the backend gave a lifetime.
func (c *Client) Cookies() []*http.Cookie {
	cookies := c.jar.Cookies(c.backend.baseURL.JoinPath("auth"))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range cookies {
		ck.Expires = c.expires[ck.Name]
	}
	return cookies
}

// remember records the lifetime of every cookie the backend set
func (c *Client) remember(set []*http.Cookie) {
	if len(set) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range set {
		switch {
		case ck.MaxAge > 0:
			c.expires[ck.Name] = c.now().Add(time.Duration(ck.MaxAge) * time.Second)
		case ck.MaxAge < 0:
			delete(c.expires, ck.Name)
		case !ck.Expires.IsZero():
			c.expires[ck.Name] = ck.Expires
		default:
			delete(c.expires, ck.Name)
		}
	}
}

type whoAmIResponse struct {
	Authenticated models.Flag   `json:"authenticated"`
	Email         string        `json:"email"`
	UserID        models.UserID `json:"user_id"`
	Roles         []string      `json:"roles"`
	Message       string        `json:"message,omitempty"`
}

// WhoAmI asks the backend who the session belongs to. It returns nil, nil
// when the backend answers that nobody is logged in.
func (c *Client) WhoAmI(ctx context.Context) (*models.Identity, error) {
	var resp whoAmIResponse
	if err := c.do(ctx, "whoami", http.MethodGet, []string{"auth", "whoami"}, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Authenticated {
		return nil, nil
	}
	return &models.Identity{
		UserID: resp.UserID,
		Email:  resp.Email,
		Roles:  nonNil(resp.Roles),
	}, nil
}

// StartSession asks the backend for an anonymous session cookie
func (c *Client) StartSession(ctx context.Context) error {
	return c.do(ctx, "start_session", http.MethodPost, []string{"auth", "start-session"}, nil, nil, nil)
}

// Login authenticates with email and password and returns the logged-in user
func (c *Client) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		User *models.Identity `json:"user"`
	}
	if err := c.do(ctx, "login", http.MethodPost, []string{"auth", "login"}, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("%w: login response without user", ErrMalformed)
	}
	resp.User.Roles = nonNil(resp.User.Roles)
	return resp.User, nil
}

// Logout ends the backend session
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, []string{"auth", "logout"}, nil, nil, nil)
}

// Unlock performs the password-only authentication
func (c *Client) Unlock(ctx context.Context, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, "unlock", http.MethodPost, []string{"auth", "auth"}, nil, body, nil)
}

// ListCards fetches all cards, or only those carrying label when it is not empty
func (c *Client) ListCards(ctx context.Context, label string) ([]models.Card, error) {
	var query url.Values
	if label != "" {
		query = url.Values{"label": {label}}
	}
	var resp struct {
		Cards []models.Card `json:"cards"`
	}
	if err := c.do(ctx, "list_cards", http.MethodGet, []string{"cards"}, query, nil, &resp); err != nil {
		return nil, err
	}
	cards := make([]models.Card, 0, len(resp.Cards))
	for _, card := range resp.Cards {
		card.Labels = nonNil(card.Labels)
		cards = append(cards, card)
	}
	return cards, nil
}

// CreateCard stores a new card and returns its id when the backend reports one
func (c *Client) CreateCard(ctx context.Context, input models.CardInput) (string, error) {
	input.Labels = nonNil(input.Labels)
	var resp struct {
		CardID string `json:"card_id"`
	}
	if err := c.do(ctx, "create_card", http.MethodPost, []string{"cards"}, nil, input, &resp); err != nil {
		return "", err
	}
	return resp.CardID, nil
}

// UpdateCard changes the non-empty fields of a card. The backend takes the
// fields as query parameters; a nil labels slice leaves labels untouched.
func (c *Client) UpdateCard(ctx context.Context, cardID string, input models.CardInput) error {
	query := url.Values{}
	if input.Front != "" {
		query.Set("front", input.Front)
	}
	if input.Back != "" {
		query.Set("back", input.Back)
	}
	for _, l := range input.Labels {
		query.Add("labels", l)
	}
	return c.do(ctx, "update_card", http.MethodPut, []string{"cards", cardID}, query, nil, nil)
}

// DeleteCard removes a card
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	return c.do(ctx, "delete_card", http.MethodDelete, []string{"cards", cardID}, nil, nil, nil)
}

// ListSessions returns the backend's active sessions (admin only)
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionRecord, error) {
	var resp struct {
		Sessions []models.SessionRecord `json:"sessions"`
	}
	if err := c.do(ctx, "list_sessions", http.MethodGet, []string{"admin", "sessions"}, nil, nil, &resp); err != nil {
		return nil, err
	}
	sessions := make([]models.SessionRecord, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		s.Roles = utils.CompactLabels(s.Roles)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// UpdateRoles replaces the full role set of one session
func (c *Client) UpdateRoles(ctx context.Context, sessionID string, roles []string) error {
	body := map[string][]string{"roles": nonNil(roles)}
	return c.do(ctx, "update_roles", http.MethodPost, []string{"admin", "sessions", sessionID, "roles"}, nil, body, nil)
}

// DeleteSession force-logs-out one session
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, []string{"admin", "sessions", sessionID}, nil, nil, nil)
}

// do performs one JSON round trip. endpoint names the call for metrics.
func (c *Client) do(ctx context.Context, endpoint, method string, path []string, query url.Values, in, out interface{}) error {
	u := c.backend.baseURL.JoinPath(path...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.backend.metrics.observeBackend(endpoint, "error", time.Since(start))
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()
	c.backend.metrics.observeBackend(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	c.remember(resp.Cookies())

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read body: %w", method, u.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		utils.Log.WithField("endpoint", endpoint).Debug("backend answered %d", resp.StatusCode)
		return &BackendError{Status: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, endpoint, err)
	}
	return nil
}

// parseDetail extracts "detail" from an error body. FastAPI sends a string for
// HTTPException and a list of objects for validation errors; the latter is
// kept as its JSON text.
func parseDetail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
