// Package apitest provides an in-memory stand-in for the flashcard REST
// backend, for tests of code that talks to it over HTTP.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"flashdeck/models"

	"github.com/google/uuid"
)

const cookieName = "session_id"

type account struct {
	id       int
	password string
	roles    []string
}

type backendSession struct {
	email   string
	roles   []string
	created time.Time
}

// Backend is a fake backend server. All fields are guarded by its own lock;
// use the methods to change them while the server runs.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	sessions map[string]*backendSession
	cards    []models.Card
	nextCard int
	unlock   string
	calls    map[string]int

	failCards  bool
	listDelay  map[string]time.Duration
	failWhoAmI bool
	cookieAge  int
}

// NewBackend starts a fake backend; URL() is its API base
func NewBackend() *Backend {
	b := &Backend{
		accounts:  make(map[string]*account),
		sessions:  make(map[string]*backendSession),
		calls:     make(map[string]int),
		listDelay: make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/whoami", b.whoAmI)
	mux.HandleFunc("POST /api/auth/start-session", b.startSession)
	mux.HandleFunc("POST /api/auth/login", b.login)
	mux.HandleFunc("POST /api/auth/logout", b.logout)
	mux.HandleFunc("POST /api/auth/auth", b.unlockHandler)
	mux.HandleFunc("GET /api/cards", b.listCards)
	mux.HandleFunc("POST /api/cards", b.createCard)
	mux.HandleFunc("PUT /api/cards/{id}", b.updateCard)
	mux.HandleFunc("DELETE /api/cards/{id}", b.deleteCard)
	mux.HandleFunc("GET /api/admin/sessions", b.listSessions)
	mux.HandleFunc("POST /api/admin/sessions/{id}/roles", b.updateRoles)
	mux.HandleFunc("DELETE /api/admin/sessions/{id}", b.deleteSession)

	b.Server = httptest.NewServer(mux)
	return b
}

// URL returns the API base, e.g. http://127.0.0.1:1234/api
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

// Close stops the server
func (b *Backend) Close() {
	b.Server.Close()
}

// AddUser registers a login
func (b *Backend) AddUser(id int, email, password string, roles ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[email] = &account{id: id, password: password, roles: roles}
}

// SetCookieMaxAge makes login cookies expire after seconds; 0 issues
// session cookies
func (b *Backend) SetCookieMaxAge(seconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookieAge = seconds
}

// AddCard stores a card and returns its id
func (b *Backend) AddCard(front, back string, labels ...string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addCardLocked(front, back, labels)
}

// SetUnlockPassword sets the password accepted by the unlock endpoint
func (b *Backend) SetUnlockPassword(password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unlock = password
}

// FailCards makes the card listing answer 500
func (b *Backend) FailCards(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCards = fail
}

// FailWhoAmI makes the identity check answer 500
func (b *Backend) FailWhoAmI(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWhoAmI = fail
}

// DelayLabel slows down listings filtered by label
func (b *Backend) DelayLabel(label string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listDelay[label] = d
}

// Calls returns how many times the route pattern was hit, e.g. "GET /api/auth/whoami"
func (b *Backend) Calls(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pattern]
}

// Cards returns a copy of the stored cards
func (b *Backend) Cards() []models.Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.cards)
}

// SessionRoles returns the roles of a backend session
func (b *Backend) SessionRoles(sessionID string) ([]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return slices.Clone(s.roles), true
}

// SessionIDs returns the ids of all backend sessions
func (b *Backend) SessionIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ClearSessions forgets every backend session, as a backend restart would
func (b *Backend) ClearSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[string]*backendSession)
}

// AddSession creates a backend session that belongs to nobody in particular
func (b *Backend) AddSession(email string, roles ...string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.sessions[id] = &backendSession{email: email, roles: roles, created: time.Now()}
	return id
}

func (b *Backend) addCardLocked(front, back string, labels []string) string {
	b.nextCard++
	id := strconv.Itoa(b.nextCard)
	if labels == nil {
		labels = []string{}
	}
	b.cards = append(b.cards, models.Card{CardID: id, Front: front, Back: back, Labels: labels})
	return id
}

func (b *Backend) count(r *http.Request) {
	b.calls[r.Pattern]++
}

func (b *Backend) current(r *http.Request) (string, *backendSession) {
	ck, err := r.Cookie(cookieName)
	if err != nil {
		return "", nil
	}
	return ck.Value, b.sessions[ck.Value]
}

func (b *Backend) whoAmI(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	if b.failWhoAmI {
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	_, s := b.current(r)
	if s == nil || s.email == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
			"roles":         []string{"guest"},
			"message":       "Not logged in",
		})
		return
	}
	userID := 0
	if acc, ok := b.accounts[s.email]; ok {
		userID = acc.id
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         s.email,
		"user_id":       userID,
		"roles":         s.roles,
	})
}

func (b *Backend) startSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	id, s := b.current(r)
	if s == nil {
		id = uuid.New().String()
		b.sessions[id] = &backendSession{created: time.Now()}
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: id, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session started"})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	acc, ok := b.accounts[body.Email]
	if !ok || acc.password != body.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	id := uuid.New().String()
	b.sessions[id] = &backendSession{email: body.Email, roles: slices.Clone(acc.roles), created: time.Now()}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: id, Path: "/", HttpOnly: true, MaxAge: b.cookieAge})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Logged in",
		"user": map[string]any{
			"user_id": acc.id,
			"email":   body.Email,
			"roles":   acc.roles,
		},
	})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	id, s := b.current(r)
	if s == nil {
		writeDetail(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	delete(b.sessions, id)
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (b *Backend) unlockHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || b.unlock == "" || body.Password != b.unlock {
		writeDetail(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Authenticated"})
}

func (b *Backend) listCards(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")

	b.mu.Lock()
	b.count(r)
	delay := b.listDelay[label]
	fail := b.failCards
	cards := make([]models.Card, 0, len(b.cards))
	for _, c := range b.cards {
		if label == "" || slices.Contains(c.Labels, label) {
			cards = append(cards, c)
		}
	}
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (b *Backend) createCard(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	if _, s := b.current(r); s == nil || s.email == "" {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var body models.CardInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if body.Front == "" || body.Back == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "front"}, "msg": "field required"}},
		})
		return
	}
	id := b.addCardLocked(body.Front, body.Back, body.Labels)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Card created", "card_id": id})
}

func (b *Backend) updateCard(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	id := r.PathValue("id")
	q := r.URL.Query()
	for i := range b.cards {
		if b.cards[i].CardID != id {
			continue
		}
		if v := q.Get("front"); v != "" {
			b.cards[i].Front = v
		}
		if v := q.Get("back"); v != "" {
			b.cards[i].Back = v
		}
		if labels, ok := q["labels"]; ok {
			b.cards[i].Labels = labels
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Card updated"})
		return
	}
	writeDetail(w, http.StatusNotFound, "Card not found")
}

func (b *Backend) deleteCard(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	id := r.PathValue("id")
	for i, c := range b.cards {
		if c.CardID == id {
			b.cards = slices.Delete(b.cards, i, i+1)
			writeJSON(w, http.StatusOK, map[string]any{"message": "Card deleted"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Card not found")
}

func (b *Backend) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	_, s := b.current(r)
	if s == nil || !slices.Contains(s.roles, "admin") {
		writeDetail(w, http.StatusForbidden, "Admin privileges required")
		return false
	}
	return true
}

func (b *Backend) listSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	if !b.requireAdmin(w, r) {
		return
	}
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		s := b.sessions[id]
		authenticated := "False"
		if s.email != "" {
			authenticated = "True"
		}
		roles := s.roles
		if len(roles) == 0 {
			roles = []string{""}
		}
		out = append(out, map[string]any{
			"session_id":    id,
			"authenticated": authenticated,
			"roles":         roles,
			"created_at":    s.created.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (b *Backend) updateRoles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	if !b.requireAdmin(w, r) {
		return
	}
	s, ok := b.sessions[r.PathValue("id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	var body struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	s.roles = body.Roles
	writeJSON(w, http.StatusOK, map[string]any{"message": "Roles updated"})
}

func (b *Backend) deleteSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count(r)

	if !b.requireAdmin(w, r) {
		return
	}
	id := r.PathValue("id")
	if _, ok := b.sessions[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	delete(b.sessions, id)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
