package api

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"flashdeck/state"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

const (
	backendCookiesKey = "backend"
	sessionLocal      = "session"
)

// Session is what a handler needs to act for the current browser session
type Session struct {
	ID     string
	Client *Client
	Views  *state.Views

	registry *state.Registry
}

// Restart replaces the page state of the session with an empty, logged out
// one. Mounted views and queued notices of the previous user are dropped.
func (s *Session) Restart() {
	s.registry.Forget(s.ID)
	s.Views = s.registry.Views(s.ID)
	s.Views.Auth.Set(nil)
}

type storedCookie struct {
	Name    string `json:"n"`
	Value   string `json:"v"`
	Expires int64  `json:"e,omitempty"` // unix seconds, 0 for session cookies
}

// SessionManager ties the Fiber session cookie to the backend cookie jar and
// to the in-memory page state of the browser session.
type SessionManager struct {
	store    *session.Store
	backend  *Backend
	sealer   *utils.Sealer
	registry *state.Registry
	policy   state.Policy

	// serializes cookie saves per browser session; see saveCookies
	locks [64]sync.Mutex
}

// NewSessionManager creates a session manager
func NewSessionManager(store *session.Store, backend *Backend, sealer *utils.Sealer, registry *state.Registry, policy state.Policy) *SessionManager {
	return &SessionManager{
		store:    store,
		backend:  backend,
		sealer:   sealer,
		registry: registry,
		policy:   policy,
	}
}

// SessionMiddleware prepares the backend client and page state for the
// request, runs the one-time identity check and persists the backend cookies
// once the handler is done.
func (m *SessionManager) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := m.store.Get(c)
		if err != nil {
			return utils.InternalServerError("Session error", err)
		}

		loaded := m.loadCookies(sess)
		client, err := m.backend.NewClient(cloneCookies(loaded))
		if err != nil {
			return utils.InternalServerError("Session error", err)
		}

		views := m.registry.Views(sess.ID())
		views.Auth.Bootstrap(c.UserContext(), client, m.policy)

		c.Locals(sessionLocal, &Session{ID: sess.ID(), Client: client, Views: views, registry: m.registry})

		handlerErr := c.Next()

		if err := m.saveCookies(c, sess, loaded, client.Cookies()); err != nil {
			utils.Log.Error("Failed to save session: %v", err)
		}
		return handlerErr
	}
}

// CurrentSession returns the session prepared by SessionMiddleware
func CurrentSession(c *fiber.Ctx) *Session {
	s, _ := c.Locals(sessionLocal).(*Session)
	return s
}

func (m *SessionManager) loadCookies(sess *session.Session) []*http.Cookie {
	sealed, ok := sess.Get(backendCookiesKey).(string)
	if !ok || sealed == "" {
		return nil
	}
	plain, err := m.sealer.Open(sealed)
	if err != nil {
		// key rotated or store tampered with; start over with an empty jar
		utils.Log.Warn("Discarding backend cookies: %v", err)
		return nil
	}
	cookies, err := decodeCookies(plain)
	if err != nil {
		utils.Log.Warn("Discarding backend cookies: %v", err)
		return nil
	}
	return cookies
}

// saveCookies stores what this request changed in the jar. Other requests of
// the same browser session may have saved since this one loaded its cookies
// (a login finishing during a slow fetch), so the changes are merged into the
// stored state under a per-session lock instead of overwriting it.
func (m *SessionManager) saveCookies(c *fiber.Ctx, sess *session.Session, loaded, final []*http.Cookie) error {
	if sess.Fresh() {
		// nobody else knows this session id yet
		return m.writeCookies(sess, final)
	}

	lock := &m.locks[lockIndex(sess.ID())]
	lock.Lock()
	defer lock.Unlock()

	latest, err := m.store.Get(c)
	if err != nil {
		return err
	}
	return m.writeCookies(latest, mergeCookies(m.loadCookies(latest), loaded, final))
}

func (m *SessionManager) writeCookies(sess *session.Session, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		sess.Delete(backendCookiesKey)
		return sess.Save()
	}
	plain, err := encodeCookies(cookies)
	if err != nil {
		return err
	}
	sealed, err := m.sealer.Seal(plain)
	if err != nil {
		return err
	}
	sess.Set(backendCookiesKey, sealed)
	return sess.Save()
}

// mergeCookies applies the difference between loaded and final to stored:
// cookies that appeared or changed are set, cookies that went away are removed.
func mergeCookies(stored, loaded, final []*http.Cookie) []*http.Cookie {
	before := make(map[string]*http.Cookie, len(loaded))
	for _, ck := range loaded {
		before[ck.Name] = ck
	}
	after := make(map[string]*http.Cookie, len(final))
	for _, ck := range final {
		after[ck.Name] = ck
	}

	merged := make([]*http.Cookie, 0, len(stored)+len(final))
	for _, ck := range stored {
		if _, changed := after[ck.Name]; changed && !sameCookie(before[ck.Name], after[ck.Name]) {
			continue
		}
		if _, had := before[ck.Name]; had {
			if _, still := after[ck.Name]; !still {
				continue
			}
		}
		merged = append(merged, ck)
	}
	for _, ck := range final {
		if !sameCookie(before[ck.Name], ck) {
			merged = append(merged, ck)
		}
	}
	return merged
}

func sameCookie(a, b *http.Cookie) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Value == b.Value && a.Expires.Unix() == b.Expires.Unix()
}

func encodeCookies(cookies []*http.Cookie) ([]byte, error) {
	stored := make([]storedCookie, 0, len(cookies))
	for _, ck := range cookies {
		sc := storedCookie{Name: ck.Name, Value: ck.Value}
		if !ck.Expires.IsZero() {
			sc.Expires = ck.Expires.Unix()
		}
		stored = append(stored, sc)
	}
	return json.Marshal(stored)
}

func decodeCookies(plain []byte) ([]*http.Cookie, error) {
	var stored []storedCookie
	if err := json.Unmarshal(plain, &stored); err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		ck := &http.Cookie{Name: sc.Name, Value: sc.Value}
		if sc.Expires > 0 {
			ck.Expires = time.Unix(sc.Expires, 0)
		}
		cookies = append(cookies, ck)
	}
	return cookies, nil
}

func cloneCookies(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		cp := *ck
		out = append(out, &cp)
	}
	return out
}

func lockIndex(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % 64)
}
