package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"flashdeck/handlers/api"
	"flashdeck/handlers/api/apitest"
	"flashdeck/middleware"
	"flashdeck/state"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settleDelay = 250 * time.Millisecond

// manualScheduler keeps settles until the test runs them
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *manualScheduler) schedule(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, f)
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *manualScheduler) run() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

type testEnv struct {
	app       *fiber.App
	fake      *apitest.Backend
	registry  *state.Registry
	scheduler *manualScheduler
}

func newTestEnv(t *testing.T, policy state.Policy) *testEnv {
	t.Helper()
	require.NoError(t, utils.InitI18n("../../locales"))

	fake := apitest.NewBackend()
	t.Cleanup(fake.Close)

	metrics := api.NewMetrics()
	backend, err := api.NewBackend(fake.URL(), 2*time.Second, metrics)
	require.NoError(t, err)

	registry := state.NewRegistry(time.Hour)
	t.Cleanup(registry.Close)

	sessions := api.NewSessionManager(session.New(), backend, utils.NewSealer("test-key"), registry, policy)
	tickets := api.NewTickets("test-secret", time.Minute)
	hub := api.NewNotificationHub(tickets, metrics)

	app := fiber.New(fiber.Config{
		Views:        NewEngine("../../templates", false),
		ViewsLayout:  "layouts/main",
		ErrorHandler: ErrorHandler,
	})
	app.Use(middleware.LocaleMiddleware())

	scheduler := &manualScheduler{}
	NewHandlers(NewPages(hub, tickets), metrics, settleDelay, scheduler.schedule).Register(app, sessions.SessionMiddleware())

	return &testEnv{app: app, fake: fake, registry: registry, scheduler: scheduler}
}

// browser carries the session cookie between requests like a real one would
type browser struct {
	t      *testing.T
	env    *testEnv
	mu     sync.Mutex
	cookie string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, env: e}
}

type reqOpts struct {
	form    url.Values
	partial bool
	referer string
}

func (b *browser) do(method, target string, opts reqOpts) (*http.Response, string) {
	b.t.Helper()

	var body io.Reader
	if opts.form != nil {
		body = strings.NewReader(opts.form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if opts.form != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	}
	if opts.partial {
		req.Header.Set("HX-Request", "true")
	}
	if opts.referer != "" {
		req.Header.Set("Referer", opts.referer)
	}
	b.mu.Lock()
	if b.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: b.cookie})
	}
	b.mu.Unlock()

	resp, err := b.env.app.Test(req, -1)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	for _, ck := range resp.Cookies() {
		if ck.Name == "session_id" && ck.Value != "" {
			b.mu.Lock()
			b.cookie = ck.Value
			b.mu.Unlock()
		}
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(raw)
}

func (b *browser) get(target string) (*http.Response, string) {
	return b.do(fiber.MethodGet, target, reqOpts{})
}

func (b *browser) post(target string, form url.Values) (*http.Response, string) {
	return b.do(fiber.MethodPost, target, reqOpts{form: form})
}

func (b *browser) login(email, password string) {
	b.t.Helper()
	resp, _ := b.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(b.t, fiber.StatusFound, resp.StatusCode)
}

func (b *browser) views() *state.Views {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.env.registry.Views(b.cookie)
}

func TestAnonymousNavigation(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	resp, body := b.get("/")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `href="/view"`)
	assert.Contains(t, body, `href="/login"`)
	assert.NotContains(t, body, `href="/create"`)
	assert.NotContains(t, body, `href="/study"`)
	assert.NotContains(t, body, `href="/admin"`)
	assert.NotContains(t, body, `action="/logout"`)
	assert.Contains(t, body, `name="notify-ticket"`)
}

func TestIdentityCheckRunsOnce(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	b.get("/")
	b.get("/view")
	b.get("/")

	assert.Equal(t, 1, env.fake.Calls("GET /api/auth/whoami"))
	assert.Zero(t, env.fake.Calls("POST /api/auth/start-session"))
}

func TestEagerSessionStartsAnonymousSession(t *testing.T) {
	env := newTestEnv(t, state.PolicyEagerSession)
	b := env.browser(t)

	b.get("/")
	b.get("/")

	assert.Equal(t, 1, env.fake.Calls("POST /api/auth/start-session"))
	assert.Len(t, env.fake.SessionIDs(), 1)
}

func TestMenuToggle(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	_, body := b.get("/view?menu=1")
	assert.Contains(t, body, `mobile-menu open`)

	_, body = b.get("/view")
	assert.NotContains(t, body, `mobile-menu open`)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret", "user")

	t.Run("missing fields", func(t *testing.T) {
		b := env.browser(t)
		resp, body := b.post("/login", url.Values{"email": {"ann@example.com"}})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Email and password are required.")
		assert.Zero(t, env.fake.Calls("POST /api/auth/login"))
	})

	t.Run("wrong password shows backend detail", func(t *testing.T) {
		b := env.browser(t)
		resp, body := b.post("/login", url.Values{"email": {"ann@example.com"}, "password": {"nope"}})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body, "Invalid email or password")
		assert.Contains(t, body, `value="ann@example.com"`)
		assert.Nil(t, b.views().Auth.Identity())
	})

	t.Run("success", func(t *testing.T) {
		b := env.browser(t)
		resp, _ := b.post("/login", url.Values{"email": {"ann@example.com"}, "password": {"secret"}})
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/study", resp.Header.Get("Location"))

		identity := b.views().Auth.Identity()
		require.NotNil(t, identity)
		assert.Equal(t, "ann@example.com", identity.Email)

		_, body := b.get("/study")
		assert.Contains(t, body, "Logged in.")
		assert.Contains(t, body, "Hi, ann@example.com")
		assert.Contains(t, body, `href="/create"`)
		assert.NotContains(t, body, `href="/login"`)
		assert.NotContains(t, body, `href="/admin"`)

		// the flash is shown once
		_, body = b.get("/")
		assert.NotContains(t, body, "Logged in.")
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret")

	t.Run("success clears identity", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")
		b.get("/view")
		require.NotNil(t, b.views().Browser())

		resp, _ := b.post("/logout", url.Values{})
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
		assert.Nil(t, b.views().Auth.Identity())
		assert.False(t, b.views().Auth.Loading())
		assert.Nil(t, b.views().Browser(), "page state of the previous user is dropped")

		_, body := b.get("/")
		assert.Contains(t, body, `href="/login"`)
	})

	t.Run("failure keeps identity", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")
		env.fake.ClearSessions()

		resp, _ := b.do(fiber.MethodPost, "/logout", reqOpts{form: url.Values{}, referer: "/view"})
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/view", resp.Header.Get("Location"))
		assert.NotNil(t, b.views().Auth.Identity())

		_, body := b.get("/view")
		assert.Contains(t, body, "Not logged in")
		assert.Contains(t, body, `action="/logout"`)
	})
}

func TestUnlock(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.SetUnlockPassword("open")
	b := env.browser(t)

	resp, body := b.post("/unlock", url.Values{"password": {""}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Password is required.")

	resp, body = b.post("/unlock", url.Values{"password": {"closed"}})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid password")

	resp, _ = b.post("/unlock", url.Values{"password": {"open"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	_, body = b.get("/unlock")
	assert.Contains(t, body, "Authentication successful!")
}

func TestCreateCard(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret")

	t.Run("anonymous keeps fields and shows detail", func(t *testing.T) {
		b := env.browser(t)
		resp, body := b.do(fiber.MethodPost, "/create", reqOpts{
			form:    url.Values{"front": {"hola"}, "back": {"hello"}, "labels": {"spanish"}},
			partial: true,
		})
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, "Not authenticated")
		assert.Contains(t, body, ">hola</textarea>")
		assert.Contains(t, body, ">hello</textarea>")
		assert.Contains(t, body, `value="spanish"`)
		assert.NotContains(t, body, "<html")
		assert.Empty(t, env.fake.Cards())
	})

	t.Run("empty face is refused locally", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")
		before := env.fake.Calls("POST /api/cards")

		resp, body := b.post("/create", url.Values{"front": {""}, "back": {"hello"}})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Front and back are required.")
		assert.Equal(t, before, env.fake.Calls("POST /api/cards"))
	})

	t.Run("whitespace face is sent as typed", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")
		before := len(env.fake.Cards())

		resp, _ := b.post("/create", url.Values{"front": {"  "}, "back": {"hello"}})
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)

		cards := env.fake.Cards()
		require.Len(t, cards, before+1)
		assert.Equal(t, "  ", cards[len(cards)-1].Front)
	})

	t.Run("success clears form", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")

		resp, body := b.do(fiber.MethodPost, "/create", reqOpts{
			form:    url.Values{"front": {"hola"}, "back": {"hello"}, "labels": {"a, b ,, c"}},
			partial: true,
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, "hola")

		cards := env.fake.Cards()
		require.NotEmpty(t, cards)
		assert.Equal(t, "hola", cards[len(cards)-1].Front)
		assert.Equal(t, []string{"a", "b", "c"}, cards[len(cards)-1].Labels)

		// no live stream is connected, so the notice waits for the next page
		_, body = b.get("/create")
		assert.Contains(t, body, "Card created.")
	})

	t.Run("full page success redirects", func(t *testing.T) {
		b := env.browser(t)
		b.login("ann@example.com", "secret")

		resp, _ := b.post("/create", url.Values{"front": {"chat"}, "back": {"cat"}})
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/create", resp.Header.Get("Location"))
	})
}

func TestViewFilterAndFlip(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	hola := env.fake.AddCard("hola", "hello", "spanish")
	env.fake.AddCard("bonjour", "good day", "french")
	b := env.browser(t)

	_, body := b.get("/view?label=spanish")
	assert.Contains(t, body, "hola")
	assert.NotContains(t, body, "bonjour")

	resp, body := b.do(fiber.MethodGet, "/view/cards?label=french", reqOpts{partial: true})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "bonjour")
	assert.NotContains(t, body, "hola")
	assert.NotContains(t, body, "<html")

	_, body = b.do(fiber.MethodGet, "/view/cards", reqOpts{partial: true})
	assert.Contains(t, body, "hola")
	assert.Contains(t, body, "bonjour")

	_, body = b.do(fiber.MethodPost, "/view/cards/"+hola+"/flip", reqOpts{form: url.Values{}, partial: true})
	assert.Contains(t, body, "hello")
	assert.Contains(t, body, "card flipped")

	_, body = b.do(fiber.MethodPost, "/view/cards/"+hola+"/flip", reqOpts{form: url.Values{}, partial: true})
	assert.Contains(t, body, "hola")
	assert.NotContains(t, body, "card flipped")
}

func TestViewEmptyAndFailed(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	_, body := b.get("/view")
	assert.Contains(t, body, "No cards yet.")

	env.fake.FailCards(true)
	_, body = b.get("/view")
	assert.Contains(t, body, "Internal Server Error")
}

func TestStaleFilterResponseIsDropped(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddCard("slow card", "back", "slow")
	env.fake.AddCard("fast card", "back", "fast")
	env.fake.DelayLabel("slow", 400*time.Millisecond)
	b := env.browser(t)
	b.get("/view")
	cookie := b.cookie

	var (
		wg       sync.WaitGroup
		slowCode int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(fiber.MethodGet, "/view/cards?label=slow", nil)
		req.Header.Set("HX-Request", "true")
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
		resp, err := env.app.Test(req, -1)
		if err == nil {
			slowCode = resp.StatusCode
			resp.Body.Close()
		}
	}()

	time.Sleep(100 * time.Millisecond)
	resp, body := b.do(fiber.MethodGet, "/view/cards?label=fast", reqOpts{partial: true})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "fast card")

	wg.Wait()
	assert.Equal(t, fiber.StatusNoContent, slowCode)

	view := b.views().Browser().View()
	assert.Equal(t, "fast", view.Filter)
	require.Len(t, view.Cards, 1)
	assert.Equal(t, "fast card", view.Cards[0].Front)
}

func TestLoginDuringSlowRequestSurvives(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret")
	env.fake.AddCard("slow card", "back", "slow")
	env.fake.DelayLabel("slow", 300*time.Millisecond)
	b := env.browser(t)
	b.get("/view")

	b.mu.Lock()
	cookie := b.cookie
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(fiber.MethodGet, "/view/cards?label=slow", nil)
		req.Header.Set("HX-Request", "true")
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
		if resp, err := env.app.Test(req, -1); err == nil {
			resp.Body.Close()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	b.login("ann@example.com", "secret")
	<-done

	// the slow request finished last but must not drop the login cookie
	resp, _ := b.post("/create", url.Values{"front": {"hola"}, "back": {"hello"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.Len(t, env.fake.Cards(), 2)
	assert.Equal(t, "hola", env.fake.Cards()[1].Front)
}

func TestDeleteCard(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	id := env.fake.AddCard("hola", "hello")
	env.fake.AddCard("bonjour", "good day")
	b := env.browser(t)
	b.get("/view")

	_, body := b.do(fiber.MethodPost, "/cards/"+id+"/delete", reqOpts{form: url.Values{}, partial: true})
	assert.NotContains(t, body, "hola")
	assert.Contains(t, body, "bonjour")
	assert.Len(t, env.fake.Cards(), 1)

	resp, _ := b.post("/cards/missing/delete", url.Values{})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	_, body = b.get("/view")
	assert.Contains(t, body, "Card not found")
}

func TestEditCard(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	id := env.fake.AddCard("hola", "hello", "spanish")
	b := env.browser(t)
	b.get("/view")

	resp, body := b.do(fiber.MethodPost, "/cards/"+id+"/edit", reqOpts{
		form:    url.Values{"front": {"adios"}, "back": {""}, "labels": {"x, y"}},
		partial: true,
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "adios")
	assert.Contains(t, body, `value="x, y"`)
	assert.NotContains(t, body, "<html")

	cards := env.fake.Cards()
	require.Len(t, cards, 1)
	assert.Equal(t, "adios", cards[0].Front)
	assert.Equal(t, "hello", cards[0].Back, "empty field leaves the back alone")
	assert.Equal(t, []string{"x", "y"}, cards[0].Labels)

	card, ok := b.views().Browser().Card(id)
	require.True(t, ok)
	assert.Equal(t, "adios", card.Front)

	_, body = b.get("/view")
	assert.Contains(t, body, "Card updated.")

	resp, _ = b.post("/cards/missing/edit", url.Values{"front": {"x"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/view/cards", resp.Header.Get("Location"))
	_, body = b.get("/view")
	assert.Contains(t, body, "Card not found")
}

func studyDeck(env *testEnv) {
	env.fake.AddCard("F1", "B1")
	env.fake.AddCard("F2", "B2")
	env.fake.AddCard("F3", "B3")
}

func TestStudyNavigation(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	studyDeck(env)
	b := env.browser(t)
	partial := reqOpts{form: url.Values{}, partial: true}

	_, body := b.get("/study")
	assert.Contains(t, body, "1 / 3")
	assert.Contains(t, body, "F1")

	_, body = b.do(fiber.MethodPost, "/study/next", partial)
	assert.Contains(t, body, "study-transitioning")
	assert.Contains(t, body, "leaving-left")
	assert.Contains(t, body, `data-settle-ms="250"`)

	// input during a transition is dropped, not queued
	b.do(fiber.MethodPost, "/study/next", partial)
	b.do(fiber.MethodPost, "/study/flip", partial)
	assert.Equal(t, 1, env.scheduler.count())

	env.scheduler.run()
	_, body = b.do(fiber.MethodGet, "/study/card", reqOpts{partial: true})
	assert.Contains(t, body, "2 / 3")
	assert.Contains(t, body, "F2")
	assert.Contains(t, body, "study-idle")

	_, body = b.do(fiber.MethodPost, "/study/flip", partial)
	assert.Contains(t, body, "B2")

	// left swipe goes back
	_, body = b.do(fiber.MethodPost, "/study/swipe", reqOpts{form: url.Values{"direction": {"left"}}, partial: true})
	assert.Contains(t, body, "leaving-right")
	env.scheduler.run()

	_, body = b.do(fiber.MethodGet, "/study/card", reqOpts{partial: true})
	assert.Contains(t, body, "1 / 3")
	assert.Contains(t, body, "F1")
	assert.NotContains(t, body, "B1")

	// previous from the first card wraps around
	b.do(fiber.MethodPost, "/study/prev", partial)
	env.scheduler.run()
	_, body = b.do(fiber.MethodGet, "/study/card", reqOpts{partial: true})
	assert.Contains(t, body, "3 / 3")

	// and next from the last one
	b.do(fiber.MethodPost, "/study/swipe", reqOpts{form: url.Values{"direction": {"right"}}, partial: true})
	env.scheduler.run()
	_, body = b.do(fiber.MethodGet, "/study/card", reqOpts{partial: true})
	assert.Contains(t, body, "1 / 3")
}

func TestStudyStaleSettleIsIgnored(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	studyDeck(env)
	b := env.browser(t)
	partial := reqOpts{form: url.Values{}, partial: true}

	b.get("/study")
	b.do(fiber.MethodPost, "/study/next", partial)

	// reopening the page remounts the machine; the old settle must not touch it
	b.get("/study")
	env.scheduler.run()

	view := b.views().Study().View()
	assert.Equal(t, state.PhaseIdle, view.Phase)
	assert.Equal(t, 0, view.Index)
}

func TestStudyFullPageActionsRedirect(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	studyDeck(env)
	b := env.browser(t)

	b.get("/study")
	resp, _ := b.post("/study/next", url.Values{})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/study/card", resp.Header.Get("Location"))

	_, body := b.get("/study/card")
	assert.Contains(t, body, "study-transitioning")
	assert.Contains(t, body, `http-equiv="refresh"`)
}

func TestStudyUnknownSwipe(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	resp, body := b.do(fiber.MethodPost, "/study/swipe", reqOpts{form: url.Values{"direction": {"up"}}, partial: true})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `"error"`)
}

func TestStudyEmptyAndFailed(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	_, body := b.get("/study")
	assert.Contains(t, body, "There are no cards to study.")

	env.fake.FailCards(true)
	_, body = b.get("/study")
	assert.Contains(t, body, "The deck could not be loaded.")
	assert.Contains(t, body, "Internal Server Error")

	// navigation on an empty deck does nothing
	_, body = b.do(fiber.MethodPost, "/study/next", reqOpts{form: url.Values{}, partial: true})
	assert.Contains(t, body, "study-empty")
	assert.Zero(t, env.scheduler.count())
}

func TestAdminSessions(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(1, "root@example.com", "secret", "admin")
	target := env.fake.AddSession("")
	b := env.browser(t)
	b.login("root@example.com", "secret")

	_, body := b.get("/admin")
	assert.Contains(t, body, `href="/admin"`)
	assert.Contains(t, body, target)
	assert.Equal(t, 1, env.fake.Calls("GET /api/admin/sessions"))

	t.Run("update roles re-fetches", func(t *testing.T) {
		resp, body := b.do(fiber.MethodPost, "/admin/sessions/"+target+"/roles", reqOpts{
			form:    url.Values{"roles": {"editor, reviewer"}},
			partial: true,
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		roles, ok := env.fake.SessionRoles(target)
		require.True(t, ok)
		assert.Equal(t, []string{"editor", "reviewer"}, roles)
		assert.Contains(t, body, "editor, reviewer")
		assert.Equal(t, 2, env.fake.Calls("GET /api/admin/sessions"))
		assert.Empty(t, b.views().Panel().Draft(target))
	})

	t.Run("failed update keeps draft", func(t *testing.T) {
		b.do(fiber.MethodPost, "/admin/sessions/missing/roles", reqOpts{
			form:    url.Values{"roles": {"ghost"}},
			partial: true,
		})
		assert.Equal(t, "ghost", b.views().Panel().Draft("missing"))
		assert.Equal(t, 2, env.fake.Calls("GET /api/admin/sessions"))
	})

	t.Run("force logout re-fetches", func(t *testing.T) {
		_, body := b.do(fiber.MethodPost, "/admin/sessions/"+target+"/delete", reqOpts{form: url.Values{}, partial: true})
		assert.NotContains(t, body, target)
		_, ok := env.fake.SessionRoles(target)
		assert.False(t, ok)
		assert.Equal(t, 3, env.fake.Calls("GET /api/admin/sessions"))
	})
}

func TestAdminRefusedForNonAdmin(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret", "user")
	b := env.browser(t)
	b.login("ann@example.com", "secret")

	resp, body := b.get("/admin")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Admin privileges required")
	assert.Contains(t, body, "Sessions could not be loaded.")
	assert.NotContains(t, body, `href="/admin"`)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	b := env.browser(t)

	resp, body := b.get("/nowhere")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
	assert.Contains(t, body, `href="/view"`)

	resp, body = b.do(fiber.MethodGet, "/nowhere", reqOpts{partial: true})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"error":"Page not found"`)
}

func TestBackendCookiesSurviveRequests(t *testing.T) {
	env := newTestEnv(t, state.PolicyLoginOnly)
	env.fake.AddUser(7, "ann@example.com", "secret")
	b := env.browser(t)
	b.login("ann@example.com", "secret")

	// the create call needs the backend session cookie from the login
	resp, _ := b.post("/create", url.Values{"front": {"hola"}, "back": {"hello"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Len(t, env.fake.Cards(), 1)
}
