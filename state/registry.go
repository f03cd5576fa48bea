package state

import (
	"sync"
	"time"

	"flashdeck/models"
	"flashdeck/utils"
)

// Views is everything the frontend remembers about one browser session
// between requests. It lives in memory only; a restart behaves like a reload.
type Views struct {
	Auth *AuthStore

	mu      sync.Mutex
	study   *Study
	browser *Browser
	panel   *Panel
	flash   []models.Notification
}

// Study returns the mounted study machine, or nil before /study was opened
func (v *Views) Study() *Study {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.study
}

// MountStudy replaces the study machine with a fresh one
func (v *Views) MountStudy() *Study {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.study = NewStudy()
	return v.study
}

// Browser returns the mounted card browser, or nil
func (v *Views) Browser() *Browser {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.browser
}

// MountBrowser replaces the card browser with a fresh one
func (v *Views) MountBrowser() *Browser {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.browser = NewBrowser()
	return v.browser
}

// Panel returns the mounted admin panel, or nil
func (v *Views) Panel() *Panel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.panel
}

// MountPanel replaces the admin panel with a fresh one
func (v *Views) MountPanel() *Panel {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panel = NewPanel()
	return v.panel
}

// Queue keeps a notification for the next rendered page
func (v *Views) Queue(n models.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flash = append(v.flash, n)
}

// Drain returns and clears the queued notifications
func (v *Views) Drain() []models.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.flash
	v.flash = nil
	return out
}

// Registry maps browser session ids to their Views
type Registry struct {
	cache *utils.MemoryCache[*Views]
}

// NewRegistry creates a registry that forgets sessions idle for longer than ttl
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{cache: utils.NewMemoryCache[*Views](ttl)}
}

// Views returns the state for sessionID, creating it on first use
func (r *Registry) Views(sessionID string) *Views {
	return r.cache.GetOrCreate(sessionID, func() *Views {
		return &Views{Auth: NewAuthStore()}
	})
}

// Forget drops the state for sessionID; the next Views call starts over
func (r *Registry) Forget(sessionID string) {
	r.cache.Delete(sessionID)
}

// Close stops the background cleanup
func (r *Registry) Close() {
	r.cache.Close()
}
