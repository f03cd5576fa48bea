package state

import (
	"sync"

	"flashdeck/models"
)

// Panel holds the admin page: the last fetched session list and the role
// text typed for each session, tracked independently per session id.
type Panel struct {
	mu       sync.Mutex
	sessions []models.SessionRecord
	drafts   map[string]string
	loading  bool
	failed   bool
}

// PanelView is a snapshot for rendering
type PanelView struct {
	Sessions []models.SessionRecord
	Drafts   map[string]string
	Loading  bool
	Failed   bool
}

// NewPanel returns a panel waiting for its first fetch
func NewPanel() *Panel {
	return &Panel{drafts: make(map[string]string), loading: true}
}

// Loaded stores a fetch result; a failure leaves an empty list
func (p *Panel) Loaded(sessions []models.SessionRecord, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loading = false
	if err != nil {
		p.failed = true
		p.sessions = nil
		return
	}
	p.failed = false
	p.sessions = append([]models.SessionRecord(nil), sessions...)
}

// SetDraft records the role text entered for one session
func (p *Panel) SetDraft(sessionID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drafts[sessionID] = text
}

// Draft returns the role text entered for one session
func (p *Panel) Draft(sessionID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drafts[sessionID]
}

// ClearDraft forgets the text for one session once it has been applied
func (p *Panel) ClearDraft(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.drafts, sessionID)
}

// View returns a snapshot of the panel
func (p *Panel) View() PanelView {
	p.mu.Lock()
	defer p.mu.Unlock()

	drafts := make(map[string]string, len(p.drafts))
	for k, v := range p.drafts {
		drafts[k] = v
	}
	return PanelView{
		Sessions: append([]models.SessionRecord(nil), p.sessions...),
		Drafts:   drafts,
		Loading:  p.loading,
		Failed:   p.failed,
	}
}
