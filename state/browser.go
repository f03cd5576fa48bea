package state

import (
	"sync"

	"flashdeck/models"
)

// Browser holds the card list page: the active label filter, the last
// accepted fetch result and which cards show their back face.
//
// Every fetch is tagged with a generation; only the newest one may land, so
// a slow response for an old filter cannot overwrite a newer list.
type Browser struct {
	mu         sync.Mutex
	filter     string
	generation uint64
	loading    bool
	failed     bool
	cards      []models.Card
	flipped    map[string]bool
}

// BrowserView is a snapshot for rendering
type BrowserView struct {
	Filter  string
	Loading bool
	Failed  bool
	Cards   []models.Card
	Flipped map[string]bool
}

// NewBrowser returns an empty, loading browser
func NewBrowser() *Browser {
	return &Browser{loading: true, flipped: make(map[string]bool)}
}

// Begin starts a fetch for filter and returns its generation. Cards from the
// previous filter are discarded immediately.
func (b *Browser) Begin(filter string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.generation++
	b.filter = filter
	b.loading = true
	b.failed = false
	b.cards = nil
	return b.generation
}

// Finish records the outcome of the fetch started as gen. It returns false,
// leaving the state untouched, when a newer fetch has started since.
func (b *Browser) Finish(gen uint64, cards []models.Card, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return false
	}
	b.loading = false
	if err != nil {
		b.failed = true
		b.cards = nil
		return true
	}
	b.failed = false
	b.cards = append([]models.Card(nil), cards...)
	return true
}

// Toggle flips one card between its front and back face
func (b *Browser) Toggle(cardID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.flipped[cardID] = !b.flipped[cardID]
	return b.flipped[cardID]
}

// Remove drops a card from the current list (after it was deleted upstream)
func (b *Browser) Remove(cardID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.cards[:0]
	for _, c := range b.cards {
		if c.CardID != cardID {
			kept = append(kept, c)
		}
	}
	b.cards = kept
	delete(b.flipped, cardID)
}

// Replace swaps in the edited version of a card. It reports whether the card
// was in the current list.
func (b *Browser) Replace(card models.Card) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.cards {
		if b.cards[i].CardID == card.CardID {
			b.cards[i] = card
			return true
		}
	}
	return false
}

// Card returns the card with id from the current list
func (b *Browser) Card(cardID string) (models.Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.cards {
		if c.CardID == cardID {
			return c, true
		}
	}
	return models.Card{}, false
}

// Filter returns the active filter
func (b *Browser) Filter() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// View returns a snapshot of the browser
func (b *Browser) View() BrowserView {
	b.mu.Lock()
	defer b.mu.Unlock()

	flipped := make(map[string]bool, len(b.flipped))
	for id, f := range b.flipped {
		if f {
			flipped[id] = true
		}
	}
	return BrowserView{
		Filter:  b.filter,
		Loading: b.loading,
		Failed:  b.failed,
		Cards:   append([]models.Card(nil), b.cards...),
		Flipped: flipped,
	}
}
