package state

import (
	"sync"

	"flashdeck/models"
)

// Phase is a state of the study machine
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseEmpty         Phase = "empty"
	PhaseIdle          Phase = "idle"
	PhaseTransitioning Phase = "transitioning"
)

// Direction is the way the outgoing card leaves the screen
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLeft  Direction = "left"  // next
	DirectionRight Direction = "right" // previous
)

// EventKind enumerates the inputs of the study machine
type EventKind int

const (
	EventLoaded EventKind = iota
	EventLoadFailed
	EventNext
	EventPrev
	EventSettle
	EventFlip
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventNext:
		return "next"
	case EventPrev:
		return "prev"
	case EventSettle:
		return "settle"
	case EventFlip:
		return "flip"
	default:
		return "unknown"
	}
}

// Event is one input to Study.Apply. Cards is read for EventLoaded only;
// Transition is read for EventSettle only (0 settles whatever is in flight).
type Event struct {
	Kind       EventKind
	Cards      []models.Card
	Transition uint64
}

// SwipeEvent maps a horizontal swipe to navigation. A left swipe goes to the
// previous card and a right swipe to the next one, matching the existing UI.
func SwipeEvent(direction string) (EventKind, bool) {
	switch direction {
	case "left":
		return EventPrev, true
	case "right":
		return EventNext, true
	default:
		return 0, false
	}
}

// StudyView is an immutable snapshot for rendering
type StudyView struct {
	Phase      Phase
	Card       *models.Card
	Index      int
	Count      int
	Flipped    bool
	Direction  Direction
	Failed     bool
	Transition uint64
}

// Study is the card study state machine. Apply is the only way to change it.
type Study struct {
	mu         sync.Mutex
	phase      Phase
	cards      []models.Card
	index      int
	flipped    bool
	direction  Direction
	pending    EventKind // Next or Prev while transitioning
	transition uint64    // id of the in-flight transition
	failed     bool
}

// NewStudy returns a machine in the loading phase
func NewStudy() *Study {
	return &Study{phase: PhaseLoading}
}

// Apply feeds one event to the machine and reports whether it changed state.
// Events that are not valid in the current phase are dropped, never queued.
func (s *Study) Apply(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventLoaded:
		if s.phase != PhaseLoading {
			return false
		}
		s.cards = append([]models.Card(nil), ev.Cards...)
		s.index = 0
		s.flipped = false
		if len(s.cards) == 0 {
			s.phase = PhaseEmpty
		} else {
			s.phase = PhaseIdle
		}
		return true

	case EventLoadFailed:
		if s.phase != PhaseLoading {
			return false
		}
		s.cards = nil
		s.failed = true
		s.phase = PhaseEmpty
		return true

	case EventNext, EventPrev:
		if s.phase != PhaseIdle {
			return false
		}
		s.phase = PhaseTransitioning
		s.pending = ev.Kind
		s.transition++
		if ev.Kind == EventNext {
			s.direction = DirectionLeft
		} else {
			s.direction = DirectionRight
		}
		return true

	case EventSettle:
		if s.phase != PhaseTransitioning {
			return false
		}
		if ev.Transition != 0 && ev.Transition != s.transition {
			return false
		}
		n := len(s.cards)
		if s.pending == EventNext {
			s.index = (s.index + 1) % n
		} else {
			s.index = (s.index - 1 + n) % n
		}
		s.flipped = false
		s.direction = DirectionNone
		s.phase = PhaseIdle
		return true

	case EventFlip:
		if s.phase != PhaseIdle {
			return false
		}
		s.flipped = !s.flipped
		return true
	}

	return false
}

// View returns a snapshot of the machine
func (s *Study) View() StudyView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := StudyView{
		Phase:      s.phase,
		Index:      s.index,
		Count:      len(s.cards),
		Flipped:    s.flipped,
		Direction:  s.direction,
		Failed:     s.failed,
		Transition: s.transition,
	}
	if s.phase == PhaseIdle || s.phase == PhaseTransitioning {
		card := s.cards[s.index]
		v.Card = &card
	}
	return v
}
