package state

import (
	"testing"
	"time"

	"flashdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryViewsPerSession(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	a := r.Views("a")
	assert.Same(t, a, r.Views("a"))
	assert.NotSame(t, a, r.Views("b"))
	assert.True(t, a.Auth.Loading())

	r.Forget("a")
	assert.NotSame(t, a, r.Views("a"))
}

func TestViewsMountResetsState(t *testing.T) {
	v := &Views{Auth: NewAuthStore()}
	assert.Nil(t, v.Study())

	s := v.MountStudy()
	require.True(t, s.Apply(Event{Kind: EventLoaded, Cards: deck(2)}))
	step(t, s, EventNext)

	again := v.MountStudy()
	assert.NotSame(t, s, again)
	assert.Equal(t, PhaseLoading, again.View().Phase)
	assert.Same(t, again, v.Study())

	b := v.MountBrowser()
	assert.Same(t, b, v.Browser())
	p := v.MountPanel()
	assert.Same(t, p, v.Panel())
}

func TestViewsFlashQueue(t *testing.T) {
	v := &Views{Auth: NewAuthStore()}
	v.Queue(models.Notification{Message: "one"})
	v.Queue(models.Notification{Message: "two"})

	got := v.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Message)
	assert.Empty(t, v.Drain())
}

func TestPanelDraftsAreIndependent(t *testing.T) {
	p := NewPanel()
	assert.True(t, p.View().Loading)

	p.Loaded([]models.SessionRecord{{SessionID: "s1"}, {SessionID: "s2"}}, nil)
	p.SetDraft("s1", "admin, editor")
	p.SetDraft("s2", "viewer")

	assert.Equal(t, "admin, editor", p.Draft("s1"))
	p.ClearDraft("s1")
	v := p.View()
	assert.Equal(t, map[string]string{"s2": "viewer"}, v.Drafts)
	assert.Len(t, v.Sessions, 2)
	assert.False(t, v.Loading)
}
