package web

import "flashdeck/models"

// NavLink is one entry of the navigation bar
type NavLink struct {
	Path    string
	LabelID string
	Active  bool
}

// Nav is what the navigation shell shows for the current visitor
type Nav struct {
	Links      []NavLink
	Greeting   string
	ShowLogout bool
	MenuOpen   bool
	Path       string
}

// BuildNav decides which links are visible for identity (nil when nobody is
// logged in) and marks the link whose target equals path. The small-screen
// menu uses the same links; its links carry no menu flag, so following one
// closes the menu.
func BuildNav(identity *models.Identity, path string, menuOpen bool) Nav {
	targets := []struct {
		path, label string
		visible     bool
	}{
		{"/view", "nav_view", true},
		{"/create", "nav_create", identity != nil},
		{"/study", "nav_study", identity != nil},
		{"/admin", "nav_admin", identity.HasRole("admin")},
		{"/login", "nav_login", identity == nil},
	}

	nav := Nav{MenuOpen: menuOpen, Path: path}
	for _, target := range targets {
		if !target.visible {
			continue
		}
		nav.Links = append(nav.Links, NavLink{
			Path:    target.path,
			LabelID: target.label,
			Active:  target.path == path,
		})
	}

	if identity != nil {
		nav.ShowLogout = true
		nav.Greeting = identity.Email
	}
	return nav
}
