package model

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/modoterra/provdash/pkg/route"
)

type keyMap struct {
	Quit       key.Binding
	Tab        key.Binding
	Dashboard  key.Binding
	Interfaces key.Binding
	Logs       key.Binding
	Refresh    key.Binding
	Filter     key.Binding
	Next       key.Binding
	Prev       key.Binding
	Open       key.Binding
	Back       key.Binding
	Pause      key.Binding
	Logout     key.Binding
	Help       key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Dashboard:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "dashboard")),
	Interfaces: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "interfaces")),
	Logs:       key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "logs")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Filter:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	Next:       key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
	Prev:       key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
	Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Pause:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
	Logout:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// routeHelp narrows the key map to what the current view responds to.
type routeHelp struct {
	k     keyMap
	route route.Route
}

func (h routeHelp) ShortHelp() []key.Binding {
	switch h.route {
	case route.Dashboard:
		return []key.Binding{h.k.Tab, h.k.Refresh, h.k.Logout, h.k.Help, h.k.Quit}
	case route.Interfaces:
		return []key.Binding{h.k.Filter, h.k.Next, h.k.Prev, h.k.Open, h.k.Tab, h.k.Help, h.k.Quit}
	case route.Logs:
		return []key.Binding{h.k.Pause, h.k.Tab, h.k.Logout, h.k.Help, h.k.Quit}
	default:
		return nil
	}
}

func (h routeHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{h.k.Dashboard, h.k.Interfaces, h.k.Logs, h.k.Tab},
		{h.k.Refresh, h.k.Filter, h.k.Next, h.k.Prev},
		{h.k.Open, h.k.Back, h.k.Pause},
		{h.k.Logout, h.k.Help, h.k.Quit},
	}
}
