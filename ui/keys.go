package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds every binding the TUI reacts to. Bindings that would
// collide with typing are all ctrl-chords so the composer stays a
// plain text area.
type keyMap struct {
	Generate   key.Binding
	PlayPause  key.Binding
	CancelGen  key.Binding
	Save       key.Binding
	CopyPath   key.Binding
	SwitchPane key.Binding
	Edit       key.Binding
	Reload     key.Binding
	Help       key.Binding
	Quit       key.Binding

	// Voice panel only.
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Heavier key.Binding
	Lighter key.Binding
	Preview key.Binding
	Filter  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Generate: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "generate"),
		),
		PlayPause: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "play/pause"),
		),
		CancelGen: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "cancel"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save audio"),
		),
		CopyPath: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy path"),
		),
		SwitchPane: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "voices"),
		),
		Edit: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "edit in $EDITOR"),
		),
		Reload: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reload file"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "select"),
		),
		Heavier: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "weight up"),
		),
		Lighter: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "weight down"),
		),
		Preview: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "preview"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
	}
}

// ShortHelp implements help.KeyMap for the one-line hint bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Generate, k.PlayPause, k.SwitchPane, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Generate, k.CancelGen, k.PlayPause, k.Save, k.CopyPath},
		{k.SwitchPane, k.Edit, k.Reload, k.Help, k.Quit},
		{k.Up, k.Down, k.Toggle, k.Heavier, k.Lighter, k.Preview, k.Filter},
	}
}
