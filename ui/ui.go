// Package ui implements the interactive terminal front end: a text
// composer, a voice mix picker, and a transport line that follows
// generation and playback as they happen.
package ui

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	te "github.com/muesli/termenv"

	"github.com/Dherick07/dexterous/internal/samples"
	"github.com/Dherick07/dexterous/tts"
)

const statusMessageTimeout = 3 * time.Second

// VoiceLister provides the voice catalog. *kokoro.Client satisfies it.
type VoiceLister interface {
	Voices(ctx context.Context) ([]string, error)
}

// pane names which side of the screen owns the keyboard.
type pane int

const (
	paneComposer pane = iota
	paneVoices
)

func (p pane) String() string {
	return map[pane]string{
		paneComposer: "composer",
		paneVoices:   "voices",
	}[p]
}

// commonModel is shared by every sub-model.
type commonModel struct {
	cfg    Config
	ctrl   *tts.Controller
	lister VoiceLister
	store  *samples.Store
	sink   tts.PlaybackSink
	width  int
	height int
}

type model struct {
	common    *commonModel
	keys      keyMap
	composer  composerModel
	voices    voicesModel
	transport transportModel
	help      help.Model
	showHelp  bool
	helpPage  string
	focus     pane
	sub       *tts.Subscription
	watcher   *fsnotify.Watcher
	speed     float64
	status    string
	statusErr bool
	statusSeq int
}

// NewProgram builds the Bubble Tea program. The caller owns the
// controller, sink, and sample store; the program only closes what it
// opens itself.
func NewProgram(cfg Config, ctrl *tts.Controller, lister VoiceLister, store *samples.Store, sink tts.PlaybackSink) *tea.Program {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, ctrl, lister, store, sink), opts...)
}

func newModel(cfg Config, ctrl *tts.Controller, lister VoiceLister, store *samples.Store, sink tts.PlaybackSink) model {
	common := &commonModel{
		cfg:    cfg,
		ctrl:   ctrl,
		lister: lister,
		store:  store,
		sink:   sink,
	}

	keys := defaultKeyMap()

	speed := cfg.Speed
	if speed == 0 {
		speed = 1.0
	}

	m := model{
		common:    common,
		keys:      keys,
		composer:  newComposerModel(common),
		voices:    newVoicesModel(common, keys),
		transport: newTransportModel(common),
		help:      help.New(),
		speed:     speed,
	}
	if ctrl != nil {
		m.sub = ctrl.Bus().Subscribe()
	}
	if cfg.SourcePath != "" {
		if watcher, err := fsnotify.NewWatcher(); err == nil {
			if err := watcher.Add(filepath.Dir(cfg.SourcePath)); err == nil {
				m.watcher = watcher
			} else {
				watcher.Close()
			}
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		fetchVoices(m.common.lister),
	}
	if m.sub != nil {
		cmds = append(cmds, listenForEvents(m.sub))
	}
	if m.watcher != nil {
		cmds = append(cmds, waitForFileChange(m.watcher, m.common.cfg.SourcePath))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.help.Width = msg.Width
		m.helpPage = ""
		m.layout()
		return m, nil

	case voicesLoadedMsg:
		m.voices.setVoices(msg.voices, msg.err)
		if msg.err != nil {
			cmd := m.setStatus("voices: "+msg.err.Error(), true)
			return m, cmd
		}
		return m, nil

	case sessionEventMsg:
		m.transport.apply(msg.event)
		cmds := []tea.Cmd{listenForEvents(m.sub)}
		if m.transport.spinning() {
			cmds = append(cmds, m.transport.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case generateStartedMsg:
		if msg.err != nil {
			cmd := m.setStatus(msg.err.Error(), true)
			return m, cmd
		}
		m.status = ""
		return m, nil

	case artifactSavedMsg:
		if msg.err != nil {
			cmd := m.setStatus("save failed: "+msg.err.Error(), true)
			return m, cmd
		}
		m.transport.saved = msg.path
		cmd := m.setStatus("saved "+msg.path, false)
		return m, cmd

	case previewDoneMsg:
		if msg.err != nil {
			cmd := m.setStatus("preview "+msg.voice+": "+msg.err.Error(), true)
			return m, cmd
		}
		return m, nil

	case editorFinishedMsg:
		if msg.err != nil {
			cmd := m.setStatus("editor: "+msg.err.Error(), true)
			return m, cmd
		}
		m.composer.setContent(msg.content)
		return m, nil

	case fileChangedMsg:
		m.composer.fileChanged = true
		return m, waitForFileChange(m.watcher, m.common.cfg.SourcePath)

	case fileReloadedMsg:
		if msg.err != nil {
			cmd := m.setStatus("reload: "+msg.err.Error(), true)
			return m, cmd
		}
		m.composer.setContent(msg.content)
		cmd := m.setStatus("reloaded source file", false)
		return m, cmd

	case statusMsg:
		cmd := m.setStatus(msg.text, msg.isErr)
		return m, cmd

	case statusTimeoutMsg:
		if msg.token == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.transport, cmd = m.transport.update(msg)
		return m, cmd
	}

	// Everything else (cursor blink and friends) goes to the text
	// inputs.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.composer, cmd = m.composer.update(msg)
	cmds = append(cmds, cmd)
	m.voices, cmd = m.voices.update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Quit) {
			return m, m.quit()
		}
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		if m.helpPage == "" {
			m.helpPage = renderHelpPage(m.common.width)
		}
		return m, nil

	case key.Matches(msg, m.keys.SwitchPane):
		if m.focus == paneComposer {
			m.focus = paneVoices
			m.composer.blur()
			return m, nil
		}
		m.focus = paneComposer
		return m, m.composer.focus()

	case key.Matches(msg, m.keys.Generate):
		return m, startGeneration(m.common.ctrl, m.composer.content(), m.voices.selectionSnapshot(), m.speed)

	case key.Matches(msg, m.keys.PlayPause):
		return m, togglePlayback(m.common.ctrl)

	case key.Matches(msg, m.keys.CancelGen):
		return m, cancelGeneration(m.common.ctrl)

	case key.Matches(msg, m.keys.Save):
		if m.transport.artifact == nil {
			cmd := m.setStatus("nothing to save yet", false)
			return m, cmd
		}
		return m, saveArtifact(m.transport.artifact, m.common.cfg.DownloadDir)

	case key.Matches(msg, m.keys.CopyPath):
		if m.transport.saved == "" {
			cmd := m.setStatus("save first (ctrl+s)", false)
			return m, cmd
		}
		return m, copyToClipboard(m.transport.saved)

	case key.Matches(msg, m.keys.Edit):
		return m, editText(m.composer.content())

	case key.Matches(msg, m.keys.Reload):
		if m.common.cfg.SourcePath == "" {
			cmd := m.setStatus("no source file to reload", false)
			return m, cmd
		}
		return m, reloadFile(m.common.cfg.SourcePath)
	}

	if m.focus == paneVoices {
		if msg.String() == "q" && !m.voices.filtering {
			return m, m.quit()
		}
		var cmd tea.Cmd
		m.voices, cmd = m.voices.update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.update(msg)
	return m, cmd
}

// quit releases what the model opened. The controller and sink belong
// to the caller.
func (m *model) quit() tea.Cmd {
	if m.sub != nil {
		m.sub.Close()
	}
	if m.watcher != nil {
		m.watcher.Close()
	}
	return tea.Quit
}

func (m *model) setStatus(text string, isErr bool) tea.Cmd {
	m.status = text
	m.statusErr = isErr
	m.statusSeq++
	token := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg{token: token}
	})
}

// voicePaneWidth is fixed; the composer takes the rest.
const voicePaneWidth = 30

func (m *model) layout() {
	width := m.common.width
	height := m.common.height
	if width <= 0 || height <= 0 {
		return
	}

	// Header, transport, and the help bar each take a line, plus a
	// blank line of breathing room.
	bodyHeight := max(3, height-6)
	composerWidth := max(20, width-voicePaneWidth-3)

	m.composer.setSize(composerWidth, bodyHeight)
	m.voices.setSize(voicePaneWidth, bodyHeight)
	m.transport.setSize(width)
}

func (m model) View() string {
	if m.showHelp {
		return m.helpOverlay()
	}

	header := titleStyle.Render("Dexterous")
	if m.status != "" {
		style := subtleStyle
		if m.statusErr {
			style = errorStyle
		}
		header += "  " + style.Render(m.status)
	}

	composerTitle := paneTitleStyle.Render("Text")
	voicesTitle := subtleStyle.Render("Voices")
	if m.focus == paneVoices {
		composerTitle = subtleStyle.Render("Text")
		voicesTitle = paneTitleStyle.Render("Voices")
	}

	left := composerTitle + "\n" + m.composer.View()
	right := voicesTitle + "\n" + m.voices.View()
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, "   ", right)

	return header + "\n\n" + body + "\n\n" + m.transport.View() + "\n" + m.help.View(m.keys)
}

const helpPageMD = `# Dexterous

Type in the text pane, pick a voice mix on the right, then hit
` + "`ctrl+g`" + ` to speak.

## Everywhere

| Key | Action |
| --- | ------ |
| ctrl+g | generate speech |
| ctrl+p | pause or resume playback |
| ctrl+x | cancel the running generation |
| ctrl+s | save the finished audio |
| ctrl+y | copy the saved path |
| ctrl+e | edit the text in $EDITOR |
| ctrl+r | reload the source file |
| tab | switch panes |

## Voice pane

| Key | Action |
| --- | ------ |
| up/down | move |
| space | select or deselect |
| + / - | adjust mix weight |
| p | play the stored sample |
| / | filter |
`

func (m model) helpOverlay() string {
	if m.helpPage != "" {
		return m.helpPage
	}
	return helpPageMD
}

// renderHelpPage renders the key reference through glamour, matching
// the terminal background. Falls back to raw markdown when the
// renderer cannot be built.
func renderHelpPage(width int) string {
	style := "light"
	if te.HasDarkBackground() {
		style = "dark"
	}
	if width <= 0 || width > 80 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return helpPageMD
	}
	page, err := renderer.Render(helpPageMD)
	if err != nil {
		return helpPageMD
	}
	return page
}
