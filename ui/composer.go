package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dherick07/dexterous/tts"
)

// composerModel is the text entry pane. It enforces nothing itself:
// the generation pipeline validates on start, the counter just warns.
type composerModel struct {
	common      *commonModel
	input       textarea.Model
	fileChanged bool
}

func newComposerModel(common *commonModel) composerModel {
	input := textarea.New()
	input.Placeholder = "Type or paste text to speak..."
	input.ShowLineNumbers = false
	input.Prompt = ""
	// No input cap here; the pipeline rejects oversized text on start
	// and the counter warns before that.
	input.CharLimit = 0
	input.SetValue(common.cfg.Text)
	input.Focus()

	return composerModel{
		common: common,
		input:  input,
	}
}

func (m *composerModel) setSize(width, height int) {
	m.input.SetWidth(width)
	// One line below the textarea for the counter.
	if height > 1 {
		m.input.SetHeight(height - 1)
	}
}

func (m *composerModel) content() string {
	return m.input.Value()
}

func (m *composerModel) setContent(text string) {
	m.input.SetValue(text)
	m.fileChanged = false
}

func (m *composerModel) focus() tea.Cmd {
	return m.input.Focus()
}

func (m *composerModel) blur() {
	m.input.Blur()
}

func (m *composerModel) focused() bool {
	return m.input.Focused()
}

func (m composerModel) update(msg tea.Msg) (composerModel, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m composerModel) View() string {
	counter := m.counterView()
	if m.fileChanged {
		counter += "  " + warnStyle.Render("file changed on disk (ctrl+r reloads)")
	}
	return m.input.View() + "\n" + counter
}

// counterView renders the rune count the same way the validator
// counts it, so red means a start would be rejected.
func (m composerModel) counterView() string {
	n := utf8.RuneCountInString(strings.TrimSpace(m.input.Value()))
	label := fmt.Sprintf("%d/%d", n, tts.MaxTextLength)
	if n > tts.MaxTextLength {
		return counterOverStyle.Render(label)
	}
	return counterStyle.Render(label)
}
