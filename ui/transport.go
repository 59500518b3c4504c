package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/Dherick07/dexterous/tts"
)

// transportPhase tracks what the event stream last reported. It is
// deliberately looser than the session state machine: the pane renders
// whatever it has heard, even if the session has since moved on.
type transportPhase int

const (
	transportIdle transportPhase = iota
	transportRequesting
	transportStreaming
	transportFinalizing
	transportDone
	transportCancelled
	transportFailed
)

// transportModel is the status pane under the composer: request
// progress, playback state, and where the finished file went.
type transportModel struct {
	common   *commonModel
	spinner  spinner.Model
	bar      progress.Model
	phase    transportPhase
	loaded   int64
	total    int64
	artifact *tts.Artifact
	errText  string
	warnText string
	playing  bool
	paused   bool
	saved    string
	width    int
}

func newTransportModel(common *commonModel) transportModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = subtleStyle

	bar := progress.New(progress.WithDefaultGradient())

	return transportModel{
		common:  common,
		spinner: sp,
		bar:     bar,
	}
}

func (m *transportModel) setSize(width int) {
	m.width = width
	barWidth := width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	m.bar.Width = barWidth
}

// apply folds one session event into the pane.
func (m *transportModel) apply(event tts.Event) {
	switch event.Type {
	case tts.EventRequestStarted:
		m.phase = transportRequesting
		m.loaded = 0
		m.total = 0
		m.artifact = nil
		m.errText = ""
		m.warnText = ""
		m.saved = ""
	case tts.EventProgress:
		m.phase = transportStreaming
		m.loaded = event.Loaded
		m.total = event.Total
	case tts.EventStreamComplete:
		m.phase = transportFinalizing
		m.loaded = event.Loaded
		m.total = event.Total
	case tts.EventDownloadReady:
		m.phase = transportDone
		m.artifact = event.Artifact
	case tts.EventCancelled:
		m.phase = transportCancelled
	case tts.EventFailed:
		m.phase = transportFailed
		m.errText = event.Message
	case tts.EventBufferError:
		m.warnText = event.Message
	case tts.EventPlaybackStarted:
		m.playing = true
		m.paused = false
	case tts.EventPlaybackPaused:
		m.paused = true
	case tts.EventPlaybackEnded:
		m.playing = false
		m.paused = false
	}
}

// spinning reports whether the pane needs spinner ticks.
func (m transportModel) spinning() bool {
	switch m.phase {
	case transportRequesting, transportFinalizing:
		return true
	case transportStreaming:
		return m.total <= 0
	}
	return false
}

func (m transportModel) update(msg tea.Msg) (transportModel, tea.Cmd) {
	if _, ok := msg.(spinner.TickMsg); ok && m.spinning() {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m transportModel) View() string {
	line := m.phaseView()
	if status := m.playbackView(); status != "" {
		line += "  " + status
	}
	if m.warnText != "" {
		line += "\n" + warnStyle.Render(m.warnText)
	}
	if m.width > 0 {
		line = truncate.StringWithTail(line, uint(m.width), "…")
	}
	return line
}

func (m transportModel) phaseView() string {
	switch m.phase {
	case transportRequesting:
		return m.spinner.View() + " " + subtleStyle.Render("contacting speech server...")
	case transportStreaming:
		if m.total <= 0 {
			return m.spinner.View() + fmt.Sprintf(" streaming  %s received", humanize.Bytes(uint64(m.loaded)))
		}
		ratio := float64(m.loaded) / float64(m.total)
		return m.bar.ViewAs(ratio) + fmt.Sprintf(" %s / %s", humanize.Bytes(uint64(m.loaded)), humanize.Bytes(uint64(m.total)))
	case transportFinalizing:
		return m.spinner.View() + " " + subtleStyle.Render("finishing download...")
	case transportDone:
		line := okStyle.Render("✓ " + humanize.Bytes(uint64(m.loaded)) + " ready")
		if m.saved != "" {
			line += subtleStyle.Render("  saved to ") + m.saved
		} else if m.artifact != nil {
			line += subtleStyle.Render("  ctrl+s saves " + m.artifact.Filename())
		}
		return line
	case transportCancelled:
		return warnStyle.Render("generation cancelled")
	case transportFailed:
		return errorTitleStyle.Render("ERROR") + " " + errorStyle.Render(m.errText)
	}
	return subtleStyle.Render("ctrl+g speaks the composer text")
}

func (m transportModel) playbackView() string {
	switch {
	case m.playing && m.paused:
		return warnStyle.Render("‖ paused")
	case m.playing:
		return okStyle.Render("▶ playing")
	}
	return ""
}
