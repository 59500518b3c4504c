package ui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"

	"github.com/Dherick07/dexterous/tts"
)

// voiceItem is one catalog entry in the voice pane.
type voiceItem struct {
	id        string
	hasSample bool
}

// voicesModel is the voice picker pane: the server's catalog with a
// fuzzy filter, plus the current mix selection.
type voicesModel struct {
	common    *commonModel
	keys      keyMap
	items     []voiceItem
	catalog   []string
	visible   []int // indexes into items, filter applied
	cursor    int   // index into visible
	offset    int   // first visible row on screen
	selection *tts.Selection
	filter    textinput.Model
	filtering bool
	loaded    bool
	loadErr   error
	width     int
	height    int
}

func newVoicesModel(common *commonModel, keys keyMap) voicesModel {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter voices"

	return voicesModel{
		common:    common,
		keys:      keys,
		selection: tts.NewSelection(nil),
		filter:    filter,
	}
}

func (m *voicesModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.scrollToCursor()
}

// setVoices installs the fetched catalog and seeds the selection from
// the configured default mix.
func (m *voicesModel) setVoices(voices []string, err error) {
	m.loaded = true
	m.loadErr = err
	if err != nil {
		return
	}

	m.catalog = voices
	m.items = make([]voiceItem, len(voices))
	for i, id := range voices {
		m.items[i] = voiceItem{
			id:        id,
			hasSample: m.common.store != nil && m.common.store.Has(id),
		}
	}

	m.selection = tts.NewSelection(voices)
	if m.common.cfg.Voice != "" {
		if sel, perr := tts.ParseWireString(m.common.cfg.Voice, voices); perr == nil {
			m.selection = sel
		}
	}
	m.applyFilter()
}

// markSampled flags a voice as having a stored preview clip.
func (m *voicesModel) markSampled(id string) {
	for i := range m.items {
		if m.items[i].id == id {
			m.items[i].hasSample = true
			return
		}
	}
}

func (m *voicesModel) applyFilter() {
	query := m.filter.Value()
	if query == "" {
		m.visible = make([]int, len(m.items))
		for i := range m.items {
			m.visible[i] = i
		}
	} else {
		matches := fuzzy.Find(query, m.catalog)
		m.visible = make([]int, len(matches))
		for i, match := range matches {
			m.visible[i] = match.Index
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.scrollToCursor()
}

func (m *voicesModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.scrollToCursor()
}

func (m *voicesModel) scrollToCursor() {
	rows := m.listRows()
	if rows <= 0 {
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// listRows is the number of catalog rows that fit, leaving one line
// for the filter and one for the mix summary.
func (m *voicesModel) listRows() int {
	return max(1, m.height-2)
}

func (m *voicesModel) cursorVoice() (voiceItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return voiceItem{}, false
	}
	return m.items[m.visible[m.cursor]], true
}

func (m *voicesModel) toggle() {
	item, ok := m.cursorVoice()
	if !ok {
		return
	}
	if m.selection.Has(item.id) {
		m.selection.Remove(item.id)
	} else {
		m.selection.Add(item.id)
	}
}

// nudge shifts the weight of the voice under the cursor, selecting it
// first when needed.
func (m *voicesModel) nudge(delta float64) {
	item, ok := m.cursorVoice()
	if !ok {
		return
	}
	weight, selected := m.selection.Weight(item.id)
	if !selected {
		m.selection.Add(item.id)
		weight = tts.DefaultWeight
	}
	m.selection.SetWeight(item.id, weight+delta)
}

// selectionSnapshot copies the live selection so a command goroutine
// can hold it while the user keeps editing the pane.
func (m *voicesModel) selectionSnapshot() *tts.Selection {
	snap := tts.NewSelection(m.catalog)
	for _, v := range m.selection.Voices() {
		snap.AddWeight(v.ID, v.Weight)
	}
	return snap
}

func (m voicesModel) update(msg tea.Msg) (voicesModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		// Cursor blink and friends still belong to the filter input.
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}

	if m.filtering {
		switch keyMsg.String() {
		case "enter":
			m.filtering = false
			m.filter.Blur()
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.applyFilter()
		default:
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(keyMsg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(keyMsg, m.keys.Toggle):
		m.toggle()
	case key.Matches(keyMsg, m.keys.Heavier):
		m.nudge(0.1)
	case key.Matches(keyMsg, m.keys.Lighter):
		m.nudge(-0.1)
	case key.Matches(keyMsg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(keyMsg, m.keys.Preview):
		item, ok := m.cursorVoice()
		if !ok || !item.hasSample {
			return m, func() tea.Msg {
				return statusMsg{text: "no sample for this voice"}
			}
		}
		if m.common.sink == nil {
			return m, func() tea.Msg {
				return statusMsg{text: "audio device unavailable"}
			}
		}
		if m.common.ctrl != nil && m.common.ctrl.PlaybackActive() {
			return m, func() tea.Msg {
				return statusMsg{text: "playback busy"}
			}
		}
		return m, previewVoice(m.common.sink, m.common.store, item.id)
	}
	return m, nil
}

func (m voicesModel) View() string {
	if m.loadErr != nil {
		return errorStyle.Render("voices unavailable: " + m.loadErr.Error())
	}
	if !m.loaded {
		return subtleStyle.Render("loading voices...")
	}

	var lines []string
	if m.filtering || m.filter.Value() != "" {
		lines = append(lines, m.filter.View())
	} else {
		lines = append(lines, subtleStyle.Render("/ filters"))
	}

	rows := m.listRows()
	end := min(m.offset+rows, len(m.visible))
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.rowView(i))
	}
	if len(m.visible) == 0 {
		lines = append(lines, subtleStyle.Render("no matches"))
	}

	lines = append(lines, m.summaryView())
	out := lines[0]
	for _, line := range lines[1:] {
		out += "\n" + line
	}
	return out
}

func (m voicesModel) rowView(i int) string {
	item := m.items[m.visible[i]]

	marker := "  "
	if i == m.cursor {
		marker = cursorStyle.Render("> ")
	}

	box := "[ ] "
	name := item.id
	if weight, ok := m.selection.Weight(item.id); ok {
		box = selectedStyle.Render("[x]") + " "
		name = selectedStyle.Render(item.id)
		if weight != tts.DefaultWeight {
			name += " " + voiceChipStyle.Render("("+strconv.FormatFloat(weight, 'g', -1, 64)+")")
		}
	}

	dot := ""
	if item.hasSample {
		dot = " " + subtleStyle.Render("●")
	}

	line := marker + box + name + dot
	if m.width > 0 {
		line = truncate.StringWithTail(line, uint(m.width), "…")
	}
	return line
}

func (m voicesModel) summaryView() string {
	if !m.selection.HasAny() {
		return warnStyle.Render("no voice selected")
	}
	wire := m.selection.WireString()
	if m.width > 0 {
		wire = truncate.StringWithTail(wire, uint(max(1, m.width-5)), "…")
	}
	return subtleStyle.Render("mix: ") + voiceChipStyle.Render(wire)
}
