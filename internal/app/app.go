// Package app is the terminal menu: it renders the pushed render model and
// turns key presses into focus and mark-seen requests.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/termfocus/termfocus/internal/client"
	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/logging"
	"github.com/termfocus/termfocus/internal/session"
	"github.com/termfocus/termfocus/internal/theme"
)

const noticeTTL = 6 * time.Second

var appLog = logging.ForComponent(logging.CompApp)

// API is the subset of the server's REST surface the menu drives.
type API interface {
	Sessions(ctx context.Context) (session.RenderModel, error)
	Focus(ctx context.Context, windowID string) error
	MarkSeen(ctx context.Context, windowID string) error
	MarkAllSeen(ctx context.Context) (int, error)
}

type sessionsLoadedMsg struct {
	model session.RenderModel
	err   error
}

type focusDoneMsg struct {
	windowID string
	err      error
}

type seenDoneMsg struct {
	cleared int
	err     error
}

type noticeExpiredMsg struct{ seq int }

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	api    API
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	model   session.RenderModel
	visible []session.Session

	// Navigation.
	selectedIdx int
	selectedID  string
	filtering   bool
	filter      string

	notice    focus.Notice
	noticeSeq int

	connected bool
}

// New creates the root model. ws may be nil, in which case the menu shows the
// state fetched at startup only.
func New(ws *client.WSClient, api API) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:     ws,
		api:    api,
		ctx:    ctx,
		cancel: cancel,
		keys:   DefaultKeyMap(),
	}
}

// Init fetches the current sessions and starts the websocket connection.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.api != nil {
		cmds = append(cmds, m.loadCmd())
	}
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		if m.ws == nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.setModel(msg.Model)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSNoticeMsg:
		cmd := m.showNotice(msg.Notice)
		return m, tea.Batch(cmd, m.ws.ReadLoop(m.ctx))

	case sessionsLoadedMsg:
		if msg.err != nil {
			appLog.Warn("sessions_load_failed", slog.String("error", msg.err.Error()))
			return m, m.showNotice(focus.Notice{Level: focus.LevelError, Text: errorText(msg.err)})
		}
		m.setModel(msg.model)
		return m, nil

	case focusDoneMsg:
		if msg.err != nil {
			// The server also pushes a notice for activation failures; this
			// covers transport errors and unknown ids.
			return m, m.showNotice(focus.Notice{WindowID: msg.windowID, Level: focus.LevelError, Text: errorText(msg.err)})
		}
		return m, nil

	case seenDoneMsg:
		if msg.err != nil {
			return m, m.showNotice(focus.Notice{Level: focus.LevelError, Text: errorText(msg.err)})
		}
		return m, nil

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = focus.Notice{}
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.move(1)
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.move(-1)
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if s, ok := m.selected(); ok && m.api != nil {
			return m, m.focusCmd(s.WindowID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Seen):
		if s, ok := m.selected(); ok && m.api != nil {
			return m, m.seenCmd(s.WindowID)
		}
		return m, nil

	case key.Matches(msg, m.keys.SeenAll):
		if m.api != nil {
			return m, m.seenAllCmd()
		}
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		if m.filter != "" {
			m.filter = ""
			m.refilter()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.cancel()
		return m, tea.Quit
	case tea.KeyEsc:
		m.filtering = false
		m.filter = ""
	case tea.KeyEnter:
		m.filtering = false
		return m, nil
	case tea.KeyBackspace:
		if r := []rune(m.filter); len(r) > 0 {
			m.filter = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.filter += " "
	case tea.KeyRunes:
		m.filter += string(msg.Runes)
	case tea.KeyUp:
		m.move(-1)
		return m, nil
	case tea.KeyDown:
		m.move(1)
		return m, nil
	default:
		return m, nil
	}
	m.refilter()
	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.visible) == 0 {
		return
	}
	m.selectedIdx = (m.selectedIdx + delta + len(m.visible)) % len(m.visible)
	m.selectedID = m.visible[m.selectedIdx].WindowID
}

func (m Model) selected() (session.Session, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.visible) {
		return session.Session{}, false
	}
	return m.visible[m.selectedIdx], true
}

func (m *Model) setModel(rm session.RenderModel) {
	m.model = rm
	m.refilter()
}

// entrySource adapts entries to fuzzy.Source, matching on the menu label.
type entrySource []session.Session

func (e entrySource) String(i int) string { return e[i].Label() }
func (e entrySource) Len() int            { return len(e) }

// refilter recomputes the visible entries and keeps the cursor on the same
// window when it is still listed.
func (m *Model) refilter() {
	entries := m.model.Entries
	query := strings.TrimSpace(m.filter)
	if query == "" {
		m.visible = entries
	} else {
		matches := fuzzy.FindFrom(query, entrySource(entries))
		m.visible = make([]session.Session, 0, len(matches))
		for _, match := range matches {
			m.visible = append(m.visible, entries[match.Index])
		}
	}

	if len(m.visible) == 0 {
		m.selectedIdx = 0
		return
	}
	for i, s := range m.visible {
		if s.WindowID == m.selectedID {
			m.selectedIdx = i
			return
		}
	}
	if m.selectedIdx >= len(m.visible) {
		m.selectedIdx = len(m.visible) - 1
	}
	m.selectedID = m.visible[m.selectedIdx].WindowID
}

func (m *Model) showNotice(n focus.Notice) tea.Cmd {
	m.noticeSeq++
	m.notice = n
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

func (m Model) loadCmd() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		rm, err := api.Sessions(ctx)
		return sessionsLoadedMsg{model: rm, err: err}
	}
}

func (m Model) focusCmd(windowID string) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		return focusDoneMsg{windowID: windowID, err: api.Focus(ctx, windowID)}
	}
}

func (m Model) seenCmd(windowID string) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		return seenDoneMsg{err: api.MarkSeen(ctx, windowID)}
	}
}

func (m Model) seenAllCmd() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		n, err := api.MarkAllSeen(ctx)
		return seenDoneMsg{cleared: n, err: err}
	}
}

func errorText(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

// View renders the full menu.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.renderHeader(), m.renderList()}
	if m.filtering || m.filter != "" {
		prompt := "/" + m.filter
		if m.filtering {
			prompt += "█"
		}
		sections = append(sections, theme.StyleDimmed.Render(prompt))
	}
	if m.notice.Text != "" {
		style := lipgloss.NewStyle().Foreground(theme.NoticeColor(m.notice.Level))
		sections = append(sections, style.Render(truncate(m.notice.Text, m.width)))
	}
	sections = append(sections, theme.StyleDimmed.Render(m.helpLine()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	var connStr string
	if m.connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ DISCONNECTED · Reconnecting...")
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := theme.StyleHeader.Render("termfocus") + "  " +
		theme.Badge(m.model.BadgeCount, m.model.Total) + sep + connStr
	return theme.StyleBar.Width(m.width).Render(content)
}

func (m Model) renderList() string {
	if len(m.model.Entries) == 0 {
		return theme.StyleDimmed.Render("  No active terminals")
	}
	if len(m.visible) == 0 {
		return theme.StyleDimmed.Render("  No matches")
	}

	lines := make([]string, 0, len(m.visible))
	for i, s := range m.visible {
		lines = append(lines, renderLine(s, i == m.selectedIdx, m.width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderLine(s session.Session, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = theme.GlyphCursor + " "
	}
	glyph, style := theme.GlyphSeen, theme.StyleSeen
	if s.Unseen {
		glyph, style = theme.GlyphUnseen, theme.StyleUnseen
	}

	prefix := cursor + glyph + " "
	label := truncate(s.Label(), width-runewidth.StringWidth(prefix)-1)
	if selected {
		return theme.StyleSelected.Render(prefix + label)
	}
	return cursor + style.Render(glyph+" "+label)
}

// truncate shortens s to at most w display cells.
func truncate(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= w {
		return s
	}
	return runewidth.Truncate(s, w, "…")
}

func (m Model) helpLine() string {
	parts := make([]string, 0, 7)
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return "  " + strings.Join(parts, "  ")
}
