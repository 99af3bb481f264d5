// Package tui is the agent console: a terminal view of the handoff queue
// where support agents claim and release waiting sessions.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/destekhq/runtime/internal/adminclient"
	"github.com/destekhq/runtime/internal/agentqueue"
	"github.com/destekhq/runtime/internal/config"
)

const (
	panePending = iota
	paneActive

	refreshEvery = 3 * time.Second
	apiTimeout   = 5 * time.Second
)

type queueLoadedMsg struct {
	snapshot adminclient.QueueSnapshot
	err      error
}

type actionDoneMsg struct {
	verb    string
	session string
	err     error
}

type refreshTickMsg time.Time

type model struct {
	client  *adminclient.Client
	agentID string
	logger  *slog.Logger

	snapshot adminclient.QueueSnapshot
	pane     int
	index    [2]int

	statusText string
	errorText  string
	busy       bool
	quitting   bool
	width      int
	height     int
	spin       spinner.Model
}

func Run(cfg config.Config, agentID string, logger *slog.Logger) error {
	client := adminclient.New(cfg.APIBaseURL, apiTimeout)
	program := tea.NewProgram(newModel(client, agentID, logger))
	_, err := program.Run()
	return err
}

func newModel(client *adminclient.Client, agentID string, logger *slog.Logger) model {
	if agentID == "" {
		agentID = "console"
	}
	if logger == nil {
		logger = slog.Default()
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	return model{
		client:  client,
		agentID: agentID,
		logger:  logger,
		spin:    spin,
		width:   100,
		height:  30,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.tickCmd(), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.refreshCmd(), m.tickCmd())

	case queueLoadedMsg:
		m.busy = false
		if typed.err != nil {
			m.errorText = typed.err.Error()
			return m, nil
		}
		m.errorText = ""
		m.snapshot = typed.snapshot
		m.clampSelection()
		return m, nil

	case actionDoneMsg:
		m.busy = false
		if typed.err != nil {
			m.errorText = typed.err.Error()
			return m, nil
		}
		m.errorText = ""
		m.statusText = fmt.Sprintf("%s %s", typed.session, typed.verb)
		return m, m.refreshCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.pane = (m.pane + 1) % 2
		return m, nil
	case "j", "down":
		m.index[m.pane]++
		m.clampSelection()
		return m, nil
	case "k", "up":
		m.index[m.pane]--
		m.clampSelection()
		return m, nil
	case "R":
		m.busy = true
		m.statusText = "refreshing"
		return m, m.refreshCmd()
	case "c":
		entry, ok := m.selected(panePending)
		if !ok {
			m.errorText = "no pending session selected"
			return m, nil
		}
		m.busy = true
		return m, m.claimCmd(entry.SessionID)
	case "r":
		entry, ok := m.selected(paneActive)
		if !ok {
			m.errorText = "no active session selected"
			return m, nil
		}
		m.busy = true
		return m, m.releaseCmd(entry.SessionID)
	}
	return m, nil
}

func (m model) View() tea.View {
	if m.quitting {
		return tea.NewView("agent console closed\n")
	}

	t := newTheme()
	panelWidth := maxInt(30, (m.width-6)/2)

	header := t.brand.Render("Destek Agent Console") +
		t.panelSubtle.Render(fmt.Sprintf("  agent: %s", m.agentID))

	pending := m.renderPane(t, "Bekleyen", m.snapshot.Pending, panePending, panelWidth)
	active := m.renderPane(t, "Görüşmede", m.snapshot.Active, paneActive, panelWidth)
	body := lipgloss.JoinHorizontal(lipgloss.Top, pending, " ", active)

	footer := t.footerKey.Render("tab") + t.footerInfo.Render(" panel  ") +
		t.footerKey.Render("j/k") + t.footerInfo.Render(" seç  ") +
		t.footerKey.Render("c") + t.footerInfo.Render(" üstlen  ") +
		t.footerKey.Render("r") + t.footerInfo.Render(" bırak  ") +
		t.footerKey.Render("R") + t.footerInfo.Render(" yenile  ") +
		t.footerKey.Render("q") + t.footerInfo.Render(" çık")
	status := ""
	switch {
	case m.errorText != "":
		status = t.footerErr.Render(m.errorText)
	case m.busy:
		status = t.footerInfo.Render(m.spin.View() + " " + m.statusText)
	case m.statusText != "":
		status = t.footerInfo.Render(m.statusText)
	}

	return tea.NewView(lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", footer, status))
}

func (m model) renderPane(t theme, title string, entries []agentqueue.Entry, pane, width int) string {
	box := t.panelBox
	if m.pane == pane {
		box = t.panelBoxFocus
	}

	lines := []string{t.panelTitle.Render(fmt.Sprintf("%s (%d)", title, len(entries)))}
	if len(entries) == 0 {
		lines = append(lines, t.panelSubtle.Render("kuyruk boş"))
	}
	for i, entry := range entries {
		label := entry.SessionID
		if entry.TicketID != "" {
			label += "  " + entry.TicketID
		}
		detail := entry.Reason
		if entry.AgentID != "" {
			detail = "agent: " + entry.AgentID
		}
		row := fmt.Sprintf("%s\n   %s", label, truncate(detail+"  "+entry.Summary, width-6))
		if m.pane == pane && m.index[pane] == i {
			lines = append(lines, t.rowSelected.Render("▸ "+row))
		} else {
			lines = append(lines, t.rowNormal.Render("  "+row))
		}
	}
	return box.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *model) clampSelection() {
	counts := [2]int{len(m.snapshot.Pending), len(m.snapshot.Active)}
	for pane := range m.index {
		if m.index[pane] >= counts[pane] {
			m.index[pane] = counts[pane] - 1
		}
		if m.index[pane] < 0 {
			m.index[pane] = 0
		}
	}
}

func (m model) selected(pane int) (agentqueue.Entry, bool) {
	entries := m.snapshot.Pending
	if pane == paneActive {
		entries = m.snapshot.Active
	}
	if len(entries) == 0 || m.index[pane] >= len(entries) {
		return agentqueue.Entry{}, false
	}
	return entries[m.index[pane]], true
}

func (m model) refreshCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		snapshot, err := client.Queue(ctx)
		return queueLoadedMsg{snapshot: snapshot, err: err}
	}
}

func (m model) claimCmd(sessionID string) tea.Cmd {
	client, agentID := m.client, m.agentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		return actionDoneMsg{verb: "üstlenildi", session: sessionID, err: client.Claim(ctx, sessionID, agentID)}
	}
}

func (m model) releaseCmd(sessionID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		return actionDoneMsg{verb: "bırakıldı", session: sessionID, err: client.Release(ctx, sessionID)}
	}
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func truncate(text string, width int) string {
	text = strings.TrimSpace(text)
	if width < 4 || len([]rune(text)) <= width {
		return text
	}
	runes := []rune(text)
	return string(runes[:width-1]) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
