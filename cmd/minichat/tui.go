package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/minichat/chat"
)

type phase int

const (
	phaseLogin phase = iota
	phaseChat
)

type (
	feedUpdatedMsg  struct{}
	disconnectedMsg struct{}
	loginDoneMsg    struct{ err error }
	switchDoneMsg   struct{ err error }
	sendDoneMsg     struct{ err error }
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	usernameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	systemStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	tsStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	typingStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	attachStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
)

type model struct {
	ctx    context.Context
	client *chat.Client

	phase    phase
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	ready    bool

	status       string
	disconnected bool
	busy         bool
}

func newModel(ctx context.Context, client *chat.Client) model {
	ti := textinput.New()
	ti.Placeholder = "username"
	if flagUsername != "" {
		ti.SetValue(flagUsername)
	}
	ti.Focus()
	ti.CharLimit = 256
	return model{ctx: ctx, client: client, phase: phaseLogin, input: ti}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := msg.Height - 4
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshFeed()
		return m, nil

	case disconnectedMsg:
		m.disconnected = true
		m.status = "connection lost"
		return m, nil

	case feedUpdatedMsg:
		m.refreshFeed()
		return m, nil

	case loginDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.phase = phaseChat
		m.status = ""
		m.input.Reset()
		m.input.Placeholder = "message #" + m.client.Session.Channel()
		m.refreshFeed()
		return m, nil

	case switchDoneMsg, sendDoneMsg:
		m.busy = false
		if err := doneErr(msg); err != nil {
			m.status = err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func doneErr(msg tea.Msg) error {
	switch msg := msg.(type) {
	case switchDoneMsg:
		return msg.err
	case sendDoneMsg:
		return msg.err
	}
	return nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		if m.busy || m.disconnected {
			return m, nil
		}
		if m.phase == phaseLogin {
			name := strings.TrimSpace(m.input.Value())
			if name == "" {
				return m, nil
			}
			m.busy = true
			m.status = "logging in..."
			return m, func() tea.Msg {
				return loginDoneMsg{err: m.client.Login(m.ctx, name)}
			}
		}
		return m.submit()
	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil
	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.phase == phaseChat && !m.disconnected {
		// every edit refreshes the typing indicator on the other side
		if err := m.client.Composer.Update(m.ctx, m.input.Value()); err != nil {
			m.status = err.Error()
		}
	}
	return m, cmd
}

// submit handles Enter in the chat phase: slash commands or a plain message.
func (m model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	trimmed := strings.TrimSpace(text)

	switch {
	case trimmed == "/quit":
		return m, tea.Quit

	case strings.HasPrefix(trimmed, "/join "):
		channel := strings.TrimSpace(strings.TrimPrefix(trimmed, "/join "))
		channel = strings.TrimPrefix(channel, "#")
		if channel == "" {
			return m, nil
		}
		m.input.Reset()
		_ = m.client.Composer.Update(m.ctx, "")
		m.input.Placeholder = "message #" + channel
		m.busy = true
		return m, func() tea.Msg {
			return switchDoneMsg{err: m.client.SwitchChannel(m.ctx, channel)}
		}

	case strings.HasPrefix(trimmed, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, "/send "))
		if path == "" {
			return m, nil
		}
		m.input.Reset()
		_ = m.client.Composer.Update(m.ctx, "")
		m.busy = true
		m.status = "uploading " + path + "..."
		return m, func() tea.Msg {
			f, err := os.Open(path)
			if err != nil {
				return sendDoneMsg{err: err}
			}
			defer f.Close()
			return sendDoneMsg{err: m.client.Uploader.SendFile(m.ctx, path, f)}
		}

	default:
		if trimmed == "" {
			return m, nil
		}
		err := m.client.Composer.Send(m.ctx)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = ""
		m.input.Reset()
		return m, nil
	}
}

func (m *model) refreshFeed() {
	if !m.ready || m.phase != phaseChat {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) renderMessages() string {
	msgs := m.client.Feed.Messages()
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(renderMessage(msg, m.width))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderMessage(msg chat.Message, width int) string {
	ts := tsStyle.Render(msg.TS.Local().Format("15:04"))
	if msg.Username == chat.SystemUser {
		return ts + " " + systemStyle.Render(msg.Text)
	}
	body := msg.Text
	switch msg.Kind {
	case chat.KindImage:
		body = attachStyle.Render("[image] "+msg.Filename) + " " + msg.Text
	case chat.KindFile:
		body = attachStyle.Render("[file] "+msg.Filename) + " " + msg.Text
	}
	line := ts + " " + usernameStyle.Render(msg.Username) + " " + body
	if width > 0 {
		return lipgloss.NewStyle().Width(width).Render(line)
	}
	return line
}

func (m model) View() string {
	if m.phase == phaseLogin {
		var b strings.Builder
		b.WriteString(headerStyle.Render("minichat"))
		b.WriteString("\n\nPick a username to join:\n\n")
		b.WriteString(m.input.View())
		if m.status != "" {
			b.WriteString("\n\n" + errStyle.Render(m.status))
		}
		return b.String()
	}
	if !m.ready {
		return "loading..."
	}

	header := headerStyle.Render(fmt.Sprintf("#%s", m.client.Session.Channel())) +
		tsStyle.Render("  ("+m.client.Session.Username()+")  /join <channel>  /send <file>  /quit")

	typingLine := ""
	if users := m.client.Feed.TypingUsers(m.client.Session.Channel()); len(users) > 0 {
		typingLine = typingStyle.Render(strings.Join(users, ", ") + " typing...")
	}
	if m.status != "" {
		typingLine = errStyle.Render(m.status)
	}
	if m.disconnected {
		typingLine = errStyle.Render("connection lost; restart to rejoin")
	}

	return header + "\n" + m.viewport.View() + "\n" + typingLine + "\n" + m.input.View()
}
