// Package tui is a local chat console for the bot. It talks to the
// conversation in-process as a single participant, which is handy for
// trying the registration flow and the feedback pipeline without a chat
// network.
//
// The flow follows bubbletea's Elm architecture: key events update the
// model, a send becomes a tea.Cmd that calls the conversation, and the
// reply comes back as a replyMsg.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tbourn/go-feedback-bot/internal/services"
)

// Conversation is the service the console talks to.
type Conversation interface {
	HandleInboundText(ctx context.Context, identifier, text string) (services.Reply, error)
}

type speaker int

const (
	fromUser speaker = iota
	fromBot
	fromSystem
)

type line struct {
	who  speaker
	text string
}

type replyMsg struct {
	reply services.Reply
	err   error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Italic(true)
	optionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the console state.
type Model struct {
	conv       Conversation
	identifier string
	ctx        context.Context

	input    textinput.Model
	viewport viewport.Model
	history  []line
	options  []string
	pending  bool
	ready    bool
}

// New returns a console chatting as identifier. startCommand is pre-filled
// in the input so the first Enter begins registration.
func New(ctx context.Context, conv Conversation, identifier, startCommand string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message (Enter to send, Ctrl+C to exit)"
	ti.CharLimit = 4096
	ti.SetValue(startCommand)
	ti.Focus()

	return Model{
		conv:       conv,
		identifier: identifier,
		ctx:        ctx,
		input:      ti,
		viewport:   viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.pending {
				return m, nil
			}
			text := m.resolveInput(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.history = append(m.history, line{who: fromUser, text: text})
			m.options = nil
			m.pending = true
			m.refresh()
			return m, m.send(text)
		}

	case tea.WindowSizeMsg:
		const header, footer = 2, 4
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-header-footer)
		m.input.Width = max(10, msg.Width-4)
		m.ready = true
		m.refresh()

	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.history = append(m.history, line{who: fromSystem, text: services.ErrorReplyText + " (" + msg.err.Error() + ")"})
		} else {
			m.history = append(m.history, line{who: fromBot, text: msg.reply.Text})
			m.options = msg.reply.Options
		}
		m.refresh()
	}

	m.input, tiCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// resolveInput maps "2" to the second offered option; anything else is sent
// as typed.
func (m Model) resolveInput(raw string) string {
	text := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(m.options) {
		return m.options[n-1]
	}
	return text
}

func (m Model) send(text string) tea.Cmd {
	conv, ctx, id := m.conv, m.ctx, m.identifier
	return func() tea.Msg {
		reply, err := conv.HandleInboundText(ctx, id, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for _, l := range m.history {
		switch l.who {
		case fromUser:
			b.WriteString(userStyle.Render("you › " + l.text))
		case fromBot:
			b.WriteString(botStyle.Render("bot › " + l.text))
		default:
			b.WriteString(systemStyle.Render(l.text))
		}
		b.WriteString("\n")
	}
	for i, opt := range m.options {
		b.WriteString(optionStyle.Render(fmt.Sprintf("  [%d] %s", i+1, opt)))
		b.WriteString("\n")
	}
	return b.String()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	status := "Enter to send · Esc to quit"
	if m.pending {
		status = "waiting for reply..."
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n%s",
		titleStyle.Render("Feedback bot · participant "+m.identifier),
		m.viewport.View(),
		m.input.View(),
		hintStyle.Render(status),
	)
}

// Run starts the console on the terminal and blocks until the user quits.
func Run(ctx context.Context, conv Conversation, identifier, startCommand string) error {
	p := tea.NewProgram(New(ctx, conv, identifier, startCommand), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
