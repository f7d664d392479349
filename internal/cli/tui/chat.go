package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/model/chat"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

// UI configuration constants
const (
	defaultWidth         = 100
	defaultHeight        = 40
	inputCharLimit       = 2000
	inputHeightReserved  = 3
	statusHeightReserved = 3
	minContentHeight     = 8
	maxNotices           = 3
	languageTimeout      = 30 * time.Second
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

const helpText = "Enter send • ^P play/stop last • ^S stop • /help commands • Esc quit"

const commandHelp = `/play [n]      toggle voice of reply n (default: last)
/stop          stop playback
/summary [n]   expand or collapse the summary of reply n
/ref n i       expand or collapse reference i of reply n
/video PATH    attach a video to the next message
/clear         drop the attached video
/lang NAME     reply language (English, Hindi)
/quit          leave the chat`

// Session is the part of the chat session the screen drives.
type Session interface {
	Snapshot() chat.Snapshot
	Subscribe(l session.Listener) (unsubscribe func())
	Submit(text string, att *exchange.Attachment) (<-chan error, error)
	TogglePlayback(messageID int64) error
	StopPlayback()
	ToggleSummary(messageID int64) error
	ToggleReference(messageID int64, index int) error
	SetInput(text string)
	StageAttachment(att *exchange.Attachment) error
	ClearAttachment()
	SetLanguage(ctx context.Context, language exchange.Language) error
}

// ChatProgram encapsulates the chat TUI program
type ChatProgram struct {
	sess  Session
	model chatModel
	unsub func()
}

// NewChatProgram subscribes to sess and prepares the screen.
func NewChatProgram(sess Session) *ChatProgram {
	// 会话监听器在会话锁内调用，只做非阻塞投递
	dirty := make(chan struct{}, 1)
	notices := make(chan apperr.Notice, 8)
	unsub := sess.Subscribe(func(ev session.Event) {
		select {
		case dirty <- struct{}{}:
		default:
		}
		if ev.Notice != nil {
			select {
			case notices <- *ev.Notice:
			default:
			}
		}
	})
	return &ChatProgram{
		sess:  sess,
		model: newChatModel(sess, dirty, notices),
		unsub: unsub,
	}
}

// Run starts the chat TUI program
func (p *ChatProgram) Run() error {
	defer p.unsub()
	program := tea.NewProgram(p.model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type chatModel struct {
	sess    Session
	dirty   <-chan struct{}
	noticeC <-chan apperr.Notice

	input   textinput.Model
	content viewport.Model

	snap     chat.Snapshot
	notices  []apperr.Notice
	showHelp bool

	width  int
	height int
}

func newChatModel(sess Session, dirty <-chan struct{}, notices <-chan apperr.Notice) chatModel {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Width = defaultWidth - 3
	input.Prompt = ""

	m := chatModel{
		sess:    sess,
		dirty:   dirty,
		noticeC: notices,
		input:   input,
		content: viewport.New(defaultWidth, defaultHeight-inputHeightReserved-statusHeightReserved),
		snap:    sess.Snapshot(),
		width:   defaultWidth,
		height:  defaultHeight,
	}
	m.refreshContent()
	return m
}

// Message type definitions
type (
	sessionChangedMsg struct{}
	noticeMsg         struct{ notice apperr.Notice }
	languageMsg       struct{ err error }
)

func waitForEvent(dirty <-chan struct{}, notices <-chan apperr.Notice) tea.Cmd {
	return func() tea.Msg {
		// 通知优先，避免被状态刷新吞掉
		select {
		case n := <-notices:
			return noticeMsg{notice: n}
		default:
		}
		select {
		case n := <-notices:
			return noticeMsg{notice: n}
		case <-dirty:
			return sessionChangedMsg{}
		}
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.dirty, m.noticeC))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.sess.StopPlayback()
			return m, tea.Quit
		case tea.KeyEnter:
			cmd, quit := m.handleEnter()
			if quit {
				m.sess.StopPlayback()
				return m, tea.Quit
			}
			cmds = append(cmds, cmd)
		case tea.KeyCtrlP:
			m.togglePlayback(nil)
		case tea.KeyCtrlS:
			m.sess.StopPlayback()
		case tea.KeyUp:
			m.content.LineUp(1)
		case tea.KeyDown:
			m.content.LineDown(1)
		case tea.KeyPgUp:
			m.content.ViewUp()
		case tea.KeyPgDown:
			m.content.ViewDown()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := msg.Height - inputHeightReserved - statusHeightReserved - len(m.notices)
		if h < minContentHeight {
			h = minContentHeight
		}
		m.content.Width = msg.Width
		m.content.Height = h
		m.input.Width = msg.Width - 3

	case sessionChangedMsg:
		m.snap = m.sess.Snapshot()
		cmds = append(cmds, waitForEvent(m.dirty, m.noticeC))

	case noticeMsg:
		m.pushNotice(msg.notice)
		m.snap = m.sess.Snapshot()
		cmds = append(cmds, waitForEvent(m.dirty, m.noticeC))

	case languageMsg:
		// 成功或网关失败时会话自己发通知
		if errors.Is(msg.err, apperr.ErrUpdateInFlight) || errors.Is(msg.err, session.ErrSessionClosed) {
			m.pushNotice(apperr.NoticeFor(msg.err))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.refreshContent()
	return m, tea.Batch(cmds...)
}

func (m *chatModel) handleEnter() (tea.Cmd, bool) {
	line := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(line, "/") {
		m.input.Reset()
		return m.runCommand(parseCommand(line))
	}

	if _, err := m.sess.Submit(line, nil); err != nil {
		m.pushNotice(apperr.NoticeFor(err))
		return nil, false
	}
	m.input.Reset()
	m.snap = m.sess.Snapshot()
	return nil, false
}

type command struct {
	name string
	args []string
}

func parseCommand(line string) command {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return command{}
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}
}

func (m *chatModel) runCommand(c command) (tea.Cmd, bool) {
	m.showHelp = false
	switch c.name {
	case "quit", "exit", "q":
		return nil, true
	case "help", "?":
		m.showHelp = true
	case "stop":
		m.sess.StopPlayback()
	case "play":
		m.togglePlayback(c.args)
	case "summary":
		id, err := replyArg(m.snap, c.args, false)
		if err == nil {
			err = m.sess.ToggleSummary(id)
		}
		m.noticeErr(err)
	case "ref":
		if len(c.args) != 2 {
			m.pushNotice(usageNotice("/ref n i"))
			break
		}
		id, err := replyArg(m.snap, c.args[:1], false)
		if err == nil {
			var index int
			index, err = strconv.Atoi(c.args[1])
			if err != nil || index < 1 {
				m.pushNotice(usageNotice("/ref n i"))
				break
			}
			err = m.sess.ToggleReference(id, index-1)
		}
		m.noticeErr(err)
	case "video":
		if len(c.args) == 0 {
			m.pushNotice(usageNotice("/video PATH"))
			break
		}
		att, err := LoadVideo(strings.Join(c.args, " "))
		if err == nil {
			err = m.sess.StageAttachment(att)
		}
		m.noticeErr(err)
	case "clear":
		m.sess.ClearAttachment()
	case "lang", "language":
		if len(c.args) == 0 {
			m.pushNotice(usageNotice("/lang English|Hindi"))
			break
		}
		lang, err := exchange.ParseLanguage(c.args[0])
		if err != nil {
			m.noticeErr(err)
			break
		}
		sess := m.sess
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), languageTimeout)
			defer cancel()
			return languageMsg{err: sess.SetLanguage(ctx, lang)}
		}, false
	default:
		m.pushNotice(apperr.Notice{Level: apperr.LevelError, Title: "Unknown command", Description: "/" + c.name + " (try /help)"})
	}
	return nil, false
}

func (m *chatModel) togglePlayback(args []string) {
	id, err := replyArg(m.snap, args, true)
	if err == nil {
		err = m.sess.TogglePlayback(id)
	}
	m.noticeErr(err)
}

// replyArg resolves the 1-based reply number in args, or the latest reply.
func replyArg(snap chat.Snapshot, args []string, needAudio bool) (int64, error) {
	var replies []chat.MessageView
	for _, msg := range snap.Messages {
		if msg.Author == chat.AuthorPersona && (!needAudio || msg.HasAudio) {
			replies = append(replies, msg)
		}
	}
	if len(replies) == 0 {
		return 0, session.ErrMessageNotFound
	}
	if len(args) == 0 {
		return replies[len(replies)-1].ID, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(replies) {
		return 0, fmt.Errorf("reply %q: %w", args[0], session.ErrMessageNotFound)
	}
	return replies[n-1].ID, nil
}

func usageNotice(usage string) apperr.Notice {
	return apperr.Notice{Level: apperr.LevelError, Title: "Usage", Description: usage}
}

func (m *chatModel) noticeErr(err error) {
	if err != nil {
		m.pushNotice(apperr.NoticeFor(err))
	}
}

func (m *chatModel) pushNotice(n apperr.Notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *chatModel) refreshContent() {
	display := renderTranscript(m.snap)
	if m.showHelp {
		display += "\n" + dimStyle.Render(commandHelp) + "\n"
	}
	m.content.SetContent(wrapText(display, m.width))
	m.content.GotoBottom()
}

// renderTranscript renders the messages of a snapshot, numbering persona replies.
func renderTranscript(snap chat.Snapshot) string {
	if len(snap.Messages) == 0 {
		return dimStyle.Render(snap.EmptyHint) + "\n"
	}

	var b strings.Builder
	reply := 0
	for _, msg := range snap.Messages {
		b.WriteString("\n")
		if msg.Author == chat.AuthorUser {
			b.WriteString(boldStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Text)
			b.WriteString("\n")
			continue
		}

		reply++
		header := accentStyle.Render(fmt.Sprintf("%s #%d", snap.PersonaName, reply))
		if msg.HasAudio {
			header += " " + dimStyle.Render("["+msg.PlayLabel+"]")
		}
		if msg.Playing {
			header += " " + accentStyle.Render("♪")
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(msg.Text)
		b.WriteString("\n")

		if msg.AttachedVideoURL != "" {
			b.WriteString(dimStyle.Render("video: " + msg.AttachedVideoURL))
			b.WriteString("\n")
		}
		if len(msg.SummaryBullets) > 0 {
			if msg.SummaryExpanded {
				b.WriteString(boldStyle.Render("Summary"))
				b.WriteString("\n")
				for _, bullet := range msg.SummaryBullets {
					b.WriteString("  • " + bullet + "\n")
				}
			} else {
				b.WriteString(dimStyle.Render(fmt.Sprintf("Summary: %d points (/summary %d)", len(msg.SummaryBullets), reply)))
				b.WriteString("\n")
			}
		}
		for _, embed := range msg.Embeds {
			line := fmt.Sprintf("↗ [%d] %s", embed.Index+1, embed.SourceURL)
			if embed.Expanded {
				line += "\n    " + embed.EmbedURL
			}
			b.WriteString(dimStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// wrapText applies auto-wrapping to text, correctly handling wide character widths
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 10 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, maxWidth)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, maxWidth int) string {
	if runewidth.StringWidth(line) <= maxWidth {
		return line
	}

	var result, current strings.Builder
	width := 0
	for _, r := range line {
		w := runewidth.RuneWidth(r)
		if width+w > maxWidth && width > 0 {
			result.WriteString(current.String())
			result.WriteString("\n")
			current.Reset()
			width = 0
		}
		current.WriteRune(r)
		width += w
	}
	result.WriteString(current.String())
	return result.String()
}

func (m chatModel) statusLine() string {
	parts := []string{accentStyle.Render(m.snap.PersonaName)}
	if m.snap.Language != "" {
		parts = append(parts, m.snap.Language)
	}
	if m.snap.Pending {
		parts = append(parts, "Thinking...")
	}
	if m.snap.Playing {
		parts = append(parts, "Playing...")
	}
	if m.snap.StagedAttachment != "" {
		parts = append(parts, "video: "+m.snap.StagedAttachment)
	}
	return dimStyle.Render(strings.Join(parts, " • "))
}

func (m chatModel) View() string {
	var noticeLines []string
	for _, n := range m.notices {
		text := n.Title
		if n.Description != "" {
			text += ": " + n.Description
		}
		if n.Level == apperr.LevelError {
			noticeLines = append(noticeLines, errorStyle.Render("✗ "+text))
		} else {
			noticeLines = append(noticeLines, infoStyle.Render("✓ "+text))
		}
	}

	var inputView string
	if m.snap.Pending {
		inputView = dimStyle.Render("> waiting for the reply...")
	} else {
		inputView = promptStyle.Render("> ") + m.input.View()
	}

	parts := []string{m.statusLine(), "", m.content.View()}
	parts = append(parts, noticeLines...)
	parts = append(parts, "", inputView, dimStyle.Render(helpText))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
