package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

const (
	msgBuilding    = "Building index… (this happens once per file)"
	msgReady       = "Ready! Ask a question about the document."
	msgNoAnswer    = "(no answer)"
	msgBusy        = "An index build is already in progress. Please wait."
	msgPdfOnly     = "Only .pdf files can be loaded."
	defaultHeading = "PDF Chat"
)

// ChatPort is the TUI-facing subset of the session controller.
type ChatPort interface {
	Upload(path string) (string, error)
	Ask(query string) (string, error)
	Events() <-chan session.Event
}

type lineKind int

const (
	lineUser lineKind = iota
	lineBot
	lineInfo
)

type line struct {
	kind lineKind
	text string
}

type mode int

const (
	modeChat mode = iota
	modePicker
)

// Options configures the initial screen.
type Options struct {
	// Preload is uploaded as soon as the model is created.
	Preload string
	// Notices are shown as Info lines before anything else.
	Notices     []string
	ShowSources bool
	StartDir    string
}

// Model is the Bubble Tea model for the chat form.
type Model struct {
	port     ChatPort
	input    textinput.Model
	viewport viewport.Model
	picker   filepicker.Model
	spinner  spinner.Model
	progress progress.Model

	lines       []line
	mode        mode
	docName     string
	summary     string
	status      string
	indexing    bool
	done, total int
	pending     int
	showSources bool
	ready       bool
	width       int
}

// New creates a new TUI model instance.
func New(port ChatPort, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (ctrl+o to open a PDF)"
	ti.Focus()
	ti.CharLimit = 0

	fp := filepicker.New()
	fp.AllowedTypes = []string{".pdf"}
	fp.AutoHeight = false
	fp.Height = 10
	if opts.StartDir != "" {
		fp.CurrentDirectory = opts.StartDir
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	m := Model{
		port:        port,
		input:       ti,
		viewport:    viewport.New(0, 0),
		picker:      fp,
		spinner:     sp,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		showSources: opts.ShowSources,
		status:      "ctrl+o open PDF · enter send · pgup/pgdn scroll · ctrl+c quit",
	}
	for _, n := range opts.Notices {
		m.appendLine(lineInfo, n)
	}
	if opts.Preload != "" {
		m.startUpload(opts.Preload)
	}
	return m
}

// Init starts the cursor blink, the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.port.Events()))
}

type eventMsg struct{ event session.Event }

type eventsClosedMsg struct{}

// waitForEvent blocks on the next session event. It is re-armed after each
// delivered event.
func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update handles key, window and session events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, bh := boxStyle.GetFrameSize()
		// header + summary + input box + status
		reserved := 2 + (1 + bh) + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.picker.Height = max(3, m.viewport.Height-2)
		m.progress.Width = max(10, min(40, msg.Width-30))
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.handleEvent(msg.event)
		return m, waitForEvent(m.port.Events())

	case eventsClosedMsg:
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.mode == modePicker {
			return m.updatePicker(msg)
		}
		switch msg.String() {
		case "ctrl+o":
			m.mode = modePicker
			return m, m.picker.Init()
		case "enter":
			m.submit()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// Directory listings arrive asynchronously and must reach the picker
	// whichever mode is active.
	var cmds []tea.Cmd
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.mode == modeChat {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.mode = modeChat
		return m, nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.mode = modeChat
		m.startUpload(path)
		return m, cmd
	}
	if ok, _ := m.picker.DidSelectDisabledFile(msg); ok {
		m.status = msgPdfOnly
	}
	return m, cmd
}

func (m *Model) submit() {
	q := strings.TrimSpace(m.input.Value())
	if q == "" {
		return
	}
	m.input.Reset()
	m.appendLine(lineUser, q)

	if _, err := m.port.Ask(q); err != nil {
		var notReady *domain.NotReadyError
		if errors.As(err, &notReady) {
			m.appendLine(lineBot, notReady.Message)
			return
		}
		m.appendLine(lineBot, "Error: "+err.Error())
		return
	}
	m.pending++
}

func (m *Model) startUpload(path string) {
	if _, err := m.port.Upload(path); err != nil {
		if errors.Is(err, domain.ErrUploadInProgress) {
			m.appendLine(lineInfo, msgBusy)
			return
		}
		m.appendLine(lineInfo, "Failed to build index: "+err.Error())
		return
	}
	m.docName = filepath.Base(path)
	m.summary = ""
	m.indexing = true
	m.done, m.total = 0, 0
	m.appendLine(lineInfo, "Loaded file: "+m.docName)
	m.appendLine(lineInfo, msgBuilding)
}

func (m *Model) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventIndexProgress:
		m.done, m.total = ev.Done, ev.Total
		return
	case session.EventIndexReady:
		m.indexing = false
		m.summary = ev.Summary
		m.docName = filepath.Base(ev.Path)
		m.appendLine(lineInfo, msgReady)
	case session.EventIndexFailed:
		m.indexing = false
		m.appendLine(lineInfo, "Failed to build index: "+errText(ev.Err))
	case session.EventAnswer:
		m.pending = max(0, m.pending-1)
		answer := strings.TrimSpace(ev.Result.Answer)
		if answer == "" {
			answer = msgNoAnswer
		}
		m.appendLine(lineBot, answer)
		if m.showSources && len(ev.Result.Sources) > 0 {
			top := ev.Result.Sources[0]
			m.appendLine(lineInfo, fmt.Sprintf("Source (score %.3f): %s",
				top.Score, highlightBestSentence(top.Chunk.Text, ev.Result.StandaloneQuestion)))
		}
	case session.EventAnswerFailed:
		m.pending = max(0, m.pending-1)
		m.appendLine(lineBot, "Error: "+errText(ev.Err))
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (m *Model) appendLine(kind lineKind, text string) {
	m.lines = append(m.lines, line{kind: kind, text: text})
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the form: header, summary, transcript or picker, input and status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := defaultHeading
	if m.docName != "" {
		title += " · " + m.docName
	}
	header := headerStyle.Render(title)
	summary := summaryStyle.Render(truncate(m.summary, max(10, m.width-2)))

	var body string
	if m.mode == modePicker {
		body = boxStyle.Render("Select a PDF (esc to cancel)\n\n" + m.picker.View())
	} else {
		body = boxStyle.Render(m.viewport.View())
	}
	input := boxStyle.Render(m.input.View())
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + m.statusLine()
}

func (m Model) statusLine() string {
	switch {
	case m.indexing && m.total > 0:
		pct := float64(m.done) / float64(m.total)
		return m.spinner.View() + " Embedding chunks " + m.progress.ViewAs(pct) +
			fmt.Sprintf(" %d/%d", m.done, m.total)
	case m.indexing:
		return m.spinner.View() + " Reading document…"
	case m.pending > 0:
		return m.spinner.View() + " Thinking…"
	default:
		return statusStyle.Render(m.status)
	}
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return summaryStyle.Render("Open a PDF with ctrl+o, then ask questions about it.")
	}
	width := max(10, m.viewport.Width)
	out := make([]string, len(m.lines))
	for i, l := range m.lines {
		var prefix, text lipgloss.Style
		var label string
		switch l.kind {
		case lineUser:
			label, prefix, text = "You: ", userPrefixStyle, userTextStyle
		case lineBot:
			label, prefix, text = "Bot: ", botPrefixStyle, botTextStyle
		default:
			label, prefix, text = "Info: ", infoPrefixStyle, infoTextStyle
		}
		out[i] = lipgloss.NewStyle().Width(width).Render(prefix.Render(label) + text.Render(l.text))
	}
	return strings.Join(out, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
