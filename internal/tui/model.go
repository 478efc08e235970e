package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"librarian/internal/domain"
	"librarian/internal/service"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
	IngestFiles(ctx context.Context, patterns []string, supported func(string) bool) service.IngestReport
}

const addCommand = "/add "

type exchange struct {
	question string
	answer   domain.Answer
	err      error
	pending  bool
}

type answerMsg struct {
	idx    int
	answer domain.Answer
	err    error
}

type ingestMsg struct {
	report service.IngestReport
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx       context.Context
	service   RAGPort
	supported func(string) bool
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	history   []exchange
	documents []string
	status    string
	busy      bool
	ready     bool
}

// New creates a chat model. documents lists what was ingested before the UI started.
func New(ctx context.Context, svc RAGPort, supported func(string) bool, documents []string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents, or /add FILE..."
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:       ctx,
		service:   svc,
		supported: supported,
		input:     ti,
		viewport:  vp,
		spinner:   sp,
		documents: append([]string(nil), documents...),
		status:    "Ready. Type a question and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and completion events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + documents
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case answerMsg:
		if msg.idx >= 0 && msg.idx < len(m.history) {
			m.history[msg.idx] = exchange{question: m.history[msg.idx].question, answer: msg.answer, err: msg.err}
		}
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Ready."
		}
		m.refresh()
		return m, nil

	case ingestMsg:
		m.busy = false
		return m.WithIngestReport(msg.report), nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	m.busy = true

	if rest, ok := strings.CutPrefix(text+" ", addCommand); ok {
		patterns := strings.Fields(rest)
		if len(patterns) == 0 {
			m.busy = false
			m.status = "Usage: /add FILE..."
			return m, nil
		}
		m.status = "Ingesting " + strings.Join(patterns, ", ")
		svc, ctx, supported := m.service, m.ctx, m.supported
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			return ingestMsg{report: svc.IngestFiles(ctx, patterns, supported)}
		})
	}

	idx := len(m.history)
	m.history = append(m.history, exchange{question: text, pending: true})
	m.status = "Thinking..."
	m.refresh()
	svc, ctx := m.service, m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		answer, err := svc.Answer(ctx, text)
		return answerMsg{idx: idx, answer: answer, err: err}
	})
}

// WithIngestReport records the documents of report and summarises it,
// failures included, in the status line.
func (m Model) WithIngestReport(report service.IngestReport) Model {
	m.documents = append([]string(nil), m.documents...)
	for _, r := range report.Succeeded {
		m.addDocument(r.DocumentID)
	}
	m.status = fmt.Sprintf("Added %d chunks from %d file(s)", report.TotalChunks(), len(report.Succeeded))
	if n := len(report.Failed); n > 0 {
		f := report.Failed[0]
		m.status += fmt.Sprintf("; %d failed (%s: %v)", n, f.Path, f.Err)
	}
	return m
}

func (m *Model) addDocument(id string) {
	for _, d := range m.documents {
		if d == id {
			return
		}
	}
	m.documents = append(m.documents, id)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Librarian")
	docs := "No documents yet. Use /add FILE to ingest one."
	if len(m.documents) > 0 {
		docs = "Documents: " + strings.Join(m.documents, ", ")
	}
	docs = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(docs)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + docs + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + ex.question))
		b.WriteString("\n")
		switch {
		case ex.pending:
			b.WriteString(mutedStyle.Render("thinking..."))
		case ex.err != nil:
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
		default:
			b.WriteString(highlightBestSentence(ex.answer.Text, ex.question))
			if len(ex.answer.Sources) > 0 {
				b.WriteString("\n")
				b.WriteString(mutedStyle.Render("Sources: " + strings.Join(ex.answer.Sources, ", ")))
			}
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceEndRe      = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
)

// highlightBestSentence emphasises the answer sentence sharing the most
// words with the question. Everything else is copied through unchanged.
func highlightBestSentence(text, query string) string {
	best, ok := bestSentence(text, query)
	if !ok {
		return text
	}
	return text[:best.start] + highlightStyle.Render(text[best.start:best.end]) + text[best.end:]
}

// span is a sentence as byte offsets into the text, surrounding whitespace excluded.
type span struct{ start, end int }

// sentenceSpans splits text at terminal punctuation followed by whitespace or
// the end of the text, so "3.5" stays whole. A trailing clause without
// punctuation is a sentence of its own.
func sentenceSpans(text string) []span {
	var spans []span
	add := func(a, b int) {
		seg := text[a:b]
		a += len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
		b -= len(seg) - len(strings.TrimRightFunc(seg, unicode.IsSpace))
		if a < b {
			spans = append(spans, span{a, b})
		}
	}
	start := 0
	for _, m := range sentenceEndRe.FindAllStringIndex(text, -1) {
		add(start, m[1])
		start = m[1]
	}
	add(start, len(text))
	return spans
}

func bestSentence(text, query string) (span, bool) {
	spans := sentenceSpans(text)
	if len(spans) < 2 {
		return span{}, false
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return span{}, false
	}
	bestIdx := -1
	bestScore := 0
	for i, sp := range spans {
		if score := tokenOverlapScore(qTokens, text[sp.start:sp.end]); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return span{}, false
	}
	return spans[bestIdx], true
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
