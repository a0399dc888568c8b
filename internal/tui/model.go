package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"complaintrag/internal/domain"
	"complaintrag/internal/service"
	"complaintrag/internal/summarizer"
)

// Pipeline is the TUI-facing subset of the RAG pipeline.
type Pipeline interface {
	Run(ctx context.Context, question string) (service.Result, error)
	Answer(ctx context.Context, question string, excerpts []string) (string, error)
}

// Digester picks key sentences out of the shown excerpts.
type Digester interface {
	Digest(excerpts []string, maxSentences int) []summarizer.KeySentence
}

type entry struct {
	result service.Result
	err    error
}

// generationOnly reports whether a retry can reuse the evidence: the last
// run failed in generation with a retryable error after retrieval succeeded.
func (e entry) generationOnly() bool {
	var ge *domain.GenerationError
	return errors.As(e.err, &ge) && ge.Retryable() && len(e.result.Excerpts) > 0
}

type resultMsg struct {
	entry
	retry bool
}

// Model is the Bubble Tea model for the question/answer screen.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	pipeline Pipeline
	digester Digester
	examples []string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history []entry
	cursor  int
	busy    bool
	status  string
	ready   bool
}

// New creates the TUI model. examples are offered with tab completion when
// the input is empty.
func New(ctx context.Context, pipeline Pipeline, digester Digester, examples []string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about customer complaints and press Enter (tab for an example)"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		pipeline: pipeline,
		digester: digester,
		examples: examples,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Enter asks, ctrl+r retries, ctrl+l clears, pgup/pgdn browse history.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case resultMsg:
		m.busy = false
		m.cancel = nil
		if msg.retry && len(m.history) > 0 {
			m.history[len(m.history)-1] = msg.entry
		} else {
			m.history = append(m.history, msg.entry)
		}
		m.cursor = len(m.history) - 1
		m.status = statusFor(msg.entry)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy && m.cancel != nil {
				m.cancel()
				m.status = "Cancelling..."
			}
			return m, nil
		case tea.KeyCtrlL:
			if !m.busy {
				m.history = nil
				m.cursor = 0
				m.status = "History cleared."
				m.refresh()
			}
			return m, nil
		case tea.KeyCtrlR:
			if m.busy || len(m.history) == 0 {
				return m, nil
			}
			return m.start(m.history[len(m.history)-1], true)
		case tea.KeyPgUp:
			if m.cursor > 0 {
				m.cursor--
				m.refresh()
			}
			return m, nil
		case tea.KeyPgDown:
			if m.cursor < len(m.history)-1 {
				m.cursor++
				m.refresh()
			}
			return m, nil
		case tea.KeyTab:
			if m.input.Value() == "" && len(m.examples) > 0 {
				m.input.SetValue(m.examples[len(m.history)%len(m.examples)])
				m.input.CursorEnd()
				return m, nil
			}
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m.start(entry{result: service.Result{Question: q}}, false)
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// start launches a run (or a generation-only retry) in the background.
func (m Model) start(prev entry, retry bool) (Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.busy = true
	if retry && prev.generationOnly() {
		m.status = "Retrying generation with the same evidence..."
	} else {
		m.status = fmt.Sprintf("Thinking about %q...", prev.result.Question)
	}
	return m, tea.Batch(m.spinner.Tick, runCmd(ctx, cancel, m.pipeline, prev, retry))
}

func runCmd(ctx context.Context, cancel context.CancelFunc, p Pipeline, prev entry, retry bool) tea.Cmd {
	return func() tea.Msg {
		defer cancel()
		if retry && prev.generationOnly() {
			res := prev.result
			answer, err := p.Answer(ctx, res.Question, res.Excerpts)
			res.Answer = answer
			return resultMsg{entry: entry{result: res, err: err}, retry: true}
		}
		res, err := p.Run(ctx, prev.result.Question)
		return resultMsg{entry: entry{result: res, err: err}, retry: retry}
	}
}

func statusFor(e entry) string {
	switch {
	case e.err == nil:
		return fmt.Sprintf("Answered in %s.", e.result.Elapsed.Round(1e6))
	case domain.IsGenerationKind(e.err, domain.GenerationTransient):
		return "Generation failed temporarily; ctrl+r retries with the same evidence."
	case domain.IsGenerationKind(e.err, domain.GenerationUnavailable):
		return "Generation backend unavailable; check the model and credentials."
	case errors.Is(e.err, context.Canceled):
		return "Cancelled."
	default:
		return "Retrieval failed."
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("CrediTrust Complaint Analysis")
	if n := len(m.history); n > 0 {
		header += dimStyle.Render(fmt.Sprintf("  %d/%d", m.cursor+1, n))
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + resultBoxStyle.Render(m.viewport.View()) + "\n" + queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoTop()
}

func (m Model) render() string {
	if len(m.history) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	e := m.history[m.cursor]
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(labelStyle.Render("Question: "))
	b.WriteString(e.result.Question)
	b.WriteString("\n\n")
	if e.err != nil {
		b.WriteString(errorStyle.Render(wrap.Render("Error: " + e.err.Error())))
	} else {
		b.WriteString(labelStyle.Render("Answer"))
		b.WriteString("\n")
		b.WriteString(wrap.Render(e.result.Answer))
	}

	if len(e.result.Excerpts) > 0 {
		b.WriteString("\n\n")
		b.WriteString(labelStyle.Render("Source excerpts"))
		for i, ex := range e.result.Excerpts {
			rec := e.result.Sources[i].Record
			fmt.Fprintf(&b, "\n%s\n%s",
				dimStyle.Render(fmt.Sprintf("Source %d · complaint %s · %s", i+1, rec.ComplaintID, rec.Product)),
				wrap.Render(strings.Join(strings.Fields(ex), " ")))
		}
		if m.digester != nil {
			if keys := m.digester.Digest(e.result.Excerpts, 3); len(keys) > 0 {
				b.WriteString("\n\n")
				b.WriteString(labelStyle.Render("Key points"))
				for _, k := range keys {
					fmt.Fprintf(&b, "\n%s", wrap.Render(fmt.Sprintf("• %s [%d]", k.Text, k.Source+1)))
				}
			}
		}
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
