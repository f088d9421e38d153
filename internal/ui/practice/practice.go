// Package practice is a terminal screen where a learner writes sentences
// with a vocabulary word and watches the evaluation arrive field by field.
package practice

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/lexiz/internal/client"
	"github.com/abhisek/lexiz/internal/reconstruct"
	"github.com/abhisek/lexiz/internal/ui/components"
	"github.com/abhisek/lexiz/internal/ui/layout"
	"github.com/abhisek/lexiz/internal/ui/theme"
	"github.com/abhisek/lexiz/internal/wire"
)

// Word is the vocabulary entry being practised.
type Word struct {
	Word     string
	Meaning  string
	Task     string
	Language string
}

type phase int

const (
	phaseWriting phase = iota
	phaseEvaluating
	phaseResult
)

// updateMsg carries one reconstructed update from the stream.
type updateMsg struct {
	src    <-chan tea.Msg
	update reconstruct.Update
}

// doneMsg is sent once the stream has ended.
type doneMsg struct {
	src <-chan tea.Msg
	err error
}

// canceledMessage is shown when the learner stops an evaluation.
const canceledMessage = "Evaluation canceled."

// Model is the root Bubble Tea model of the practice screen.
type Model struct {
	evaluator client.Evaluator
	word      Word
	ctx       context.Context
	cancel    context.CancelFunc

	input   components.TextInput
	phase   phase
	current reconstruct.Accumulator
	updates <-chan tea.Msg
	err     error
	rounds  int
	total   float64

	width  int
	height int
}

// New creates the practice model. ctx bounds every evaluation.
func New(ctx context.Context, evaluator client.Evaluator, word Word) Model {
	return Model{
		evaluator: evaluator,
		word:      word,
		ctx:       ctx,
		input:     components.NewTextInput(fmt.Sprintf("Write a sentence using %q...", word.Word), 280),
	}
}

func (m Model) Init() tea.Cmd {
	return m.input.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case updateMsg:
		if msg.src != m.updates {
			return m, nil
		}
		m.current = msg.update.Item
		return m, waitFor(m.updates)

	case doneMsg:
		if msg.src != m.updates {
			return m, nil
		}
		return m.finish(msg.err), nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.stop()
			return m, tea.Quit
		case "esc":
			if m.phase == phaseEvaluating {
				m.current.IsLoading = false
				if m.current.ErrorMessage == "" {
					m.current.ErrorMessage = canceledMessage
				}
				return m.finish(nil), nil
			}
			return m, tea.Quit
		case "enter":
			switch m.phase {
			case phaseWriting:
				return m.submit()
			case phaseResult:
				m.phase = phaseWriting
				m.input.Reset()
				return m, m.input.Init()
			}
			return m, nil
		}
	}

	if m.phase != phaseWriting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	sentence := m.input.Value()
	if sentence == "" {
		return m, nil
	}

	item := wire.Item{
		Kind:     wire.KindEvaluate,
		Word:     m.word.Word,
		Meaning:  m.word.Meaning,
		Task:     m.word.Task,
		Language: m.word.Language,
		Sentence: sentence,
	}

	ctx, cancel := context.WithCancel(m.ctx)
	ch := make(chan tea.Msg, 64)
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}
	go func() {
		defer close(ch)
		_, err := m.evaluator.Evaluate(ctx, []wire.Item{item}, func(u reconstruct.Update) {
			send(updateMsg{src: ch, update: u})
		})
		send(doneMsg{src: ch, err: err})
	}()

	m.phase = phaseEvaluating
	m.cancel = cancel
	m.updates = ch
	m.current = reconstruct.Accumulator{IsLoading: true}
	m.err = nil
	return m, waitFor(ch)
}

func (m Model) finish(err error) Model {
	m.stop()
	m.phase = phaseResult
	m.updates = nil
	if err != nil && !m.current.Failed() {
		m.err = err
	}
	if m.current.Score != nil && !m.current.Failed() {
		m.rounds++
		m.total += *m.current.Score
	}
	return m
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// waitFor delivers the next message from ch, or nothing once it is closed.
func waitFor(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) keyHints() []layout.KeyHint {
	switch m.phase {
	case phaseEvaluating:
		return []layout.KeyHint{{Key: "Esc", Description: "Cancel"}}
	case phaseResult:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Next sentence"},
			{Key: "Esc", Description: "Quit"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Submit"},
		{Key: "Esc", Description: "Quit"},
	}
}

func (m Model) status() string {
	if m.rounds == 0 {
		return ""
	}
	return fmt.Sprintf("%d done  avg %.0f  ", m.rounds, m.total/float64(m.rounds))
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}
	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	header := layout.RenderHeader("Practice", m.status(), m.width)
	footer := layout.RenderFooter(m.keyHints(), m.width)
	v.SetContent(layout.RenderFrame(header, m.body(m.width-4), footer, m.width, m.height))
	return v
}

func (m Model) body(width int) string {
	var b strings.Builder

	b.WriteString("\n  " + theme.Title.Render(m.word.Word))
	if m.word.Meaning != "" {
		b.WriteString("  " + theme.Hint.Render(m.word.Meaning))
	}
	b.WriteString("\n")
	if m.word.Task != "" {
		b.WriteString("  " + theme.Body.Render(m.word.Task) + "\n")
	}
	b.WriteString("\n")

	if m.phase == phaseWriting {
		b.WriteString("  " + m.input.View() + "\n")
		return b.String()
	}

	b.WriteString("  " + theme.Hint.Render(m.input.Value()) + "\n\n")
	b.WriteString(renderResult(m.current, width))
	if m.err != nil {
		b.WriteString("\n  " + theme.Failure.Render(m.err.Error()) + "\n")
	}
	return b.String()
}

// renderResult draws whatever part of the evaluation has arrived.
func renderResult(a reconstruct.Accumulator, width int) string {
	wrap := lipgloss.NewStyle().Width(max(width-4, 20))
	var b strings.Builder

	if a.Score != nil {
		b.WriteString("  " + components.ScoreBar{Score: *a.Score, Width: min(width-4, 50)}.View() + "\n\n")
	} else if a.IsLoading {
		b.WriteString("  " + theme.Hint.Render("Evaluating...") + "\n\n")
	}

	section := func(label, text string) {
		if text == "" {
			return
		}
		b.WriteString("  " + theme.Label.Render(label) + "\n")
		for _, line := range strings.Split(wrap.Render(text), "\n") {
			b.WriteString("    " + theme.Body.Render(line) + "\n")
		}
	}
	section("Feedback", a.Feedback)
	section("Errors", a.Errors)
	section("Suggestions", a.Suggestions)
	section("Better", a.CorrectAnswer)

	if a.ErrorMessage != "" {
		b.WriteString("\n  " + theme.Failure.Render(a.ErrorMessage) + "\n")
	}
	return b.String()
}

// Run starts the practice program.
func Run(ctx context.Context, evaluator client.Evaluator, word Word) error {
	_, err := tea.NewProgram(New(ctx, evaluator, word), tea.WithContext(ctx)).Run()
	return err
}
