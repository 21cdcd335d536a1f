package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sentilytics/internal/alerts"
	"sentilytics/internal/core"
	"sentilytics/internal/render"
	"sentilytics/internal/screen"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Options wires the terminal front-end to a review screen and its alert queue.
type Options struct {
	Screen *screen.ReviewScreen
	Alerts *alerts.Queue
	// OutputDir receives CSV exports. Empty means the working directory.
	OutputDir string
}

type resultMsg struct {
	snap screen.Snapshot[core.SingleReviewResult]
	err  error
}

type alertsMsg []alerts.Alert

type exportedMsg struct {
	path string
	err  error
}

// model is the single review analysis screen rendered in a terminal.
type model struct {
	opts     Options
	input    []rune
	snap     screen.Snapshot[core.SingleReviewResult]
	alerts   []alerts.Alert
	status   string
	width    int
	height   int
	quitting bool
}

func newModel(opts Options) model {
	return model{opts: opts, snap: opts.Screen.Snapshot()}
}

// Init is the first command that will be run. We don't need any for now.
func (m model) Init() tea.Cmd {
	return nil
}

func (m model) submit() tea.Cmd {
	text := string(m.input)
	s := m.opts.Screen
	return func() tea.Msg {
		snap, err := s.Submit(context.Background(), screen.Input{Text: text})
		return resultMsg{snap: snap, err: err}
	}
}

func (m model) export() tea.Cmd {
	s := m.opts.Screen
	dir := m.opts.OutputDir
	return func() tea.Msg {
		e, ok, err := s.Export()
		if err != nil || !ok {
			return exportedMsg{err: err}
		}
		path, err := render.WriteExport(e, dir)
		return exportedMsg{path: path, err: err}
	}
}

// Update handles messages and updates the model accordingly.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case resultMsg:
		if errors.Is(msg.err, screen.ErrStale) {
			return m, nil
		}
		m.snap = msg.snap

	case alertsMsg:
		m.alerts = msg

	case exportedMsg:
		switch {
		case msg.err != nil:
			m.status = "Export failed: " + msg.err.Error()
		case msg.path == "":
			m.status = "No results to export."
		default:
			m.status = "Saved " + msg.path
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.snap.Loading {
				return m, nil
			}
			m.snap.Loading = true
			m.status = ""
			return m, m.submit()
		case tea.KeyCtrlS:
			return m, m.export()
		case tea.KeyCtrlL:
			m.input = nil
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		}
	}

	return m, nil
}

var (
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	alertColors = map[alerts.Kind]lipgloss.Color{
		alerts.KindSuccess: lipgloss.Color("#22c55e"),
		alerts.KindError:   lipgloss.Color("#ef4444"),
		alerts.KindInfo:    lipgloss.Color("#3b82f6"),
	}
)

var toneColors = map[string]lipgloss.Color{
	"green":  lipgloss.Color(render.ColorPositive),
	"red":    lipgloss.Color(render.ColorNegative),
	"yellow": lipgloss.Color(render.ColorNeutral),
}

func badge(label string, s render.Style) string {
	return lipgloss.NewStyle().
		Foreground(toneColors[s.Tone]).
		Bold(true).
		Render(strings.ToUpper(label))
}

// View renders the TUI.
func (m model) View() string {
	if m.quitting {
		return "Goodbye.\n"
	}

	width := m.width - 8
	if width < 40 {
		width = 72
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Single Review Analysis"))
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Width(width).Render(string(m.input) + "█"))
	b.WriteString("\n")

	switch {
	case m.snap.Loading:
		b.WriteString("\nAnalyzing sentiment...\n")
	case m.snap.Result != nil:
		r := m.snap.Result
		body := fmt.Sprintf("%s  %s confidence\n\n%s",
			badge(string(r.Sentiment), render.SentimentStyle(r.Sentiment)), r.ConfidencePercent(), r.Explanation)
		b.WriteString("\n")
		b.WriteString(boxStyle.Width(width).Render(body))
		b.WriteString("\n")
	}

	for _, a := range m.alerts {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(alertColors[a.Kind]).Render(a.Message))
	}
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}

	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("[enter] Analyze | [ctrl+s] Export CSV | [ctrl+l] Clear | [esc] Quit"))

	return docStyle.Render(b.String())
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	opts.Alerts.OnChange(func(list []alerts.Alert) {
		p.Send(alertsMsg(list))
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
