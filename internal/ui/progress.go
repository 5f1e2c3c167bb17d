// Package ui renders merge progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"modscan/internal/pipeline"
)

type progressModel struct {
	title      string
	events     <-chan pipeline.Event
	spinner    spinner.Model
	prog       progress.Model
	total      int
	consumed   int
	failed     int
	lastFile   string
	lastErr    error
	stageLabel string
	started    time.Time
	width      int
	done       bool
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that counts consumed shards
// until events is closed.
func NewProgressModel(title string, total int, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		total:   total,
		started: time.Now(),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(pipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	counts := fmt.Sprintf("  %d/%d shards", m.consumed, m.total)
	if m.failed > 0 {
		counts += styleStatus("error").Render(fmt.Sprintf("  %d failed", m.failed))
	}
	counts += fmt.Sprintf("  %s", time.Since(m.started).Round(100*time.Millisecond))
	b.WriteString(counts)
	b.WriteString("\n")

	if m.lastFile != "" {
		status := "done"
		if m.lastErr != nil {
			status = "error"
		}
		nameWidth := m.width - 12
		if nameWidth < 20 {
			nameWidth = 20
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", styleStatus(status).Render(fmt.Sprintf("%6s", status)), truncate(m.lastFile, nameWidth)))
	}

	b.WriteString("\n")
	if m.done && m.failed == 0 {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.ViewAs(m.percent()))
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev pipeline.Event) tea.Cmd {
	if ev.Total > 0 {
		m.total = ev.Total
	}
	if ev.File == "" {
		if label := stageLabel(ev.Stage, ev.Status); label != "" {
			m.stageLabel = label
		}
		return nil
	}
	switch ev.Status {
	case pipeline.StatusDone:
		m.consumed++
	case pipeline.StatusError:
		m.failed++
		m.lastErr = ev.Err
	default:
		return nil
	}
	m.lastFile = ev.File
	return m.prog.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(1, float64(m.consumed)/float64(m.total))
}

func stageLabel(stage pipeline.Stage, status pipeline.Status) string {
	switch status {
	case pipeline.StatusWorking:
		switch stage {
		case pipeline.StageReduce:
			return "reducing"
		case pipeline.StageReport:
			return "checking"
		default:
			return "merging"
		}
	case pipeline.StatusError:
		return "failed"
	case pipeline.StatusDone:
		if stage == pipeline.StageReduce {
			return "reduced"
		}
		return ""
	default:
		return ""
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return "..." + truncateLeft(value, width-3)
}

// truncateLeft keeps the last width columns of value.
func truncateLeft(value string, width int) string {
	runes := []rune(value)
	w := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > width {
			break
		}
		w += rw
		i--
	}
	return string(runes[i:])
}
