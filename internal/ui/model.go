// ABOUTME: Bubbletea model for the lab TUI
// ABOUTME: Defines input fields, key handling and rendering
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Lab is the part of the lab application the TUI drives
type Lab interface {
	Samples() []float64
	Status() protocol.LabStatus
	SetVisualization(rate, frequency float64, count int) error
	StartAudio() error
	StopAudio() error
}

// Input fields in focus order
const (
	fieldRate = iota
	fieldFrequency
	fieldCount
	fieldTotal
)

var fieldLabels = [fieldTotal]string{
	"Sampling rate (Hz)",
	"Frequency (Hz)",
	"Samples",
}

const (
	refreshInterval = 500 * time.Millisecond
	plotHeight      = 11
	defaultWidth    = 80
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	focusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220"))
	plotStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	plotBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

// Model represents the TUI state
type Model struct {
	lab Lab

	// Inputs
	inputs [fieldTotal]string
	focus  int

	// Display
	samples []float64
	status  protocol.LabStatus
	message string
	isError bool

	// Dimensions
	width  int
	height int

	quitting bool
}

type tickMsg time.Time

// NewModel creates a model seeded from the lab's current state
func NewModel(lab Lab) Model {
	status := lab.Status()
	m := Model{
		lab:     lab,
		samples: lab.Samples(),
		status:  status,
	}
	m.inputs[fieldRate] = formatFloat(status.Rate)
	m.inputs[fieldFrequency] = formatFloat(status.Frequency)
	m.inputs[fieldCount] = strconv.Itoa(status.Count)
	return m
}

// Init starts the refresh tick
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tickEvery()
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "down":
		m.focus = (m.focus + 1) % fieldTotal
	case "shift+tab", "up":
		m.focus = (m.focus + fieldTotal - 1) % fieldTotal
	case "backspace":
		if s := m.inputs[m.focus]; len(s) > 0 {
			m.inputs[m.focus] = s[:len(s)-1]
		}
	case "enter":
		m.regenerate()
	case "a":
		if err := m.lab.StartAudio(); err != nil {
			m.setError(err)
		} else {
			m.setMessage("Audio running")
		}
		m.refresh()
	case "s":
		if err := m.lab.StopAudio(); err != nil {
			m.setError(err)
		} else {
			m.setMessage("Audio stopped")
		}
		m.refresh()
	default:
		if isNumericKey(key) {
			m.inputs[m.focus] += key
		}
	}

	return m, nil
}

// regenerate parses the inputs and applies them to the lab
func (m *Model) regenerate() {
	rate, err := strconv.ParseFloat(strings.TrimSpace(m.inputs[fieldRate]), 64)
	if err != nil {
		m.setError(fmt.Errorf("sampling rate: %w", err))
		return
	}
	frequency, err := strconv.ParseFloat(strings.TrimSpace(m.inputs[fieldFrequency]), 64)
	if err != nil {
		m.setError(fmt.Errorf("frequency: %w", err))
		return
	}
	count, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldCount]))
	if err != nil {
		m.setError(fmt.Errorf("samples: %w", err))
		return
	}

	if err := m.lab.SetVisualization(rate, frequency, count); err != nil {
		m.setError(err)
		return
	}

	m.setMessage(fmt.Sprintf("Generated %d samples", count))
	m.refresh()
}

// refresh pulls samples and status from the lab
func (m *Model) refresh() {
	m.samples = m.lab.Samples()
	m.status = m.lab.Status()
}

func (m *Model) setMessage(s string) {
	m.message = s
	m.isError = false
}

func (m *Model) setError(err error) {
	m.message = err.Error()
	m.isError = true
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Aliasing Lab"))
	b.WriteString("\n")
	b.WriteString(m.renderInputs())
	b.WriteString("\n")
	b.WriteString(m.renderPlot())
	b.WriteString("\n")
	b.WriteString(m.renderAnalysis())
	b.WriteString(m.renderAudio())
	b.WriteString(m.renderMessage())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab:Next field  enter:Generate  a:Start audio  s:Stop audio  q:Quit"))
	return b.String()
}

func (m Model) renderInputs() string {
	var b strings.Builder
	for i, label := range fieldLabels {
		value := m.inputs[i]
		if i == m.focus {
			value = focusStyle.Render(value + "_")
		} else {
			value = valueStyle.Render(value)
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPlot() string {
	width := m.width
	if width == 0 {
		width = defaultWidth
	}
	// Border and axis labels
	width -= 6
	if width < 10 {
		width = 10
	}

	lines := plotGrid(m.samples, width, plotHeight)
	zero := (plotHeight - 1) / 2
	for i := range lines {
		label := "  "
		switch i {
		case 0:
			label = "+1"
		case zero:
			label = " 0"
		case plotHeight - 1:
			label = "-1"
		}
		lines[i] = label + " " + plotStyle.Render(lines[i])
	}
	return plotBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderAnalysis() string {
	s := m.status
	line := fmt.Sprintf("Nyquist %gHz  apparent frequency %gHz", s.Rate/2, s.Alias)
	if s.Aliased {
		return warnStyle.Render(line+"  (aliased)") + "\n"
	}
	return valueStyle.Render(line) + "\n"
}

func (m Model) renderAudio() string {
	s := m.status
	if !s.AudioRunning {
		return labelStyle.Render("Audio: ") + valueStyle.Render("stopped") + "\n"
	}

	out := labelStyle.Render("Audio: ") + valueStyle.Render(s.Info) + "\n"
	if s.Engine != nil {
		e := s.Engine
		out += valueStyle.Render(fmt.Sprintf("  step %.4g frames  holds %d  frames %d  updates %d/%d  dropped %d",
			e.StepFrames, e.Holds, e.Frames, e.UpdatesApplied, e.UpdatesPosted, e.UpdatesDropped)) + "\n"
	}
	return out
}

func (m Model) renderMessage() string {
	if m.message == "" {
		return ""
	}
	if m.isError {
		return errorStyle.Render("Error: "+m.message) + "\n"
	}
	return valueStyle.Render(m.message) + "\n"
}

func isNumericKey(key string) bool {
	if len(key) != 1 {
		return false
	}
	c := key[0]
	return (c >= '0' && c <= '9') || c == '.' || c == '-'
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
