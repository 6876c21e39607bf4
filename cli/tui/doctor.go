package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zisk-dev/zisk-dev/cli/report"
)

// DoctorModel is a Bubble Tea model for the doctor report.
type DoctorModel struct {
	data     *report.DoctorReport
	details  bool
	width    int
	height   int
	quitting bool
}

// NewDoctorModel creates a new doctor model.
func NewDoctorModel(data *report.DoctorReport) DoctorModel {
	return DoctorModel{data: data}
}

// Init implements tea.Model.
func (m DoctorModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DoctorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Details):
			m.details = !m.details
			return m, nil
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m DoctorModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "No doctor report\n" + helpLine(keys.Quit)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("zisk-dev doctor"))
	b.WriteString("\n")

	s := m.data.Summary()
	mode := s.ExecutionMode
	host := []string{
		field("OS/Arch", s.OS+"/"+s.Arch),
		field("CPUs", fmt.Sprintf("%d", s.CPUs)),
		field("Memory", fmt.Sprintf("%d MiB", s.MemoryMiB)),
		fieldStyled("Mode", mode, StateStyle(mode)),
		field("Concurrency", fmt.Sprintf("%d (recommended %d)", s.MaxProcesses, s.RecommendedConcurrency)),
		field("ZISK home", s.ZiskHome),
		field("Config", s.ConfigPath),
	}
	b.WriteString(BoxStyle.Render(strings.Join(host, "\n")))
	b.WriteString("\n\n")

	b.WriteString(TitleStyle.Render("Toolchain"))
	b.WriteString("\n")
	var tools []string
	for _, t := range m.data.Platform.Tools {
		state := "missing"
		detail := t.Error
		if t.Found {
			state = "found"
			detail = t.Path
			if t.Version != "" {
				detail += "  " + t.Version
			}
		}
		line := LabelStyle.Render(t.Name) + " " +
			StateStyle(state).Width(8).Render(state) + " " +
			ValueStyle.Render(detail)
		tools = append(tools, line)
	}
	b.WriteString(strings.Join(tools, "\n"))

	if m.details {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Executor"))
		b.WriteString("\n")
		lines := []string{field("Grace period", m.data.Executor.GracePeriod)}
		for _, kv := range m.data.Executor.SortedTimeouts() {
			lines = append(lines, field("Timeout "+kv[0], kv[1]))
		}
		lines = append(lines, field("Programs", strings.Join(m.data.Executor.AllowedPrograms, ", ")))
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n")
	b.WriteString(helpLine(keys.Details, keys.Quit))
	return b.String()
}

func field(label, value string) string {
	return fieldStyled(label, value, ValueStyle)
}

func fieldStyled(label, value string, style lipgloss.Style) string {
	return LabelStyle.Render(label+":") + " " + style.Render(value)
}

// RunDoctorTUI runs the doctor TUI.
func RunDoctorTUI(data any) error {
	r, ok := data.(*report.DoctorReport)
	if !ok {
		return fmt.Errorf("invalid data type for doctor view: %T", data)
	}
	p := tea.NewProgram(NewDoctorModel(r), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDoctorStatic renders the doctor view without an interactive
// program, with details expanded.
func RenderDoctorStatic(data *report.DoctorReport) string {
	model := NewDoctorModel(data)
	model.details = true
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
