package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zisk-dev/zisk-dev/metrics"
)

// StatsModel is a Bubble Tea model for invocation metrics.
type StatsModel struct {
	data     *metrics.Snapshot
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data *metrics.Snapshot) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "No metrics\n" + helpLine(keys.Quit)
	}
	d := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Conversions"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Succeeded", d.ConversionsSucceeded, successColor),
		m.renderStatBox("Failed", d.ConversionsFailed, errorColor),
		m.renderStatBox("Bytes", d.BytesWritten, highlightColor),
	))
	b.WriteString("\n\n")

	b.WriteString(TitleStyle.Render("Executions"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Started", d.ExecutionsStarted, highlightColor),
		m.renderStatBox("Completed", d.ExecutionsCompleted, successColor),
		m.renderStatBox("Failed", d.ExecutionsFailed+d.SpawnFailures, errorColor),
		m.renderStatBox("Timed out", d.ExecutionsTimedOut, warningColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Rejected", d.ExecutionsRejected, errorColor),
		m.renderStatBox("Pool waits", d.PoolWaits, warningColor),
		m.renderStatBox("Peak", d.PeakConcurrent, highlightColor),
	))

	if d.ArtifactPublishSuccess+d.ArtifactPublishFailure > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Artifacts"))
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderStatBox("Published", d.ArtifactPublishSuccess, successColor),
			m.renderStatBox("Failed", d.ArtifactPublishFailure, errorColor),
		))
	}

	b.WriteString("\n")
	b.WriteString(helpLine(keys.Quit))
	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	s, ok := data.(*metrics.Snapshot)
	if !ok {
		return fmt.Errorf("invalid data type for stats view: %T", data)
	}
	p := tea.NewProgram(NewStatsModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(data *metrics.Snapshot) string {
	model := NewStatsModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
