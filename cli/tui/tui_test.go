package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/metrics"
	"github.com/zisk-dev/zisk-dev/platform"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"doctor", true},
		{"stats", true},

		{"convert", false},
		{"prove", false},
		{"version", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	for _, v := range SupportedTUIViews() {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("convert", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRun_WrongDataType(t *testing.T) {
	if err := Run(ViewDoctor, "not a report"); err == nil {
		t.Error("Expected error for wrong doctor data type")
	}
	if err := Run(ViewStats, 42); err == nil {
		t.Error("Expected error for wrong stats data type")
	}
}

func testReport() *report.DoctorReport {
	return &report.DoctorReport{
		Platform: platform.Report{
			OS:            "linux",
			Arch:          "amd64",
			CPUs:          8,
			ExecutionMode: platform.ModeNative,
			Tools: []platform.ToolStatus{
				{Name: "cargo-zisk", Path: "/opt/zisk/bin/cargo-zisk", Found: true, Version: "cargo-zisk 0.9.0"},
				{Name: "mpirun", Error: "tool not found"},
			},
		},
		Executor: report.ExecutorSettings{
			MaxProcesses: 4,
			GracePeriod:  "10s",
			Timeouts:     map[string]string{"prove": "2h0m0s"},
		},
	}
}

func TestRenderDoctorStatic(t *testing.T) {
	out := RenderDoctorStatic(testReport())

	for _, want := range []string{"cargo-zisk 0.9.0", "missing", "found", "native", "Timeout prove", "2h0m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor view missing %q:\n%s", want, out)
		}
	}
}

func TestDoctorModel_ToggleDetailsAndQuit(t *testing.T) {
	m := NewDoctorModel(testReport())
	if strings.Contains(m.View(), "Timeout prove") {
		t.Fatal("details should start hidden")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(DoctorModel)
	if !strings.Contains(m.View(), "Timeout prove") {
		t.Error("details should be shown after toggle")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	if next.(DoctorModel).View() != "" {
		t.Error("view should be empty after quit")
	}
}

func TestRenderStatsStatic(t *testing.T) {
	c := metrics.NewCollector("native", "fs", "demo")
	c.IncConversionSucceeded("json", 128)
	c.IncExecutionRejected()
	snap := c.Snapshot()

	out := RenderStatsStatic(&snap)
	for _, want := range []string{"Conversions", "128", "Rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats view missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Artifacts") {
		t.Errorf("artifacts section should be hidden without publishes:\n%s", out)
	}
}

func TestStateStyle(t *testing.T) {
	if StateStyle("found").GetForeground() != SuccessStyle.GetForeground() {
		t.Error("found should use the success style")
	}
	if StateStyle("missing").GetForeground() != WarningStyle.GetForeground() {
		t.Error("missing should use the warning style")
	}
	if StateStyle("timed_out").GetForeground() != ErrorStyle.GetForeground() {
		t.Error("timed_out should use the error style")
	}
}
