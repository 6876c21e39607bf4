package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

// newTestApp creates a cli.App with every command wired up and
// ExitErrHandler suppressed so errors are returned instead of calling
// os.Exit. Rendered output goes to stdout, logs and tool output to stderr.
func newTestApp(stdout, stderr *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = "zisk-dev"
	app.Flags = GlobalFlags()
	app.Commands = []*cli.Command{
		ConvertCommand(),
		BuildCommand(),
		ProveCommand(),
		VerifyCommand(),
		ExecuteCommand(),
		ArtifactsCommand(),
		DoctorCommand(),
		VersionCommand("test"),
	}
	app.Writer = stdout
	app.ErrWriter = stderr
	app.ExitErrHandler = func(*cli.Context, error) {} // suppress os.Exit
	return app
}

// runApp runs args in project dir and returns stdout, stderr and the error.
func runApp(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newTestApp(&stdout, &stderr)
	err := app.Run(append([]string{"zisk-dev", "--project-dir", dir}, args...))
	return stdout.String(), stderr.String(), err
}

// exitCodeOf returns the exit code carried by err, 0 for nil.
func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) {
		t.Fatalf("error is not a cli.ExitCoder: %v", err)
	}
	return exitCoder.ExitCode()
}

// writeFile creates path under dir with content, making parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestOutputFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range OutputFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("OutputFlags should include --tui flag for explicit error handling")
	}
}

func TestToolFlags_AppendsToolAndExtraFlags(t *testing.T) {
	flags := ToolFlags(&cli.BoolFlag{Name: "release"})
	names := make(map[string]bool)
	for _, f := range flags {
		names[f.Names()[0]] = true
	}
	for _, want := range []string{"format", "no-color", "tui", "quiet", "timeout", "release"} {
		if !names[want] {
			t.Errorf("ToolFlags missing %q", want)
		}
	}
}

func TestRejectTUI(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runApp(t, dir, "version", "--tui")
	if code := exitCodeOf(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	out, _, err := runApp(t, t.TempDir(), "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte(`"commit": "test"`)) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewSession_MissingProjectDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, _, err := runApp(t, missing, "build")
	if code := exitCodeOf(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", "convert:\n  mode: bogus\n")

	_, _, err := runApp(t, dir, "convert", "in.json")
	if code := exitCodeOf(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d (err: %v)", code, exitInvalidInput, err)
	}
}
