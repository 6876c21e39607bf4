package cmd

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/config"
)

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues maps flag names to their string values. All listed flags are
// registered and marked as explicitly set (c.IsSet returns true).
// defaultFlags maps flag names to default values (not explicitly set).
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"mode": "compact"}, nil)
	if got := resolveString(c, "mode", "typed"); got != "compact" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"mode": ""})
	if got := resolveString(c, "mode", "typed"); got != "typed" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"kind": "proof"})
	if got := resolveString(c, "kind", ""); got != "proof" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestConfigVal(t *testing.T) {
	if got := configVal(nil, func(c *config.Config) string { return c.Project.Name }); got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
	cfg := &config.Config{Project: config.ProjectConfig{Name: "fibonacci"}}
	if got := configVal(cfg, func(c *config.Config) string { return c.Project.Name }); got != "fibonacci" {
		t.Errorf("expected fibonacci, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	tests := []struct {
		name string
		set  string
		cfg  int
		want int
	}{
		{"cli wins", "4", 8, 4},
		{"config fallback", "", 8, 8},
		{"flag default", "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := cli.NewApp()
			app.Flags = []cli.Flag{&cli.IntFlag{Name: "mpi-processes"}}
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.Int("mpi-processes", 0, "")
			if tt.set != "" {
				_ = fs.Set("mpi-processes", tt.set)
			}
			c := cli.NewContext(app, fs, nil)

			if got := resolveInt(c, "mpi-processes", tt.cfg); got != tt.want {
				t.Errorf("resolveInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveBool(t *testing.T) {
	tests := []struct {
		name string
		set  string
		cfg  bool
		want bool
	}{
		{"cli true wins", "true", false, true},
		{"cli false wins", "false", true, false},
		{"config fallback", "", true, true},
		{"unset", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := cli.NewApp()
			app.Flags = []cli.Flag{&cli.BoolFlag{Name: "release"}}
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.Bool("release", false, "")
			if tt.set != "" {
				_ = fs.Set("release", tt.set)
			}
			c := cli.NewContext(app, fs, nil)

			if got := resolveBool(c, "release", tt.cfg); got != tt.want {
				t.Errorf("resolveBool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDuration(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "timeout"}}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("timeout", 0, "")
	_ = fs.Set("timeout", "30s")
	if got := resolveDuration(cli.NewContext(app, fs, nil), "timeout", 10*time.Second); got != 30*time.Second {
		t.Errorf("expected CLI 30s to win, got %v", got)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("timeout", 0, "")
	if got := resolveDuration(cli.NewContext(app, fs, nil), "timeout", 10*time.Second); got != 10*time.Second {
		t.Errorf("expected config fallback 10s, got %v", got)
	}
}

func TestResolveStringSlice(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.StringSliceFlag{Name: "features"}}
	set := &cli.StringSlice{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(set, "features", "")
	c := cli.NewContext(app, fs, nil)

	got := resolveStringSlice(c, "features", []string{"std"})
	if len(got) != 1 || got[0] != "std" {
		t.Errorf("expected config fallback [std], got %v", got)
	}
}

func TestProjectPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"inputs/a.json", filepath.Join(dir, "inputs/a.json")},
		{"/abs/x.bin", "/abs/x.bin"},
	}
	for _, tt := range tests {
		if got := projectPath(dir, tt.in); got != tt.want {
			t.Errorf("projectPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
