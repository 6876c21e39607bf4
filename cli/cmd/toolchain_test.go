//go:build !windows

package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zisk-dev/zisk-dev/cli/report"
)

// fakeTool writes an executable shell script named name and points the
// ZISK_DEV_<NAME>_PATH override at it.
func fakeTool(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	env := "ZISK_DEV_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_PATH"
	t.Setenv(env, p)
	return p
}

func decodeOperation(t *testing.T, out string) report.OperationResponse {
	t.Helper()
	var resp report.OperationResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	return resp
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		release  bool
		features []string
		target   string
		want     string
	}{
		{"empty", false, nil, "", ""},
		{"release", true, nil, "", "--release"},
		{"features", false, []string{"std", "serde"}, "", "--features std,serde"},
		{"all", true, []string{"std"}, "riscv64ima-zisk-zkvm-elf", "--release --features std --target riscv64ima-zisk-zkvm-elf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(buildArgs(tt.release, tt.features, tt.target), " ")
			if got != tt.want {
				t.Errorf("buildArgs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProveArgs(t *testing.T) {
	got := strings.Join(proveArgs("target/guest", "build/in.bin", "build/proofs", true, true), " ")
	want := "-e target/guest -i build/in.bin -o build/proofs -a -y"
	if got != want {
		t.Errorf("proveArgs = %q, want %q", got, want)
	}

	got = strings.Join(proveArgs("guest", "", "out", false, false), " ")
	if got != "-e guest -o out" {
		t.Errorf("proveArgs without input = %q", got)
	}
}

func TestBuild_UsesConfigDefaults(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "args: $*"`)
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", "build:\n  profile: release\n  features: [std]\n")

	out, _, err := runApp(t, dir, "build", "--format", "json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	resp := decodeOperation(t, out)
	if resp.State != "completed" || resp.ExitCode != 0 {
		t.Errorf("state = %s exit = %d", resp.State, resp.ExitCode)
	}
	if !strings.Contains(resp.Stdout, "args: build --release --features std") {
		t.Errorf("stdout = %q", resp.Stdout)
	}
	if resp.Operation != "build" || resp.Program != "cargo-zisk" || resp.InvocationID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestBuild_FlagOverridesConfig(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "args: $*"`)
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", "build:\n  profile: release\n")

	out, _, err := runApp(t, dir, "build", "--format", "json", "--release=false")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resp := decodeOperation(t, out); strings.Contains(resp.Stdout, "--release") {
		t.Errorf("--release=false should win over config, stdout = %q", resp.Stdout)
	}
}

func TestBuild_StreamsToolOutputToStderr(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "compiling guest"`)
	dir := t.TempDir()

	_, stderr, err := runApp(t, dir, "build", "--format", "json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(stderr, "compiling guest") {
		t.Errorf("tool output not streamed to stderr: %q", stderr)
	}

	_, stderr, err = runApp(t, dir, "build", "--format", "json", "--quiet")
	if err != nil {
		t.Fatalf("build --quiet: %v", err)
	}
	if strings.Contains(stderr, "compiling guest") {
		t.Errorf("--quiet should not stream tool output: %q", stderr)
	}
}

func TestProve_PublishesAndNotifies(t *testing.T) {
	fakeTool(t, "cargo-zisk", `mkdir -p build/proofs && printf 'proof-bytes' > build/proofs/vadcop_final_proof.bin`)

	var (
		mu       sync.Mutex
		body     string
		invocTag string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		invocTag = r.Header.Get("X-Zisk-Invocation-Id")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "guest.elf", "elf")
	writeFile(t, dir, "zisk-dev.yaml", strings.Join([]string{
		"project:",
		"  name: fibonacci",
		"storage:",
		"  backend: fs",
		"  path: .artifacts",
		"notify:",
		"  type: webhook",
		"  url: " + server.URL,
		"  retries: 0",
		"",
	}, "\n"))

	out, _, err := runApp(t, dir, "prove", "--format", "json", "--elf", "guest.elf", "--publish")
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	resp := decodeOperation(t, out)
	if !strings.HasPrefix(resp.Artifact, "artifacts/fibonacci/proof/") {
		t.Errorf("artifact = %q", resp.Artifact)
	}

	mu.Lock()
	defer mu.Unlock()
	if invocTag != resp.InvocationID {
		t.Errorf("invocation header = %q, want %q", invocTag, resp.InvocationID)
	}
	for _, want := range []string{`"operation":"prove"`, `"project":"fibonacci"`, resp.Artifact} {
		if !strings.Contains(body, want) {
			t.Errorf("notification body missing %s: %s", want, body)
		}
	}
}

func TestProve_PublishFailureAfterSuccess(t *testing.T) {
	fakeTool(t, "cargo-zisk", `exit 0`)
	dir := t.TempDir()
	writeFile(t, dir, "guest.elf", "elf")
	writeFile(t, dir, "zisk-dev.yaml", "storage:\n  backend: fs\n  path: .artifacts\n")

	_, stderr, err := runApp(t, dir, "prove", "--format", "json", "--elf", "guest.elf", "--publish")
	if code := exitCodeOf(t, err); code != exitIOError {
		t.Errorf("exit code = %d, want %d (err: %v)", code, exitIOError, err)
	}
	if !strings.Contains(stderr, "publishing failed") {
		t.Errorf("expected publish warning, got %q", stderr)
	}
}

func TestProve_UnderMPI(t *testing.T) {
	cargo := fakeTool(t, "cargo-zisk", `exit 0`)
	fakeTool(t, "mpirun", `echo "mpirun $*"; echo "threads=$OMP_NUM_THREADS"`)
	dir := t.TempDir()
	writeFile(t, dir, "guest.elf", "elf")
	writeFile(t, dir, "zisk-dev.yaml", "mpi:\n  processes: 2\n  threads: 4\n  bind_to_none: true\n")

	out, _, err := runApp(t, dir, "prove", "--format", "json", "--elf", "guest.elf")
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	resp := decodeOperation(t, out)
	want := "mpirun -np 2 --bind-to none -x OMP_NUM_THREADS -x RAYON_NUM_THREADS " + cargo + " prove -e guest.elf"
	if !strings.Contains(resp.Stdout, want) {
		t.Errorf("stdout = %q, want it to contain %q", resp.Stdout, want)
	}
	if !strings.Contains(resp.Stdout, "threads=4") {
		t.Errorf("thread count not exported: %q", resp.Stdout)
	}
	if resp.Program != "mpirun" {
		t.Errorf("program = %q, want mpirun", resp.Program)
	}
}

func TestToolCommands_Failures(t *testing.T) {
	tests := []struct {
		name      string
		tool      string
		script    string
		config    string
		args      []string
		wantCode  int
		wantState string
	}{
		{
			name:      "non-zero exit",
			tool:      "cargo-zisk",
			script:    `echo "bad proof" >&2; exit 3`,
			args:      []string{"verify", "--proof", "proof.bin"},
			wantCode:  exitFailure,
			wantState: "failed",
		},
		{
			name:      "timeout",
			tool:      "cargo-zisk",
			script:    `exec sleep 5`,
			config:    "executor:\n  grace_period: 100ms\n  timeouts:\n    build: 200ms\n",
			args:      []string{"build"},
			wantCode:  exitTimeout,
			wantState: "timed_out",
		},
		{
			name:      "timeout flag overrides config",
			tool:      "ziskemu",
			script:    `exec sleep 5`,
			config:    "executor:\n  grace_period: 100ms\n",
			args:      []string{"execute", "--timeout", "200ms", "--elf", "guest.elf"},
			wantCode:  exitTimeout,
			wantState: "timed_out",
		},
		{
			name:      "path escapes project",
			tool:      "cargo-zisk",
			script:    `exit 0`,
			args:      []string{"prove", "--elf", "../guest.elf"},
			wantCode:  exitInvalidInput,
			wantState: "failed",
		},
		{
			name:      "attached short flag escapes project",
			tool:      "cargo-zisk",
			script:    `exit 0`,
			args:      []string{"prove", "--elf", "guest.elf", "--", "-i../../etc/passwd"},
			wantCode:  exitInvalidInput,
			wantState: "failed",
		},
		{
			name:      "metacharacter argument",
			tool:      "ziskemu",
			script:    `exit 0`,
			args:      []string{"execute", "--elf", "guest.elf;rm"},
			wantCode:  exitInvalidInput,
			wantState: "failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeTool(t, tt.tool, tt.script)
			dir := t.TempDir()
			if tt.config != "" {
				writeFile(t, dir, "zisk-dev.yaml", tt.config)
			}

			args := append([]string{tt.args[0], "--format", "json", "--quiet"}, tt.args[1:]...)
			out, _, err := runApp(t, dir, args...)
			if code := exitCodeOf(t, err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err: %v)", code, tt.wantCode, err)
			}
			if resp := decodeOperation(t, out); resp.State != tt.wantState {
				t.Errorf("state = %q, want %q", resp.State, tt.wantState)
			}
		})
	}
}

func TestVerify_QuietFailureReportsStderrTail(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "fatal: witness mismatch" >&2; exit 3`)
	dir := t.TempDir()

	out, stderr, err := runApp(t, dir, "verify", "--format", "json", "--quiet", "-p", "proof.bin")
	if code := exitCodeOf(t, err); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if strings.Contains(stderr, "witness mismatch") {
		t.Errorf("--quiet should not stream tool output: %q", stderr)
	}

	resp := decodeOperation(t, out)
	if !strings.Contains(resp.StderrTail, "fatal: witness mismatch") {
		t.Errorf("stderr_tail = %q", resp.StderrTail)
	}
	if err == nil || !strings.Contains(err.Error(), "fatal: witness mismatch") {
		t.Errorf("exit message should carry the stderr tail: %v", err)
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	t.Setenv("ZISK_DEV_ZISKEMU_PATH", filepath.Join(t.TempDir(), "missing"))
	dir := t.TempDir()

	_, _, err := runApp(t, dir, "execute", "--format", "json", "--elf", "guest.elf")
	if code := exitCodeOf(t, err); code != exitSpawnFailure {
		t.Errorf("exit code = %d, want %d (err: %v)", code, exitSpawnFailure, err)
	}
}

func TestDoctor_ReportsTools(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "cargo-zisk 0.9.0"`)
	fakeTool(t, "ziskemu", `echo "ziskemu 0.9.0"`)
	dir := t.TempDir()

	out, _, err := runApp(t, dir, "doctor", "--format", "json", "--stats")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}

	var rep report.DoctorReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	st, ok := rep.Platform.Tool("cargo-zisk")
	if !ok || !st.Found || st.Version != "cargo-zisk 0.9.0" {
		t.Errorf("cargo-zisk status = %+v", st)
	}
	if rep.Metrics == nil {
		t.Error("--stats should include metrics")
	}
	if rep.Executor.MaxProcesses < 1 {
		t.Errorf("max processes = %d", rep.Executor.MaxProcesses)
	}
}

func TestDoctor_StrictFailsOnMissingTool(t *testing.T) {
	fakeTool(t, "cargo-zisk", `echo "cargo-zisk 0.9.0"`)
	t.Setenv("ZISK_DEV_ZISKEMU_PATH", filepath.Join(t.TempDir(), "missing"))
	dir := t.TempDir()

	_, _, err := runApp(t, dir, "doctor", "--format", "json", "--no-versions")
	if err != nil {
		t.Fatalf("doctor without --strict should succeed: %v", err)
	}

	_, _, err = runApp(t, dir, "doctor", "--format", "json", "--no-versions", "--strict")
	if code := exitCodeOf(t, err); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if err != nil && !strings.Contains(err.Error(), "ziskemu") {
		t.Errorf("error should name ziskemu: %v", err)
	}
}

func TestDoctor_TableSections(t *testing.T) {
	fakeTool(t, "cargo-zisk", `exit 0`)
	dir := t.TempDir()

	out, _, err := runApp(t, dir, "doctor", "--format", "table", "--no-color", "--no-versions")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	for _, title := range []string{"Host", "Toolchain", "Timeouts"} {
		if !strings.Contains(out, title+"\n") {
			t.Errorf("table output missing section %q:\n%s", title, out)
		}
	}
}
