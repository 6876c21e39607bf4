package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zisk-dev/zisk-dev/cli/report"
)

func decodeConvert(t *testing.T, out string) report.ConvertResponse {
	t.Helper()
	var resp report.ConvertResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	return resp
}

func TestConvert_SingleFileDefaultsToOutputsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inputs/fib.json", `{"n": 10, "name": "fib"}`)

	out, _, err := runApp(t, dir, "convert", "--format", "json", "inputs/fib.json")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	resp := decodeConvert(t, out)
	if len(resp.Converted) != 1 || resp.Failed != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	want := filepath.Join(dir, "build", "fib.bin")
	if resp.Converted[0].Destination != want {
		t.Errorf("destination = %q, want %q", resp.Converted[0].Destination, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestConvert_ExplicitOut(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "in.yaml", "n: 3\n")

	_, _, err := runApp(t, dir, "convert", "--format", "json", "--out", "custom/x.bin", "in.yaml")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "custom", "x.bin")); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestConvert_DirectoryUsesInputsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", "inputs:\n  dir: data\noutputs:\n  dir: out\n")
	writeFile(t, dir, "data/a.json", `[1, 2, 3]`)
	writeFile(t, dir, "data/nested/b.txt", "alpha\nbeta\n")

	out, _, err := runApp(t, dir, "convert", "--format", "json")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	resp := decodeConvert(t, out)
	if len(resp.Converted) != 2 {
		t.Fatalf("converted = %d, want 2", len(resp.Converted))
	}
	for _, name := range []string{"out/a.bin", "out/nested/b.bin"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		args     []string
		wantCode int
	}{
		{
			name:     "unsupported extension",
			files:    map[string]string{"in.toml": "n = 1"},
			args:     []string{"in.toml"},
			wantCode: exitInvalidInput,
		},
		{
			name:     "missing source",
			args:     []string{"missing.json"},
			wantCode: exitInvalidInput,
		},
		{
			name:     "malformed json",
			files:    map[string]string{"bad.json": `{"n": `},
			args:     []string{"bad.json"},
			wantCode: exitInvalidInput,
		},
		{
			name:     "invalid mode",
			files:    map[string]string{"in.json": `{}`},
			args:     []string{"--mode", "bogus", "in.json"},
			wantCode: exitInvalidInput,
		},
		{
			name:     "too many sources",
			args:     []string{"a.json", "b.json"},
			wantCode: exitInvalidInput,
		},
		{
			name:     "publish without storage",
			files:    map[string]string{"in.json": `{}`},
			args:     []string{"--publish", "in.json"},
			wantCode: exitInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			args := append([]string{"convert", "--format", "json"}, tt.args...)
			_, _, err := runApp(t, dir, args...)
			if code := exitCodeOf(t, err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err: %v)", code, tt.wantCode, err)
			}
		})
	}
}

func TestConvert_PublishAndFetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", strings.Join([]string{
		"project:",
		"  name: fibonacci",
		"storage:",
		"  backend: fs",
		"  path: .artifacts",
		"  compression: zstd",
		"",
	}, "\n"))
	writeFile(t, dir, "in.json", `{"n": 20}`)

	out, _, err := runApp(t, dir, "convert", "--format", "json", "--publish", "in.json")
	if err != nil {
		t.Fatalf("convert --publish: %v", err)
	}
	resp := decodeConvert(t, out)
	if len(resp.Published) != 1 {
		t.Fatalf("published = %d, want 1", len(resp.Published))
	}
	key := resp.Published[0].Key
	if !strings.HasPrefix(key, "artifacts/fibonacci/input/") || !strings.HasSuffix(key, "/in.bin.zst") {
		t.Errorf("unexpected key %q", key)
	}

	out, _, err = runApp(t, dir, "artifacts", "list", "--format", "json", "--kind", "input")
	if err != nil {
		t.Fatalf("artifacts list: %v", err)
	}
	var list ArtifactListResponse
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("invalid list output: %v", err)
	}
	if len(list.Keys) != 1 || list.Keys[0] != key {
		t.Errorf("keys = %v, want [%s]", list.Keys, key)
	}

	if _, _, err := runApp(t, dir, "artifacts", "fetch", "--format", "json", key, "fetched.bin"); err != nil {
		t.Fatalf("artifacts fetch: %v", err)
	}
	want, _ := os.ReadFile(filepath.Join(dir, "build", "in.bin"))
	got, err := os.ReadFile(filepath.Join(dir, "fetched.bin"))
	if err != nil {
		t.Fatalf("read fetched: %v", err)
	}
	if string(got) != string(want) {
		t.Error("fetched content differs from the converted file")
	}
}

func TestArtifactsFetch_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zisk-dev.yaml", "storage:\n  backend: fs\n  path: store\n")

	_, _, err := runApp(t, dir, "artifacts", "fetch", "only-one-arg")
	if code := exitCodeOf(t, err); code != exitInvalidInput {
		t.Errorf("missing destination: exit code = %d, want %d", code, exitInvalidInput)
	}

	_, _, err = runApp(t, dir, "artifacts", "fetch", "artifacts/default/proof/0123456789abcdef/p.bin", "p.bin")
	if code := exitCodeOf(t, err); code != exitIOError {
		t.Errorf("unknown key: exit code = %d, want %d (err: %v)", code, exitIOError, err)
	}
}

func TestCountErrors(t *testing.T) {
	if countErrors(nil) != 0 {
		t.Error("nil should count 0")
	}
	if countErrors(os.ErrNotExist) != 1 {
		t.Error("single error should count 1")
	}
}
