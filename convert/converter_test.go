package convert

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/zisk-dev/zisk-dev/envelope"
	"github.com/zisk-dev/zisk-dev/metrics"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestConvert_JSONDefaultMode(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "input.json", `{"n": 1000}`)
	dst := filepath.Join(dir, "out", "input.bin")

	c := NewConverter(Config{})
	res, err := c.Convert(context.Background(), src, dst, Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	got := readFile(t, dst)
	want := []byte{0x5A, 0x49, 0x53, 0x4B, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(got[:8], want) {
		t.Errorf("header prefix = % x, want % x", got[:8], want)
	}
	payload := `{"n":1000}`
	if n := binary.LittleEndian.Uint64(got[8:16]); n != uint64(len(payload)) {
		t.Errorf("length field = %d, want %d", n, len(payload))
	}
	if string(got[16:]) != payload {
		t.Errorf("payload = %q, want %q", got[16:], payload)
	}
	if res.Bytes != int64(16+len(payload)) || int64(len(got)) != res.Bytes {
		t.Errorf("Bytes = %d, file size = %d, want %d", res.Bytes, len(got), 16+len(payload))
	}
	if res.Destination != dst || res.Format != "json" || res.Mode != ModeDefault {
		t.Errorf("unexpected result: %+v", res)
	}
	sum := blake3.Sum256(got)
	if res.Digest != hex.EncodeToString(sum[:]) {
		t.Errorf("Digest = %s, want blake3 of file", res.Digest)
	}
}

func TestConvert_HeaderInvariant(t *testing.T) {
	dir := t.TempDir()
	sources := map[string]string{
		"a.json":  `{"b":[1,2.5,"x",true,null]}`,
		"b.yaml":  "name: fib\nsteps: [1, 2, 3]\n",
		"c.yml":   "- one\n- two\n",
		"d.txt":   "alpha\n\nbeta\r\n",
		"e.jsonc": "{\n  // comment\n  \"k\": 1,\n}\n",
	}
	c := NewConverter(Config{})
	for name, content := range sources {
		for _, mode := range []Mode{ModeDefault, ModeCompact, ModeTyped, ModeMsgpack} {
			t.Run(name+"/"+string(mode), func(t *testing.T) {
				src := writeFile(t, dir, name, content)
				dst := filepath.Join(dir, "out", string(mode), name+".bin")
				if _, err := c.Convert(context.Background(), src, dst, Options{Mode: mode}); err != nil {
					t.Fatalf("Convert: %v", err)
				}
				got := readFile(t, dst)
				if string(got[:4]) != envelope.Magic {
					t.Errorf("magic = %q", got[:4])
				}
				if n := binary.LittleEndian.Uint64(got[8:16]); n != uint64(len(got)-16) {
					t.Errorf("length field = %d, payload bytes = %d", n, len(got)-16)
				}
				if _, err := envelope.Decode(got); err != nil {
					t.Errorf("envelope.Decode: %v", err)
				}
			})
		}
	}
}

func TestConvert_BinaryPassthrough(t *testing.T) {
	dir := t.TempDir()
	raw := []byte{0x00, 0xFF, 'Z', 'I', 'S', 'K', 0x10, 0x0A}
	src := filepath.Join(dir, "raw.bin")
	if err := os.WriteFile(src, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out", "raw.bin")

	res, err := NewConverter(Config{}).Convert(context.Background(), src, dst, Options{Mode: ModeTyped})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := readFile(t, dst); !bytes.Equal(got, raw) {
		t.Errorf("passthrough output = % x, want % x", got, raw)
	}
	if res.Bytes != int64(len(raw)) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(raw))
	}
	if res.Mode != "" {
		t.Errorf("Mode = %q, want empty for passthrough", res.Mode)
	}
}

func TestConvert_CSVText(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "data.txt", "name,value\nitem1,100\n")
	dst := filepath.Join(dir, "data.bin")

	if _, err := NewConverter(Config{}).Convert(context.Background(), src, dst, Options{TextMode: TextCSV}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := readFile(t, dst)
	if want := `[{"name":"item1","value":"100"}]`; string(got[16:]) != want {
		t.Errorf("payload = %s, want %s", got[16:], want)
	}
}

func TestConvert_Errors(t *testing.T) {
	dir := t.TempDir()
	c := NewConverter(Config{})

	tests := []struct {
		name string
		src  string
		opts Options
		kind ErrorKind
	}{
		{"missing", filepath.Join(dir, "nope.json"), Options{}, KindNotFound},
		{"directory", func() string {
			p := filepath.Join(dir, "sub.json")
			if err := os.Mkdir(p, 0o755); err != nil {
				t.Fatal(err)
			}
			return p
		}(), Options{}, KindNotFound},
		{"unsupported", writeFile(t, dir, "input.toml", "a = 1"), Options{}, KindUnsupportedFormat},
		{"malformed json", writeFile(t, dir, "bad.json", "{\n  \"a\": ,\n}"), Options{}, KindMalformedInput},
		{"malformed yaml", writeFile(t, dir, "bad.yaml", "a: [1, 2\nb: 3\n"), Options{}, KindMalformedInput},
		{"bad mode", writeFile(t, dir, "ok.json", "{}"), Options{Mode: "pretty"}, KindMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(dir, "out", tt.name+".bin")
			_, err := c.Convert(context.Background(), tt.src, dst, tt.opts)
			if !IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
			if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
				t.Errorf("destination exists after failure: %v", statErr)
			}
		})
	}
}

func TestConvert_MalformedJSONPosition(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.json", "{\n  \"a\": 1,\n  \"b\": ?\n}")

	_, err := NewConverter(Config{}).Convert(context.Background(), src, filepath.Join(dir, "x.bin"), Options{})
	var convErr *Error
	if !errors.As(err, &convErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if convErr.Line != 3 {
		t.Errorf("Line = %d, want 3", convErr.Line)
	}
	if convErr.Path != src {
		t.Errorf("Path = %q, want %q", convErr.Path, src)
	}
}

func TestConvert_WriteFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "in.json", "{}")
	blocker := writeFile(t, dir, "blocker", "file, not a directory")

	_, err := NewConverter(Config{}).Convert(context.Background(), src, filepath.Join(blocker, "out.bin"), Options{})
	if !IsKind(err, KindIOError) {
		t.Fatalf("err = %v, want io_error", err)
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "in.json", "{}")
	dst := filepath.Join(dir, "out.bin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewConverter(Config{}).Convert(ctx, src, dst, Options{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("destination written despite cancellation")
	}
}

func TestConvert_RecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	m := metrics.NewCollector("", "", "")
	c := NewConverter(Config{Metrics: m})

	src := writeFile(t, dir, "in.json", `[1]`)
	if _, err := c.Convert(context.Background(), src, filepath.Join(dir, "in.bin"), Options{}); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Convert(context.Background(), filepath.Join(dir, "missing.json"), filepath.Join(dir, "m.bin"), Options{})

	s := m.Snapshot()
	if s.ConversionsSucceeded != 1 || s.ConversionsFailed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 1/1", s.ConversionsSucceeded, s.ConversionsFailed)
	}
	if s.BytesWritten != 16+3 {
		t.Errorf("BytesWritten = %d, want 19", s.BytesWritten)
	}
}

func TestConvertDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "a.json", `{"a":1}`)
	writeFile(t, src, "nested/b.yaml", "b: 2\n")
	writeFile(t, src, "c.txt", "line\n")
	writeFile(t, src, "README.md", "ignored")
	writeFile(t, src, "bad.json", "{")

	results, err := NewConverter(Config{}).ConvertDir(context.Background(), src, dst, Options{Parallelism: 2})
	if !IsKind(err, KindMalformedInput) {
		t.Fatalf("err = %v, want joined malformed_input", err)
	}

	var got []string
	for _, r := range results {
		rel, _ := filepath.Rel(dst, r.Destination)
		got = append(got, filepath.ToSlash(rel))
	}
	sort.Strings(got)
	want := []string{"a.bin", "c.bin", "nested/b.bin"}
	if len(got) != len(want) {
		t.Fatalf("destinations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("destinations[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if _, err := os.Stat(filepath.Join(dst, "README.bin")); !os.IsNotExist(err) {
		t.Error("unsupported file was converted")
	}
}

func TestConvertDir_DestinationCollision(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "input.json", `{}`)
	writeFile(t, src, "input.yaml", "a: 1\n")

	_, err := NewConverter(Config{}).ConvertDir(context.Background(), src, dst, Options{})
	if !IsKind(err, KindIOError) {
		t.Fatalf("err = %v, want io_error for colliding destinations", err)
	}
	entries, _ := os.ReadDir(dst)
	if len(entries) != 0 {
		t.Errorf("ConvertDir wrote %d files before rejecting the plan", len(entries))
	}
}
