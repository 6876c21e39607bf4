package process

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zisk-dev/zisk-dev/types"
)

func TestAllowlist_Validate(t *testing.T) {
	a := NewAllowlist("custom-tool")

	type testCase struct {
		program string
		want    string
		ok      bool
	}
	tests := []testCase{
		{types.ToolCargoZisk, types.ToolCargoZisk, true},
		{types.ToolZiskemu, types.ToolZiskemu, true},
		{"custom-tool", "custom-tool", true},
		{"bash", "", false},
		{"", "", false},
		{"bin/cargo-zisk", "", false},
		{"cargo-zisk\x00", "", false},
	}
	if runtime.GOOS != "windows" {
		tests = append(tests,
			testCase{"/opt/zisk/bin/ziskemu", types.ToolZiskemu, true},
			testCase{"/usr/bin/bash", "", false},
		)
	}
	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			got, err := a.Validate(tt.program)
			if tt.ok != (err == nil) {
				t.Fatalf("Validate(%q) err = %v, want ok=%v", tt.program, err, tt.ok)
			}
			if err != nil && !IsKind(err, KindCommandNotAllowed) {
				t.Errorf("kind = %s, want command_not_allowed", KindOf(err))
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.program, got, tt.want)
			}
		})
	}
}

func TestAllowlist_NamesSorted(t *testing.T) {
	names := NewAllowlist().Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
	if len(names) != len(DefaultPrograms()) {
		t.Errorf("got %d names, want %d", len(names), len(DefaultPrograms()))
	}
}

func TestSanitizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
		ok   bool
	}{
		{"plain", []string{"prove", "-e", "target/elf", "--threads=4"}, []string{"prove", "-e", "target/elf", "--threads=4"}, true},
		{"strips control", []string{"a\x07b", "c\td"}, []string{"ab", "cd"}, true},
		{"keeps empty", []string{""}, []string{""}, true},
		{"only control", []string{"\x01\x02"}, nil, false},
		{"semicolon", []string{"x; rm"}, nil, false},
		{"pipe", []string{"a|b"}, nil, false},
		{"dollar", []string{"$HOME"}, nil, false},
		{"backtick", []string{"`id`"}, nil, false},
		{"redirect", []string{">out"}, nil, false},
		{"glob", []string{"*.elf"}, nil, false},
		{"newline", []string{"a\nb"}, nil, false},
		{"carriage return", []string{"a\rb"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeArgs(tt.in)
			if tt.ok != (err == nil) {
				t.Fatalf("SanitizeArgs(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			}
			if !tt.ok {
				if !IsKind(err, KindInvalidArguments) {
					t.Errorf("kind = %s, want invalid_arguments", KindOf(err))
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "build"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		path         string
		relativeOnly bool
		ok           bool
	}{
		{"relative file", "input.bin", false, true},
		{"nested missing", "build/out/proof.bin", false, true},
		{"traversal", "../../etc/passwd", false, false},
		{"inner traversal", "build/../../x", false, false},
		{"home", "~/keys", false, false},
		{"empty", "", false, false},
		{"control", "a\x00b", false, false},
		{"absolute inside", filepath.Join(root, "build"), false, true},
		{"absolute inside relative only", filepath.Join(root, "build"), true, false},
		{"absolute outside", filepath.Join(os.TempDir(), "elsewhere"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(root, tt.path, tt.relativeOnly)
			if tt.ok != (err == nil) {
				t.Fatalf("ValidatePath(%q) err = %v, want ok=%v", tt.path, err, tt.ok)
			}
			if err != nil {
				if !IsKind(err, KindPathViolation) {
					t.Errorf("kind = %s, want path_violation", KindOf(err))
				}
				return
			}
			if !filepath.IsAbs(got) {
				t.Errorf("ValidatePath returned relative %q", got)
			}
		})
	}
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	if _, err := ValidatePath(root, "link/secret", false); !IsKind(err, KindPathViolation) {
		t.Errorf("err = %v, want path_violation through symlink", err)
	}

	inner := filepath.Join(root, "data")
	if err := os.Mkdir(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(inner, filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}
	if _, err := ValidatePath(root, "alias/file", false); err != nil {
		t.Errorf("symlink inside root rejected: %v", err)
	}
}

func TestPathFlagIndices(t *testing.T) {
	flags := []string{"-e", "--elf", "-i", "--input", "-o", "--output"}
	tests := []struct {
		name   string
		args   []string
		want   []int
		values []string
	}{
		{
			name:   "separate and equals forms",
			args:   []string{"prove", "-e", "elf", "--input=in.bin", "--output", "out", "-v"},
			want:   []int{2, 3, 5},
			values: []string{"elf", "in.bin", "out"},
		},
		{
			name:   "attached short flag",
			args:   []string{"prove", "-i../../etc/passwd"},
			want:   []int{1},
			values: []string{"../../etc/passwd"},
		},
		{
			name:   "short flag with equals",
			args:   []string{"prove", "-i=in.bin", "-o=a=b"},
			want:   []int{1, 2},
			values: []string{"in.bin", "a=b"},
		},
		{
			name:   "attached value containing equals",
			args:   []string{"-oa=b"},
			want:   []int{0},
			values: []string{"a=b"},
		},
		{
			name: "unrelated flags",
			args: []string{"-v", "-xfoo", "--inputs=x", "-y"},
		},
		{
			name: "trailing flag without value",
			args: []string{"prove", "-e"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PathFlagIndices(tt.args, flags...)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("index %d = %d, want %d", i, got[i], tt.want[i])
				}
				if v := pathArgValue(tt.args[got[i]]); v != tt.values[i] {
					t.Errorf("pathArgValue(%q) = %q, want %q", tt.args[got[i]], v, tt.values[i])
				}
			}
		})
	}
}
