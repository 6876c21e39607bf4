package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zisk-dev/zisk-dev/types"
)

// Allowlist is an immutable set of program names the executor may start.
type Allowlist struct {
	names map[string]struct{}
}

// DefaultPrograms returns the programs allowed without configuration.
func DefaultPrograms() []string {
	return []string{
		types.ToolCargoZisk,
		types.ToolZiskemu,
		types.ToolCargo,
		types.ToolRustup,
		types.ToolMPIRun,
		types.ToolMPIExec,
		"nproc",
		"uname",
	}
}

// NewAllowlist builds an allow-list from the default programs plus extra.
func NewAllowlist(extra ...string) *Allowlist {
	a := &Allowlist{names: make(map[string]struct{})}
	for _, name := range DefaultPrograms() {
		a.names[name] = struct{}{}
	}
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" {
			a.names[name] = struct{}{}
		}
	}
	return a
}

// Contains reports whether name is allowed.
func (a *Allowlist) Contains(name string) bool {
	_, ok := a.names[name]
	return ok
}

// Names returns the allowed names, sorted.
func (a *Allowlist) Names() []string {
	names := make([]string, 0, len(a.names))
	for n := range a.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks program and returns its allow-listed base name.
// Absolute paths are accepted when their base name is allowed; relative
// paths containing a separator never are.
func (a *Allowlist) Validate(program string) (string, error) {
	reject := func(msg string) (string, error) {
		return "", &Error{Kind: KindCommandNotAllowed, Program: program, Msg: msg}
	}
	if program == "" {
		return reject("empty program name")
	}
	if hasControl(program) {
		return reject("program name contains control characters")
	}
	name := program
	if strings.ContainsAny(program, `/\`) {
		if !filepath.IsAbs(program) {
			return reject("relative program paths are not allowed")
		}
		name = filepath.Base(program)
	}
	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	}
	if !a.Contains(name) {
		return reject("not in allow-list")
	}
	return name, nil
}

// shellMetachars are rejected in arguments. Arguments never pass through a
// shell, but a wrapper script further down the toolchain might.
const shellMetachars = ";&|$`<>(){}!*"

// SanitizeArgs strips control characters from each argument and rejects
// arguments carrying newlines or shell metacharacters. An argument that
// strips down to nothing is rejected; an argument that was empty to begin
// with is kept.
func SanitizeArgs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, "\n\r") {
			return nil, &Error{Kind: KindInvalidArguments, Msg: fmt.Sprintf("argument %d contains a line break", i)}
		}
		if j := strings.IndexAny(arg, shellMetachars); j >= 0 {
			return nil, &Error{
				Kind: KindInvalidArguments,
				Msg:  fmt.Sprintf("argument %d contains shell metacharacter %q", i, arg[j]),
			}
		}
		clean := stripControl(arg)
		if clean == "" && arg != "" {
			return nil, &Error{Kind: KindInvalidArguments, Msg: fmt.Sprintf("argument %d is empty after sanitizing", i)}
		}
		out[i] = clean
	}
	return out, nil
}

// ValidatePath checks that p stays inside root and returns its absolute,
// cleaned form. It rejects ".." segments, "~" prefixes, absolute paths when
// relativeOnly is set, and paths that resolve outside root once existing
// symlinks are followed. Inputs are never rewritten into an allowed path.
func ValidatePath(root, p string, relativeOnly bool) (string, error) {
	violation := func(msg string, err error) (string, error) {
		return "", &Error{Kind: KindPathViolation, Path: p, Msg: msg, Err: err}
	}
	if p == "" {
		return violation("empty path", nil)
	}
	if hasControl(p) {
		return violation("path contains control characters", nil)
	}
	if strings.HasPrefix(p, "~") {
		return violation("home-relative paths are not allowed", nil)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return violation("parent directory segments are not allowed", nil)
		}
	}
	if filepath.IsAbs(p) && relativeOnly {
		return violation("absolute paths are not allowed", nil)
	}
	if filepath.VolumeName(p) != "" && !filepath.IsAbs(p) {
		return violation("drive-relative paths are not allowed", nil)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return violation("resolve working directory", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)

	rootReal, err := resolveExisting(rootAbs)
	if err != nil {
		return violation("resolve working directory", err)
	}
	targetReal, err := resolveExisting(target)
	if err != nil {
		return violation("resolve path", err)
	}
	if !within(rootReal, targetReal) {
		return violation("path resolves outside the working directory", nil)
	}
	return target, nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of p
// and re-appends the missing remainder.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// PathFlagIndices returns the indices of arguments that hold paths: values
// following one of flags ("-i path"), the path part of "--flag=path" and
// short flags with the value attached ("-ipath") are all reported by index.
func PathFlagIndices(args []string, flags ...string) []int {
	set := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		set[f] = struct{}{}
	}
	var idx []int
	for i := 0; i < len(args); i++ {
		if _, ok := set[args[i]]; ok && i+1 < len(args) {
			idx = append(idx, i+1)
			i++
			continue
		}
		if name, _, ok := strings.Cut(args[i], "="); ok {
			if _, isPath := set[name]; isPath {
				idx = append(idx, i)
				continue
			}
		}
		if isShortAttached(args[i]) {
			if _, isPath := set[args[i][:2]]; isPath {
				idx = append(idx, i)
			}
		}
	}
	return idx
}

func isShortAttached(arg string) bool {
	return len(arg) > 2 && arg[0] == '-' && arg[1] != '-'
}

// pathArgValue returns the path part of an argument reported by PathFlagIndices.
func pathArgValue(arg string) string {
	if !strings.HasPrefix(arg, "-") {
		return arg
	}
	if name, value, ok := strings.Cut(arg, "="); ok && !isShortAttached(name) {
		return value
	}
	if isShortAttached(arg) {
		return arg[2:]
	}
	return arg
}

func hasControl(s string) bool {
	for _, r := range s {
		if isControl(r) {
			return true
		}
	}
	return false
}

func stripControl(s string) string {
	if !hasControl(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0)
}
