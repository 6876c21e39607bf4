package convert

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// FormatKind tags the strategy a Format uses.
type FormatKind int

const (
	// FormatJSON parses JSON documents.
	FormatJSON FormatKind = iota + 1
	// FormatYAML parses YAML documents.
	FormatYAML
	// FormatText parses plain text according to a TextMode.
	FormatText
	// FormatBinary copies bytes through unchanged, without an envelope.
	FormatBinary
	// FormatCustom is any other registered parser.
	FormatCustom
)

func (k FormatKind) String() string {
	switch k {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	case FormatCustom:
		return "custom"
	default:
		return fmt.Sprintf("format(%d)", int(k))
	}
}

// ParseFunc turns raw source bytes into a Value.
type ParseFunc func(data []byte, opts Options) (Value, error)

// Format describes how files with the given extensions are parsed.
// Parse is nil only for FormatBinary.
type Format struct {
	Name       string
	Kind       FormatKind
	Extensions []string
	Parse      ParseFunc
}

// Built-in formats.
var (
	JSON = Format{Name: "json", Kind: FormatJSON, Extensions: []string{".json"}, Parse: parseJSON}
	YAML = Format{Name: "yaml", Kind: FormatYAML, Extensions: []string{".yaml", ".yml"}, Parse: parseYAML}
	Text = Format{Name: "text", Kind: FormatText, Extensions: []string{".txt"}, Parse: parseText}
	// Binary inputs are assumed wire-ready and copied byte for byte.
	Binary = Format{Name: "binary", Kind: FormatBinary, Extensions: []string{".bin"}}

	JSONC   = Format{Name: "jsonc", Kind: FormatCustom, Extensions: []string{".jsonc"}, Parse: parseJSONC}
	CBOR    = Format{Name: "cbor", Kind: FormatCustom, Extensions: []string{".cbor"}, Parse: parseCBOR}
	Msgpack = Format{Name: "msgpack", Kind: FormatCustom, Extensions: []string{".msgpack", ".mpk"}, Parse: parseMsgpack}
)

// BuiltinFormats returns the formats every Registry starts with.
func BuiltinFormats() []Format {
	return []Format{JSON, YAML, Text, Binary, JSONC, CBOR, Msgpack}
}

// Registry maps file extensions to formats. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byExt map[string]Format
}

// NewRegistry builds a registry from the built-in formats plus custom ones.
// Custom formats may not reuse an extension already registered.
func NewRegistry(custom ...Format) (*Registry, error) {
	r := &Registry{byExt: make(map[string]Format)}
	for _, f := range BuiltinFormats() {
		if err := r.add(f); err != nil {
			return nil, err
		}
	}
	for _, f := range custom {
		if f.Kind != FormatBinary && f.Parse == nil {
			return nil, fmt.Errorf("format %q has no parser", f.Name)
		}
		if f.Kind == 0 {
			f.Kind = FormatCustom
		}
		if err := r.add(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for static format sets; it panics on error.
func MustRegistry(custom ...Format) *Registry {
	r, err := NewRegistry(custom...)
	if err != nil {
		panic("convert: " + err.Error())
	}
	return r
}

func (r *Registry) add(f Format) error {
	if len(f.Extensions) == 0 {
		return fmt.Errorf("format %q has no extensions", f.Name)
	}
	for _, ext := range f.Extensions {
		ext = normalizeExt(ext)
		if ext == "." {
			return fmt.Errorf("format %q has an empty extension", f.Name)
		}
		if existing, ok := r.byExt[ext]; ok {
			return fmt.Errorf("extension %s already registered by format %q", ext, existing.Name)
		}
		r.byExt[ext] = f
	}
	return nil
}

// Lookup returns the format for path's extension.
func (r *Registry) Lookup(path string) (Format, error) {
	ext := normalizeExt(filepath.Ext(path))
	if f, ok := r.byExt[ext]; ok {
		return f, nil
	}
	return Format{}, &Error{
		Kind: KindUnsupportedFormat,
		Path: path,
		Msg:  fmt.Sprintf("unsupported extension %q (supported: %s)", filepath.Ext(path), strings.Join(r.Extensions(), ", ")),
	}
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
