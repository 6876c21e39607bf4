package convert

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TextMode selects how a text source is parsed.
type TextMode string

const (
	// TextLines yields an array of the non-empty lines.
	TextLines TextMode = "lines"
	// TextCSV yields an array of objects keyed by the header row.
	TextCSV TextMode = "csv"
	// TextKeyValue yields an object from KEY=VALUE lines.
	TextKeyValue TextMode = "keyvalue"
)

// ParseTextMode parses a text mode name. Empty selects TextLines.
func ParseTextMode(s string) (TextMode, error) {
	switch m := TextMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TextLines, nil
	case TextLines, TextCSV, TextKeyValue:
		return m, nil
	default:
		return "", fmt.Errorf("invalid text mode: %q (must be lines, csv, or keyvalue)", s)
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseText(data []byte, opts Options) (Value, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	mode := opts.TextMode
	if mode == "" {
		mode = TextLines
	}
	switch mode {
	case TextLines:
		return parseLines(data), nil
	case TextCSV:
		return parseCSV(data)
	case TextKeyValue:
		return parseKeyValue(data)
	default:
		return Value{}, malformed(fmt.Sprintf("unknown text mode %q", mode), nil)
	}
}

func parseLines(data []byte) Value {
	items := []Value{}
	for _, line := range splitLines(data) {
		if line == "" {
			continue
		}
		items = append(items, String(line))
	}
	return Array(items...)
}

func parseCSV(data []byte) (Value, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Array(), nil
	}
	if err != nil {
		return Value{}, csvError(err)
	}
	// FieldsPerRecord is now len(header); mismatched rows fail with ErrFieldCount.
	rows := []Value{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Value{}, csvError(err)
		}
		b := newObjectBuilder(len(header))
		for i, name := range header {
			b.set(name, String(record[i]))
		}
		rows = append(rows, b.value())
	}
	return Array(rows...), nil
}

func csvError(err error) error {
	e := malformed("invalid CSV", err)
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		e.Line, e.Column = parseErr.Line, parseErr.Column
		if errors.Is(parseErr.Err, csv.ErrFieldCount) {
			e.Msg = "CSV row has a different number of fields than the header"
		}
	}
	return e
}

func parseKeyValue(data []byte) (Value, error) {
	b := newObjectBuilder(16)
	for i, raw := range splitLines(data) {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			e := malformed("expected KEY=VALUE", nil)
			e.Line = i + 1
			return Value{}, e
		}
		key = strings.TrimSpace(key)
		if key == "" {
			e := malformed("empty key", nil)
			e.Line = i + 1
			return Value{}, e
		}
		b.set(key, String(value))
	}
	return b.value(), nil
}

// splitLines splits on \n and drops a trailing \r from each line.
func splitLines(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
