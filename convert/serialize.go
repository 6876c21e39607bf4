package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Mode selects how a structured value is serialized into the envelope payload.
type Mode string

const (
	// ModeDefault renders canonical compact JSON text.
	ModeDefault Mode = "default"
	// ModeCompact renders the same text, verified to carry no insignificant whitespace.
	ModeCompact Mode = "compact"
	// ModeTyped renders the tagged binary scheme decoded by DecodeTyped.
	ModeTyped Mode = "typed"
	// ModeMsgpack renders MessagePack with maps in field order.
	ModeMsgpack Mode = "msgpack"
)

// ParseMode parses a serialization mode name. Empty selects ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDefault, nil
	case ModeDefault, ModeCompact, ModeTyped, ModeMsgpack:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode: %q (must be default, compact, typed, or msgpack)", s)
	}
}

// Serialize renders v as an envelope payload in the given mode.
func Serialize(v Value, mode Mode) ([]byte, error) {
	switch mode {
	case "", ModeDefault:
		return appendJSON(nil, v, 0)
	case ModeCompact:
		text, err := appendJSON(nil, v, 0)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Grow(len(text))
		if err := json.Compact(&buf, text); err != nil {
			return nil, malformed("compact rendering", err)
		}
		return buf.Bytes(), nil
	case ModeTyped:
		return EncodeTyped(v)
	case ModeMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		if err := encodeMsgpack(enc, v, 0); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, malformed(fmt.Sprintf("unknown mode %q", mode), nil)
	}
}

// appendJSON appends the compact JSON text of v to buf.
func appendJSON(buf []byte, v Value, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, malformed(fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
	}
	switch v.typ {
	case TypeNull:
		return append(buf, "null"...), nil
	case TypeBool:
		return strconv.AppendBool(buf, v.b), nil
	case TypeInt:
		return strconv.AppendInt(buf, v.i, 10), nil
	case TypeFloat:
		return appendFloat(buf, v.f)
	case TypeString:
		return appendString(buf, v.s), nil
	case TypeArray:
		buf = append(buf, '[')
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSON(buf, item, depth+1); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case TypeObject:
		buf = append(buf, '{')
		for i, f := range v.fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, f.Key)
			buf = append(buf, ':')
			var err error
			if buf, err = appendJSON(buf, f.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, malformed(fmt.Sprintf("unknown value type %s", v.typ), nil)
	}
}

// appendFloat formats like encoding/json: shortest representation, with
// exponent notation only for very small or very large magnitudes.
func appendFloat(buf []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || isInf(f) {
		return nil, malformed(fmt.Sprintf("non-finite number %v has no JSON form", f), nil)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	buf = strconv.AppendFloat(buf, f, format, -1, 64)
	if format == 'e' {
		// e-09 -> e-9
		n := len(buf)
		if n >= 4 && buf[n-4] == 'e' && buf[n-3] == '-' && buf[n-2] == '0' {
			buf[n-2] = buf[n-1]
			buf = buf[:n-1]
		}
	}
	return buf, nil
}

func isInf(f float64) bool {
	return math.IsInf(f, 0)
}

const hexDigits = "0123456789abcdef"

// appendString writes s as a JSON string. HTML characters are left as is;
// invalid UTF-8 becomes U+FFFD.
func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			buf = append(buf, s[start:i]...)
			switch c {
			case '"', '\\':
				buf = append(buf, '\\', c)
			case '\n':
				buf = append(buf, '\\', 'n')
			case '\r':
				buf = append(buf, '\\', 'r')
			case '\t':
				buf = append(buf, '\\', 't')
			case '\b':
				buf = append(buf, '\\', 'b')
			case '\f':
				buf = append(buf, '\\', 'f')
			default:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, s[start:i]...)
			buf = append(buf, `\ufffd`...)
			i += size
			start = i
			continue
		}
		if r == '\u2028' || r == '\u2029' {
			buf = append(buf, s[start:i]...)
			buf = append(buf, '\\', 'u', '2', '0', '2', hexDigits[r&0xF])
			i += size
			start = i
			continue
		}
		i += size
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}
