package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// parseJSON decodes a single JSON document. Integers that fit in int64 stay
// exact; everything else numeric becomes a float.
func parseJSON(data []byte, _ Options) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	p := &jsonParser{dec: dec, data: data}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, malformed("empty JSON document", nil)
		}
		return Value{}, p.syntaxError(err)
	}
	v, err := p.value(tok, 1)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return Value{}, p.syntaxError(err)
		}
		return Value{}, p.errorAt(dec.InputOffset(), "trailing data after JSON document", nil)
	}
	return v, nil
}

type jsonParser struct {
	dec  *json.Decoder
	data []byte
}

func (p *jsonParser) value(tok json.Token, depth int) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return p.number(t)
	case json.Delim:
		if depth > MaxDepth {
			return Value{}, p.errorAt(p.dec.InputOffset(), fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
		}
		switch t {
		case '[':
			return p.array(depth)
		case '{':
			return p.object(depth)
		}
	}
	return Value{}, p.errorAt(p.dec.InputOffset(), fmt.Sprintf("unexpected token %v", tok), nil)
}

func (p *jsonParser) array(depth int) (Value, error) {
	items := []Value{}
	for p.dec.More() {
		tok, err := p.dec.Token()
		if err != nil {
			return Value{}, p.syntaxError(err)
		}
		item, err := p.value(tok, depth+1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	if _, err := p.dec.Token(); err != nil {
		return Value{}, p.syntaxError(err)
	}
	return Array(items...), nil
}

func (p *jsonParser) object(depth int) (Value, error) {
	b := newObjectBuilder(8)
	for p.dec.More() {
		tok, err := p.dec.Token()
		if err != nil {
			return Value{}, p.syntaxError(err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, p.errorAt(p.dec.InputOffset(), "object key must be a string", nil)
		}
		tok, err = p.dec.Token()
		if err != nil {
			return Value{}, p.syntaxError(err)
		}
		v, err := p.value(tok, depth+1)
		if err != nil {
			return Value{}, err
		}
		b.set(key, v)
	}
	if _, err := p.dec.Token(); err != nil {
		return Value{}, p.syntaxError(err)
	}
	return b.value(), nil
}

func (p *jsonParser) number(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		// Out-of-range literals: keep the rounded value ParseFloat reports
		// unless it is infinite.
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) || isInf(f) {
			return Value{}, p.errorAt(p.dec.InputOffset(), fmt.Sprintf("number %s out of range", n), nil)
		}
	}
	return Float(f), nil
}

func (p *jsonParser) syntaxError(err error) error {
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		// Decoder offsets are relative to the current value; a full
		// validation pass reports the absolute position.
		var discard any
		var absErr *json.SyntaxError
		if errors.As(json.Unmarshal(p.data, &discard), &absErr) {
			synErr = absErr
		}
		return p.errorAt(synErr.Offset, synErr.Error(), nil)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return p.errorAt(int64(len(p.data)), "unexpected end of JSON input", nil)
	}
	return p.errorAt(p.dec.InputOffset(), "invalid JSON", err)
}

func (p *jsonParser) errorAt(offset int64, msg string, err error) *Error {
	e := malformed(msg, err)
	e.Offset = offset
	e.Line, e.Column = lineColumn(p.data, offset)
	return e
}
