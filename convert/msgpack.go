package convert

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// parseMsgpack decodes a single MessagePack object. Maps are walked in
// stream order so field order survives.
func parseMsgpack(data []byte, _ Options) (Value, error) {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	v, err := decodeMsgpack(dec, 1)
	if err != nil {
		return Value{}, wrapMsgpackErr(err, data, r)
	}
	if r.Len() > 0 {
		e := malformed("trailing data after MessagePack object", nil)
		e.Offset = int64(len(data) - r.Len())
		return Value{}, e
	}
	return v, nil
}

func wrapMsgpackErr(err error, data []byte, r *bytes.Reader) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	e := malformed("invalid MessagePack", err)
	e.Offset = int64(len(data) - r.Len())
	return e
}

func decodeMsgpack(dec *msgpack.Decoder, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, malformed(fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
	}
	code, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}
	switch {
	case code == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return Value{}, err
		}
		return Null(), nil
	case code == msgpcode.True || code == msgpcode.False:
		b, err := dec.DecodeBool()
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case code == msgpcode.Float || code == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, min(n, 1024))
		for range n {
			item, err := decodeMsgpack(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		b := newObjectBuilder(min(n, 1024))
		for range n {
			key, err := dec.DecodeString()
			if err != nil {
				return Value{}, fmt.Errorf("map key: %w", err)
			}
			v, err := decodeMsgpack(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			b.set(key, v)
		}
		return b.value(), nil
	case msgpcode.IsBin(code):
		raw, err := dec.DecodeBytes()
		if err != nil {
			return Value{}, err
		}
		return fromNative(raw, depth)
	default:
		// Integers, strings and extensions.
		x, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return Value{}, err
		}
		return fromNative(x, depth)
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder, writing objects as maps in
// field order.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeMsgpack(enc, v, 0)
}

func encodeMsgpack(enc *msgpack.Encoder, v Value, depth int) error {
	if depth > MaxDepth {
		return malformed(fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
	}
	switch v.typ {
	case TypeNull:
		return enc.EncodeNil()
	case TypeBool:
		return enc.EncodeBool(v.b)
	case TypeInt:
		return enc.EncodeInt(v.i)
	case TypeFloat:
		return enc.EncodeFloat64(v.f)
	case TypeString:
		return enc.EncodeString(v.s)
	case TypeArray:
		if err := enc.EncodeArrayLen(len(v.items)); err != nil {
			return err
		}
		for _, item := range v.items {
			if err := encodeMsgpack(enc, item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case TypeObject:
		if err := enc.EncodeMapLen(len(v.fields)); err != nil {
			return err
		}
		for _, f := range v.fields {
			if err := enc.EncodeString(f.Key); err != nil {
				return err
			}
			if err := encodeMsgpack(enc, f.Value, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return malformed(fmt.Sprintf("unknown value type %s", v.typ), nil)
	}
}
