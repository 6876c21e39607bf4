package convert

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxDepth is the deepest nesting accepted by every parser and serializer.
const MaxDepth = 128

// Tags of the typed binary scheme.
const (
	TagNull   byte = 0x00
	TagInt    byte = 0x01
	TagFloat  byte = 0x02
	TagString byte = 0x03
	TagArray  byte = 0x04
	TagObject byte = 0x05
)

// EncodeTyped renders v in the typed binary scheme. Booleans have no tag of
// their own and are written as the integers 1 and 0.
func EncodeTyped(v Value) ([]byte, error) {
	return appendTyped(nil, v, 0)
}

func appendTyped(buf []byte, v Value, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, malformed(fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
	}
	switch v.typ {
	case TypeNull:
		return append(buf, TagNull), nil
	case TypeBool:
		var i uint64
		if v.b {
			i = 1
		}
		buf = append(buf, TagInt)
		return binary.LittleEndian.AppendUint64(buf, i), nil
	case TypeInt:
		buf = append(buf, TagInt)
		return binary.LittleEndian.AppendUint64(buf, uint64(v.i)), nil
	case TypeFloat:
		buf = append(buf, TagFloat)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f)), nil
	case TypeString:
		buf = append(buf, TagString)
		return appendBytes32(buf, v.s)
	case TypeArray:
		if uint64(len(v.items)) > math.MaxUint32 {
			return nil, malformed("array too long for typed encoding", nil)
		}
		buf = append(buf, TagArray)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.items)))
		for _, item := range v.items {
			var err error
			if buf, err = appendTyped(buf, item, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case TypeObject:
		if uint64(len(v.fields)) > math.MaxUint32 {
			return nil, malformed("object too large for typed encoding", nil)
		}
		buf = append(buf, TagObject)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.fields)))
		for _, f := range v.fields {
			var err error
			if buf, err = appendBytes32(buf, f.Key); err != nil {
				return nil, err
			}
			if buf, err = appendTyped(buf, f.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, malformed(fmt.Sprintf("unknown value type %s", v.typ), nil)
	}
}

func appendBytes32(buf []byte, s string) ([]byte, error) {
	if uint64(len(s)) > math.MaxUint32 {
		return nil, malformed("string too long for typed encoding", nil)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...), nil
}

// DecodeTyped parses data produced by EncodeTyped. The whole input must be
// consumed by exactly one value.
func DecodeTyped(data []byte) (Value, error) {
	d := &typedDecoder{data: data}
	v, err := d.value(0)
	if err != nil {
		return Value{}, err
	}
	if d.off != len(data) {
		return Value{}, d.errorf("%d trailing bytes after value", len(data)-d.off)
	}
	return v, nil
}

type typedDecoder struct {
	data []byte
	off  int
}

func (d *typedDecoder) value(depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, d.errorf("nesting exceeds maximum depth %d", MaxDepth)
	}
	tag, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case TagNull:
		return Null(), nil
	case TagInt:
		u, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return Int(int64(u)), nil
	case TagFloat:
		u, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(u)), nil
	case TagString:
		s, err := d.readString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case TagArray:
		n, err := d.count()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, n)
		for range n {
			item, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case TagObject:
		n, err := d.count()
		if err != nil {
			return Value{}, err
		}
		fields := make([]Field, 0, n)
		for range n {
			key, err := d.readString()
			if err != nil {
				return Value{}, err
			}
			v, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: key, Value: v})
		}
		return Object(fields...), nil
	default:
		d.off--
		return Value{}, d.errorf("unknown tag 0x%02x", tag)
	}
}

func (d *typedDecoder) readByte() (byte, error) {
	if d.off >= len(d.data) {
		return 0, d.errorf("unexpected end of data")
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *typedDecoder) readUint64() (uint64, error) {
	if len(d.data)-d.off < 8 {
		return 0, d.errorf("unexpected end of data")
	}
	u := binary.LittleEndian.Uint64(d.data[d.off:])
	d.off += 8
	return u, nil
}

func (d *typedDecoder) readUint32() (uint32, error) {
	if len(d.data)-d.off < 4 {
		return 0, d.errorf("unexpected end of data")
	}
	u := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return u, nil
}

// count reads an element count and rejects counts that cannot fit in the
// remaining input, since every element takes at least one byte.
func (d *typedDecoder) count() (int, error) {
	n, err := d.readUint32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(len(d.data)-d.off) {
		return 0, d.errorf("count %d exceeds remaining %d bytes", n, len(d.data)-d.off)
	}
	return int(n), nil
}

func (d *typedDecoder) readString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(len(d.data)-d.off) {
		return "", d.errorf("string length %d exceeds remaining %d bytes", n, len(d.data)-d.off)
	}
	s := string(d.data[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *typedDecoder) errorf(format string, args ...any) *Error {
	e := malformed(fmt.Sprintf(format, args...), nil)
	e.Offset = int64(d.off)
	return e
}
