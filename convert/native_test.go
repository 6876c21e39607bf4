package convert

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

func TestParseCBOR(t *testing.T) {
	data, err := cbor.Marshal(map[string]any{
		"name":  "fib",
		"n":     uint64(1000),
		"neg":   -3,
		"ratio": 0.5,
		"blob":  []byte{1, 2, 3},
		"list":  []any{true, nil},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := mustParse(t, parseCBOR, string(data), Options{})
	want := Object(
		Field{"blob", String("AQID")},
		Field{"list", Array(Bool(true), Null())},
		Field{"n", Int(1000)},
		Field{"name", String("fib")},
		Field{"neg", Int(-3)},
		Field{"ratio", Float(0.5)},
	)
	if !got.Equal(want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestParseCBOR_Rejects(t *testing.T) {
	trailing, _ := cbor.Marshal(1)
	trailing = append(trailing, 0x01)
	nonStringKey, _ := cbor.Marshal(map[int]string{1: "a"})

	for name, data := range map[string][]byte{
		"truncated":      {0x82, 0x01},
		"trailing":       trailing,
		"non-string key": nonStringKey,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := parseCBOR(data, Options{}); !IsKind(err, KindMalformedInput) {
				t.Errorf("err = %v, want malformed_input", err)
			}
		})
	}
}

func TestParseMsgpack(t *testing.T) {
	data, err := msgpack.Marshal([]any{int64(-1), uint64(7), "s", []byte("hi"), map[string]any{"k": 1.25}})
	if err != nil {
		t.Fatal(err)
	}
	got := mustParse(t, parseMsgpack, string(data), Options{})
	want := Array(Int(-1), Int(7), String("s"), String("aGk="), Object(Field{"k", Float(1.25)}))
	if !got.Equal(want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestParseMsgpack_BinaryIsLossless(t *testing.T) {
	raw := []byte{0xff, 0x00, 0xfe, 0x80}
	data, err := msgpack.Marshal(map[string]any{"blob": raw})
	if err != nil {
		t.Fatal(err)
	}
	got := mustParse(t, parseMsgpack, string(data), Options{})
	want := Object(Field{"blob", String("/wD+gA==")})
	if !got.Equal(want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestParseMsgpack_Rejects(t *testing.T) {
	one, _ := msgpack.Marshal(1)
	deep := strings.Repeat("\x91", MaxDepth+1) + "\xc0"
	for name, data := range map[string][]byte{
		"truncated": {0x92, 0x01},
		"trailing":  append(one, one...),
		"too deep":  []byte(deep),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := parseMsgpack(data, Options{}); !IsKind(err, KindMalformedInput) {
				t.Errorf("err = %v, want malformed_input", err)
			}
		})
	}
}
