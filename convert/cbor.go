package convert

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		MaxNestedLevels: MaxDepth,
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthAllowed,
		TagsMd:          cbor.TagsAllowed,
	}.DecMode()
	if err != nil {
		panic("convert: invalid CBOR decode options: " + err.Error())
	}
}

// parseCBOR decodes a single CBOR data item. Unknown tags are unwrapped to
// their content.
func parseCBOR(data []byte, _ Options) (Value, error) {
	var x any
	if err := cborDecMode.Unmarshal(data, &x); err != nil {
		return Value{}, malformed("invalid CBOR", err)
	}
	return fromNative(unwrapCBORTags(x), 1)
}

func unwrapCBORTags(x any) any {
	switch t := x.(type) {
	case cbor.Tag:
		return unwrapCBORTags(t.Content)
	case []any:
		for i := range t {
			t[i] = unwrapCBORTags(t[i])
		}
		return t
	case map[string]any:
		for k, v := range t {
			t[k] = unwrapCBORTags(v)
		}
		return t
	default:
		return x
	}
}
