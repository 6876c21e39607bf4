package convert

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"
)

// fromNative converts a decoded Go value into a Value. Map keys are sorted
// because Go maps carry no order. Byte strings become standard base64 text.
func fromNative(x any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, malformed(fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth), nil)
	}
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(base64.StdEncoding.EncodeToString(t)), nil
	case big.Int:
		return fromBigInt(&t), nil
	case *big.Int:
		return fromBigInt(t), nil
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := fromNative(item, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			v, err := fromNative(t[k], depth+1)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: k, Value: v})
		}
		return Object(fields...), nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				return Value{}, malformed(fmt.Sprintf("map key of type %T is not a string", k), nil)
			}
			m[ks] = v
		}
		return fromNative(m, depth)
	default:
		return Value{}, malformed(fmt.Sprintf("unsupported value of type %T", x), nil)
	}
}

func fromBigInt(n *big.Int) Value {
	if n.IsInt64() {
		return Int(n.Int64())
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return Float(f)
}
