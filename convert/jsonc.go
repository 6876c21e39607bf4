package convert

import "github.com/tidwall/jsonc"

// parseJSONC strips comments and trailing commas, then parses as JSON.
// jsonc.ToJSON preserves byte offsets, so reported positions still point
// into the original file.
func parseJSONC(data []byte, opts Options) (Value, error) {
	return parseJSON(jsonc.ToJSON(data), opts)
}
