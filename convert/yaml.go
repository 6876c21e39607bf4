package convert

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// maxYAMLNodes bounds the number of nodes visited while expanding aliases.
const maxYAMLNodes = 1 << 20

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// parseYAML decodes a single YAML document, keeping mapping key order.
func parseYAML(data []byte, _ Options) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		e := malformed("invalid YAML", err)
		var typeErr *yaml.TypeError
		msg := err.Error()
		if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
			msg = typeErr.Errors[0]
		}
		if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
			e.Line, _ = strconv.Atoi(m[1])
		}
		return Value{}, e
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	w := &yamlWalker{}
	return w.node(&doc, 0)
}

type yamlWalker struct {
	visited int
}

func (w *yamlWalker) node(n *yaml.Node, depth int) (Value, error) {
	w.visited++
	if w.visited > maxYAMLNodes {
		return Value{}, w.errorAt(n, fmt.Sprintf("document expands to more than %d nodes", maxYAMLNodes))
	}
	if depth > MaxDepth {
		return Value{}, w.errorAt(n, fmt.Sprintf("nesting exceeds maximum depth %d", MaxDepth))
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return w.node(n.Content[0], depth)
	case yaml.AliasNode:
		if n.Alias == nil {
			return Value{}, w.errorAt(n, "unresolved alias")
		}
		return w.node(n.Alias, depth)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := w.node(c, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case yaml.MappingNode:
		return w.mapping(n, depth)
	case yaml.ScalarNode:
		return w.scalar(n)
	default:
		return Value{}, w.errorAt(n, fmt.Sprintf("unsupported YAML node kind %d", n.Kind))
	}
}

// mapping converts a mapping node. Keys merged in through "<<" never
// override keys written explicitly in the mapping.
func (w *yamlWalker) mapping(n *yaml.Node, depth int) (Value, error) {
	b := newObjectBuilder(len(n.Content) / 2)
	var merged []Field
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
			fields, err := w.merge(v, depth)
			if err != nil {
				return Value{}, err
			}
			merged = append(merged, fields...)
			continue
		}
		if k.Kind != yaml.ScalarNode {
			return Value{}, w.errorAt(k, "mapping keys must be scalars")
		}
		val, err := w.node(v, depth+1)
		if err != nil {
			return Value{}, err
		}
		b.set(k.Value, val)
	}
	for _, f := range merged {
		if _, ok := b.index[f.Key]; !ok {
			b.set(f.Key, f.Value)
		}
	}
	return b.value(), nil
}

func (w *yamlWalker) merge(n *yaml.Node, depth int) ([]Field, error) {
	target := n
	if target.Kind == yaml.AliasNode && target.Alias != nil {
		target = target.Alias
	}
	switch target.Kind {
	case yaml.MappingNode:
		v, err := w.mapping(target, depth)
		if err != nil {
			return nil, err
		}
		return v.Fields(), nil
	case yaml.SequenceNode:
		// Earlier entries in a merge sequence win.
		b := newObjectBuilder(len(target.Content))
		for _, c := range target.Content {
			fields, err := w.merge(c, depth)
			if err != nil {
				return nil, err
			}
			for _, f := range fields {
				if _, ok := b.index[f.Key]; !ok {
					b.set(f.Key, f.Value)
				}
			}
		}
		return b.fields, nil
	default:
		return nil, w.errorAt(n, "merge value must be a mapping or a sequence of mappings")
	}
}

func (w *yamlWalker) scalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, w.errorAt(n, "invalid boolean "+strconv.Quote(n.Value))
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil || math.IsInf(f, 0) {
			return Value{}, w.errorAt(n, "integer out of range "+strconv.Quote(n.Value))
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, w.errorAt(n, "invalid float "+strconv.Quote(n.Value))
		}
		return Float(f), nil
	default:
		// !!str, !!binary, !!timestamp and application tags keep their text.
		return String(n.Value), nil
	}
}

func (w *yamlWalker) errorAt(n *yaml.Node, msg string) *Error {
	e := malformed(msg, nil)
	e.Line, e.Column = n.Line, n.Column
	return e
}
