// Package params pulls logical values out of the vendor-shaped device tree.
//
// Every field is described by an ordered list of dotted candidate paths. The
// first candidate that resolves to an acceptable value wins; everything else
// (missing segments, empty strings, garbage where a number is expected)
// silently falls through to the next candidate.
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/taoyao-code/isp-ops/internal/device"
)

// Leaf wrapper keys, tried in order. GenieACS stores leaves as {"_value": ...}.
var valueKeys = []string{"_value", "value"}

// Value is a successfully extracted value and the path it came from.
type Value struct {
	Raw  any
	Path string
}

// String renders the value for display.
func (v Value) String() string {
	switch x := v.Raw.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Float returns the value as a finite float64.
func (v Value) Float() (float64, bool) {
	return toFloat(v.Raw)
}

// Lookup walks a dotted path through tree and unwraps a leaf wrapper.
// It reports false only when a segment is missing or not traversable.
func Lookup(tree map[string]any, path string) (any, bool) {
	if tree == nil || path == "" {
		return nil, false
	}
	var node any = tree
	for _, seg := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if m, ok := node.(map[string]any); ok {
		for _, k := range valueKeys {
			if v, ok := m[k]; ok {
				return v, true
			}
		}
	}
	return node, true
}

// Extract returns the first acceptable value among paths.
func Extract(d *device.Device, paths []string) (Value, bool) {
	return ExtractField(d, FieldSpec{Paths: paths})
}

// ExtractField applies spec's candidate list to d.
func ExtractField(d *device.Device, spec FieldSpec) (Value, bool) {
	if d == nil || len(spec.Paths) == 0 {
		return Value{}, false
	}
	for _, path := range spec.Paths {
		raw, ok := Lookup(d.Tree, path)
		if !ok {
			continue
		}
		if v, ok := accept(raw, spec, path); ok {
			return Value{Raw: v, Path: path}, true
		}
	}
	return Value{}, false
}

// Get extracts field from d using the table.
func (t *Table) Get(d *device.Device, field Field) (Value, bool) {
	spec, ok := t.Spec(field)
	if !ok {
		return Value{}, false
	}
	return ExtractField(d, spec)
}

func accept(raw any, spec FieldSpec, path string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	if spec.JoinList || path == TagsPath {
		if list, ok := raw.([]any); ok {
			joined := joinList(list)
			if joined == "" {
				return nil, false
			}
			return joined, true
		}
	}
	if s, ok := raw.(string); ok && s == "" {
		return nil, false
	}
	if spec.Numeric {
		f, ok := toFloat(raw)
		if !ok {
			return nil, false
		}
		return f, true
	}
	return raw, true
}

func joinList(list []any) string {
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		s := fmt.Sprint(item)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
