package acs

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/params"
)

// Op is the comparison a Condition performs.
type Op int

const (
	OpEquals Op = iota // exact string equality
	OpRegex            // case-insensitive regular expression
)

// Condition compares the value at Path.
type Condition struct {
	Path  string
	Value string
	Op    Op
}

// Equals builds an exact-match condition.
func Equals(path, value string) Condition {
	return Condition{Path: path, Value: value, Op: OpEquals}
}

// Regex builds a case-insensitive regex condition; pattern is used verbatim.
func Regex(path, pattern string) Condition {
	return Condition{Path: path, Value: pattern, Op: OpRegex}
}

// Filter matches a device when any of its conditions does.
type Filter struct {
	Conditions []Condition
}

// Any joins conditions with OR.
func Any(conds ...Condition) Filter {
	return Filter{Conditions: conds}
}

// Query renders the filter as a GenieACS/Mongo-style query document.
// An empty filter renders as "" (whole collection).
func (f Filter) Query() (string, error) {
	if len(f.Conditions) == 0 {
		return "", nil
	}
	docs := make([]map[string]any, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		switch c.Op {
		case OpEquals:
			docs = append(docs, map[string]any{c.Path: c.Value})
		case OpRegex:
			docs = append(docs, map[string]any{c.Path: map[string]any{"$regex": c.Value, "$options": "i"}})
		default:
			return "", fmt.Errorf("acs: unknown filter op %d", c.Op)
		}
	}

	var q any = docs[0]
	if len(docs) > 1 {
		q = map[string]any{"$or": docs}
	}
	b, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("acs: encode filter: %w", err)
	}
	return string(b), nil
}

// Match evaluates the filter in memory with the same semantics the ACS
// applies: leaf wrappers are unwrapped and a list value (such as _tags)
// matches when any element does.
func (f Filter) Match(d *device.Device) bool {
	if d == nil {
		return false
	}
	for _, c := range f.Conditions {
		if c.Match(d) {
			return true
		}
	}
	return false
}

// Match evaluates one condition against d.
func (c Condition) Match(d *device.Device) bool {
	if d == nil {
		return false
	}
	raw, ok := params.Lookup(d.Tree, c.Path)
	if !ok || raw == nil {
		return false
	}
	var test func(string) bool
	switch c.Op {
	case OpEquals:
		test = func(s string) bool { return s == c.Value }
	case OpRegex:
		re, err := regexp.Compile("(?i)" + c.Value)
		if err != nil {
			return false
		}
		test = re.MatchString
	default:
		return false
	}

	if list, ok := raw.([]any); ok {
		for _, item := range list {
			if item != nil && test(scalar(item)) {
				return true
			}
		}
		return false
	}
	return test(scalar(raw))
}

func scalar(v any) string {
	return params.Value{Raw: v}.String()
}
