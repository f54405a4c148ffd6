package params

import (
	"strconv"

	"github.com/taoyao-code/isp-ops/internal/device"
)

// Placeholder is shown for absent values at the presentation boundary.
const Placeholder = "-"

// Summary holds the present fields of one device, keyed by logical field.
type Summary struct {
	DeviceID string
	Values   map[Field]Value
}

// Summarize extracts every field of the table from d.
func (t *Table) Summarize(d *device.Device) Summary {
	s := Summary{Values: make(map[Field]Value)}
	if d == nil {
		return s
	}
	s.DeviceID = d.ID
	for field, spec := range t.Fields {
		if v, ok := ExtractField(d, spec); ok {
			s.Values[field] = v
		}
	}
	return s
}

// Display returns the field's display text or Placeholder when absent.
func (s Summary) Display(field Field) string {
	v, ok := s.Values[field]
	if !ok {
		return Placeholder
	}
	if f, ok := v.Raw.(float64); ok && (field == FieldRXPower || field == FieldTXPower) {
		return strconv.FormatFloat(f, 'f', 2, 64) + " dBm"
	}
	return v.String()
}

// Map renders the summary as field name to display text, absent fields included.
func (s Summary) Map(fields []Field) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[string(f)] = s.Display(f)
	}
	return out
}
