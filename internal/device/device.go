// Package device models a managed CPE as exposed by the ACS: an opaque,
// vendor-shaped attribute tree plus the few top-level fields every record has.
package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved top-level keys of an ACS device document.
const (
	KeyID         = "_id"
	KeyTags       = "_tags"
	KeyLastInform = "_lastInform"
)

// SyntheticPrefix marks placeholder IDs generated for records the ACS returned without one.
const SyntheticPrefix = "unknown-"

// Device is one record of the device collection. Tree is the whole document
// (reserved keys included) and is treated as read-only once parsed.
type Device struct {
	ID         string
	Tags       []string
	LastInform *time.Time
	Tree       map[string]any
	// Synthetic is set when ID was generated locally; such a device is only
	// ever displayed, never matched to a customer.
	Synthetic bool
}

// Parse builds a Device from a decoded ACS document.
func Parse(doc map[string]any) *Device {
	if doc == nil {
		doc = map[string]any{}
	}
	d := &Device{Tree: doc}

	if id, ok := doc[KeyID].(string); ok && strings.TrimSpace(id) != "" {
		d.ID = id
	} else {
		d.ID = SyntheticPrefix + uuid.NewString()
		d.Synthetic = true
	}

	d.Tags = parseTags(doc[KeyTags])

	if s, ok := doc[KeyLastInform].(string); ok && s != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			d.LastInform = &ts
		}
	}
	return d
}

// ParseList decodes a JSON array of device documents.
func ParseList(body []byte) ([]*Device, error) {
	var docs []map[string]any
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("decode device list: %w", err)
	}
	out := make([]*Device, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Parse(doc))
	}
	return out, nil
}

// ParseOne decodes a single JSON device document.
func ParseOne(body []byte) (*Device, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode device: %w", err)
	}
	return Parse(doc), nil
}

func parseTags(v any) []string {
	switch tags := v.(type) {
	case []any:
		out := make([]string, 0, len(tags))
		for _, t := range tags {
			if s, ok := t.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), tags...)
	case string:
		if tags != "" {
			return []string{tags}
		}
	}
	return nil
}

// HasTag reports whether tag is attached to the device (exact match).
func (d *Device) HasTag(tag string) bool {
	if d == nil {
		return false
	}
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DefaultOnlineWindow is how recent the last inform must be for a device to count as online.
const DefaultOnlineWindow = 5 * time.Minute

// Online reports whether the device informed within window of now.
func (d *Device) Online(now time.Time, window time.Duration) bool {
	if d == nil || d.LastInform == nil {
		return false
	}
	return now.Sub(*d.LastInform) <= window
}
