package device

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	body := []byte(`[
		{"_id": "00259E-HG8245H-485754430A1B2C3D",
		 "_tags": ["081234567890", "odp-07"],
		 "_lastInform": "2026-10-17T03:04:05.123Z",
		 "VirtualParameters": {"pppoeUsername": {"_value": "budi123"}}},
		{"_tags": "single"}
	]`)

	list, err := ParseList(body)
	require.NoError(t, err)
	require.Len(t, list, 2)

	d := list[0]
	assert.Equal(t, "00259E-HG8245H-485754430A1B2C3D", d.ID)
	assert.False(t, d.Synthetic)
	assert.Equal(t, []string{"081234567890", "odp-07"}, d.Tags)
	require.NotNil(t, d.LastInform)
	assert.Equal(t, 2026, d.LastInform.Year())
	assert.True(t, d.HasTag("odp-07"))
	assert.False(t, d.HasTag("odp"))

	anon := list[1]
	assert.True(t, anon.Synthetic)
	assert.True(t, strings.HasPrefix(anon.ID, SyntheticPrefix))
	assert.Equal(t, []string{"single"}, anon.Tags)
	assert.Nil(t, anon.LastInform)
}

func TestParseList_Invalid(t *testing.T) {
	_, err := ParseList([]byte(`{"not": "a list"}`))
	assert.Error(t, err)
}

func TestSyntheticIDsAreUnique(t *testing.T) {
	a := Parse(map[string]any{})
	b := Parse(map[string]any{"_id": "   "})
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, b.Synthetic)
}

func TestOnline(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-2 * time.Minute)
	d := &Device{LastInform: &seen}
	assert.True(t, d.Online(now, 5*time.Minute))
	assert.False(t, d.Online(now, time.Minute))
	assert.False(t, (&Device{}).Online(now, time.Hour))
}
