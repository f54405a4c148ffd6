package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariants_LocalInput(t *testing.T) {
	got := Variants("081234567890")
	assert.Equal(t, []string{"081234567890", "6281234567890", "+6281234567890", "81234567890"}, got)
}

func TestVariants_EquivalentInputsAgree(t *testing.T) {
	want := []string{"081234567890", "6281234567890", "+6281234567890", "81234567890"}
	for _, in := range []string{"6281234567890", "+6281234567890", "81234567890", "081234567890"} {
		assert.Equal(t, want, Variants(in), in)
	}
}

func TestVariants_KeepsFormattedInput(t *testing.T) {
	got := Variants(" 0812-3456-7890 ")
	assert.Equal(t, "081234567890", got[0])
	assert.Contains(t, got, "0812-3456-7890")
	assert.Len(t, got, 5)
}

func TestVariants_NoDuplicatesDeterministic(t *testing.T) {
	a := Variants("+62 812 3456 7890")
	b := Variants("+62 812 3456 7890")
	assert.Equal(t, a, b)

	seen := map[string]bool{}
	for _, v := range a {
		assert.False(t, seen[v], "duplicate %q", v)
		seen[v] = true
	}
}

func TestVariants_Empty(t *testing.T) {
	assert.Nil(t, Variants(""))
	assert.Nil(t, Variants("abc"))
	assert.Nil(t, Variants("000"))
}

func TestNormalizeAndInternational(t *testing.T) {
	assert.Equal(t, "081234567890", Normalize("+62 812-3456-7890"))
	assert.Equal(t, "6281234567890", International("081234567890"))
	assert.Equal(t, "", Normalize("n/a"))
	assert.Equal(t, "", International(""))
}

func TestLooksLikePhone(t *testing.T) {
	assert.True(t, LooksLikePhone("081234567890"))
	assert.True(t, LooksLikePhone("+62 812-3456-7890"))
	assert.False(t, LooksLikePhone("budi123"))
	assert.False(t, LooksLikePhone("1234"))
	assert.False(t, LooksLikePhone("ZTEG12345678"))
}
