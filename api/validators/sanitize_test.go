package validators

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStringCountsCharacters(t *testing.T) {
	name := strings.Repeat("あ", 64)
	assert.Equal(t, name, SanitizeString("  "+name+"  ", 64), "64 characters fit a 64 character cap")

	cut := SanitizeString(strings.Repeat("光", 70), 64)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 64, utf8.RuneCountInString(cut))

	assert.Equal(t, "sora", SanitizeString(" sora ", 0))
	assert.Equal(t, "so", SanitizeString("sora", 2))
}
