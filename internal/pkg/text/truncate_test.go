package text

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))

	// "价" is three bytes; cutting inside it backs off to the rune start
	got := Truncate("a价格", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))
}
