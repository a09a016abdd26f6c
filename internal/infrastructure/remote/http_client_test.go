package remote

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBody(t *testing.T) {
	t.Run("short body unchanged", func(t *testing.T) {
		assert.Equal(t, "bad gateway", truncateBody([]byte("bad gateway")))
	})

	t.Run("cut lands inside a rune", func(t *testing.T) {
		raw := []byte(strings.Repeat("a", 511) + "é error page")
		got := truncateBody(raw)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("a", 511)+"...", got)
	})

	t.Run("invalid bytes are replaced", func(t *testing.T) {
		got := truncateBody([]byte{'o', 'k', 0xff, '!'})
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "ok�!", got)
	})
}
