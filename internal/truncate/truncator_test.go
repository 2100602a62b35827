package truncate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPassThrough(t *testing.T) {
	b := []byte("short output")
	assert.Equal(t, b, Clamp(b, 100))
	assert.Equal(t, b, Clamp(b, 0))
}

func TestClampKeepsHeadAndTail(t *testing.T) {
	b := []byte(strings.Repeat("a", 500) + strings.Repeat("z", 500))
	out := Clamp(b, 200)

	assert.LessOrEqual(t, len(out), 200)
	assert.True(t, bytes.HasPrefix(out, []byte("aaa")))
	assert.True(t, bytes.HasSuffix(out, []byte("zzz")))
	assert.Contains(t, string(out), "bytes omitted")
}

func TestClampTinyLimit(t *testing.T) {
	b := []byte(strings.Repeat("x", 100))
	out := Clamp(b, 10)
	assert.Len(t, out, 10)
}
