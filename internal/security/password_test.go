package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIsLowercaseHexSHA256(t *testing.T) {
	got := Hash("1234")
	assert.Equal(t, "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", got)
	assert.Len(t, got, 64)
	assert.True(t, LooksHashed(got))
}

func TestLooksHashed(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "digest", value: Hash("secret"), want: true},
		{name: "uppercase digest", value: strings.ToUpper(Hash("secret")), want: true},
		{name: "all zeros", value: strings.Repeat("0", 64), want: true},
		{name: "short", value: "abc123", want: false},
		{name: "too long", value: strings.Repeat("a", 65), want: false},
		{name: "non hex", value: strings.Repeat("g", 64), want: false},
		{name: "empty", value: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksHashed(tt.value))
		})
	}
}

func TestRehashIfPlaintext(t *testing.T) {
	hashed, changed := RehashIfPlaintext("5678")
	assert.True(t, changed)
	assert.Equal(t, Hash("5678"), hashed)

	again, changed := RehashIfPlaintext(hashed)
	assert.False(t, changed)
	assert.Equal(t, hashed, again)

	lowered, changed := RehashIfPlaintext(strings.ToUpper(hashed))
	assert.True(t, changed)
	assert.Equal(t, hashed, lowered)

	blank, changed := RehashIfPlaintext("")
	assert.False(t, changed)
	assert.Empty(t, blank)
}

// A 64-hex plaintext cannot be told apart from a digest and stays as typed.
func TestRehashLeavesHexShapedPlaintext(t *testing.T) {
	plaintext := strings.Repeat("ab", 32)
	got, changed := RehashIfPlaintext(plaintext)
	assert.False(t, changed)
	assert.Equal(t, plaintext, got)
}

func TestMatches(t *testing.T) {
	stored := Hash("1234")
	assert.True(t, Matches(Hash("1234"), stored))
	assert.False(t, Matches(Hash("4321"), stored))
	assert.False(t, Matches("", stored))
	assert.False(t, Matches("", ""))
}
