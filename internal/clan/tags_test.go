package clan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTag(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"#abc123", "#ABC123"},
		{"abc123", "#ABC123"},
		{" #a b-c ", "#ABC"},
		{"#OO88", "#0088"},
		{"##PYL", "#PYL"},
		{"", "#"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeTag(tc.in), "input %q", tc.in)
	}
}

func TestValidTag(t *testing.T) {
	assert.True(t, ValidTag("#PYL029"))
	assert.True(t, ValidTag(NormalizeTag("#2pp")))

	assert.False(t, ValidTag("PYL029"), "missing prefix")
	assert.False(t, ValidTag("#PY"), "too short")
	assert.False(t, ValidTag("#ABIZ"), "characters outside the tag alphabet")
	assert.False(t, ValidTag(""))
}
