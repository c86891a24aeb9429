package hostname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	valid := []string{
		"example.com",
		"www.example.com",
		"a.b.example.com",
		"my-app.example.co.uk",
		"xn--bcher-kva.example.com",
		"0start.example.com",
	}
	for _, d := range valid {
		assert.True(t, Valid(d), "expected %q to be valid", d)
	}

	invalid := []string{
		"",
		"example",           // no TLD
		"example.c",         // TLD shorter than two chars
		"example.c0m",       // TLD must be alphabetic
		".example.com",      // empty label
		"foo..example.com",  // empty label
		"-foo.example.com",  // leading hyphen
		"foo-.example.com",  // trailing hyphen
		"foo_bar.example.com",
		strings.Repeat("a", 64) + ".example.com", // label over 63 chars
		strings.Repeat("a.", 130) + "com",        // over 253 chars total
	}
	for _, d := range invalid {
		assert.False(t, Valid(d), "expected %q to be invalid", d)
	}
}

func TestIsApex(t *testing.T) {
	assert.True(t, IsApex("example.com"))
	assert.False(t, IsApex("www.example.com"))
	assert.False(t, IsApex("a.b.example.com"))
}

func TestFirstLabel(t *testing.T) {
	assert.Equal(t, "www", FirstLabel("www.example.com"))
	assert.Equal(t, "example", FirstLabel("example.com"))
	assert.Equal(t, "app", FirstLabel("app"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "www.example.com", Normalize("  WWW.Example.COM "))
}
