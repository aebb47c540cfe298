package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", "''"},
		{"plain", "notify-send", "notify-send"},
		{"spaces", "Download Completed", "'Download Completed'"},
		{"single quote", "Guns N' Roses", `'Guns N'"'"' Roses'`},
		{"double quotes", `display notification "x"`, `'display notification "x"'`},
		{"dollar", "$HOME", "'$HOME'"},
		{"backslash", `music\track.flac`, `'music\track.flac'`},
		{"parentheses", "Song (Remix)", "'Song (Remix)'"},
		{"ampersand", "Simon & Garfunkel", "'Simon & Garfunkel'"},
		{"unicode only", "Beyoncé", "Beyoncé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellQuote(tt.input))
		})
	}
}

func TestShellCommandLine(t *testing.T) {
	assert.Equal(t, "notify-send", ShellCommandLine("notify-send"))
	assert.Equal(t,
		`notify-send 'Download Failed' 'Guns N'"'"' Roses - Patience'`,
		ShellCommandLine("notify-send", "Download Failed", "Guns N' Roses - Patience"))
}
