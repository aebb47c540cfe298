package infrastructure

import "strings"

// shellMeta lists the characters a POSIX shell would interpret
const shellMeta = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ShellQuote renders s the way it would have to be typed in a shell. It is
// only used to log commands; exec.Command never goes through a shell.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellMeta) {
		return s
	}
	// Close the quote, emit a double-quoted ', reopen
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellCommandLine joins a binary and its arguments into one loggable line
func ShellCommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellQuote(binary))
	for _, arg := range args {
		parts = append(parts, ShellQuote(arg))
	}
	return strings.Join(parts, " ")
}
