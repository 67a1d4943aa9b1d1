package cli

import "strings"

const indentation = "  "

// longDesc trims the surrounding blank space of a long command description.
func longDesc(s string) string {
	return strings.TrimSpace(s)
}

// examples trims every line of s and indents it, the layout cobra expects for examples.
func examples(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indentation + strings.TrimSpace(line)
	}

	return strings.Join(lines, "\n")
}
