// Package services formats investigation content for display.
package services

import (
	"fmt"
	"strings"
)

const previewLimit = 60

// FormatToolDescription summarises a snippet as the tool name plus its first
// meaningful line.
func FormatToolDescription(name, code string) string {
	line := firstCodeLine(code)
	if line == "" {
		return name
	}
	return fmt.Sprintf("%s '%s'", name, clip(line, previewLimit))
}

// PreviewOutput returns at most maxLines lines of output, noting how many
// were dropped.
func PreviewOutput(output string, maxLines int) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return "(no output)"
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}

// Headline returns the first non-blank line of text without markdown
// heading marks, clipped for a one-line display.
func Headline(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return clip(line, previewLimit)
		}
	}
	return ""
}

func firstCodeLine(code string) string {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
