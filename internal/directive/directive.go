// Package directive recognises tool-use requests written in plain model text.
//
// Grammar (protocol version 1), line oriented:
//
//	response    := WS* directive | report
//	directive   := marker-line blank-line* fence
//	marker-line := WS* "TOOL" WS* ":" WS* tool-name WS*
//	fence       := WS* "```" lang? NL body-line* WS* "```" rest-of-line
//
// The keyword and tool name match case-insensitively. The marker must be the
// first non-blank line; text before it makes the whole response a report.
package directive

import (
	"fmt"
	"regexp"
	"strings"
)

// ProtocolVersion identifies the grammar above. Bump it when the grammar changes.
const ProtocolVersion = 1

// DefaultToolName is the executor name the marker line refers to.
const DefaultToolName = "python_executor"

const fence = "```"

// anyMarker matches a marker line naming any single tool.
var anyMarker = regexp.MustCompile(`(?i)^[ \t]*TOOL[ \t]*:[ \t]*\S+[ \t]*$`)

// Directive is the outcome of parsing one model response.
type Directive struct {
	// IsToolCall reports that the response opened with the marker line.
	IsToolCall bool
	// Code is the trimmed fenced body. Nil on a malformed directive.
	Code *string
}

// Malformed reports a marker line with no usable fenced block after it.
func (d Directive) Malformed() bool {
	return d.IsToolCall && d.Code == nil
}

// Parser recognises directives for one tool name.
type Parser struct {
	toolName string
	marker   *regexp.Regexp
}

// NewParser builds a parser for toolName; empty means DefaultToolName.
func NewParser(toolName string) *Parser {
	if strings.TrimSpace(toolName) == "" {
		toolName = DefaultToolName
	}
	toolName = strings.TrimSpace(toolName)
	return &Parser{
		toolName: toolName,
		marker:   regexp.MustCompile(`(?i)^[ \t]*TOOL[ \t]*:[ \t]*` + regexp.QuoteMeta(toolName) + `[ \t]*$`),
	}
}

// ToolName returns the executor name the parser matches.
func (p *Parser) ToolName() string {
	return p.toolName
}

// Parse classifies a model response as a tool call, a malformed tool call or a report.
func (p *Parser) Parse(response string) Directive {
	lines := splitLines(response)

	first := nextNonBlank(lines, 0)
	if first < 0 || !p.isMarker(lines[first]) {
		return Directive{}
	}

	open := nextNonBlank(lines, first+1)
	if open < 0 || !isFence(lines[open]) {
		return Directive{IsToolCall: true}
	}

	end := closingFence(lines, open+1)
	if end < 0 {
		return Directive{IsToolCall: true}
	}

	code := strings.TrimSpace(strings.Join(lines[open+1:end], "\n"))
	if code == "" {
		return Directive{IsToolCall: true}
	}
	return Directive{IsToolCall: true, Code: &code}
}

// StripTrailing removes a directive the model appended after its final report.
//
// Phase one finds the boundary: the first marker line outside any fenced block
// of the kept text that is followed by a fence opener. Unlike Parse, the
// marker may name any tool, since none of them can run once the report is final. Phase two cuts from the
// boundary to the end and trims trailing whitespace. A report without such a
// boundary is returned unchanged.
func (p *Parser) StripTrailing(report string) string {
	lines := splitLines(report)

	boundary := p.findBoundary(lines)
	if boundary < 0 {
		return report
	}
	return strings.TrimRight(strings.Join(lines[:boundary], "\n"), " \t\r\n")
}

func (p *Parser) findBoundary(lines []string) int {
	inFence := false
	for i, line := range lines {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence || !anyMarker.MatchString(strings.TrimRight(line, "\r")) {
			continue
		}
		next := nextNonBlank(lines, i+1)
		if next >= 0 && isFence(lines[next]) {
			return i
		}
	}
	return -1
}

// CorrectiveMessage is sent back when a response opens with the marker but has
// no usable fenced block.
func (p *Parser) CorrectiveMessage() string {
	return fmt.Sprintf("Your last response started with the tool marker but did not contain a complete code block. "+
		"To run code, reply with exactly this format and nothing before it:\n\n"+
		"TOOL: %s\n%spython\n# your code here\nresult = ...\n%s\n\n"+
		"If you have finished investigating, reply with the final report only.", p.toolName, fence, fence)
}

func (p *Parser) isMarker(line string) bool {
	return p.marker.MatchString(strings.TrimRight(line, "\r"))
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fence)
}

func closingFence(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if isFence(lines[i]) {
			return i
		}
	}
	return -1
}

func nextNonBlank(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
