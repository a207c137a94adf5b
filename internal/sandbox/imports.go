package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.starlark.net/syntax"
)

// ImportStmt is one import statement found in a snippet.
// Lines and columns are 0-based; columns count runes and End is exclusive.
type ImportStmt struct {
	Text      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Program is a parsed snippet: its source lines plus the import statements in it.
type Program struct {
	Lines   []string
	Imports []ImportStmt
}

// pythonImport matches the first line of a top-level Python-style import.
var pythonImport = regexp.MustCompile(`^(import[ \t]+\S|from[ \t]+\S+[ \t]+import[ \t])`)

// ParseImports parses src and locates every top-level import statement:
// Starlark load() calls and Python-style "import x" / "from m import a" lines,
// which models write out of habit. It fails when the rest of the snippet does
// not parse.
func ParseImports(src string) (*Program, error) {
	lines := strings.Split(src, "\n")

	imports := scanPythonImports(lines)

	// Python-style imports are not valid Starlark. Mask them so the parser
	// sees the remaining code with its line numbers and columns intact.
	masked := make([]string, len(lines))
	copy(masked, lines)
	for _, imp := range imports {
		masked[imp.StartLine] = maskSpan(masked[imp.StartLine], imp)
		for l := imp.StartLine + 1; l <= imp.EndLine; l++ {
			masked[l] = ""
		}
	}

	f, err := syntax.Parse(snippetFilename, strings.Join(masked, "\n"), 0)
	if err != nil {
		return nil, err
	}

	for _, stmt := range f.Stmts {
		load, ok := stmt.(*syntax.LoadStmt)
		if !ok {
			continue
		}
		start, end := load.Span()
		imp := ImportStmt{
			StartLine: int(start.Line) - 1,
			StartCol:  int(start.Col) - 1,
			EndLine:   int(end.Line) - 1,
			EndCol:    int(end.Col), // Rparen position, inclusive
		}
		imp.Text = describeLoad(load)
		imports = append(imports, imp)
	}

	sort.SliceStable(imports, func(i, j int) bool {
		if imports[i].StartLine != imports[j].StartLine {
			return imports[i].StartLine < imports[j].StartLine
		}
		return imports[i].StartCol < imports[j].StartCol
	})

	return &Program{Lines: lines, Imports: imports}, nil
}

// FilterImports returns a copy of p with every import statement cut out of
// its source, together with the removed statements.
func FilterImports(p *Program) (*Program, []ImportStmt) {
	if len(p.Imports) == 0 {
		return &Program{Lines: append([]string(nil), p.Lines...)}, nil
	}

	lines := make([][]rune, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = []rune(l)
	}
	removedLine := make([]bool, len(p.Lines))

	// Cut back to front so earlier spans keep their coordinates.
	for i := len(p.Imports) - 1; i >= 0; i-- {
		imp := p.Imports[i]
		head := clampRunes(lines[imp.StartLine], imp.StartCol)
		tail := []rune{}
		if imp.EndCol < len(lines[imp.EndLine]) {
			tail = lines[imp.EndLine][imp.EndCol:]
		}
		tail = []rune(strings.TrimLeft(strings.TrimLeft(strings.TrimLeft(string(tail), " \t"), ";"), " \t"))

		joined := append(append([]rune{}, head...), tail...)
		lines[imp.StartLine] = joined
		for l := imp.StartLine + 1; l <= imp.EndLine; l++ {
			lines[l] = nil
			removedLine[l] = true
		}
		if strings.TrimSpace(string(joined)) == "" {
			lines[imp.StartLine] = nil
			removedLine[imp.StartLine] = true
		}
	}

	kept := make([]string, 0, len(lines))
	for i, l := range lines {
		if removedLine[i] {
			continue
		}
		kept = append(kept, strings.TrimRight(string(l), " \t;"))
	}
	return &Program{Lines: kept}, p.Imports
}

// EmitSource renders a program back to source text.
func EmitSource(p *Program) string {
	return strings.Join(p.Lines, "\n")
}

// StripImports composes parse, filter and emit. Source that does not parse is
// returned unchanged with nothing removed.
func StripImports(src string) (string, []ImportStmt) {
	p, err := ParseImports(src)
	if err != nil {
		return src, nil
	}
	if len(p.Imports) == 0 {
		return src, nil
	}
	kept, removed := FilterImports(p)
	return EmitSource(kept), removed
}

// ImportNotice is the informational text prepended to stdout when imports were removed.
func ImportNotice(removed []ImportStmt) string {
	if len(removed) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Note: Removed %d import statement(s) for compatibility:\n", len(removed))
	for _, imp := range removed {
		fmt.Fprintf(&sb, "  - %s\n", imp.Text)
	}
	sb.WriteString("All required modules are pre-imported.\n\n")
	return sb.String()
}

// scanPythonImports finds top-level Python import statements, following
// parenthesised and backslash-continued lines. Each ';'-separated import on a
// line is its own statement. Lines inside triple-quoted strings are skipped.
func scanPythonImports(lines []string) []ImportStmt {
	var out []ImportStmt
	inString := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if inString {
			if tripleQuotes(line)%2 == 1 {
				inString = false
			}
			continue
		}
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			if tripleQuotes(line)%2 == 1 {
				inString = true
			}
			continue
		}

		runes := []rune(line)
		spans := splitStatements(runes)
		end := i
		found := false
		for k, sp := range spans {
			seg := string(runes[sp[0]:sp[1]])
			if !pythonImport.MatchString(seg) {
				continue
			}
			found = true

			imp := ImportStmt{StartLine: i, StartCol: sp[0], EndLine: i, EndCol: sp[1]}
			parts := []string{seg}
			if k == len(spans)-1 {
				// Only the last statement on a line can continue onto the next.
				open := strings.Count(seg, "(") - strings.Count(seg, ")")
				for end+1 < len(lines) && (open > 0 || strings.HasSuffix(strings.TrimRight(lines[end], " \t"), "\\")) {
					end++
					open += strings.Count(lines[end], "(") - strings.Count(lines[end], ")")
					parts = append(parts, lines[end])
				}
				if end > i {
					imp.EndLine = end
					imp.EndCol = len([]rune(lines[end]))
				}
			}
			imp.Text = importText(parts)
			out = append(out, imp)
		}
		if !found && tripleQuotes(line)%2 == 1 {
			inString = true
		}
		i = end
	}
	return out
}

// splitStatements returns the rune spans of the ';'-separated statements on a
// line, trimmed of blanks. Separators inside brackets and string literals do
// not split, and a comment ends the line.
func splitStatements(line []rune) [][2]int {
	var spans [][2]int
	start, depth := 0, 0
	var quote rune
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return appendSpan(spans, line, start, i)
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == ';' && depth == 0:
			spans = appendSpan(spans, line, start, i)
			start = i + 1
		}
	}
	return appendSpan(spans, line, start, len(line))
}

func appendSpan(spans [][2]int, line []rune, start, end int) [][2]int {
	for start < end && (line[start] == ' ' || line[start] == '\t') {
		start++
	}
	for end > start && (line[end-1] == ' ' || line[end-1] == '\t') {
		end--
	}
	if start < end {
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

// importText normalises an import statement to one line.
func importText(parts []string) string {
	text := strings.Join(parts, " ")
	text = strings.NewReplacer("\\", " ", "(", " ", ")", " ").Replace(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSuffix(strings.ReplaceAll(text, " ,", ","), ",")
}

// maskSpan replaces the part of line covered by imp with a pass statement of
// the same width. Everything after the span is dropped when imp continues
// onto later lines.
func maskSpan(line string, imp ImportStmt) string {
	r := []rune(line)
	end := len(r)
	if imp.EndLine == imp.StartLine && imp.EndCol < end {
		end = imp.EndCol
	}
	out := make([]rune, 0, len(r)+4)
	out = append(out, clampRunes(r, imp.StartCol)...)
	out = append(out, []rune("pass"+strings.Repeat(" ", max(end-imp.StartCol-4, 0)))...)
	return string(append(out, r[end:]...))
}

func describeLoad(load *syntax.LoadStmt) string {
	args := []string{fmt.Sprintf("%q", load.ModuleName())}
	// From holds the local names, To the names in the loaded module.
	for i, local := range load.From {
		orig := load.To[i].Name
		if local.Name == orig {
			args = append(args, fmt.Sprintf("%q", orig))
		} else {
			args = append(args, fmt.Sprintf("%s = %q", local.Name, orig))
		}
	}
	return "load(" + strings.Join(args, ", ") + ")"
}

func tripleQuotes(line string) int {
	return strings.Count(line, `"""`) + strings.Count(line, `'''`)
}

func clampRunes(r []rune, n int) []rune {
	if n < 0 {
		return nil
	}
	if n > len(r) {
		return r
	}
	return r[:n]
}
