package views

import (
	"strings"

	"github.com/Cyclone1070/triage/internal/ui/models"
	"github.com/Cyclone1070/triage/internal/ui/services"
)

const outputPreviewLines = 8

// RenderLog renders the investigation log
func RenderLog(s models.State) string {
	if len(s.Entries) == 0 && !s.Done {
		return "Waiting for the model..."
	}
	return s.Viewport.View()
}

// FormatLogContent formats the entries (and the report, once done) for the viewport.
func FormatLogContent(s models.State, width int, renderer services.MarkdownRenderer) string {
	var lines []string
	for _, e := range s.Entries {
		switch e.Kind {
		case models.EntryTool:
			style, mark := ToolOKStyle, "✔"
			if !e.Success {
				style, mark = ToolFailStyle, "✘"
			}
			lines = append(lines, style.Render(mark+" "+e.Title))
			if e.Body != "" {
				lines = append(lines, OutputStyle.Render(services.PreviewOutput(e.Body, outputPreviewLines)))
			}
		case models.EntryRetry, models.EntryMalformed:
			lines = append(lines, WarnStyle.Render("! "+e.Title))
		default:
			lines = append(lines, ModelEntryStyle.Render("● "+e.Title))
		}
	}

	if s.Done && s.Report != "" {
		lines = append(lines, "")
		rendered, err := services.RenderMarkdown(s.Report, width, renderer)
		if err != nil {
			rendered = s.Report
		}
		lines = append(lines, rendered)
	}
	return strings.Join(lines, "\n")
}
