package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/sage/internal/orchestrator"
	"github.com/HendryAvila/sage/internal/semantic"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginTop(1)

	bodyStyle = lipgloss.NewStyle().
			Padding(0, 2)

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

func validateFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text, json or yaml)", format)
	}
}

// renderResponse writes resp to w in the given format.
func renderResponse(w io.Writer, resp orchestrator.Response, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		_, err := io.WriteString(w, renderText(resp))
		return err
	}
}

func renderText(resp orchestrator.Response) string {
	var b strings.Builder

	title := resp.Title
	if title == "" {
		title = strings.ToUpper(string(resp.Kind))
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("session %s · trace %s · %dms",
		resp.SessionID, resp.Meta.TraceID, resp.Meta.DurationMS)))
	b.WriteString("\n\n")
	b.WriteString(bodyStyle.Render(resp.Text))
	b.WriteString("\n")

	if len(resp.MemoryHits) > 0 {
		b.WriteString(sectionStyle.Render("Context"))
		b.WriteString("\n")
		for _, h := range resp.MemoryHits {
			b.WriteString(renderHit(h))
		}
	}

	if len(resp.UsedTools) > 0 {
		b.WriteString(sectionStyle.Render("Tools"))
		b.WriteString("\n")
		for _, r := range resp.Data {
			fmt.Fprintf(&b, "  • %s\n", r.Name)
			if s, ok := r.Result.(string); ok && s != "" {
				b.WriteString(bodyStyle.Render(semantic.Truncate(s, 400)))
				b.WriteString("\n")
			}
		}
	}

	for _, f := range resp.Meta.Failures {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  ! %s %s: %s", f.Tool, f.Kind, f.Reason)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderHit(h semantic.Hit) string {
	return fmt.Sprintf("  %s %s\n", scoreStyle.Render(fmt.Sprintf("%.2f", h.Score)), h.PathOrURL)
}
