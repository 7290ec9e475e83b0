// Package cli renders detection reports, extracted threads and diagnostics
// for the offline command-line surface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/zackkatz/freescout-gpt-assistant/internal/adapter"
	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
	"github.com/zackkatz/freescout-gpt-assistant/internal/platform"
)

// DetectionReport is the CLI's view of a detection run.
type DetectionReport struct {
	URL      string          `json:"url"`
	Platform string          `json:"platform"`
	Votes    []platform.Vote `json:"votes"`
}

// WriteDetection renders a detection report in the requested format.
func WriteDetection(w io.Writer, report DetectionReport, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeDetectionTable(w, report)
	case "plain":
		return writeDetectionPlain(w, report)
	case "json":
		return writeJSON(w, report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeDetectionTable(w io.Writer, report DetectionReport) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	// Footer carries values, not labels; keep them as-is instead of the
	// default upper-casing.
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Strategy", "Vote", "Weight"})
	for _, v := range report.Votes {
		tw.AppendRow(table.Row{v.Strategy, v.Kind.String(), v.Weight})
	}
	tw.AppendFooter(table.Row{"result", report.Platform, ""})
	tw.Render()
	return nil
}

func writeDetectionPlain(w io.Writer, report DetectionReport) error {
	for _, v := range report.Votes {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", v.Strategy, v.Kind.String(), v.Weight); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "result\t%s\n", report.Platform)
	return err
}

// WriteThread renders extracted messages in the requested format.
func WriteThread(w io.Writer, messages []adapter.Message, format string, maxWidth int) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeThreadTable(w, messages, maxWidth)
	case "plain":
		return writeThreadPlain(w, messages)
	case "json":
		return writeJSON(w, messages)
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, m := range messages {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeThreadTable(w io.Writer, messages []adapter.Message, maxWidth int) error {
	contentWidth := 80
	if maxWidth > 40 {
		contentWidth = maxWidth - 30
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 24},
		{Number: 3, Align: text.AlignLeft, WidthMax: contentWidth},
	})
	tw.AppendHeader(table.Row{"Role", "Author", "Content"})
	for _, m := range messages {
		role := string(m.Role)
		if m.Internal {
			role += " (note)"
		}
		tw.AppendRow(table.Row{role, m.Author, m.Content})
	}
	if len(messages) == 0 {
		tw.AppendRow(table.Row{"-", "-", "(no messages)"})
	}
	tw.Render()
	return nil
}

func writeThreadPlain(w io.Writer, messages []adapter.Message) error {
	for _, m := range messages {
		note := ""
		if m.Internal {
			note = "\tnote"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s%s\n", m.Role, m.Author, escapeNewlines(m.Content), note); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth renders a health report plus metrics.
func WriteHealth(w io.Writer, health manager.Health, metrics manager.Metrics, format string) error {
	if strings.EqualFold(format, "json") {
		return writeJSON(w, map[string]any{"health": health, "metrics": metrics})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendRow(table.Row{"status", health.Status})
	tw.AppendRow(table.Row{"platform", health.Platform})
	tw.AppendRow(table.Row{"can extract thread", health.CanExtractThread})
	tw.AppendRow(table.Row{"can inject reply", health.CanInjectReply})
	tw.AppendRow(table.Row{"error count", health.ErrorCount})
	tw.AppendRow(table.Row{"init attempts", metrics.InitAttempts})
	tw.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
