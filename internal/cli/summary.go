package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/stackvity/diagram-converter/pkg/converter"
)

// WriteReport writes the final report to w in the requested format.
func WriteReport(w io.Writer, report converter.Report, format converter.OutputFormat) error {
	switch format {
	case converter.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(normalizeReport(report))
	case converter.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(normalizeReport(report)); err != nil {
			return err
		}
		return enc.Close()
	case converter.OutputFormatText, "":
		_, err := io.WriteString(w, RenderTextSummary(lipgloss.NewRenderer(w), report))
		return err
	default:
		return fmt.Errorf("%w: unsupported output format '%s'", converter.ErrConfigValidation, format)
	}
}

// normalizeReport replaces nil slices so machine-readable output always carries arrays.
func normalizeReport(r converter.Report) converter.Report {
	if r.Tasks == nil {
		r.Tasks = []converter.TaskResult{}
	}
	if r.Skipped == nil {
		r.Skipped = []converter.SkippedInfo{}
	}
	if r.Errors == nil {
		r.Errors = []converter.ErrorInfo{}
	}
	return r
}

// RenderTextSummary renders the human-readable performance summary.
func RenderTextSummary(r *lipgloss.Renderer, report converter.Report) string {
	var (
		success = r.NewStyle().Foreground(lipgloss.Color("2"))
		info    = r.NewStyle().Foreground(lipgloss.Color("4"))
		failure = r.NewStyle().Foreground(lipgloss.Color("1"))
		warning = r.NewStyle().Foreground(lipgloss.Color("3"))
	)
	s := report.Summary
	var b strings.Builder

	switch s.Outcome {
	case converter.OutcomeEmpty:
		fmt.Fprintf(&b, "%s\n", warning.Render(fmt.Sprintf("No %s files found in %s", converter.InputExtension, s.SourceDir)))
		return b.String()
	case converter.OutcomeAborted:
		fmt.Fprintf(&b, "\n%s\n", failure.Render("⚠️  Conversion aborted"))
	case converter.OutcomeFailed:
		fmt.Fprintf(&b, "\n%s\n", failure.Render("💥 Conversion failed"))
	default:
		fmt.Fprintf(&b, "\n%s\n", success.Render("🎉 Conversion complete!"))
	}

	fmt.Fprintf(&b, "%s\n", info.Render("📈 Performance Summary:"))
	fmt.Fprintf(&b, "   ⏱️  Duration: %s\n", info.Render(fmt.Sprintf("%.2fs", s.DurationSeconds)))
	fmt.Fprintf(&b, "   ✅ Successfully converted: %s diagrams\n", success.Render(fmt.Sprintf("%d", s.Succeeded)))
	if s.ThroughputPerMinute != nil {
		fmt.Fprintf(&b, "   🚀 Throughput: %s\n", info.Render(fmt.Sprintf("~%.1f diagrams/minute", *s.ThroughputPerMinute)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "   ❌ Failed conversions: %s diagrams\n", failure.Render(fmt.Sprintf("%d", s.Failed)))
	}
	if s.Cached > 0 {
		fmt.Fprintf(&b, "   💾 Reused from cache: %d diagrams\n", s.Cached)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "   ⏭️  Skipped: %d files\n", s.Skipped)
	}
	if s.Dropped > 0 {
		fmt.Fprintf(&b, "   %s\n", warning.Render(fmt.Sprintf("⚠️  %d files beyond the task limit were not processed", s.Dropped)))
	}
	if unprocessed := s.TaskCount - s.Processed; s.Outcome == converter.OutcomeAborted && unprocessed > 0 {
		fmt.Fprintf(&b, "   ⏸️  Not processed: %d diagrams\n", unprocessed)
	}

	for _, e := range report.Errors {
		if e.IsFatal {
			fmt.Fprintf(&b, "%s\n", failure.Render("Fatal error: "+e.Error))
		}
	}
	return b.String()
}
