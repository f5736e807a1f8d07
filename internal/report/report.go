// Package report renders an AnalysisResult for human or machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/threatflux/pkgscan/internal/risk"
)

// Output formats.
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Renderer writes analysis results in a fixed format.
type Renderer struct {
	w      io.Writer
	format string
}

// New creates a Renderer. An empty format selects terminal output.
func New(w io.Writer, format string) *Renderer {
	if format == "" {
		format = FormatTerminal
	}
	return &Renderer{w: w, format: format}
}

// Render writes the result.
func (r *Renderer) Render(result *risk.AnalysisResult) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(result)
	case FormatMarkdown:
		return r.renderMarkdown(result)
	case FormatTerminal:
		return r.renderTerminal(result)
	default:
		return fmt.Errorf("unknown report format %q", r.format)
	}
}

func (r *Renderer) renderJSON(result *risk.AnalysisResult) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func levelColor(l risk.Level) *color.Color {
	switch l {
	case risk.LevelCritical:
		return color.New(color.FgRed, color.Bold)
	case risk.LevelHigh:
		return color.New(color.FgRed)
	case risk.LevelMedium:
		return color.New(color.FgYellow)
	case risk.LevelLow:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func severityColor(s risk.Severity) *color.Color {
	switch s {
	case risk.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case risk.SeverityHigh:
		return color.New(color.FgRed)
	case risk.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func (r *Renderer) renderTerminal(result *risk.AnalysisResult) error {
	score := result.Assessment.Score
	pkg := result.Package

	fmt.Fprintf(r.w, "Package:   %s@%s (%s)\n", pkg.Name(), pkg.Version(), pkg.Type)
	fmt.Fprintf(r.w, "Risk:      %s (%.1f/100)\n", levelColor(score.Level).Sprint(strings.ToUpper(score.Level.String())), score.Overall)
	r.printRiskBar(score.Overall, score.Level)
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, "Components:")
	for _, name := range []string{"malicious_code", "vulnerability", "supply_chain", "typosquatting"} {
		fmt.Fprintf(r.w, "  %-16s %6.1f\n", name, score.Component(name))
	}
	fmt.Fprintln(r.w)

	if len(result.Assessment.Vulnerabilities) > 0 {
		fmt.Fprintln(r.w, "Vulnerabilities:")
		for _, v := range result.Assessment.Vulnerabilities {
			id := v.CVEID
			if id == "" {
				id = v.AdvisoryID
			}
			fmt.Fprintf(r.w, "  [%4.1f] %s %s (%s %s)\n", v.Severity, id, v.Description, v.Dependency, v.VersionRange)
		}
		fmt.Fprintln(r.w)
	}

	if len(result.Assessment.MaliciousPatterns) > 0 {
		fmt.Fprintln(r.w, "Malicious patterns:")
		for _, p := range result.Assessment.MaliciousPatterns {
			fmt.Fprintf(r.w, "  %s %s at %s: %s\n", severityColor(p.Severity).Sprintf("[%s]", p.Severity), p.Name, p.Location, p.Description)
		}
		fmt.Fprintln(r.w)
	}

	if t := result.Typosquatting; t != nil && t.Flagged {
		fmt.Fprintf(r.w, "Possible typosquatting of: %s (confidence %.2f)\n\n", strings.Join(t.SimilarPackages, ", "), t.Confidence)
	}

	fmt.Fprintf(r.w, "Dependencies: %d direct+transitive, depth %d\n",
		result.DependencyAnalysis.Breadth, result.DependencyAnalysis.ResolvedDepth)
	if q := result.Quality; q.Computed {
		fmt.Fprintf(r.w, "Quality: docs %.2f, maintenance %.2f, tests %v, ci %v\n",
			q.DocumentationScore, q.MaintenanceScore, q.HasTests, q.HasCICD)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(r.w, "warning: %s (%s): %s\n", w.Source, w.Subject, w.Message)
	}
	return nil
}

const barWidth = 40

func (r *Renderer) printRiskBar(overall float64, level risk.Level) {
	filled := int(overall / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(r.w, "           %s\n", levelColor(level).Sprint(bar))
}

func (r *Renderer) renderMarkdown(result *risk.AnalysisResult) error {
	score := result.Assessment.Score
	pkg := result.Package

	fmt.Fprintf(r.w, "# Risk report: %s@%s\n\n", pkg.Name(), pkg.Version())
	fmt.Fprintf(r.w, "**Overall risk:** %s (%.1f/100)\n\n", strings.ToUpper(score.Level.String()), score.Overall)

	fmt.Fprintln(r.w, "| Component | Score |")
	fmt.Fprintln(r.w, "|-----------|-------|")
	for _, name := range []string{"malicious_code", "vulnerability", "supply_chain", "typosquatting"} {
		fmt.Fprintf(r.w, "| %s | %.1f |\n", name, score.Component(name))
	}
	fmt.Fprintln(r.w)

	if len(result.Assessment.Vulnerabilities) > 0 {
		fmt.Fprintln(r.w, "## Vulnerabilities")
		for _, v := range result.Assessment.Vulnerabilities {
			id := v.CVEID
			if id == "" {
				id = v.AdvisoryID
			}
			fmt.Fprintf(r.w, "- **%s** (%.1f) in `%s` %s — %s\n", id, v.Severity, v.Dependency, v.VersionRange, v.Description)
		}
		fmt.Fprintln(r.w)
	}

	if len(result.Assessment.MaliciousPatterns) > 0 {
		fmt.Fprintln(r.w, "## Malicious patterns")
		for _, p := range result.Assessment.MaliciousPatterns {
			fmt.Fprintf(r.w, "- **%s** (%s) at `%s` — %s\n", p.Name, p.Severity, p.Location, p.Description)
		}
		fmt.Fprintln(r.w)
	}

	if t := result.Typosquatting; t != nil && t.Flagged {
		fmt.Fprintf(r.w, "## Typosquatting\n\nSimilar to: %s (confidence %.2f)\n", strings.Join(t.SimilarPackages, ", "), t.Confidence)
	}
	return nil
}
