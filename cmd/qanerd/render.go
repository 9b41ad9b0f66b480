package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"qanerd/internal/agent"
	"qanerd/internal/intent"
	"qanerd/internal/store"
)

// Output formats for plan and query results.
const (
	formatText     = "text"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

var (
	accent  = lipgloss.Color("#8BC34A") // Lime Green
	muted   = lipgloss.Color("#8a94a6")
	warning = lipgloss.Color("#FFC107")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	idStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	scoreStyle = lipgloss.NewStyle().Foreground(accent)
	warnStyle  = lipgloss.NewStyle().Foreground(warning)
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// planMarkdown renders a report as markdown.
func planMarkdown(r *agent.Report) string {
	var b strings.Builder
	b.WriteString("# Regression plan\n\n")
	fmt.Fprintf(&b, "**Change:** %s\n\n", r.Change)

	scores := make(map[string]float64, len(r.Evidence))
	for _, e := range r.Evidence {
		if _, ok := scores[e.Intent.ID]; !ok {
			scores[e.Intent.ID] = e.Score
		}
	}

	b.WriteString("## Tests to rerun\n\n")
	if len(r.Plan.RerunTests) == 0 {
		b.WriteString("_None above the relevance threshold._\n")
	}
	for _, id := range r.Plan.RerunTests {
		fmt.Fprintf(&b, "- `%s` (similarity %.2f)\n", id, scores[id])
	}

	b.WriteString("\n## Risk focus\n\n")
	if len(r.Plan.RiskFocus) == 0 {
		b.WriteString("_None._\n")
	}
	for _, risk := range r.Plan.RiskFocus {
		fmt.Fprintf(&b, "- %s\n", risk)
	}

	b.WriteString("\n## New tests needed\n\n")
	if len(r.Plan.NewTestsNeeded) == 0 {
		b.WriteString("_None._\n")
	}
	for _, g := range r.Plan.NewTestsNeeded {
		fmt.Fprintf(&b, "- %s\n", g.Description)
	}

	if len(r.Evidence) > 0 {
		b.WriteString("\n## Evidence\n\n| Intent | Feature | Similarity |\n|---|---|---|\n")
		for _, e := range r.Evidence {
			fmt.Fprintf(&b, "| `%s` | %s | %.2f |\n", e.Intent.ID, e.Intent.Feature, e.Score)
		}
	}
	return b.String()
}

// renderMarkdown renders markdown for the terminal, falling back to the raw
// text when the renderer cannot be built.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// writeReport prints a plan report in the requested format.
func writeReport(w io.Writer, r *agent.Report, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, r)
	case formatMarkdown:
		_, err := io.WriteString(w, planMarkdown(r))
		return err
	case formatText, "":
		_, err := io.WriteString(w, renderMarkdown(planMarkdown(r)))
		return err
	default:
		return fmt.Errorf("unknown format %q (use text, markdown or json)", format)
	}
}

// writeResults prints query results.
func writeResults(w io.Writer, results []intent.RetrievedIntent, format string) error {
	if format == formatJSON {
		return writeJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No intents stored yet. Run `qanerd ingest` first."))
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s %s\n", i+1, idStyle.Render(r.Intent.ID), scoreStyle.Render(fmt.Sprintf("%.3f", r.Score)))
		fmt.Fprintf(w, "   %s\n", r.Intent.Summary)
		if meta := intentMeta(r.Intent); meta != "" {
			fmt.Fprintf(w, "   %s\n", mutedStyle.Render(meta))
		}
	}
	return nil
}

func intentMeta(in intent.ManualTestIntent) string {
	var parts []string
	if in.Feature != "" {
		parts = append(parts, "feature: "+in.Feature)
	}
	if len(in.RiskAreas) > 0 {
		parts = append(parts, "risks: "+strings.Join(in.RiskAreas, ", "))
	}
	if in.AutomationStatus != "" {
		parts = append(parts, "status: "+string(in.AutomationStatus))
	}
	return strings.Join(parts, " | ")
}

// writeIntent prints one intent in detail.
func writeIntent(w io.Writer, in intent.ManualTestIntent) {
	fmt.Fprintln(w, titleStyle.Render(in.ID))
	fmt.Fprintf(w, "  summary: %s\n", in.Summary)
	if meta := intentMeta(in); meta != "" {
		fmt.Fprintf(w, "  %s\n", meta)
	}
	if in.SourceRef != "" {
		fmt.Fprintf(w, "  source: %s\n", in.SourceRef)
	}
	keys := make([]string, 0, len(in.Extensions))
	for k := range in.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, in.Extensions[k])
	}
}

// writeStats prints store statistics.
func writeStats(w io.Writer, st *store.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Intent store"))
	fmt.Fprintf(w, "  intents:  %d\n", st.Intents)
	fmt.Fprintf(w, "  features: %d\n", st.Features)
	fmt.Fprintf(w, "  engine:   %s (%s)\n", st.Engine, st.Backend)
	if st.EngineError != "" {
		fmt.Fprintln(w, warnStyle.Render("  engine unreachable: "+st.EngineError))
	}
	fmt.Fprintf(w, "  schema:   v%d\n", st.SchemaVersion)
	if st.StaleEmbeddings > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d intents need `qanerd reembed`", st.StaleEmbeddings)))
	}
	writeCounts(w, "By status", st.ByStatus)
	writeCounts(w, "By risk area", st.RiskAreas)
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, titleStyle.Render(title))
	for _, k := range keys {
		fmt.Fprintf(w, "  %-16s %d\n", k, counts[k])
	}
}
