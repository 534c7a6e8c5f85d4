package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pglens/pglens/internal/analyzer"
	"github.com/pglens/pglens/internal/comparator"
	"github.com/pglens/pglens/internal/rules"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// textWriter latches the first write error so render code can stay free
// of per-line error handling.
type textWriter struct {
	w   io.Writer
	err error
}

func (tw *textWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func RenderAnalysisText(w io.Writer, res *analyzer.Result) error {
	tw := &textWriter{w: w}

	tw.printf("%s%sPlan Summary%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  Total Cost:     %.2f\n", res.TotalCost)
	if res.ExecutionTime > 0 {
		tw.printf("  Execution Time: %.3f ms\n", res.ExecutionTime)
	}
	if res.PlanningTime > 0 {
		tw.printf("  Planning Time:  %.3f ms\n", res.PlanningTime)
	}
	tw.printf("  Nodes:          %d\n", res.Tree.NodeCount)
	if res.EstimateOnly {
		tw.printf("  %sEstimate only: no ANALYZE data, findings rest on planner estimates.%s\n", colorDim, colorReset)
	}
	tw.printf("\n")

	for _, bw := range res.BuildWarnings {
		tw.printf("  %swarning: %s at %s%s\n", colorYellow, bw.Message, bw.NodePath, colorReset)
	}
	for _, rw := range res.RuleWarnings {
		tw.printf("  %swarning: rule %s skipped: %s%s\n", colorYellow, rw.Rule, rw.Message, colorReset)
	}
	if len(res.BuildWarnings)+len(res.RuleWarnings) > 0 {
		tw.printf("\n")
	}

	if len(res.Issues) == 0 {
		tw.printf("%s%sNo issues found.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.printf("%s%sIssues (%d)%s\n\n", colorBold, colorCyan, len(res.Issues), colorReset)
	for i, issue := range res.Issues {
		label, color := severityFormat(issue.Severity)
		tw.printf("  %s%-8s%s %s\n", color, label, colorReset, issue.Message)
		tw.printf("  %s  at %s%s", colorDim, issue.NodePath, colorReset)
		if issue.Relation != "" {
			tw.printf("%s on %s%s", colorDim, issue.Relation, colorReset)
		}
		tw.printf("\n")
		if n := len(issue.Occurrences); n > 0 {
			tw.printf("  %s  %s occurrences in this session%s\n", colorDim, humanize.Comma(int64(n)), colorReset)
		}
		if i < len(res.Issues)-1 {
			tw.printf("\n")
		}
	}

	if len(res.Recommendations) == 0 {
		return tw.err
	}

	tw.printf("\n%s%sRecommendations (%d)%s\n\n", colorBold, colorCyan, len(res.Recommendations), colorReset)
	for i, rec := range res.Recommendations {
		tw.printf("  %s%d. [%s] %s%s (benefit %.2f)\n",
			colorBold, i+1, rec.Kind, rec.TargetObject, colorReset, rec.EstimatedBenefit)
		tw.printf("     %s\n", rec.Rationale)
		if rec.DDLOrPatch != "" {
			tw.printf("     %s%s%s\n", colorCyan, rec.DDLOrPatch, colorReset)
		}
		if i < len(res.Recommendations)-1 {
			tw.printf("\n")
		}
	}
	return tw.err
}

func severityFormat(s rules.Severity) (string, string) {
	switch s {
	case rules.Critical:
		return "CRITICAL", colorRed
	case rules.High:
		return "HIGH", colorRed
	case rules.Medium:
		return "MEDIUM", colorYellow
	default:
		return "LOW", colorDim
	}
}

func RenderComparisonText(w io.Writer, res *comparator.ComparisonResult) error {
	tw := &textWriter{w: w}

	tw.printf("%s%sSummary%s\n\n", colorBold, colorCyan, colorReset)
	tw.printf("  Similarity:     %.2f\n", res.Similarity)
	tw.printf("  Cost:           %s\n", formatDelta(res.CostDelta, res.CostPct, res.CostDir, "%.2f"))
	if res.TimeDelta != 0 {
		tw.printf("  Execution Time: %s\n", formatDelta(res.TimeDelta, res.TimePct, res.TimeDir, "%.3f ms"))
	}
	if res.RowEstimateDelta != 0 {
		sign := ""
		if res.RowEstimateDelta > 0 {
			sign = "+"
		}
		tw.printf("  Est. Rows:      %s%s\n", sign, humanize.Comma(res.RowEstimateDelta))
	}
	tw.printf("\n")

	if res.NodesAdded+res.NodesRemoved == 0 && res.CostDir == comparator.Unchanged && res.TimeDir == comparator.Unchanged {
		tw.printf("%s%sPlans are equivalent.%s\n", colorBold, colorGreen, colorReset)
		return tw.err
	}

	tw.printf("  Nodes: %d matched, %d added, %d removed\n\n",
		res.NodesMatched, res.NodesAdded, res.NodesRemoved)

	tw.printf("%s%sNode Details%s\n\n", colorBold, colorCyan, colorReset)
	for _, d := range res.PerNodeDiff {
		tw.renderDiff(d)
	}

	tw.printf("\n%s%sVerdict: %s%s\n", colorBold, verdictColor(res.Verdict), res.Verdict, colorReset)
	return tw.err
}

func (tw *textWriter) renderDiff(d comparator.NodeDiff) {
	switch d.ChangeType {
	case comparator.Added:
		tw.printf("  %s+ %s%s at %s (cost=%.2f)\n",
			colorGreen, diffLabel(d), colorReset, d.AfterPath, d.NewCost)
	case comparator.Removed:
		tw.printf("  %s- %s%s at %s (cost=%.2f)\n",
			colorRed, diffLabel(d), colorReset, d.BeforePath, d.OldCost)
	default:
		if d.CostDir == comparator.Unchanged && d.TimeDir == comparator.Unchanged {
			return
		}
		tw.printf("  %s~ %s%s at %s\n", colorYellow, diffLabel(d), colorReset, d.AfterPath)
		tw.printf("      cost: %.2f %s %s%.2f%s (%+.1f%%)\n",
			d.OldCost, "->", dirColor(d.CostDir), d.NewCost, colorReset, d.CostPct)
		if d.OldTime > 0 || d.NewTime > 0 {
			tw.printf("      time: %.3f ms %s %s%.3f ms%s\n",
				d.OldTime, "->", dirColor(d.TimeDir), d.NewTime, colorReset)
		}
		if d.OldRows != d.NewRows {
			tw.printf("      est. rows: %s -> %s\n",
				humanize.Comma(d.OldRows), humanize.Comma(d.NewRows))
		}
	}
}

func diffLabel(d comparator.NodeDiff) string {
	if d.Relation != "" {
		return d.NodeType + " on " + d.Relation
	}
	return d.NodeType
}

func formatDelta(delta, pct float64, dir comparator.Direction, fmtStr string) string {
	deltaStr := fmt.Sprintf("%+"+strings.TrimPrefix(fmtStr, "%"), delta)
	return fmt.Sprintf("%s%s %s (%+.1f%%)%s", dirColor(dir), deltaStr, dirArrow(dir), pct, colorReset)
}

func dirColor(dir comparator.Direction) string {
	switch dir {
	case comparator.Improved:
		return colorGreen
	case comparator.Regressed:
		return colorRed
	default:
		return colorDim
	}
}

func dirArrow(dir comparator.Direction) string {
	switch dir {
	case comparator.Improved:
		return "↓"
	case comparator.Regressed:
		return "↑"
	default:
		return "·"
	}
}

func verdictColor(verdict string) string {
	switch verdict {
	case "improved":
		return colorGreen
	case "regressed":
		return colorRed
	default:
		return colorDim
	}
}
