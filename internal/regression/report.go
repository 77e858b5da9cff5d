package regression

import (
	"fmt"
	"strings"
)

func statusEmoji(status OverallStatus) string {
	switch status {
	case StatusHealthy:
		return "✅"
	case StatusWarning:
		return "⚠️"
	case StatusCritical:
		return "🚨"
	default:
		return "❓"
	}
}

func severityEmoji(severity Severity) string {
	switch severity {
	case SeverityNone:
		return "✅"
	case SeverityMinor:
		return "ℹ️"
	case SeverityModerate:
		return "⚠️"
	case SeverityMajor:
		return "❗"
	case SeverityCritical:
		return "🚨"
	default:
		return ""
	}
}

// MarkdownReport renders the regression verdict for a run.
func MarkdownReport(analysis *RegressionAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Regression Analysis: %s\n\n", analysis.Example)
	fmt.Fprintf(&b, "**Overall status**: %s %s\n\n", statusEmoji(analysis.OverallStatus), strings.ToUpper(string(analysis.OverallStatus)))
	fmt.Fprintf(&b, "Analyzed at %s\n\n", analysis.Timestamp.Format("2006-01-02 15:04:05 MST"))

	if len(analysis.Results) == 0 {
		b.WriteString("No baselines were available; this run seeds the baselines for future comparisons.\n\n")
	} else {
		b.WriteString("## Per-Implementation Results\n\n")
		for _, r := range analysis.Results {
			fmt.Fprintf(&b, "### %s %s\n\n", severityEmoji(r.Severity), r.Implementation)
			fmt.Fprintf(&b, "- Change: %+.2f%% (%.0f ns → %.0f ns)\n",
				r.Comparison.PercentChange, r.Comparison.BaselineMean, r.Comparison.CurrentMean)
			fmt.Fprintf(&b, "- Significance: %s\n", r.Comparison.Significance)
			fmt.Fprintf(&b, "- Severity: %s\n", r.Severity)
			if r.QualityGateViolation {
				b.WriteString("- **Quality gate violated**\n")
			}
			b.WriteString("\n")
			if len(r.Recommendations) > 0 {
				b.WriteString("Action items:\n\n")
				for _, rec := range r.Recommendations {
					fmt.Fprintf(&b, "- %s\n", rec)
				}
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("## Recommendations\n\n")
	for _, rec := range analysis.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	return b.String()
}
