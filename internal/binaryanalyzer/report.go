package binaryanalyzer

import (
	"fmt"
	"strings"
)

// MarkdownReport renders a per-implementation binary size report.
func MarkdownReport(implementation string, analysis *BinarySizeAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Binary Size Analysis: %s\n\n", implementation)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total size**: %s\n", formatBytes(analysis.TotalSizeBytes))
	fmt.Fprintf(&b, "- **Stripped size**: %s\n", formatBytes(analysis.StrippedSizeBytes))
	fmt.Fprintf(&b, "- **Debug overhead**: %.1f%%\n", analysis.DebugPercentage)
	if analysis.Compression.Recommended != "" && analysis.Compression.Recommended != "none" {
		fmt.Fprintf(&b, "- **Compression**: %s would reduce transfer size by %.0f%%\n",
			analysis.Compression.Recommended, bestRatio(analysis.Compression)*100)
	}
	if analysis.Dependencies.DynamicDependencies > 0 {
		fmt.Fprintf(&b, "- **Dynamic dependencies**: %d\n", analysis.Dependencies.DynamicDependencies)
	}
	b.WriteString("\n")

	if len(analysis.Sections) > 0 {
		b.WriteString("## Section Breakdown\n\n")
		b.WriteString("| Section | Size | Share | Type |\n")
		b.WriteString("|---------|------|-------|------|\n")
		for _, s := range analysis.Sections {
			fmt.Fprintf(&b, "| %s | %s | %.1f%% | %s |\n", s.Name, formatBytes(s.SizeBytes), s.Percentage, s.Type)
		}
		b.WriteString("\n")
	}

	if analysis.Symbols.TotalSymbols > 0 {
		b.WriteString("## Symbols\n\n")
		fmt.Fprintf(&b, "- %d symbols (%d exported, %d local), bloat score %.0f/100\n\n",
			analysis.Symbols.TotalSymbols, analysis.Symbols.ExportedSymbols,
			analysis.Symbols.LocalSymbols, analysis.Symbols.BloatScore)
	}

	b.WriteString("## Optimization Opportunities\n\n")
	for _, o := range analysis.Opportunities {
		fmt.Fprintf(&b, "- **%s** (difficulty %d/5, ~%s): %s. %s\n",
			o.Kind, o.Difficulty, formatBytes(o.EstimatedSavingsBytes), o.Description, o.Action)
	}

	return b.String()
}

func bestRatio(c CompressionAnalysis) float64 {
	if c.ZstdRatio > c.GzipRatio {
		return c.ZstdRatio
	}
	return c.GzipRatio
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
