package memprofiler

import (
	"fmt"
	"strings"
)

// MarkdownReport renders a per-implementation memory profile report.
func MarkdownReport(implementation string, profile *MemoryProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Memory Profile: %s\n\n", implementation)

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Peak RSS**: %s\n", formatBytes(profile.PeakRSSBytes))
	fmt.Fprintf(&b, "- **Average RSS**: %s\n", formatBytes(profile.AverageRSSBytes))
	fmt.Fprintf(&b, "- **Memory overhead**: %.1f%%\n", profile.Efficiency.OverheadPercent)
	if profile.LeakDetected {
		fmt.Fprintf(&b, "- **Potential leak**: %+d bytes between first and last snapshot\n", profile.MemoryLeakBytes)
	} else {
		b.WriteString("- **Leak check**: no significant growth detected\n")
	}
	b.WriteString("\n")

	b.WriteString("## Detailed Metrics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Initial RSS | %s |\n", formatBytes(profile.InitialRSSBytes))
	fmt.Fprintf(&b, "| Final RSS | %s |\n", formatBytes(profile.FinalRSSBytes))
	fmt.Fprintf(&b, "| Peak RSS | %s |\n", formatBytes(profile.PeakRSSBytes))
	fmt.Fprintf(&b, "| Average RSS | %s |\n", formatBytes(profile.AverageRSSBytes))
	fmt.Fprintf(&b, "| Memory leak | %+d bytes |\n", profile.MemoryLeakBytes)
	fmt.Fprintf(&b, "| Utilization | %.2f%% of system memory |\n", profile.Efficiency.UtilizationPercent)
	fmt.Fprintf(&b, "| Snapshot rate | %.1f/s |\n", profile.Efficiency.ChurnRate)
	fmt.Fprintf(&b, "| Access pattern score | %.0f/100 |\n", profile.Efficiency.AccessPatternScore)
	fmt.Fprintf(&b, "| Cache efficiency score | %.0f/100 |\n", profile.Efficiency.CacheEfficiencyScore)
	fmt.Fprintf(&b, "| Fragmentation score | %.0f/100 |\n", profile.Efficiency.FragmentationScore)
	fmt.Fprintf(&b, "| Estimated allocation events | %d (heuristic) |\n", profile.Allocations.EstimatedAllocationEvents)
	fmt.Fprintf(&b, "| Snapshots | %d over %d ms |\n", len(profile.Timeline), profile.DurationMs)
	if profile.Swap.PeakBytes > profile.Swap.InitialBytes {
		fmt.Fprintf(&b, "| Swap growth | %s |\n", formatBytes(profile.Swap.PeakBytes-profile.Swap.InitialBytes))
	}
	b.WriteString("\n")

	b.WriteString("## Recommendations\n\n")
	for _, r := range recommendations(profile) {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	return b.String()
}

func recommendations(profile *MemoryProfile) []string {
	var recs []string

	if profile.LeakDetected {
		recs = append(recs, "Investigate memory growth: final RSS differs from initial by more than the leak threshold")
	}
	if profile.Efficiency.OverheadPercent > 50 {
		recs = append(recs, "High peak-to-average overhead suggests bursty allocation; consider preallocating buffers")
	}
	if profile.Efficiency.CacheEfficiencyScore < 70 {
		recs = append(recs, "Working set exceeds typical L2/L3 capacity; consider data layout or streaming")
	}
	if profile.Efficiency.FragmentationScore > 50 {
		recs = append(recs, "RSS varies heavily over the run; allocation churn may fragment the heap")
	}
	if profile.Swap.PeakBytes > profile.Swap.InitialBytes {
		recs = append(recs, "Swap usage grew during profiling; results are unreliable under memory pressure")
	}
	if len(recs) == 0 {
		recs = append(recs, "Memory behavior looks stable for this workload")
	}

	return recs
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
