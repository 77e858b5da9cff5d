package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render serializes the report for stdout in the requested format.
func (r *BenchmarkReport) Render(format string) (string, error) {
	switch strings.ToLower(format) {
	case "json", "":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode report as JSON: %w", err)
		}
		return string(data), nil
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to encode report as YAML: %w", err)
		}
		return string(data), nil
	case "markdown", "md":
		return r.Markdown(), nil
	case "html":
		return r.HTML(), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// WriteAll writes the report in every on-disk format to the output directory.
func (r *BenchmarkReport) WriteAll(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("%s_report", SanitizeName(r.Configuration.Example))

	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, base+".json"), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(outputDir, base+".md"), []byte(r.Markdown()), 0644); err != nil {
		return fmt.Errorf("failed to write Markdown report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(outputDir, base+".csv"), []byte(r.CSV()), 0644); err != nil {
		return fmt.Errorf("failed to write CSV report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(outputDir, base+".html"), []byte(r.HTML()), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}

	return nil
}

// SanitizeName reduces an example identifier, which may be a path, to a
// filename-safe base name.
func SanitizeName(name string) string {
	if name == "" {
		return "benchmark"
	}
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func (r *BenchmarkReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Benchmark Report: %s\n\n", r.Configuration.Example)
	fmt.Fprintf(&b, "Generated %s by %s %s\n\n",
		r.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 MST"), r.Metadata.Generator, r.Metadata.SuiteVersion)

	b.WriteString("## Executive Summary\n\n")
	if r.Summary.Fastest != "" {
		fmt.Fprintf(&b, "- **Fastest implementation**: %s\n", r.Summary.Fastest)
		fmt.Fprintf(&b, "- **Ranking**: %s\n", strings.Join(r.Summary.Ranking, " > "))
	}
	fmt.Fprintf(&b, "- **Implementations measured**: %d\n\n", len(r.Results))

	b.WriteString("## Environment\n\n")
	h := r.Environment.Host
	fmt.Fprintf(&b, "- Host: %s (%s, %d cores)\n", h.Hostname, h.CPUModel, h.TotalCores)
	fmt.Fprintf(&b, "- Kernel: %s\n", h.KernelVersion)
	if r.Environment.State != nil {
		fmt.Fprintf(&b, "- Available cores: %d, load average %.2f\n",
			len(r.Environment.State.AvailableCores), r.Environment.State.LoadAverage[0])
	}
	if iso := r.Environment.Isolation; iso != nil {
		fmt.Fprintf(&b, "- Isolation: success=%v cores=%v\n", iso.Success, iso.IsolatedCores)
		for _, w := range iso.Warnings {
			fmt.Fprintf(&b, "  - warning: %s\n", w)
		}
		for _, e := range iso.Errors {
			fmt.Fprintf(&b, "  - error: %s\n", e)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Results\n\n")
	b.WriteString("| Implementation | Mean (ns) | Std Dev | Median | P95 | P99 | Outliers |\n")
	b.WriteString("|----------------|-----------|---------|--------|-----|-----|----------|\n")
	for _, res := range r.Results {
		s := res.Statistics
		fmt.Fprintf(&b, "| %s | %.0f | %.0f | %.0f | %.0f | %.0f | %.1f%% |\n",
			res.Name, s.Mean, s.StdDev, s.Median,
			s.Distribution.Percentiles.P95, s.Distribution.Percentiles.P99, s.Outliers.Percentage)
	}
	b.WriteString("\n")

	for _, res := range r.Results {
		if res.Memory != nil {
			fmt.Fprintf(&b, "- %s peak RSS: %.2f MiB\n", res.Name, float64(res.Memory.PeakRSSBytes)/(1<<20))
		}
		if res.Binary != nil {
			fmt.Fprintf(&b, "- %s binary size: %.2f MiB (stripped %.2f MiB)\n", res.Name,
				float64(res.Binary.TotalSizeBytes)/(1<<20), float64(res.Binary.StrippedSizeBytes)/(1<<20))
		}
		if res.PerfCounters != nil {
			fmt.Fprintf(&b, "- %s hardware counters: %.2f IPC, %.2f%% cache miss rate\n",
				res.Name, res.PerfCounters.IPC(), res.PerfCounters.CacheMissRate()*100)
		}
		if res.Advanced != nil {
			fmt.Fprintf(&b, "- %s toolchain scores: provability %.0f, quality %.0f\n",
				res.Name, res.Advanced.ProvabilityScore, res.Advanced.QualityScore)
		}
	}
	b.WriteString("\n")

	if len(r.Comparisons) > 0 {
		b.WriteString("## Comparisons\n\n")
		for _, c := range r.Comparisons {
			fmt.Fprintf(&b, "- **%s vs %s**: %s\n", c.Candidate, c.Baseline, c.Interpretation)
		}
		b.WriteString("\n")
	}

	if len(r.Summary.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, insight := range r.Summary.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	for _, rec := range r.Summary.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	b.WriteString("\n")

	b.WriteString("## Configuration\n\n")
	fmt.Fprintf(&b, "- Iterations: %d (warmup %d)\n", r.Configuration.Iterations, r.Configuration.Warmup)
	fmt.Fprintf(&b, "- Languages: %s\n", strings.Join(r.Configuration.Languages, ", "))
	if r.Configuration.Cores != "" {
		fmt.Fprintf(&b, "- CPU cores: %s\n", r.Configuration.Cores)
	}
	if r.Configuration.RunID != "" {
		fmt.Fprintf(&b, "- Run ID: %s\n", r.Configuration.RunID)
	}

	return b.String()
}

func (r *BenchmarkReport) CSV() string {
	var b strings.Builder
	b.WriteString("implementation,mean_ns,std_dev_ns,median_ns,min_ns,max_ns,outlier_percentage\n")
	for _, res := range r.Results {
		s := res.Statistics
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f\n",
			res.Name, s.Mean, s.StdDev, s.Median, s.Min, s.Max, s.Outliers.Percentage)
	}
	return b.String()
}

// HTML output is a minimal shell around the Markdown content.
func (r *BenchmarkReport) HTML() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>Benchmark Report: %s</title>\n", htmlEscape(r.Configuration.Example))
	b.WriteString("<style>body{font-family:monospace;max-width:80em;margin:2em auto;white-space:pre-wrap}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(htmlEscape(r.Markdown()))
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
