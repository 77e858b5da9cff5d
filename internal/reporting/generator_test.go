package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"polybench/internal/stats"
)

func resultWith(name string, mean, halfWidth float64) ImplementationResult {
	return ImplementationResult{
		Name: name,
		Statistics: stats.StatisticalAnalysis{
			SampleCount: 1000,
			Mean:        mean,
			Median:      mean,
			Min:         mean - halfWidth,
			Max:         mean + halfWidth,
			CI95: stats.ConfidenceInterval{
				LowerBound:      mean - halfWidth,
				UpperBound:      mean + halfWidth,
				ConfidenceLevel: 0.95,
			},
		},
	}
}

func testConfiguration() ConfigurationBlock {
	return ConfigurationBlock{
		Example:    "fibonacci",
		Iterations: 1000,
		Warmup:     100,
		Languages:  []string{"rust", "go", "python"},
		RunID:      "abc123",
	}
}

func TestGenerateRustPreferredBaseline(t *testing.T) {
	g := NewGenerator()
	results := []ImplementationResult{
		resultWith("go", 650000, 1000),
		resultWith("rust", 500000, 1000),
		resultWith("python", 5000000, 1000),
	}

	report := g.Generate(results, EnvironmentBlock{}, testConfiguration())

	if len(report.Comparisons) != 2 {
		t.Fatalf("comparisons = %d, want 2", len(report.Comparisons))
	}
	for _, c := range report.Comparisons {
		if c.Baseline != "rust" {
			t.Errorf("baseline = %q, want rust", c.Baseline)
		}
		if c.Candidate == "rust" {
			t.Error("rust compared against itself")
		}
	}
}

func TestGenerateFirstResultBaselineWithoutRust(t *testing.T) {
	g := NewGenerator()
	results := []ImplementationResult{
		resultWith("go", 650000, 1000),
		resultWith("python", 5000000, 1000),
	}

	report := g.Generate(results, EnvironmentBlock{}, testConfiguration())

	if len(report.Comparisons) != 1 || report.Comparisons[0].Baseline != "go" {
		t.Fatalf("comparisons = %+v", report.Comparisons)
	}
}

func TestInterpretations(t *testing.T) {
	g := NewGenerator()
	results := []ImplementationResult{
		resultWith("rust", 1000000, 1000),
		resultWith("go", 1060000, 1000),    // non-overlapping, slower
		resultWith("fast", 900000, 1000),   // non-overlapping, faster
		resultWith("close", 1000500, 1000), // overlapping
	}

	report := g.Generate(results, EnvironmentBlock{}, testConfiguration())

	byCandidate := make(map[string]Comparison)
	for _, c := range report.Comparisons {
		byCandidate[c.Candidate] = c
	}

	if s := byCandidate["go"].Interpretation; s != "Significantly slower by 6.0%" {
		t.Errorf("go interpretation = %q", s)
	}
	if s := byCandidate["fast"].Interpretation; s != "Significantly faster by 10.0%" {
		t.Errorf("fast interpretation = %q", s)
	}
	if s := byCandidate["close"].Interpretation; !strings.HasPrefix(s, "No statistically significant difference") {
		t.Errorf("close interpretation = %q", s)
	}
}

func TestSummaryRankingAndInsights(t *testing.T) {
	g := NewGenerator()
	noisy := resultWith("noisy", 2000000, 1000)
	noisy.Statistics.Distribution.CoefficientOfVariation = 0.25
	results := []ImplementationResult{
		resultWith("python", 5000000, 1000),
		resultWith("rust", 500000, 1000),
		noisy,
	}

	report := g.Generate(results, EnvironmentBlock{}, testConfiguration())

	if report.Summary.Fastest != "rust" {
		t.Errorf("fastest = %q", report.Summary.Fastest)
	}
	wantRanking := []string{"rust", "noisy", "python"}
	for i, name := range wantRanking {
		if report.Summary.Ranking[i] != name {
			t.Fatalf("ranking = %v, want %v", report.Summary.Ranking, wantRanking)
		}
	}

	joined := strings.Join(report.Summary.Insights, "\n")
	if !strings.Contains(joined, "rust is 10.0x faster than python") {
		t.Errorf("missing speedup insight in %q", joined)
	}
	if !strings.Contains(joined, "noisy shows high variance") {
		t.Errorf("missing variance insight in %q", joined)
	}

	recommendations := strings.Join(report.Summary.Recommendations, "\n")
	if !strings.Contains(recommendations, "Investigate implementations that are significantly slower") {
		t.Errorf("missing regression recommendation in %q", recommendations)
	}
}

func TestGenerateSingleResult(t *testing.T) {
	g := NewGenerator()
	report := g.Generate([]ImplementationResult{resultWith("rust", 500000, 1000)},
		EnvironmentBlock{}, testConfiguration())

	if len(report.Comparisons) != 0 {
		t.Errorf("comparisons = %d, want 0", len(report.Comparisons))
	}
	if report.Summary.Fastest != "rust" {
		t.Errorf("fastest = %q", report.Summary.Fastest)
	}
}

func TestRenderFormats(t *testing.T) {
	g := NewGenerator()
	report := g.Generate([]ImplementationResult{
		resultWith("rust", 500000, 1000),
		resultWith("go", 650000, 1000),
	}, EnvironmentBlock{}, testConfiguration())

	jsonOut, err := report.Render("json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded BenchmarkReport
	if err := json.Unmarshal([]byte(jsonOut), &decoded); err != nil {
		t.Fatalf("json round-trip: %v", err)
	}
	if decoded.Metadata.FormatVersion != FormatVersion {
		t.Errorf("format version = %q", decoded.Metadata.FormatVersion)
	}

	if _, err := report.Render("yaml"); err != nil {
		t.Errorf("yaml: %v", err)
	}

	md, err := report.Render("markdown")
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	for _, want := range []string{"# Benchmark Report: fibonacci", "## Results", "rust", "## Recommendations"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	html, err := report.Render("html")
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(html, "<!DOCTYPE html>") {
		t.Error("html missing doctype")
	}

	if _, err := report.Render("xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestWriteAll(t *testing.T) {
	g := NewGenerator()
	report := g.Generate([]ImplementationResult{resultWith("rust", 500000, 1000)},
		EnvironmentBlock{}, testConfiguration())

	dir := t.TempDir()
	if err := report.WriteAll(dir); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	for _, ext := range []string{".json", ".md", ".csv", ".html"} {
		path := filepath.Join(dir, "fibonacci_report"+ext)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", ext, err)
		}
	}

	csvData, err := os.ReadFile(filepath.Join(dir, "fibonacci_report.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "implementation,mean_ns") {
		t.Errorf("csv header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "rust,500000.00") {
		t.Errorf("csv row = %q", lines[1])
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"fibonacci":              "fibonacci",
		"examples/fibonacci.rs":  "fibonacci",
		"weird name!":            "weird_name_",
		"":                       "benchmark",
		"../../etc/passwd":       "passwd",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
