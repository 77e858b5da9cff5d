package regression

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"polybench/internal/stats"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d := NewDetector(t.TempDir(), 5.0, 90*24*time.Hour, "linux-amd64-202608")
	d.commitID = func() string { return "abc123" }
	return d
}

func analysisWith(mean, halfWidth float64) *stats.StatisticalAnalysis {
	return &stats.StatisticalAnalysis{
		SampleCount: 1000,
		Mean:        mean,
		Median:      mean,
		StdDev:      halfWidth,
		Min:         mean - 3*halfWidth,
		Max:         mean + 3*halfWidth,
		CI95: stats.ConfidenceInterval{
			LowerBound:      mean - halfWidth,
			UpperBound:      mean + halfWidth,
			ConfidenceLevel: 0.95,
		},
		CI99: stats.ConfidenceInterval{
			LowerBound:      mean - 1.5*halfWidth,
			UpperBound:      mean + 1.5*halfWidth,
			ConfidenceLevel: 0.99,
		},
	}
}

func establish(t *testing.T, d *Detector, implementation string, mean, halfWidth float64) {
	t.Helper()
	err := d.EstablishBaseline(implementation, "fib", analysisWith(mean, halfWidth), BaselineConfig{
		Iterations:      1000,
		Warmup:          3,
		ConfidenceLevel: 0.95,
	})
	if err != nil {
		t.Fatalf("EstablishBaseline(%s) failed: %v", implementation, err)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	d := newTestDetector(t)
	original := analysisWith(500000, 750)
	original.Distribution.Skewness = 0.25
	original.Distribution.Percentiles.P99 = 502000

	if err := d.EstablishBaseline("rust", "fib", original, BaselineConfig{Iterations: 1000, ConfidenceLevel: 0.95}); err != nil {
		t.Fatalf("EstablishBaseline failed: %v", err)
	}

	loaded := d.LoadBaseline("rust")
	if loaded == nil {
		t.Fatal("baseline not found after establish")
	}
	if loaded.Implementation != "rust" || loaded.Example != "fib" {
		t.Errorf("identity fields lost: %+v", loaded)
	}
	if loaded.Environment != "linux-amd64-202608" {
		t.Errorf("fingerprint = %q", loaded.Environment)
	}
	if loaded.CommitID != "abc123" {
		t.Errorf("commit = %q", loaded.CommitID)
	}
	if !reflect.DeepEqual(loaded.Statistics, *original) {
		t.Errorf("statistics did not round-trip:\ngot  %+v\nwant %+v", loaded.Statistics, *original)
	}
}

func TestEstablishOverwritesPrior(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 1000, 10)
	establish(t, d, "rust", 2000, 10)

	loaded := d.LoadBaseline("rust")
	if loaded == nil || loaded.Statistics.Mean != 2000 {
		t.Fatalf("expected overwritten baseline with mean 2000, got %+v", loaded)
	}
}

func TestLoadMissingAndMalformedBaseline(t *testing.T) {
	d := newTestDetector(t)

	if b := d.LoadBaseline("rust"); b != nil {
		t.Errorf("missing baseline should load as nil, got %+v", b)
	}

	if err := os.MkdirAll(d.baselineDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.baselinePath("rust"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if b := d.LoadBaseline("rust"); b != nil {
		t.Errorf("malformed baseline should load as nil, got %+v", b)
	}
}

func TestNoRegressionHealthy(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 500000, 800)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(500300, 800),
	}, "fib")

	if analysis.OverallStatus != StatusHealthy {
		t.Errorf("status = %s, want healthy", analysis.OverallStatus)
	}
	if analysis.Results[0].Severity != SeverityNone {
		t.Errorf("severity = %s, want none", analysis.Results[0].Severity)
	}
	if analysis.RegressionDetected() {
		t.Error("no regression expected")
	}
}

func TestModerateRegressionWarning(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 1000000, 1000)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(1060000, 1000),
	}, "fib")

	r := analysis.Results[0]
	if r.Comparison.Significance != stats.SignificantRegression {
		t.Errorf("significance = %s", r.Comparison.Significance)
	}
	if r.Severity != SeverityModerate {
		t.Errorf("severity = %s, want moderate", r.Severity)
	}
	if !r.QualityGateViolation {
		t.Error("expected quality gate violation")
	}
	if analysis.OverallStatus != StatusWarning {
		t.Errorf("status = %s, want warning", analysis.OverallStatus)
	}
}

func TestCriticalRegression(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 5e6, 5000)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(6.5e6, 5000),
	}, "fib")

	if analysis.Results[0].Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", analysis.Results[0].Severity)
	}
	if analysis.OverallStatus != StatusCritical {
		t.Errorf("status = %s, want critical", analysis.OverallStatus)
	}

	haltFound := false
	for _, rec := range analysis.Recommendations {
		if strings.Contains(rec, "Halt deployment") {
			haltFound = true
		}
	}
	if !haltFound {
		t.Errorf("expected halt recommendation, got %v", analysis.Recommendations)
	}
}

func TestImprovementHealthy(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 2e6, 2000)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(1.6e6, 2000),
	}, "fib")

	r := analysis.Results[0]
	if r.Comparison.Significance != stats.SignificantImprovement {
		t.Errorf("significance = %s", r.Comparison.Significance)
	}
	if r.Severity != SeverityNone {
		t.Errorf("severity = %s, want none", r.Severity)
	}
	if analysis.OverallStatus != StatusHealthy {
		t.Errorf("status = %s, want healthy", analysis.OverallStatus)
	}
}

func TestNoBaselineInconclusive(t *testing.T) {
	d := newTestDetector(t)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(1000, 10),
		"go":   analysisWith(1200, 10),
	}, "fib")

	if analysis.OverallStatus != StatusInconclusive {
		t.Errorf("status = %s, want inconclusive", analysis.OverallStatus)
	}
	if len(analysis.Results) != 0 {
		t.Errorf("expected no comparisons, got %d", len(analysis.Results))
	}
}

func TestSeverityMonotone(t *testing.T) {
	d := newTestDetector(t)

	rank := map[Severity]int{
		SeverityMinor:    1,
		SeverityModerate: 2,
		SeverityMajor:    3,
		SeverityCritical: 4,
	}

	prev := 0
	for _, pct := range []float64{1, 4.9, 5, 14.9, 15, 29.9, 30, 80} {
		comparison := stats.ComparisonResult{
			PercentChange: pct,
			Significance:  stats.SignificantRegression,
		}
		severity := d.classifySeverity(comparison)
		if rank[severity] < prev {
			t.Errorf("severity decreased at pct %v: %s", pct, severity)
		}
		prev = rank[severity]
	}

	// non-significant shifts never classify
	if s := d.classifySeverity(stats.ComparisonResult{PercentChange: 50, Significance: stats.NotSignificant}); s != SeverityNone {
		t.Errorf("non-significant change classified as %s", s)
	}
}

func TestCleanupOldBaselines(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "fresh", 1000, 10)
	establish(t, d, "stale", 1000, 10)

	stalePath := d.baselinePath("stale")
	old := time.Now().Add(-120 * 24 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatal(err)
	}

	if err := d.CleanupOldBaselines(); err != nil {
		t.Fatalf("CleanupOldBaselines failed: %v", err)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("stale baseline should have been removed")
	}
	if _, err := os.Stat(d.baselinePath("fresh")); err != nil {
		t.Errorf("fresh baseline should remain: %v", err)
	}
}

func TestBaselineFileNaming(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 1000, 10)

	want := filepath.Join(d.baselineDir, "rust_baseline.json")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected baseline at %s: %v", want, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("baseline is not valid JSON: %v", err)
	}
	if payload["implementation"] != "rust" {
		t.Errorf("implementation field = %v", payload["implementation"])
	}
}

func TestSortedKeysOrdered(t *testing.T) {
	m := map[string]*stats.StatisticalAnalysis{
		"rust":   analysisWith(5e5, 1000),
		"c":      analysisWith(5.2e5, 1000),
		"python": analysisWith(5e6, 1000),
		"go":     analysisWith(6.5e5, 1000),
	}

	got := sortedKeys(m)
	want := []string{"c", "go", "python", "rust"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedKeys = %v, want %v", got, want)
	}
}

func TestMarkdownReport(t *testing.T) {
	d := newTestDetector(t)
	establish(t, d, "rust", 5e6, 5000)

	analysis := d.DetectRegressions(map[string]*stats.StatisticalAnalysis{
		"rust": analysisWith(6.5e6, 5000),
	}, "fib")

	report := MarkdownReport(analysis)
	for _, want := range []string{"# Regression Analysis: fib", "CRITICAL", "### 🚨 rust", "Quality gate violated", "Halt deployment"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
