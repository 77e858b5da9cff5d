package regression

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"polybench/internal/logging"
	"polybench/internal/stats"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

type OverallStatus string

const (
	StatusHealthy      OverallStatus = "healthy"
	StatusWarning      OverallStatus = "warning"
	StatusCritical     OverallStatus = "critical"
	StatusInconclusive OverallStatus = "inconclusive"
)

type BaselineConfig struct {
	Iterations      int     `json:"iterations"`
	Warmup          int     `json:"warmup"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

type PerformanceBaseline struct {
	Implementation string                    `json:"implementation"`
	Example        string                    `json:"example"`
	Statistics     stats.StatisticalAnalysis `json:"statistics"`
	Timestamp      time.Time                 `json:"timestamp"`
	Config         BaselineConfig            `json:"config"`
	CommitID       string                    `json:"commit_id,omitempty"`
	Environment    string                    `json:"environment"`
}

type ImplementationResult struct {
	Implementation       string                 `json:"implementation"`
	Comparison           stats.ComparisonResult `json:"comparison"`
	Severity             Severity               `json:"severity"`
	QualityGateViolation bool                   `json:"quality_gate_violation"`
	Recommendations      []string               `json:"recommendations"`
}

type RegressionAnalysis struct {
	Example         string                 `json:"example"`
	Results         []ImplementationResult `json:"results"`
	OverallStatus   OverallStatus          `json:"overall_status"`
	Recommendations []string               `json:"recommendations"`
	Timestamp       time.Time              `json:"timestamp"`
}

func (a *RegressionAnalysis) RegressionDetected() bool {
	for _, r := range a.Results {
		if r.QualityGateViolation {
			return true
		}
	}
	return false
}

// Detector persists per-implementation baselines and gates the current run
// against them.
type Detector struct {
	baselineDir string
	threshold   float64
	maxAge      time.Duration
	fingerprint string
	commitID    func() string
	logger      *logrus.Logger
}

const DefaultThreshold = 5.0

func NewDetector(baselineDir string, threshold float64, maxAge time.Duration, fingerprint string) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &Detector{
		baselineDir: baselineDir,
		threshold:   threshold,
		maxAge:      maxAge,
		fingerprint: fingerprint,
		commitID:    gitCommitID,
		logger:      logging.GetRegressionLogger(),
	}
}

// Baselines are keyed by implementation name only. Runs of different
// examples share the same file and overwrite each other.
func (d *Detector) baselinePath(implementation string) string {
	return filepath.Join(d.baselineDir, implementation+"_baseline.json")
}

func (d *Detector) EstablishBaseline(implementation, example string, analysis *stats.StatisticalAnalysis, config BaselineConfig) error {
	baseline := PerformanceBaseline{
		Implementation: implementation,
		Example:        example,
		Statistics:     *analysis,
		Timestamp:      time.Now(),
		Config:         config,
		CommitID:       d.commitID(),
		Environment:    d.fingerprint,
	}

	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize baseline for %s: %w", implementation, err)
	}

	if err := os.MkdirAll(d.baselineDir, 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}

	if err := atomicWrite(d.baselinePath(implementation), data); err != nil {
		return fmt.Errorf("failed to write baseline for %s: %w", implementation, err)
	}

	d.logger.WithFields(logrus.Fields{
		"implementation": implementation,
		"example":        example,
		"mean":           analysis.Mean,
	}).Info("Baseline established")

	return nil
}

// LoadBaseline returns nil when the baseline is missing, unreadable, or
// malformed; all three count as absence.
func (d *Detector) LoadBaseline(implementation string) *PerformanceBaseline {
	data, err := os.ReadFile(d.baselinePath(implementation))
	if err != nil {
		return nil
	}

	var baseline PerformanceBaseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		d.logger.WithField("implementation", implementation).WithError(err).Warn("Malformed baseline, treating as absent")
		return nil
	}

	return &baseline
}

func (d *Detector) DetectRegressions(current map[string]*stats.StatisticalAnalysis, example string) *RegressionAnalysis {
	analysis := &RegressionAnalysis{
		Example:   example,
		Timestamp: time.Now(),
	}

	for _, implementation := range sortedKeys(current) {
		baseline := d.LoadBaseline(implementation)
		if baseline == nil {
			d.logger.WithField("implementation", implementation).Info("No baseline, implementation omitted from comparison")
			continue
		}

		comparison := stats.Compare(&baseline.Statistics, current[implementation])
		severity := d.classifySeverity(comparison)

		result := ImplementationResult{
			Implementation: implementation,
			Comparison:     comparison,
			Severity:       severity,
			QualityGateViolation: severity != SeverityNone && severity != SeverityMinor &&
				comparison.Significance == stats.SignificantRegression,
			Recommendations: severityRecommendations(severity, implementation),
		}
		analysis.Results = append(analysis.Results, result)
	}

	analysis.OverallStatus = overallStatus(analysis.Results)
	analysis.Recommendations = statusRecommendations(analysis.OverallStatus)

	d.logger.WithFields(logrus.Fields{
		"example":     example,
		"status":      analysis.OverallStatus,
		"comparisons": len(analysis.Results),
	}).Info("Regression analysis complete")

	return analysis
}

func (d *Detector) classifySeverity(comparison stats.ComparisonResult) Severity {
	return ClassifySeverity(comparison, d.threshold)
}

// ClassifySeverity maps a comparison outcome onto the severity scale used for
// quality gating. Only significant regressions carry a severity.
func ClassifySeverity(comparison stats.ComparisonResult, threshold float64) Severity {
	if comparison.Significance != stats.SignificantRegression {
		return SeverityNone
	}

	pct := comparison.PercentChange
	switch {
	case pct < threshold:
		return SeverityMinor
	case pct < 15:
		return SeverityModerate
	case pct < 30:
		return SeverityMajor
	default:
		return SeverityCritical
	}
}

func overallStatus(results []ImplementationResult) OverallStatus {
	if len(results) == 0 {
		return StatusInconclusive
	}

	status := StatusHealthy
	for _, r := range results {
		switch r.Severity {
		case SeverityMajor, SeverityCritical:
			return StatusCritical
		case SeverityModerate:
			status = StatusWarning
		}
	}
	return status
}

// CleanupOldBaselines removes baseline files past the retention horizon.
func (d *Detector) CleanupOldBaselines() error {
	entries, err := os.ReadDir(d.baselineDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-d.maxAge)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), "_baseline.json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(d.baselineDir, entry.Name())
			if err := os.Remove(path); err != nil {
				d.logger.WithField("file", path).WithError(err).Warn("Failed to remove stale baseline")
				continue
			}
			d.logger.WithField("file", entry.Name()).Info("Removed stale baseline")
		}
	}

	return nil
}

func severityRecommendations(severity Severity, implementation string) []string {
	switch severity {
	case SeverityCritical:
		return []string{
			fmt.Sprintf("Halt deployment: %s regressed critically", implementation),
			"Bisect recent changes to find the regression source",
			"Re-run with increased iterations to confirm before reverting",
		}
	case SeverityMajor:
		return []string{
			fmt.Sprintf("Block merge until %s regression is understood", implementation),
			"Profile the hot path and compare against the baseline run",
		}
	case SeverityModerate:
		return []string{
			fmt.Sprintf("Review recent changes to %s before the next release", implementation),
			"Schedule a profiling session for the affected code path",
		}
	case SeverityMinor:
		return []string{
			"Monitor the trend over the next runs; no immediate action required",
		}
	default:
		return nil
	}
}

func statusRecommendations(status OverallStatus) []string {
	switch status {
	case StatusCritical:
		return []string{
			"Halt deployment until critical regressions are resolved",
			"Investigate performance regressions before proceeding",
		}
	case StatusWarning:
		return []string{
			"Investigate performance regressions before the next release",
			"Consider re-running the benchmark to rule out environmental noise",
		}
	case StatusInconclusive:
		return []string{
			"No baselines available; current run will seed new baselines",
		}
	default:
		return []string{
			"Performance is within expected bounds; keep baselines current",
		}
	}
}

func sortedKeys(m map[string]*stats.StatisticalAnalysis) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// atomicWrite replaces the destination in one rename so readers never see a
// partial baseline.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".baseline-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}

func gitCommitID() string {
	data, err := os.ReadFile(".git/HEAD")
	if err != nil {
		return ""
	}
	ref := strings.TrimSpace(string(data))
	if !strings.HasPrefix(ref, "ref: ") {
		return ref
	}
	refData, err := os.ReadFile(filepath.Join(".git", strings.TrimPrefix(ref, "ref: ")))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(refData))
}
