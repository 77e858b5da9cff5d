package reporting

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"polybench/internal/binaryanalyzer"
	"polybench/internal/collectors"
	"polybench/internal/isolation"
	"polybench/internal/logging"
	"polybench/internal/memprofiler"
	"polybench/internal/stats"

	"github.com/sirupsen/logrus"
)

const (
	FormatVersion = "1.0"
	GeneratorName = "polybench"
	SuiteVersion  = "1.0.0"
)

// AdvancedAnalysis carries toolchain-specific scores attached to select
// implementations.
type AdvancedAnalysis struct {
	ProvabilityScore  float64  `json:"provability_score"`
	QualityScore      float64  `json:"quality_score"`
	OptimizationNotes []string `json:"optimization_notes"`
}

type ImplementationResult struct {
	Name         string                             `json:"name"`
	Statistics   stats.StatisticalAnalysis          `json:"statistics"`
	Memory       *memprofiler.MemoryProfile         `json:"memory_profile,omitempty"`
	Binary       *binaryanalyzer.BinarySizeAnalysis `json:"binary_analysis,omitempty"`
	PerfCounters *collectors.PerfCounters           `json:"perf_counters,omitempty"`
	Advanced     *AdvancedAnalysis                  `json:"advanced_analysis,omitempty"`
}

type Metadata struct {
	GeneratedAt   time.Time `json:"generated_at"`
	FormatVersion string    `json:"format_version"`
	Generator     string    `json:"generator"`
	SuiteVersion  string    `json:"suite_version"`
	QualityGates  []string  `json:"quality_gates"`
}

type HostInfo struct {
	Hostname      string  `json:"hostname"`
	CPUModel      string  `json:"cpu_model"`
	TotalCores    int     `json:"total_cores"`
	KernelVersion string  `json:"kernel_version"`
	L3CacheMB     float64 `json:"l3_cache_mb"`
	RDTSupported  bool    `json:"rdt_supported"`
}

type EnvironmentBlock struct {
	Host      HostInfo                    `json:"host"`
	State     *isolation.EnvironmentState `json:"state,omitempty"`
	Isolation *isolation.IsolationResult  `json:"isolation,omitempty"`
}

type ConfigurationBlock struct {
	Example    string   `json:"example"`
	Iterations int      `json:"iterations"`
	Warmup     int      `json:"warmup"`
	Languages  []string `json:"languages"`
	Cores      string   `json:"cores,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

type Comparison struct {
	Baseline       string                 `json:"baseline"`
	Candidate      string                 `json:"candidate"`
	Result         stats.ComparisonResult `json:"result"`
	Interpretation string                 `json:"interpretation"`
}

type Summary struct {
	Fastest         string   `json:"fastest"`
	Ranking         []string `json:"ranking"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

type BenchmarkReport struct {
	Metadata      Metadata               `json:"metadata"`
	Environment   EnvironmentBlock       `json:"environment"`
	Configuration ConfigurationBlock     `json:"configuration"`
	Results       []ImplementationResult `json:"results"`
	Comparisons   []Comparison           `json:"comparisons"`
	Summary       Summary                `json:"summary"`
}

type Generator struct {
	logger *logrus.Logger
}

func NewGenerator() *Generator {
	return &Generator{logger: logging.GetLogger()}
}

func (g *Generator) Generate(results []ImplementationResult, env EnvironmentBlock, cfg ConfigurationBlock) *BenchmarkReport {
	report := &BenchmarkReport{
		Metadata: Metadata{
			GeneratedAt:   time.Now(),
			FormatVersion: FormatVersion,
			Generator:     GeneratorName,
			SuiteVersion:  SuiteVersion,
			QualityGates:  []string{"regression_threshold", "minimum_sample_size", "confidence_interval_overlap"},
		},
		Environment:   env,
		Configuration: cfg,
		Results:       results,
	}

	report.Comparisons = g.buildComparisons(results)
	report.Summary = g.buildSummary(results, report.Comparisons)

	g.logger.WithFields(logrus.Fields{
		"example":         cfg.Example,
		"implementations": len(results),
		"comparisons":     len(report.Comparisons),
	}).Info("Benchmark report generated")

	return report
}

// Comparisons run against the implementation whose name contains "rust";
// without one, the first result serves as the reference.
func (g *Generator) buildComparisons(results []ImplementationResult) []Comparison {
	if len(results) < 2 {
		return nil
	}

	baselineIdx := 0
	for i, r := range results {
		if strings.Contains(strings.ToLower(r.Name), "rust") {
			baselineIdx = i
			break
		}
	}
	baseline := results[baselineIdx]

	var comparisons []Comparison
	for i, r := range results {
		if i == baselineIdx {
			continue
		}
		result := stats.Compare(&baseline.Statistics, &r.Statistics)
		comparisons = append(comparisons, Comparison{
			Baseline:       baseline.Name,
			Candidate:      r.Name,
			Result:         result,
			Interpretation: interpret(result),
		})
	}

	return comparisons
}

func interpret(result stats.ComparisonResult) string {
	switch result.Significance {
	case stats.SignificantImprovement:
		return fmt.Sprintf("Significantly faster by %.1f%%", math.Abs(result.PercentChange))
	case stats.SignificantRegression:
		return fmt.Sprintf("Significantly slower by %.1f%%", result.PercentChange)
	default:
		return fmt.Sprintf("No statistically significant difference (%.1f%% change)", result.PercentChange)
	}
}

func (g *Generator) buildSummary(results []ImplementationResult, comparisons []Comparison) Summary {
	summary := Summary{}
	if len(results) == 0 {
		return summary
	}

	ranked := append([]ImplementationResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Statistics.Mean < ranked[j].Statistics.Mean
	})

	summary.Fastest = ranked[0].Name
	for _, r := range ranked {
		summary.Ranking = append(summary.Ranking, r.Name)
	}

	if len(ranked) > 1 {
		slowest := ranked[len(ranked)-1]
		if ranked[0].Statistics.Mean > 0 {
			ratio := slowest.Statistics.Mean / ranked[0].Statistics.Mean
			summary.Insights = append(summary.Insights,
				fmt.Sprintf("%s is %.1fx faster than %s on this workload", ranked[0].Name, ratio, slowest.Name))
		}
	}

	for _, r := range results {
		if cv := r.Statistics.Distribution.CoefficientOfVariation; cv > 0.1 && !math.IsInf(cv, 0) {
			summary.Insights = append(summary.Insights,
				fmt.Sprintf("%s shows high variance (CV %.2f); results may be unstable", r.Name, cv))
		}
	}

	significant := 0
	regressions := 0
	for _, c := range comparisons {
		if c.Result.Significance != stats.NotSignificant {
			significant++
		}
		if c.Result.Significance == stats.SignificantRegression {
			regressions++
		}
	}
	if significant > 0 {
		summary.Insights = append(summary.Insights,
			fmt.Sprintf("%d of %d pairwise comparisons are statistically significant", significant, len(comparisons)))
	}

	summary.Recommendations = []string{
		"Run benchmarks on an isolated CPU set with the performance governor",
		"Use at least 1000 iterations for stable confidence intervals",
		"Track memory profiles and binary sizes alongside timing data",
		"Validate results across different hardware before drawing conclusions",
	}
	if regressions > 0 {
		summary.Recommendations = append(summary.Recommendations,
			"Investigate implementations that are significantly slower than the reference")
	}

	return summary
}
