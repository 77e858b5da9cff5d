package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"polybench/internal/binaryanalyzer"
	"polybench/internal/collectors"
	"polybench/internal/config"
	"polybench/internal/database"
	"polybench/internal/host"
	"polybench/internal/isolation"
	"polybench/internal/logging"
	"polybench/internal/memprofiler"
	"polybench/internal/regression"
	"polybench/internal/reporting"
	"polybench/internal/stats"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

const (
	memoryReportThreshold = 10 << 20  // 10 MiB peak RSS
	binaryReportThreshold = 100 << 10 // 100 KiB

	trendLookback = 30 * 24 * time.Hour
)

// Runner drives the full pipeline: isolate, sample one implementation at a
// time, analyze, profile, report, and gate against baselines.
type Runner struct {
	cfg       *config.BenchmarkConfig
	example   string
	outputDir string

	sampler    Sampler
	analyzer   *stats.Analyzer
	detector   *regression.Detector
	generator  *reporting.Generator
	controller *isolation.Controller
	sink       *database.InfluxDBClient

	binaryPath func(example, implementation string) string

	logger    *logrus.Logger
	regLogger *logrus.Logger
}

type RunOutcome struct {
	Report     *reporting.BenchmarkReport
	Regression *regression.RegressionAnalysis
	Failed     map[string]error
}

func New(cfg *config.BenchmarkConfig, example string) (*Runner, error) {
	hostConfig, err := host.GetHostConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize host configuration: %w", err)
	}

	b := cfg.Benchmark

	minSampleSize := stats.DefaultMinSampleSize
	if b.Iterations >= 1000 {
		minSampleSize = b.Iterations
	}

	r := &Runner{
		cfg:       cfg,
		example:   example,
		outputDir: b.OutputDir,
		sampler:   NewSimulatedSampler(uint64(time.Now().UnixNano())),
		analyzer:  stats.NewAnalyzer(minSampleSize, 0.95),
		detector: regression.NewDetector(b.BaselineDir, b.Regression.Threshold,
			cfg.GetBaselineMaxAge(), hostConfig.Fingerprint()),
		generator:  reporting.NewGenerator(),
		controller: isolation.NewController(b.Isolation.CPUCores, "performance", false),
		binaryPath: conventionalBinaryPath,
		logger:     logging.GetLogger(),
		regLogger:  logging.GetRegressionLogger(),
	}

	if b.Data.DB.Enabled() {
		sink, err := database.NewInfluxDBClient(b.Data.DB)
		if err != nil {
			r.logger.WithError(err).Warn("Results sink unavailable, continuing without it")
		} else {
			r.sink = sink
		}
	}

	return r, nil
}

func (r *Runner) Run(ctx context.Context) (*RunOutcome, error) {
	b := r.cfg.Benchmark

	runID, _ := config.RunChecksum(r.cfg, r.example)

	r.logger.WithFields(logrus.Fields{
		"example":    r.example,
		"languages":  b.Languages,
		"iterations": b.Iterations,
		"run_id":     runID,
	}).Info("Starting benchmark run")

	envState, isoResult := r.prepareEnvironment()

	outcome := &RunOutcome{
		Failed: make(map[string]error),
	}

	startTime := time.Now()
	var results []reporting.ImplementationResult
	currentStats := make(map[string]*stats.StatisticalAnalysis)

	for _, implementation := range b.Languages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.measureImplementation(implementation)
		if err != nil {
			r.logger.WithField("implementation", implementation).WithError(err).Error("Implementation failed, omitting from report")
			outcome.Failed[implementation] = err
			continue
		}

		results = append(results, *result)
		currentStats[implementation] = &result.Statistics
	}

	if err := r.controller.RestoreEnvironment(); err != nil {
		r.logger.WithError(err).Warn("Environment restore failed")
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no implementation produced analyzable data")
	}

	hostConfig, _ := host.GetHostConfig()
	report := r.generator.Generate(results,
		environmentBlock(hostConfig, envState, isoResult),
		reporting.ConfigurationBlock{
			Example:    r.example,
			Iterations: b.Iterations,
			Warmup:     b.Warmup,
			Languages:  b.Languages,
			Cores:      b.Isolation.Cores,
			RunID:      runID,
		})
	outcome.Report = report

	if err := report.WriteAll(r.outputDir); err != nil {
		r.logger.WithError(err).Warn("Failed to write reports, continuing with regression analysis")
	}

	outcome.Regression = r.runRegressionAnalysis(currentStats)

	r.dispatchToSink(ctx, runID, report, outcome.Regression, startTime)

	r.logger.WithFields(logrus.Fields{
		"implementations": len(results),
		"failed":          len(outcome.Failed),
		"status":          outcome.Regression.OverallStatus,
	}).Info("Benchmark run complete")

	return outcome, nil
}

func (r *Runner) prepareEnvironment() (*isolation.EnvironmentState, *isolation.IsolationResult) {
	envState, err := r.controller.DetectEnvironment()
	if err != nil {
		r.logger.WithError(err).Warn("Environment detection failed, measuring without isolation")
		return nil, nil
	}

	if len(r.cfg.Benchmark.Isolation.CPUCores) == 0 {
		return envState, nil
	}

	isoResult, err := r.controller.ApplyIsolation()
	if err != nil {
		r.logger.WithError(err).Warn("Isolation failed, measuring without it")
		return envState, nil
	}

	for _, w := range isoResult.Warnings {
		r.logger.Warn(w)
	}
	for _, e := range isoResult.Errors {
		r.logger.Error(e)
	}

	return envState, isoResult
}

// measureImplementation runs the sample collection and analysis for one
// implementation. Collection for one implementation completes before the
// next begins; measured workloads never contend.
func (r *Runner) measureImplementation(implementation string) (*reporting.ImplementationResult, error) {
	b := r.cfg.Benchmark

	r.logger.WithField("implementation", implementation).Info("Measuring implementation")

	var profiler *memprofiler.Profiler
	if b.MemoryProfiling {
		profiler = memprofiler.NewProfiler(memprofiler.DefaultInterval)
		if err := profiler.StartProfiling(os.Getpid()); err != nil {
			r.logger.WithError(err).Warn("Memory profiling unavailable for this implementation")
			profiler = nil
		}
	}

	var perfCollector *collectors.PerfCollector
	if b.CPUProfiling {
		pc, err := collectors.NewPerfCollector()
		if err != nil {
			r.logger.WithError(err).Warn("Hardware counters unavailable for this implementation")
		} else {
			perfCollector = pc
			defer perfCollector.Close()
		}
	}

	// warmup draws are discarded
	if b.Warmup > 0 {
		r.sampler.Sample(implementation, b.Warmup)
	}

	runtime.LockOSThread()
	if perfCollector != nil {
		if err := perfCollector.Start(); err != nil {
			r.logger.WithError(err).Warn("Failed to start hardware counters")
			perfCollector.Close()
			perfCollector = nil
		}
	}

	sample := r.sampler.Sample(implementation, b.Iterations)

	var counters *collectors.PerfCounters
	if perfCollector != nil {
		counters = perfCollector.Stop()
	}
	runtime.UnlockOSThread()

	analysis, err := r.analyzer.Analyze(sample)
	if err != nil {
		if profiler != nil {
			profiler.StopProfiling()
		}
		return nil, err
	}

	result := &reporting.ImplementationResult{
		Name:         implementation,
		Statistics:   *analysis,
		PerfCounters: counters,
	}

	if profiler != nil {
		// let the sampler accumulate a few more snapshots before stopping
		time.Sleep(3 * memprofiler.DefaultInterval)
		profile, err := profiler.StopProfiling()
		if err != nil {
			r.logger.WithError(err).Warn("Memory profile unavailable")
		} else {
			result.Memory = profile
			if profile.PeakRSSBytes > memoryReportThreshold {
				r.writeArtifact(implementation+"_memory_profile.md",
					memprofiler.MarkdownReport(implementation, profile))
			}
		}
	}

	if binaryPath := r.binaryPath(r.example, implementation); binaryPath != "" {
		if _, err := os.Stat(binaryPath); err == nil {
			analyzer := binaryanalyzer.NewAnalyzer()
			binaryAnalysis, err := analyzer.Analyze(binaryPath)
			if err != nil {
				r.logger.WithField("path", binaryPath).WithError(err).Warn("Binary analysis failed")
			} else {
				result.Binary = binaryAnalysis
				if binaryAnalysis.TotalSizeBytes > binaryReportThreshold {
					r.writeArtifact(implementation+"_binary_analysis.md",
						binaryanalyzer.MarkdownReport(implementation, binaryAnalysis))
				}
			}
		}
	}

	if implementation == "ruchy" {
		result.Advanced = ruchyAdvancedAnalysis()
	}

	return result, nil
}

func (r *Runner) runRegressionAnalysis(current map[string]*stats.StatisticalAnalysis) *regression.RegressionAnalysis {
	analysis := r.detector.DetectRegressions(current, r.example)

	switch analysis.OverallStatus {
	case regression.StatusCritical:
		r.regLogger.WithField("example", r.example).Error("CRITICAL performance regression detected, stopping the line")
		for _, rec := range analysis.Recommendations {
			r.regLogger.Error(rec)
		}
	case regression.StatusWarning:
		r.regLogger.WithField("example", r.example).Warn("Performance regression warning")
		for _, rec := range analysis.Recommendations {
			r.regLogger.Warn(rec)
		}
	case regression.StatusInconclusive:
		r.regLogger.Info("No baselines found, establishing from current run")
		baselineConfig := regression.BaselineConfig{
			Iterations:      r.cfg.Benchmark.Iterations,
			Warmup:          r.cfg.Benchmark.Warmup,
			ConfidenceLevel: 0.95,
		}
		for implementation, statistics := range current {
			if err := r.detector.EstablishBaseline(implementation, r.example, statistics, baselineConfig); err != nil {
				r.regLogger.WithField("implementation", implementation).WithError(err).Warn("Failed to establish baseline")
			}
		}
	}

	r.writeArtifact("regression_report.md", regression.MarkdownReport(analysis))

	if err := r.detector.CleanupOldBaselines(); err != nil {
		r.logger.WithError(err).Warn("Baseline cleanup failed")
	}

	return analysis
}

func (r *Runner) dispatchToSink(ctx context.Context, runID string, report *reporting.BenchmarkReport, regressionAnalysis *regression.RegressionAnalysis, startTime time.Time) {
	artifact := &database.SpoolArtifact{
		Version:    1,
		CreatedAt:  time.Now(),
		RunID:      runID,
		Example:    r.example,
		StartTime:  startTime,
		EndTime:    time.Now(),
		Report:     report,
		Regression: regressionAnalysis,
	}
	if path, err := database.WriteSpoolArtifact(filepath.Join(r.outputDir, "spool"), artifact); err != nil {
		r.logger.WithError(err).Warn("Failed to write spool artifact")
	} else {
		r.logger.WithField("path", path).Debug("Spool artifact written")
	}

	if r.sink == nil {
		return
	}
	defer r.sink.Close()

	hostConfig, _ := host.GetHostConfig()
	if err := r.sink.WriteRunSummary(ctx, runID, r.example, report, hostConfig); err != nil {
		r.logger.WithError(err).Warn("Failed to write run summary to results sink")
	}

	r.logTrendDrift(ctx, report)
}

// logTrendDrift compares each implementation's mean against its stored
// history in the sink so slow long-term drift is visible even when no single
// run trips the regression gate.
func (r *Runner) logTrendDrift(ctx context.Context, report *reporting.BenchmarkReport) {
	for _, result := range report.Results {
		history, err := r.sink.QueryMeanHistory(ctx, r.example, result.Name, trendLookback)
		if err != nil {
			r.logger.WithField("implementation", result.Name).WithError(err).Debug("Mean history query failed")
			continue
		}

		drift, ok := historyDrift(history, result.Statistics.Mean)
		if !ok {
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"implementation": result.Name,
			"samples":        len(history),
			"drift_pct":      fmt.Sprintf("%.1f", drift),
		}).Info("Mean drift against stored history")
	}
}

// historyDrift returns the percent deviation of current from the historical
// mean. The second return is false when the history is empty or degenerate.
func historyDrift(history []float64, current float64) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	mean := stat.Mean(history, nil)
	if mean <= 0 {
		return 0, false
	}
	return (current - mean) / mean * 100, true
}

func (r *Runner) writeArtifact(name, content string) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		r.logger.WithError(err).Warn("Failed to create output directory")
		return
	}
	path := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.logger.WithField("path", path).WithError(err).Warn("Failed to write artifact")
	}
}

func environmentBlock(hostConfig *host.HostConfig, state *isolation.EnvironmentState, isoResult *isolation.IsolationResult) reporting.EnvironmentBlock {
	block := reporting.EnvironmentBlock{
		State:     state,
		Isolation: isoResult,
	}
	if hostConfig != nil {
		block.Host = reporting.HostInfo{
			Hostname:      hostConfig.Hostname,
			CPUModel:      hostConfig.CPUModel,
			TotalCores:    hostConfig.TotalCores,
			KernelVersion: hostConfig.KernelVersion,
			L3CacheMB:     hostConfig.L3Cache.TotalSizeMB,
			RDTSupported:  hostConfig.RDT.Supported,
		}
	}
	return block
}

// conventionalBinaryPath guesses where a compiled artifact for the example
// lives; an empty return or missing file skips binary analysis.
func conventionalBinaryPath(example, implementation string) string {
	base := filepath.Base(example)
	switch implementation {
	case "rust":
		return filepath.Join(example, "rust", "target", "release", base)
	case "go":
		return filepath.Join(example, "go", base)
	case "c":
		return filepath.Join(example, "c", base)
	case "ruchy":
		return filepath.Join(example, "ruchy", base)
	default:
		return ""
	}
}

func ruchyAdvancedAnalysis() *reporting.AdvancedAnalysis {
	// mocked toolchain output until the analyzer service is wired in
	return &reporting.AdvancedAnalysis{
		ProvabilityScore: 85,
		QualityScore:     90,
		OptimizationNotes: []string{
			"Tail-call optimization applied to recursive paths",
			"Bounds checks elided for proven-safe indexing",
		},
	}
}
