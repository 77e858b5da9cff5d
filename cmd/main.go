package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"polybench/internal/config"
	"polybench/internal/isolation"
	"polybench/internal/logging"
	"polybench/internal/regression"
	"polybench/internal/reporting"
	"polybench/internal/runner"
	"polybench/internal/stats"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}

	// Try to load from the application directory
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
			} else {
				logger.WithField("file", envFile).Debug("Loaded environment variables")
			}
		}
	}
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	var configFile string
	var example string
	var languages []string
	var iterations, warmup int
	var cores string
	var memoryProfiling, cpuProfiling bool
	var outputDir, baselineDir string
	var format string
	var logLevel string
	var resultsDir string
	var htmlOutput bool
	var baselineFile, currentFile string
	var threshold float64

	rootCmd := &cobra.Command{
		Use:   "polybench",
		Short: "Polyglot benchmark orchestrator",
		Long:  "A statistical benchmarking tool for comparing implementations of the same algorithm across languages, with environment isolation, memory and binary analysis, and regression gating",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
				if err := logging.SetRegressionLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "json", "Output format for stdout (json, yaml, markdown, html)")

	runCmd := &cobra.Command{
		Use:   "run [example]",
		Short: "Run a benchmark",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				example = args[0]
			}
			overrides := runOverrides{
				languages:       languages,
				iterations:      iterations,
				warmup:          warmup,
				cores:           cores,
				outputDir:       outputDir,
				baselineDir:     baselineDir,
				memoryProfiling: memoryProfiling,
				cpuProfiling:    cpuProfiling,
				flagChanged:     cmd.Flags().Changed,
			}
			return runBenchmark(configFile, example, overrides, format)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the measurement environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSetup(configFile)
		},
	}

	compareCmd := &cobra.Command{
		Use:   "compare [results-dir]",
		Short: "Compare stored benchmark reports",
		Long:  "Read previously written JSON reports from a results directory and print a cross-example comparison",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				resultsDir = args[0]
			}
			return compareReports(resultsDir, htmlOutput)
		},
	}

	regressionCmd := &cobra.Command{
		Use:   "regression",
		Short: "Compare two stored statistical analyses",
		Long:  "Load a baseline and a current analysis from JSON files and report significance and severity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compareAnalyses(baselineFile, currentFile, threshold)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file (defaults to bench.yaml when present)")
	runCmd.Flags().StringSliceVar(&languages, "languages", nil, "Implementations to measure (overrides config)")
	runCmd.Flags().IntVar(&iterations, "iterations", 0, "Measured iterations per implementation (overrides config)")
	runCmd.Flags().IntVar(&warmup, "warmup", -1, "Warmup iterations to discard (overrides config)")
	runCmd.Flags().StringVar(&cores, "cores", "", "CPU cores to isolate, e.g. 0,2 or 0-3 (overrides config)")
	runCmd.Flags().BoolVar(&memoryProfiling, "memory-profiling", false, "Profile memory usage during measurement")
	runCmd.Flags().BoolVar(&cpuProfiling, "cpu-profiling", false, "Collect hardware performance counters")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for reports and artifacts (overrides config)")
	runCmd.Flags().StringVar(&baselineDir, "baseline-dir", "", "Directory for regression baselines (overrides config)")

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file")

	compareCmd.Flags().StringVar(&resultsDir, "results-dir", "results", "Directory containing *_report.json files")
	compareCmd.Flags().BoolVar(&htmlOutput, "html", false, "Write an HTML comparison next to the source reports")

	regressionCmd.Flags().StringVar(&baselineFile, "baseline", "", "Path to the baseline analysis JSON")
	regressionCmd.Flags().StringVar(&currentFile, "current", "", "Path to the current analysis JSON")
	regressionCmd.Flags().Float64Var(&threshold, "threshold", 5.0, "Regression threshold in percent")
	regressionCmd.MarkFlagRequired("baseline")
	regressionCmd.MarkFlagRequired("current")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(regressionCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command execution failed")
	}
}

type runOverrides struct {
	languages       []string
	iterations      int
	warmup          int
	cores           string
	outputDir       string
	baselineDir     string
	memoryProfiling bool
	cpuProfiling    bool
	flagChanged     func(string) bool
}

func (o runOverrides) apply(cfg *config.BenchmarkConfig) error {
	b := &cfg.Benchmark
	if len(o.languages) > 0 {
		b.Languages = o.languages
	}
	if o.iterations > 0 {
		b.Iterations = o.iterations
	}
	if o.warmup >= 0 && o.flagChanged("warmup") {
		b.Warmup = o.warmup
	}
	if o.cores != "" {
		parsed, err := config.ParseCPUSpec(o.cores)
		if err != nil {
			return fmt.Errorf("invalid --cores: %w", err)
		}
		b.Isolation.Cores = o.cores
		b.Isolation.CPUCores = parsed
	}
	if o.outputDir != "" {
		b.OutputDir = o.outputDir
	}
	if o.baselineDir != "" {
		b.BaselineDir = o.baselineDir
	}
	if o.flagChanged("memory-profiling") {
		b.MemoryProfiling = o.memoryProfiling
	}
	if o.flagChanged("cpu-profiling") {
		b.CPUProfiling = o.cpuProfiling
	}
	return nil
}

func loadConfigOrDefault(configFile string) (*config.BenchmarkConfig, error) {
	if configFile != "" {
		return config.LoadConfig(configFile)
	}
	if _, err := os.Stat("bench.yaml"); err == nil {
		return config.LoadConfig("bench.yaml")
	}
	return config.DefaultConfig(), nil
}

func runBenchmark(configFile, example string, overrides runOverrides, format string) error {
	logger := logging.GetLogger()

	cfg, err := loadConfigOrDefault(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return err
	}
	if err := overrides.apply(cfg); err != nil {
		return err
	}
	if example == "" {
		example = cfg.Benchmark.Name
	}

	if level := cfg.Benchmark.LogLevel; level != "" {
		if err := logging.SetLogLevel(level); err != nil {
			logger.WithField("log_level", level).Warn("Ignoring invalid log level from configuration")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bench, err := runner.New(cfg, example)
	if err != nil {
		return err
	}

	outcome, err := bench.Run(ctx)
	if err != nil {
		return err
	}

	rendered, err := outcome.Report.Render(format)
	if err != nil {
		return err
	}
	fmt.Println(rendered)

	for implementation, implErr := range outcome.Failed {
		logger.WithField("implementation", implementation).WithError(implErr).Warn("Implementation omitted from report")
	}

	// Regression verdicts are reported in-band; the exit code stays zero so
	// CI pipelines decide their own gating policy from the report.
	return nil
}

func validateSetup(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := loadConfigOrDefault(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	if configFile != "" {
		logger.WithField("config_file", configFile).Info("Configuration is valid")
	}

	controller := isolation.NewController(cfg.Benchmark.Isolation.CPUCores, "performance", false)
	state, err := controller.DetectEnvironment()
	if err != nil {
		logger.WithError(err).Error("Environment detection failed")
		return err
	}

	fmt.Printf("Available cores: %d\n", len(state.AvailableCores))
	fmt.Printf("Load average:    %.2f %.2f %.2f\n",
		state.LoadAverage[0], state.LoadAverage[1], state.LoadAverage[2])
	fmt.Printf("Memory usage:    %.1f%%\n", state.Memory.UsagePercent)
	if state.IRQBalanceRunning {
		fmt.Println("Warning: irqbalance is running and may perturb measurements")
	}
	governors := make(map[string]int)
	for _, g := range state.Governors {
		governors[g]++
	}
	for governor, count := range governors {
		fmt.Printf("Governor:        %s (%d cores)\n", governor, count)
	}

	if len(cfg.Benchmark.Isolation.CPUCores) > 0 {
		result, err := controller.ApplyIsolation()
		if err != nil {
			return err
		}
		fmt.Printf("Isolation:       success=%v cores=%v\n", result.Success, result.IsolatedCores)
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	return nil
}

func compareReports(resultsDir string, htmlOutput bool) error {
	logger := logging.GetLogger()

	paths, err := filepath.Glob(filepath.Join(resultsDir, "*_report.json"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no reports found in %s", resultsDir)
	}

	var b strings.Builder
	b.WriteString("# Cross-Example Comparison\n\n")
	b.WriteString("| Example | Fastest | Ranking | Implementations |\n")
	b.WriteString("|---------|---------|---------|----------------|\n")

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.WithField("path", path).WithError(err).Warn("Skipping unreadable report")
			continue
		}
		var report reporting.BenchmarkReport
		if err := json.Unmarshal(data, &report); err != nil {
			logger.WithField("path", path).WithError(err).Warn("Skipping malformed report")
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n",
			report.Configuration.Example, report.Summary.Fastest,
			strings.Join(report.Summary.Ranking, " > "), len(report.Results))
	}

	output := b.String()
	fmt.Println(output)

	if htmlOutput {
		htmlPath := filepath.Join(resultsDir, "comparison.html")
		html := "<!DOCTYPE html>\n<html><body><pre>" + output + "</pre></body></html>\n"
		if err := os.WriteFile(htmlPath, []byte(html), 0644); err != nil {
			return fmt.Errorf("failed to write HTML comparison: %w", err)
		}
		logger.WithField("path", htmlPath).Info("Wrote HTML comparison")
	}
	return nil
}

func compareAnalyses(baselineFile, currentFile string, threshold float64) error {
	baseline, err := loadAnalysis(baselineFile)
	if err != nil {
		return fmt.Errorf("failed to load baseline: %w", err)
	}
	current, err := loadAnalysis(currentFile)
	if err != nil {
		return fmt.Errorf("failed to load current analysis: %w", err)
	}

	comparison := stats.Compare(baseline, current)
	severity := regression.ClassifySeverity(comparison, threshold)

	fmt.Printf("Baseline mean: %.2f ns\n", comparison.BaselineMean)
	fmt.Printf("Current mean:  %.2f ns\n", comparison.CurrentMean)
	fmt.Printf("Change:        %+.2f%%\n", comparison.PercentChange)
	fmt.Printf("Significance:  %s\n", comparison.Significance)
	fmt.Printf("Severity:      %s\n", severity)

	if comparison.Significance == stats.SignificantRegression && comparison.PercentChange >= threshold {
		logging.GetRegressionLogger().WithFields(logrus.Fields{
			"percent_change": comparison.PercentChange,
			"threshold":      threshold,
			"severity":       severity,
		}).Warn("Regression exceeds threshold")
	}
	return nil
}

func loadAnalysis(path string) (*stats.StatisticalAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Accept either a bare analysis or a stored baseline wrapper
	var analysis stats.StatisticalAnalysis
	if err := json.Unmarshal(data, &analysis); err == nil && analysis.SampleCount > 0 {
		return &analysis, nil
	}
	var baseline regression.PerformanceBaseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("unrecognized analysis format in %s: %w", path, err)
	}
	if baseline.Statistics.SampleCount == 0 {
		return nil, fmt.Errorf("no analysis data in %s", path)
	}
	return &baseline.Statistics, nil
}
