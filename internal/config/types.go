package config

import (
	"time"
)

type BenchmarkConfig struct {
	Benchmark BenchmarkInfo `yaml:"benchmark"`
}

type BenchmarkInfo struct {
	Name            string           `yaml:"name"`
	Description     string           `yaml:"description"`
	Iterations      int              `yaml:"iterations"`
	Warmup          int              `yaml:"warmup"`
	Languages       []string         `yaml:"languages"`
	LogLevel        string           `yaml:"log_level"`
	OutputDir       string           `yaml:"output_dir"`
	BaselineDir     string           `yaml:"baseline_dir"`
	MemoryProfiling bool             `yaml:"memory_profiling"`
	CPUProfiling    bool             `yaml:"cpu_profiling"`
	Isolation       IsolationConfig  `yaml:"isolation"`
	Regression      RegressionConfig `yaml:"regression"`
	Data            DataConfig       `yaml:"data"`
}

type IsolationConfig struct {
	Cores    string `yaml:"cores"`
	CPUCores []int  `yaml:"-"`
}

type RegressionConfig struct {
	Threshold float64 `yaml:"threshold"`
	MaxAge    int     `yaml:"max_age_days"`
}

type DataConfig struct {
	DB DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != "" && d.Name != "" && d.Org != ""
}

func (c *BenchmarkConfig) GetBaselineMaxAge() time.Duration {
	days := c.Benchmark.Regression.MaxAge
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

// DefaultConfig carries the values used when no config file is present.
func DefaultConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		Benchmark: BenchmarkInfo{
			Name:        "polybench",
			Iterations:  1000,
			Warmup:      3,
			Languages:   []string{"rust", "go", "python", "ruchy"},
			LogLevel:    "info",
			OutputDir:   "results",
			BaselineDir: "baselines",
			Regression: RegressionConfig{
				Threshold: 5.0,
				MaxAge:    90,
			},
		},
	}
}
