package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"polybench/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*BenchmarkConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*BenchmarkConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	// Expand environment variables
	expanded := expandEnvVars(originalContent)

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	if config.Benchmark.Isolation.Cores != "" {
		cpus, err := ParseCPUSpec(config.Benchmark.Isolation.Cores)
		if err != nil {
			logger.WithField("core_spec", config.Benchmark.Isolation.Cores).WithError(err).Error("Failed to parse CPU specification")
			return nil, "", fmt.Errorf("invalid CPU specification '%s': %w", config.Benchmark.Isolation.Cores, err)
		}
		config.Benchmark.Isolation.CPUCores = cpus
	}

	if err := validateConfig(config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return config, originalContent, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

// ParseCPUSpec parses CPU specification strings like "0", "0,2,4", or "0-3".
func ParseCPUSpec(spec string) ([]int, error) {
	var cpus []int
	seen := make(map[int]bool)

	parts := strings.Split(spec, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid CPU range: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU range start: %s", rangeParts[0])
			}

			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU range end: %s", rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("invalid CPU range: start > end (%d > %d)", start, end)
			}

			for i := start; i <= end; i++ {
				if !seen[i] {
					cpus = append(cpus, i)
					seen[i] = true
				}
			}
		} else {
			cpu, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number: %s", part)
			}

			if !seen[cpu] {
				cpus = append(cpus, cpu)
				seen[cpu] = true
			}
		}
	}

	if len(cpus) == 0 {
		return nil, fmt.Errorf("no CPUs specified")
	}

	return cpus, nil
}

func validateConfig(config *BenchmarkConfig) error {
	if config.Benchmark.Name == "" {
		return fmt.Errorf("benchmark name is required")
	}

	if config.Benchmark.Iterations <= 0 {
		return fmt.Errorf("iterations must be greater than 0")
	}

	if config.Benchmark.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}

	if len(config.Benchmark.Languages) == 0 {
		return fmt.Errorf("at least one language must be specified")
	}

	if config.Benchmark.Regression.Threshold < 0 {
		return fmt.Errorf("regression threshold must not be negative")
	}

	return nil
}
