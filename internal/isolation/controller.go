package isolation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"polybench/internal/logging"

	"github.com/prometheus/procfs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type ControllerState int

const (
	StateNew ControllerState = iota
	StateDetected
	StateIsolated
	StatePartiallyIsolated
	StateFailed
)

func (s ControllerState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDetected:
		return "detected"
	case StateIsolated:
		return "isolated"
	case StatePartiallyIsolated:
		return "partially_isolated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
}

// EnvironmentState is a read-only snapshot of the host taken before
// isolation is applied.
type EnvironmentState struct {
	AvailableCores    []int           `json:"available_cores"`
	Governors         map[int]string  `json:"governors"`
	FrequenciesMHz    map[int]float64 `json:"frequencies_mhz"`
	LoadAverage       [3]float64      `json:"load_average"`
	Memory            MemoryInfo      `json:"memory"`
	IRQBalanceRunning bool            `json:"irqbalance_running"`
}

type IsolationResult struct {
	Success         bool     `json:"success"`
	IsolatedCores   []int    `json:"isolated_cores"`
	AppliedGovernor string   `json:"applied_governor,omitempty"`
	Warnings        []string `json:"warnings"`
	Errors          []string `json:"errors"`
}

// Controller owns CPU affinity and governor sysfs entries for the duration
// of a run. It is the single writer of those paths; nothing downstream may
// touch them.
type Controller struct {
	cores          []int
	targetGovernor string
	lockFrequency  bool

	sysfsRoot   string
	procMount   string
	runCommand  func(name string, args ...string) ([]byte, error)
	setAffinity func(cores []int) error

	state       ControllerState
	environment *EnvironmentState
	logger      *logrus.Logger
}

func NewController(cores []int, governor string, lockFrequency bool) *Controller {
	return &Controller{
		cores:          cores,
		targetGovernor: governor,
		lockFrequency:  lockFrequency,
		sysfsRoot:      "/sys/devices/system/cpu",
		procMount:      procfs.DefaultMountPoint,
		runCommand:     runCommand,
		setAffinity:    setProcessAffinity,
		state:          StateNew,
		logger:         logging.GetLogger(),
	}
}

func (c *Controller) State() ControllerState {
	return c.state
}

func (c *Controller) Environment() *EnvironmentState {
	return c.environment
}

// DetectEnvironment snapshots the host without side effects.
func (c *Controller) DetectEnvironment() (*EnvironmentState, error) {
	env := &EnvironmentState{
		Governors:      make(map[int]string),
		FrequenciesMHz: make(map[int]float64),
	}

	cores, err := c.availableCores()
	if err != nil {
		c.state = StateFailed
		return nil, fmt.Errorf("failed to enumerate CPU cores: %w", err)
	}
	env.AvailableCores = cores

	for _, core := range cores {
		if gov, err := c.readCoreFile(core, "scaling_governor"); err == nil {
			env.Governors[core] = strings.TrimSpace(gov)
		}
		if freq, err := c.readCoreFile(core, "scaling_cur_freq"); err == nil {
			if khz, err := strconv.ParseFloat(strings.TrimSpace(freq), 64); err == nil {
				env.FrequenciesMHz[core] = khz / 1000
			}
		}
	}

	if fs, err := procfs.NewFS(c.procMount); err == nil {
		if load, err := fs.LoadAvg(); err == nil {
			env.LoadAverage = [3]float64{load.Load1, load.Load5, load.Load15}
		}
		if mi, err := fs.Meminfo(); err == nil {
			env.Memory = memoryInfoFromMeminfo(mi)
		}
	} else {
		c.logger.WithError(err).Warn("Failed to open procfs, load and memory unavailable")
	}

	if out, err := c.runCommand("pgrep", "-x", "irqbalance"); err == nil && len(strings.TrimSpace(string(out))) > 0 {
		env.IRQBalanceRunning = true
	}

	c.environment = env
	c.state = StateDetected

	c.logger.WithFields(logrus.Fields{
		"available_cores": len(env.AvailableCores),
		"load_1m":         env.LoadAverage[0],
		"memory_usage":    fmt.Sprintf("%.1f%%", env.Memory.UsagePercent),
	}).Info("Environment detected")

	return env, nil
}

// ApplyIsolation pins the calling process to the configured cores and sets
// the target governor. Reapplying the same settings is allowed.
func (c *Controller) ApplyIsolation() (*IsolationResult, error) {
	if c.state == StateNew || c.state == StateFailed {
		return nil, fmt.Errorf("environment not detected (state %s)", c.state)
	}

	result := &IsolationResult{Success: true}

	available := make(map[int]bool)
	for _, core := range c.environment.AvailableCores {
		available[core] = true
	}

	var validCores []int
	for _, core := range c.cores {
		if !available[core] {
			result.Errors = append(result.Errors, fmt.Sprintf("Core %d not available", core))
			result.Success = false
			continue
		}
		validCores = append(validCores, core)
	}

	if len(validCores) > 0 {
		if err := c.setAffinity(validCores); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to set CPU affinity: %v", err))
			result.Success = false
		} else {
			result.IsolatedCores = validCores
		}
	}

	for _, core := range result.IsolatedCores {
		if c.targetGovernor != "" {
			if err := c.writeCoreFile(core, "scaling_governor", c.targetGovernor); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Failed to set governor on core %d: %v (requires root)", core, err))
			} else {
				result.AppliedGovernor = c.targetGovernor
			}
		}

		if c.lockFrequency {
			if err := c.lockCoreFrequency(core); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Failed to lock frequency on core %d: %v", core, err))
			}
		}
	}

	c.assessNoise(result)

	if result.Success {
		c.state = StateIsolated
	} else if len(result.IsolatedCores) > 0 {
		c.state = StatePartiallyIsolated
	} else {
		c.state = StateFailed
	}

	c.logger.WithFields(logrus.Fields{
		"success":        result.Success,
		"isolated_cores": result.IsolatedCores,
		"warnings":       len(result.Warnings),
		"errors":         len(result.Errors),
	}).Info("Isolation applied")

	return result, nil
}

// RestoreEnvironment is a no-op. Governor settings survive the run; a
// snapshots-and-restore scheme would race other processes writing the same
// sysfs entries.
func (c *Controller) RestoreEnvironment() error {
	return nil
}

func (c *Controller) assessNoise(result *IsolationResult) {
	env := c.environment
	if env.LoadAverage[0] > 0.5 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("System load is high (%.2f), results may be noisy", env.LoadAverage[0]))
	}
	if env.Memory.UsagePercent > 80 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Memory usage is high (%.1f%%), results may be noisy", env.Memory.UsagePercent))
	}
	if env.IRQBalanceRunning {
		result.Warnings = append(result.Warnings,
			"irqbalance is running, consider stopping it for stable results")
	}
}

var cpuDirPattern = regexp.MustCompile(`^cpu(\d+)$`)

func (c *Controller) availableCores() ([]int, error) {
	entries, err := os.ReadDir(c.sysfsRoot)
	if err != nil {
		return nil, err
	}

	var cores []int
	for _, entry := range entries {
		m := cpuDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		core, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cores = append(cores, core)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no CPU entries under %s", c.sysfsRoot)
	}

	sort.Ints(cores)

	return cores, nil
}

func (c *Controller) corePath(core int, file string) string {
	return filepath.Join(c.sysfsRoot, fmt.Sprintf("cpu%d", core), "cpufreq", file)
}

func (c *Controller) readCoreFile(core int, file string) (string, error) {
	data, err := os.ReadFile(c.corePath(core, file))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Controller) writeCoreFile(core int, file, value string) error {
	return os.WriteFile(c.corePath(core, file), []byte(value), 0644)
}

func (c *Controller) lockCoreFrequency(core int) error {
	maxFreq, err := c.readCoreFile(core, "scaling_max_freq")
	if err != nil {
		return err
	}
	return c.writeCoreFile(core, "scaling_min_freq", strings.TrimSpace(maxFreq))
}

func memoryInfoFromMeminfo(mi procfs.Meminfo) MemoryInfo {
	var info MemoryInfo
	if mi.MemTotal != nil {
		info.TotalBytes = *mi.MemTotal * 1024
	}
	if mi.MemAvailable != nil {
		info.AvailableBytes = *mi.MemAvailable * 1024
	}
	if info.TotalBytes > 0 {
		info.UsagePercent = float64(info.TotalBytes-info.AvailableBytes) / float64(info.TotalBytes) * 100
	}
	if mi.SwapTotal != nil && mi.SwapFree != nil && *mi.SwapTotal >= *mi.SwapFree {
		info.SwapUsedBytes = (*mi.SwapTotal - *mi.SwapFree) * 1024
	}
	return info
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

func setProcessAffinity(cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, core := range cores {
		set.Set(core)
	}
	return unix.SchedSetaffinity(0, &set)
}
