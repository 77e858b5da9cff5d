package host

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"polybench/internal/logging"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"
)

// HostConfig describes the machine a benchmark run executes on. It is
// initialized once at startup and embedded into reports and baseline
// fingerprints.
type HostConfig struct {
	CPUVendor    string
	CPUModel     string
	TotalCores   int
	TotalThreads int
	NumSockets   int

	L3Cache L3CacheConfig

	RDT RDTConfig

	Hostname      string
	OSInfo        string
	KernelVersion string

	logger *logrus.Logger
}

type L3CacheConfig struct {
	TotalSizeBytes int64
	TotalSizeKB    float64
	TotalSizeMB    float64
}

// RDTConfig records whether the host exposes Intel RDT monitoring. The
// benchmark harness only detects it; cache allocation is out of scope.
type RDTConfig struct {
	Supported           bool
	MonitoringSupported bool
	AvailableClasses    []string
	MonitoringFeatures  map[string][]string
}

var (
	globalHostConfig *HostConfig
	hostConfigOnce   sync.Once
)

// GetHostConfig returns the global host configuration, initializing it on
// first call.
func GetHostConfig() (*HostConfig, error) {
	var err error
	hostConfigOnce.Do(func() {
		globalHostConfig, err = initializeHostConfig()
	})
	return globalHostConfig, err
}

func initializeHostConfig() (*HostConfig, error) {
	logger := logging.GetLogger()
	logger.Debug("Initializing host configuration")

	config := &HostConfig{
		logger: logger,
	}

	if err := config.initSystemInfo(); err != nil {
		return nil, fmt.Errorf("failed to initialize system info: %v", err)
	}

	if err := config.initCPUInfo(); err != nil {
		return nil, fmt.Errorf("failed to initialize CPU info: %v", err)
	}

	if err := config.initL3CacheInfo(); err != nil {
		logger.WithError(err).Debug("Failed to read L3 cache info, using defaults")
		config.setDefaultL3CacheInfo()
	}

	if err := config.initRDTInfo(); err != nil {
		logger.WithError(err).Debug("RDT detection failed, RDT reporting disabled")
		config.RDT.Supported = false
	}

	logger.WithFields(logrus.Fields{
		"cpu_model":     config.CPUModel,
		"total_cores":   config.TotalCores,
		"l3_cache_mb":   config.L3Cache.TotalSizeMB,
		"rdt_supported": config.RDT.Supported,
	}).Debug("Host configuration initialized")

	return config, nil
}

// Fingerprint identifies the measurement environment for baseline
// comparability: operating system, architecture, and year-month of capture.
func (hc *HostConfig) Fingerprint() string {
	return fmt.Sprintf("%s-%s-%s", runtime.GOOS, runtime.GOARCH, time.Now().Format("200601"))
}

func (hc *HostConfig) initSystemInfo() error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %v", err)
	}
	hc.Hostname = hostname

	hc.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	if data, err := os.ReadFile("/proc/version"); err == nil {
		version := strings.Fields(string(data))
		if len(version) >= 3 {
			hc.KernelVersion = version[2]
		}
	}

	if hc.KernelVersion == "" {
		hc.KernelVersion = "unknown"
	}

	return nil
}

func (hc *HostConfig) initCPUInfo() error {
	hc.TotalCores = runtime.NumCPU()
	hc.TotalThreads = runtime.NumCPU()

	file, err := os.Open("/proc/cpuinfo")
	if err != nil {
		hc.CPUVendor = "unknown"
		hc.CPUModel = "unknown"
		hc.NumSockets = 1
		return nil
	}
	defer file.Close()

	var physicalIDs []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "vendor_id") {
			if hc.CPUVendor == "" {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					hc.CPUVendor = strings.TrimSpace(parts[1])
				}
			}
		} else if strings.HasPrefix(line, "model name") {
			if hc.CPUModel == "" {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					hc.CPUModel = strings.TrimSpace(parts[1])
				}
			}
		} else if strings.HasPrefix(line, "physical id") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				physicalID := strings.TrimSpace(parts[1])
				found := false
				for _, id := range physicalIDs {
					if id == physicalID {
						found = true
						break
					}
				}
				if !found {
					physicalIDs = append(physicalIDs, physicalID)
				}
			}
		}
	}

	if hc.CPUVendor == "" {
		hc.CPUVendor = "unknown"
	}
	if hc.CPUModel == "" {
		hc.CPUModel = "unknown"
	}

	hc.NumSockets = len(physicalIDs)
	if hc.NumSockets == 0 {
		hc.NumSockets = 1
	}

	return nil
}

func (hc *HostConfig) initL3CacheInfo() error {
	cacheSize, err := hc.getL3CacheSizeFromSysfs()
	if err != nil {
		return fmt.Errorf("failed to get L3 cache size: %v", err)
	}

	hc.L3Cache.TotalSizeBytes = cacheSize
	hc.L3Cache.TotalSizeKB = float64(cacheSize) / 1024.0
	hc.L3Cache.TotalSizeMB = float64(cacheSize) / (1024.0 * 1024.0)

	return nil
}

func (hc *HostConfig) getL3CacheSizeFromSysfs() (int64, error) {
	// Some systems expose L3 at index2 instead of index3
	cachePaths := []string{
		"/sys/devices/system/cpu/cpu0/cache/index3/size",
		"/sys/devices/system/cpu/cpu0/cache/index2/size",
	}

	for _, path := range cachePaths {
		if data, err := os.ReadFile(path); err == nil {
			sizeStr := strings.TrimSpace(string(data))

			if strings.HasSuffix(sizeStr, "K") {
				if sizeKB, err := strconv.ParseInt(sizeStr[:len(sizeStr)-1], 10, 64); err == nil {
					return sizeKB * 1024, nil
				}
			} else if strings.HasSuffix(sizeStr, "M") {
				if sizeMB, err := strconv.ParseInt(sizeStr[:len(sizeStr)-1], 10, 64); err == nil {
					return sizeMB * 1024 * 1024, nil
				}
			} else {
				if sizeBytes, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
					return sizeBytes, nil
				}
			}
		}
	}

	return 0, fmt.Errorf("could not determine L3 cache size")
}

func (hc *HostConfig) setDefaultL3CacheInfo() {
	defaultSizeMB := int64(8)

	if strings.Contains(strings.ToLower(hc.CPUModel), "xeon") {
		defaultSizeMB = 32
	} else if strings.Contains(strings.ToLower(hc.CPUModel), "i7") {
		defaultSizeMB = 12
	}

	hc.L3Cache.TotalSizeBytes = defaultSizeMB * 1024 * 1024
	hc.L3Cache.TotalSizeKB = float64(defaultSizeMB * 1024)
	hc.L3Cache.TotalSizeMB = float64(defaultSizeMB)
}

func (hc *HostConfig) initRDTInfo() error {
	// MonSupported and GetClasses report nothing until the resctrl
	// filesystem has been discovered; a failed Initialize means no RDT.
	if err := rdt.Initialize(""); err != nil {
		hc.RDT.Supported = false
		hc.RDT.MonitoringSupported = false
		return nil
	}

	hc.RDT.Supported = rdt.MonSupported()
	hc.RDT.MonitoringSupported = rdt.MonSupported()

	if !hc.RDT.Supported {
		return nil
	}

	classes := rdt.GetClasses()
	for _, class := range classes {
		hc.RDT.AvailableClasses = append(hc.RDT.AvailableClasses, class.Name())
	}

	monFeatures := rdt.GetMonFeatures()
	hc.RDT.MonitoringFeatures = make(map[string][]string)
	for resource, features := range monFeatures {
		hc.RDT.MonitoringFeatures[string(resource)] = features
	}

	return nil
}
