package memprofiler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"polybench/internal/logging"

	"github.com/prometheus/procfs"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

var ErrNotStarted = errors.New("profiling not started")

const (
	DefaultInterval      = 10 * time.Millisecond
	DefaultMaxDuration   = 5 * time.Minute
	DefaultLeakThreshold = 1 << 20 // 1 MiB
)

type MemorySnapshot struct {
	TimestampMs int64  `json:"timestamp_ms"`
	RSSBytes    uint64 `json:"rss_bytes"`
	VMSBytes    uint64 `json:"vms_bytes"`
}

// SnapshotReader reads the current RSS and VMS of a process. The procfs
// implementation parses /proc/<pid>/status; tests substitute a fake.
type SnapshotReader interface {
	ReadSnapshot(pid int) (rss, vms uint64, err error)
}

type AllocationStats struct {
	EstimatedAllocationEvents int    `json:"estimated_allocation_events"`
	EstimatedAllocatedBytes   uint64 `json:"estimated_allocated_bytes"`
	Estimated                 bool   `json:"estimated"`
}

type EfficiencyMetrics struct {
	OverheadPercent      float64 `json:"overhead_percent"`
	UtilizationPercent   float64 `json:"utilization_percent"`
	ChurnRate            float64 `json:"churn_rate"`
	AccessPatternScore   float64 `json:"access_pattern_score"`
	CacheEfficiencyScore float64 `json:"cache_efficiency_score"`
	FragmentationScore   float64 `json:"fragmentation_score"`
}

type SwapUsage struct {
	InitialBytes uint64 `json:"initial_bytes"`
	PeakBytes    uint64 `json:"peak_bytes"`
	FinalBytes   uint64 `json:"final_bytes"`
}

type MemoryProfile struct {
	InitialRSSBytes uint64            `json:"initial_rss_bytes"`
	FinalRSSBytes   uint64            `json:"final_rss_bytes"`
	PeakRSSBytes    uint64            `json:"peak_rss_bytes"`
	AverageRSSBytes uint64            `json:"average_rss_bytes"`
	MemoryLeakBytes int64             `json:"memory_leak_bytes"`
	LeakDetected    bool              `json:"leak_detected"`
	Allocations     AllocationStats   `json:"allocation_stats"`
	Timeline        []MemorySnapshot  `json:"timeline"`
	Efficiency      EfficiencyMetrics `json:"efficiency_metrics"`
	Swap            SwapUsage         `json:"swap_usage"`
	DurationMs      int64             `json:"duration_ms"`
}

// Profiler samples a target process's memory at a fixed interval between
// StartProfiling and StopProfiling.
type Profiler struct {
	interval         time.Duration
	maxDuration      time.Duration
	leakThreshold    uint64
	totalSystemBytes uint64
	reader           SnapshotReader
	swapUsed         func() uint64
	logger           *logrus.Logger

	mu        sync.Mutex
	started   bool
	pid       int
	startTime time.Time
	timeline  []MemorySnapshot
	swapPeak  uint64
	swapInit  uint64
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p := &Profiler{
		interval:      interval,
		maxDuration:   DefaultMaxDuration,
		leakThreshold: DefaultLeakThreshold,
		reader:        procSnapshotReader{},
		swapUsed:      systemSwapUsed,
		logger:        logging.GetLogger(),
	}

	if fs, err := procfs.NewDefaultFS(); err == nil {
		if mi, err := fs.Meminfo(); err == nil && mi.MemTotal != nil {
			p.totalSystemBytes = *mi.MemTotal * 1024
		}
	}

	return p
}

// StartProfiling captures the first snapshot and begins interval sampling.
func (p *Profiler) StartProfiling(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("profiling already running for pid %d", p.pid)
	}

	rss, vms, err := p.reader.ReadSnapshot(pid)
	if err != nil {
		return fmt.Errorf("failed to read initial snapshot for pid %d: %w", pid, err)
	}

	p.started = true
	p.pid = pid
	p.startTime = time.Now()
	p.timeline = []MemorySnapshot{{TimestampMs: 0, RSSBytes: rss, VMSBytes: vms}}
	p.swapInit = p.swapUsed()
	p.swapPeak = p.swapInit
	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})

	go p.sampleLoop()

	p.logger.WithFields(logrus.Fields{
		"pid":      pid,
		"interval": p.interval,
	}).Debug("Memory profiling started")

	return nil
}

func (p *Profiler) sampleLoop() {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	deadline := time.NewTimer(p.maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-deadline.C:
			p.logger.WithField("pid", p.pid).Warn("Memory profiling hit max duration")
			return
		case <-ticker.C:
			rss, vms, err := p.reader.ReadSnapshot(p.pid)
			if err != nil {
				// target process ended; normal termination
				p.logger.WithField("pid", p.pid).Debug("Snapshot read failed, sampling stopped")
				return
			}
			p.mu.Lock()
			p.timeline = append(p.timeline, MemorySnapshot{
				TimestampMs: time.Since(p.startTime).Milliseconds(),
				RSSBytes:    rss,
				VMSBytes:    vms,
			})
			if swap := p.swapUsed(); swap > p.swapPeak {
				p.swapPeak = swap
			}
			p.mu.Unlock()
		}
	}
}

// StopProfiling records the final snapshot and derives the profile.
func (p *Profiler) StopProfiling() (*MemoryProfile, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, ErrNotStarted
	}
	stopChan := p.stopChan
	doneChan := p.doneChan
	p.mu.Unlock()

	close(stopChan)
	<-doneChan

	p.mu.Lock()
	defer p.mu.Unlock()

	if rss, vms, err := p.reader.ReadSnapshot(p.pid); err == nil {
		p.timeline = append(p.timeline, MemorySnapshot{
			TimestampMs: time.Since(p.startTime).Milliseconds(),
			RSSBytes:    rss,
			VMSBytes:    vms,
		})
	}

	profile := p.deriveProfile()
	p.started = false
	p.timeline = nil

	p.logger.WithFields(logrus.Fields{
		"pid":      p.pid,
		"peak_rss": profile.PeakRSSBytes,
		"leak":     profile.MemoryLeakBytes,
	}).Debug("Memory profiling stopped")

	return profile, nil
}

func (p *Profiler) deriveProfile() *MemoryProfile {
	duration := time.Since(p.startTime)
	timeline := p.timeline

	profile := &MemoryProfile{
		Timeline:   timeline,
		DurationMs: duration.Milliseconds(),
		Swap: SwapUsage{
			InitialBytes: p.swapInit,
			PeakBytes:    p.swapPeak,
			FinalBytes:   p.swapUsed(),
		},
	}

	if len(timeline) == 0 {
		return profile
	}

	var peak, sum uint64
	for _, s := range timeline {
		if s.RSSBytes > peak {
			peak = s.RSSBytes
		}
		sum += s.RSSBytes
	}
	average := sum / uint64(len(timeline))

	profile.InitialRSSBytes = timeline[0].RSSBytes
	profile.FinalRSSBytes = timeline[len(timeline)-1].RSSBytes
	profile.PeakRSSBytes = peak
	profile.AverageRSSBytes = average
	profile.MemoryLeakBytes = int64(profile.FinalRSSBytes) - int64(profile.InitialRSSBytes)
	profile.LeakDetected = absInt64(profile.MemoryLeakBytes) > int64(p.leakThreshold)

	profile.Allocations = estimateAllocations(timeline)
	profile.Efficiency = p.deriveEfficiency(timeline, peak, average, duration)

	return profile
}

// Allocation numbers are derived from RSS growth between snapshots, not from
// allocator hooks.
func estimateAllocations(timeline []MemorySnapshot) AllocationStats {
	stats := AllocationStats{Estimated: true}
	for i := 1; i < len(timeline); i++ {
		if timeline[i].RSSBytes > timeline[i-1].RSSBytes {
			stats.EstimatedAllocationEvents++
			stats.EstimatedAllocatedBytes += timeline[i].RSSBytes - timeline[i-1].RSSBytes
		}
	}
	return stats
}

func (p *Profiler) deriveEfficiency(timeline []MemorySnapshot, peak, average uint64, duration time.Duration) EfficiencyMetrics {
	m := EfficiencyMetrics{
		AccessPatternScore:   accessPatternScore(timeline),
		CacheEfficiencyScore: cacheEfficiencyScore(peak),
		FragmentationScore:   fragmentationScore(timeline),
	}

	if average > 0 {
		m.OverheadPercent = float64(peak-average) / float64(average) * 100
		if m.OverheadPercent > 1000 {
			m.OverheadPercent = 1000
		}
	}

	if p.totalSystemBytes > 0 {
		m.UtilizationPercent = float64(average) / float64(p.totalSystemBytes) * 100
		if m.UtilizationPercent > 100 {
			m.UtilizationPercent = 100
		}
	}

	if secs := duration.Seconds(); secs > 0 {
		m.ChurnRate = float64(len(timeline)) / secs
	}

	return m
}

func accessPatternScore(timeline []MemorySnapshot) float64 {
	if len(timeline) < 3 {
		return 85
	}

	var sum float64
	var pairs int
	for i := 1; i < len(timeline); i++ {
		prev := float64(timeline[i-1].RSSBytes)
		if prev == 0 {
			continue
		}
		delta := math.Abs(float64(timeline[i].RSSBytes) - prev)
		sum += 1 / (1 + delta/prev)
		pairs++
	}
	if pairs == 0 {
		return 85
	}
	return sum / float64(pairs) * 100
}

func cacheEfficiencyScore(peak uint64) float64 {
	peakMB := float64(peak) / (1024 * 1024)
	switch {
	case peakMB <= 32:
		return 95
	case peakMB <= 128:
		return 85
	case peakMB <= 512:
		return 70
	case peakMB <= 2048:
		return 55
	default:
		return 40
	}
}

func fragmentationScore(timeline []MemorySnapshot) float64 {
	if len(timeline) < 2 {
		return 0
	}

	rss := make([]float64, len(timeline))
	for i, s := range timeline {
		rss[i] = float64(s.RSSBytes)
	}

	mean := stat.Mean(rss, nil)
	if mean == 0 {
		return 0
	}

	score := stat.StdDev(rss, nil) / mean * 100
	if score > 100 {
		return 100
	}
	return score
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

type procSnapshotReader struct{}

func (procSnapshotReader) ReadSnapshot(pid int) (uint64, uint64, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return 0, 0, err
	}
	status, err := proc.NewStatus()
	if err != nil {
		return 0, 0, err
	}
	return status.VmRSS, status.VmSize, nil
}

func systemSwapUsed() uint64 {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0
	}
	mi, err := fs.Meminfo()
	if err != nil || mi.SwapTotal == nil || mi.SwapFree == nil || *mi.SwapFree > *mi.SwapTotal {
		return 0
	}
	return (*mi.SwapTotal - *mi.SwapFree) * 1024
}
