package collectors

import (
	"fmt"
	"sync"

	"polybench/internal/logging"

	"github.com/elastic/go-perf"
)

// PerfCounters aggregates hardware counter totals over one measurement
// window. Nil pointer fields mean the counter was unavailable.
type PerfCounters struct {
	Instructions       *uint64 `json:"instructions,omitempty"`
	Cycles             *uint64 `json:"cycles,omitempty"`
	CacheReferences    *uint64 `json:"cache_references,omitempty"`
	CacheMisses        *uint64 `json:"cache_misses,omitempty"`
	BranchInstructions *uint64 `json:"branch_instructions,omitempty"`
	BranchMisses       *uint64 `json:"branch_misses,omitempty"`
}

func (pc *PerfCounters) IPC() float64 {
	if pc.Instructions == nil || pc.Cycles == nil || *pc.Cycles == 0 {
		return 0
	}
	return float64(*pc.Instructions) / float64(*pc.Cycles)
}

func (pc *PerfCounters) CacheMissRate() float64 {
	if pc.CacheMisses == nil || pc.CacheReferences == nil || *pc.CacheReferences == 0 {
		return 0
	}
	return float64(*pc.CacheMisses) / float64(*pc.CacheReferences)
}

func (pc *PerfCounters) BranchMissRate() float64 {
	if pc.BranchMisses == nil || pc.BranchInstructions == nil || *pc.BranchInstructions == 0 {
		return 0
	}
	return float64(*pc.BranchMisses) / float64(*pc.BranchInstructions)
}

// PerfCollector counts hardware events on the calling thread between Start
// and Stop. The measurement loop runs on a locked OS thread, so
// calling-thread scope covers exactly the measured iterations.
type PerfCollector struct {
	events []*perf.Event
	mutex  sync.Mutex
}

func NewPerfCollector() (*PerfCollector, error) {
	logger := logging.GetLogger()

	collector := &PerfCollector{}

	hardwareCounters := []perf.HardwareCounter{
		perf.Instructions,
		perf.CPUCycles,
		perf.CacheReferences,
		perf.CacheMisses,
		perf.BranchInstructions,
		perf.BranchMisses,
	}

	for _, counter := range hardwareCounters {
		attr := &perf.Attr{}
		counter.Configure(attr)
		// Enable time tracking for multiplexing correction
		attr.CountFormat.Enabled = true
		attr.CountFormat.Running = true

		event, err := perf.Open(attr, perf.CallingThread, perf.AnyCPU, nil)
		if err != nil {
			logger.WithField("counter", counter).WithError(err).Warn("Failed to open perf event, continuing without it")
			continue
		}
		collector.events = append(collector.events, event)
	}

	if len(collector.events) == 0 {
		return nil, fmt.Errorf("no hardware counters available (perf_event_paranoid too strict?)")
	}

	return collector, nil
}

func (pc *PerfCollector) Start() error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	for _, event := range pc.events {
		if err := event.Enable(); err != nil {
			return fmt.Errorf("failed to enable perf event: %w", err)
		}
	}
	return nil
}

// Stop disables the events and returns multiplex-corrected totals.
func (pc *PerfCollector) Stop() *PerfCounters {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	counterSums := make(map[string]uint64)

	for _, event := range pc.events {
		event.Disable()

		count, err := event.ReadCount()
		if err != nil {
			continue
		}

		value := uint64(count.Value)
		// Scale by enabled/running time when the PMU multiplexed this event
		if count.Running > 0 && count.Enabled > 0 && count.Running != count.Enabled {
			scaleFactor := float64(count.Enabled) / float64(count.Running)
			value = uint64(float64(value) * scaleFactor)
		}

		counterSums[count.Label] += value
	}

	counters := &PerfCounters{}
	setValue := func(label string) *uint64 {
		if val, ok := counterSums[label]; ok && val > 0 {
			v := val
			return &v
		}
		return nil
	}

	counters.Instructions = setValue("instructions")
	counters.Cycles = setValue("cpu-cycles")
	counters.CacheReferences = setValue("cache-references")
	counters.CacheMisses = setValue("cache-misses")
	counters.BranchInstructions = setValue("branch-instructions")
	counters.BranchMisses = setValue("branch-misses")

	return counters
}

func (pc *PerfCollector) Close() {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	for _, event := range pc.events {
		if event != nil {
			event.Close()
		}
	}
	pc.events = nil
}
