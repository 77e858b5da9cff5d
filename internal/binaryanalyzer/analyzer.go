package binaryanalyzer

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"polybench/internal/logging"

	"github.com/sirupsen/logrus"
)

type SectionType string

const (
	SectionCode         SectionType = "code"
	SectionReadOnlyData SectionType = "read_only_data"
	SectionData         SectionType = "data"
	SectionBss          SectionType = "bss"
	SectionDebug        SectionType = "debug"
	SectionDynamic      SectionType = "dynamic"
	SectionOther        SectionType = "other"
)

type SectionInfo struct {
	Name       string      `json:"name"`
	SizeBytes  uint64      `json:"size_bytes"`
	Percentage float64     `json:"percentage"`
	Type       SectionType `json:"type"`
}

type SymbolInfo struct {
	Name      string `json:"name"`
	SizeBytes uint64 `json:"size_bytes"`
}

type SymbolAnalysis struct {
	TotalSymbols    int          `json:"total_symbols"`
	ExportedSymbols int          `json:"exported_symbols"`
	LocalSymbols    int          `json:"local_symbols"`
	LargestSymbols  []SymbolInfo `json:"largest_symbols"`
	BloatScore      float64      `json:"bloat_score"`
}

type CompressionAnalysis struct {
	GzipBytes          uint64  `json:"gzip_bytes"`
	ZstdProjectedBytes uint64  `json:"zstd_projected_bytes"`
	GzipRatio          float64 `json:"gzip_ratio"`
	ZstdRatio          float64 `json:"zstd_ratio"`
	Recommended        string  `json:"recommended"`
}

type DependencyAnalysis struct {
	DynamicDependencies int      `json:"dynamic_dependencies"`
	StaticDependencies  int      `json:"static_dependencies"`
	MajorContributors   []string `json:"major_contributors"`
}

type OptimizationKind string

const (
	OptDebugStrip    OptimizationKind = "debug_strip"
	OptLTO           OptimizationKind = "lto"
	OptDeadCode      OptimizationKind = "dead_code"
	OptCompilerFlags OptimizationKind = "compiler_flags"
)

type OptimizationOpportunity struct {
	Kind                  OptimizationKind `json:"kind"`
	EstimatedSavingsBytes uint64           `json:"estimated_savings_bytes"`
	Difficulty            int              `json:"difficulty"`
	Description           string           `json:"description"`
	Action                string           `json:"action"`
}

type BinarySizeAnalysis struct {
	Path              string                    `json:"path"`
	TotalSizeBytes    uint64                    `json:"total_size_bytes"`
	StrippedSizeBytes uint64                    `json:"stripped_size_bytes"`
	DebugPercentage   float64                   `json:"debug_percentage"`
	Sections          []SectionInfo             `json:"sections"`
	Symbols           SymbolAnalysis            `json:"symbol_analysis"`
	Compression       CompressionAnalysis       `json:"compression_analysis"`
	Dependencies      DependencyAnalysis        `json:"dependency_analysis"`
	Opportunities     []OptimizationOpportunity `json:"optimization_opportunities"`
}

// Analyzer inspects a compiled artifact with whatever binutils are present.
// Every probe is best-effort; missing tools degrade to estimates.
type Analyzer struct {
	runCommand func(name string, args ...string) ([]byte, error)
	logger     *logrus.Logger
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		runCommand: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
		logger: logging.GetLogger(),
	}
}

func (a *Analyzer) Analyze(path string) (*BinarySizeAnalysis, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("binary not readable: %w", err)
	}

	total := uint64(info.Size())

	analysis := &BinarySizeAnalysis{
		Path:           path,
		TotalSizeBytes: total,
	}

	analysis.StrippedSizeBytes = a.strippedSize(path, total)
	if analysis.StrippedSizeBytes > total {
		analysis.StrippedSizeBytes = total
	}
	debugRegion := total - analysis.StrippedSizeBytes
	if total > 0 {
		analysis.DebugPercentage = float64(debugRegion) / float64(total) * 100
	}

	analysis.Sections = a.analyzeSections(path, total)
	analysis.Symbols = a.analyzeSymbols(path)
	analysis.Compression = a.analyzeCompression(path, total)
	analysis.Dependencies = a.analyzeDependencies(path)
	analysis.Opportunities = buildOpportunities(total, debugRegion, analysis.Symbols.BloatScore)

	return analysis, nil
}

// strippedSize copies the binary aside and strips the copy. Without a strip
// tool the stripped size is estimated at 70% of the total.
func (a *Analyzer) strippedSize(path string, total uint64) uint64 {
	tmp, err := os.CreateTemp("", "polybench-strip-*")
	if err != nil {
		return uint64(float64(total) * 0.7)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(path)
	if err != nil {
		tmp.Close()
		return uint64(float64(total) * 0.7)
	}
	_, copyErr := io.Copy(tmp, src)
	src.Close()
	tmp.Close()
	if copyErr != nil {
		return uint64(float64(total) * 0.7)
	}

	if _, err := a.runCommand("strip", tmpPath); err != nil {
		a.logger.WithError(err).Debug("strip unavailable, estimating stripped size")
		return uint64(float64(total) * 0.7)
	}

	stripped, err := os.Stat(tmpPath)
	if err != nil {
		return uint64(float64(total) * 0.7)
	}
	return uint64(stripped.Size())
}

func (a *Analyzer) analyzeSections(path string, total uint64) []SectionInfo {
	if out, err := a.runCommand("objdump", "-h", path); err == nil {
		if sections := parseObjdumpSections(string(out), total); len(sections) > 0 {
			return sections
		}
	}
	if out, err := a.runCommand("readelf", "-S", "-W", path); err == nil {
		if sections := parseReadelfSections(string(out), total); len(sections) > 0 {
			return sections
		}
	}

	a.logger.Debug("no section tool available, synthesizing placeholder sections")
	return []SectionInfo{
		{Name: ".text", SizeBytes: uint64(float64(total) * 0.40), Percentage: 40, Type: SectionCode},
		{Name: ".data", SizeBytes: uint64(float64(total) * 0.20), Percentage: 20, Type: SectionData},
		{Name: ".rodata", SizeBytes: uint64(float64(total) * 0.15), Percentage: 15, Type: SectionReadOnlyData},
	}
}

func parseObjdumpSections(out string, total uint64) []SectionInfo {
	var sections []SectionInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.HasPrefix(fields[1], ".") {
			continue
		}
		size, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}
		sections = append(sections, newSection(fields[1], size, total))
	}
	return sections
}

func parseReadelfSections(out string, total uint64) []SectionInfo {
	var sections []SectionInfo
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "]")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 5 || !strings.HasPrefix(fields[0], ".") {
			continue
		}
		size, err := strconv.ParseUint(fields[4], 16, 64)
		if err != nil {
			continue
		}
		sections = append(sections, newSection(fields[0], size, total))
	}
	return sections
}

func newSection(name string, size, total uint64) SectionInfo {
	pct := 0.0
	if total > 0 {
		pct = float64(size) / float64(total) * 100
	}
	return SectionInfo{
		Name:       name,
		SizeBytes:  size,
		Percentage: pct,
		Type:       classifySection(name),
	}
}

func classifySection(name string) SectionType {
	switch {
	case strings.HasPrefix(name, ".text"), strings.HasPrefix(name, ".init"), strings.HasPrefix(name, ".fini"):
		return SectionCode
	case strings.HasPrefix(name, ".rodata"):
		return SectionReadOnlyData
	case strings.HasPrefix(name, ".bss"):
		return SectionBss
	case strings.HasPrefix(name, ".data"):
		return SectionData
	case strings.HasPrefix(name, ".debug"):
		return SectionDebug
	case strings.HasPrefix(name, ".dynamic"), strings.HasPrefix(name, ".dynstr"), strings.HasPrefix(name, ".dynsym"):
		return SectionDynamic
	default:
		return SectionOther
	}
}

func (a *Analyzer) analyzeSymbols(path string) SymbolAnalysis {
	out, err := a.runCommand("nm", "--print-size", "--size-sort", "--demangle", path)
	if err != nil {
		a.logger.WithError(err).Debug("nm unavailable, skipping symbol analysis")
		return SymbolAnalysis{}
	}

	var analysis SymbolAnalysis
	var symbols []SymbolInfo

	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			continue
		}
		typeChar := fields[2]
		name := strings.Join(fields[3:], " ")

		analysis.TotalSymbols++
		if typeChar == strings.ToUpper(typeChar) {
			analysis.ExportedSymbols++
		} else {
			analysis.LocalSymbols++
		}
		symbols = append(symbols, SymbolInfo{Name: name, SizeBytes: size})
	}

	sort.Slice(symbols, func(i, j int) bool { return symbols[i].SizeBytes > symbols[j].SizeBytes })
	if len(symbols) > 10 {
		symbols = symbols[:10]
	}
	analysis.LargestSymbols = symbols
	analysis.BloatScore = bloatScore(analysis.TotalSymbols, symbols)

	return analysis
}

// bloatScore steps on symbol count and the average size of the largest
// symbols; range 0-100.
func bloatScore(totalSymbols int, largest []SymbolInfo) float64 {
	score := 0.0

	switch {
	case totalSymbols > 10000:
		score += 50
	case totalSymbols > 5000:
		score += 35
	case totalSymbols > 1000:
		score += 20
	case totalSymbols > 100:
		score += 10
	}

	if len(largest) > 0 {
		var sum uint64
		for _, s := range largest {
			sum += s.SizeBytes
		}
		avg := float64(sum) / float64(len(largest))
		switch {
		case avg > 1<<20:
			score += 50
		case avg > 100<<10:
			score += 30
		case avg > 10<<10:
			score += 15
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

func (a *Analyzer) analyzeCompression(path string, total uint64) CompressionAnalysis {
	var analysis CompressionAnalysis

	data, err := os.ReadFile(path)
	if err != nil || total == 0 {
		return analysis
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return analysis
	}
	if err := gz.Close(); err != nil {
		return analysis
	}

	analysis.GzipBytes = uint64(buf.Len())
	analysis.ZstdProjectedBytes = uint64(float64(analysis.GzipBytes) * 0.85)
	analysis.GzipRatio = 1 - float64(analysis.GzipBytes)/float64(total)
	analysis.ZstdRatio = 1 - float64(analysis.ZstdProjectedBytes)/float64(total)

	switch {
	case analysis.ZstdRatio > 0.5:
		analysis.Recommended = "zstd"
	case analysis.GzipRatio > 0.3:
		analysis.Recommended = "gzip"
	default:
		analysis.Recommended = "none"
	}

	return analysis
}

func (a *Analyzer) analyzeDependencies(path string) DependencyAnalysis {
	out, err := a.runCommand("ldd", path)
	if err != nil {
		a.logger.WithError(err).Debug("ldd unavailable, skipping dependency analysis")
		return DependencyAnalysis{}
	}

	count := 0
	var contributors []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		count++
		if name, _, ok := strings.Cut(line, "=>"); ok {
			contributors = append(contributors, filepath.Base(strings.TrimSpace(name)))
		}
	}
	if count > 0 {
		count--
	}

	return DependencyAnalysis{
		DynamicDependencies: count,
		MajorContributors:   contributors,
	}
}

func buildOpportunities(total, debugRegion uint64, bloat float64) []OptimizationOpportunity {
	var opps []OptimizationOpportunity

	if debugRegion > total/10 {
		opps = append(opps, OptimizationOpportunity{
			Kind:                  OptDebugStrip,
			EstimatedSavingsBytes: debugRegion,
			Difficulty:            1,
			Description:           "Debug information accounts for a significant share of the binary",
			Action:                "Strip debug symbols for release artifacts (strip or split debug info)",
		})
	}

	if total > 5<<20 {
		opps = append(opps, OptimizationOpportunity{
			Kind:                  OptLTO,
			EstimatedSavingsBytes: uint64(float64(total) * 0.15),
			Difficulty:            2,
			Description:           "Large binary likely carries cross-module redundancy",
			Action:                "Enable link-time optimization in the release build",
		})
	}

	if bloat > 50 {
		opps = append(opps, OptimizationOpportunity{
			Kind:                  OptDeadCode,
			EstimatedSavingsBytes: uint64(float64(total) * 0.10),
			Difficulty:            3,
			Description:           "Symbol profile suggests unused or duplicated code paths",
			Action:                "Audit large symbols and enable dead-code elimination",
		})
	}

	opps = append(opps, OptimizationOpportunity{
		Kind:                  OptCompilerFlags,
		EstimatedSavingsBytes: uint64(float64(total) * 0.05),
		Difficulty:            1,
		Description:           "Size-oriented compiler flags are usually untried",
		Action:                "Try size-focused optimization flags and compare",
	})

	return opps
}
