package binaryanalyzer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBinary(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload")
	// repetitive content compresses well
	data := bytes.Repeat([]byte("polybench"), size/9+1)[:size]
	if err := os.WriteFile(path, data, 0755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	return path
}

func newToollessAnalyzer() *Analyzer {
	a := NewAnalyzer()
	a.runCommand = func(name string, args ...string) ([]byte, error) {
		return nil, fmt.Errorf("%s: command not found", name)
	}
	return a
}

func TestAnalyzeMissingFile(t *testing.T) {
	a := newToollessAnalyzer()
	if _, err := a.Analyze("/nonexistent/binary"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAnalyzeWithoutTools(t *testing.T) {
	path := writeBinary(t, 100000)
	a := newToollessAnalyzer()

	analysis, err := a.Analyze(path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.TotalSizeBytes != 100000 {
		t.Errorf("total size = %d", analysis.TotalSizeBytes)
	}
	if analysis.StrippedSizeBytes != 70000 {
		t.Errorf("expected 0.7 estimate, got %d", analysis.StrippedSizeBytes)
	}
	if analysis.StrippedSizeBytes > analysis.TotalSizeBytes {
		t.Error("stripped size exceeds total")
	}

	// placeholder sections
	if len(analysis.Sections) != 3 {
		t.Fatalf("expected 3 placeholder sections, got %d", len(analysis.Sections))
	}
	wantPct := []float64{40, 20, 15}
	for i, s := range analysis.Sections {
		if s.Percentage != wantPct[i] {
			t.Errorf("section %s share = %v, want %v", s.Name, s.Percentage, wantPct[i])
		}
	}

	if analysis.Symbols.TotalSymbols != 0 {
		t.Errorf("symbols should be absent without nm, got %d", analysis.Symbols.TotalSymbols)
	}
	if analysis.Compression.GzipBytes == 0 || analysis.Compression.GzipBytes >= analysis.TotalSizeBytes {
		t.Errorf("repetitive data should gzip smaller, got %d", analysis.Compression.GzipBytes)
	}

	wantZstd := uint64(float64(analysis.Compression.GzipBytes) * 0.85)
	if analysis.Compression.ZstdProjectedBytes != wantZstd {
		t.Errorf("zstd projection = %d, want %d", analysis.Compression.ZstdProjectedBytes, wantZstd)
	}
}

func TestObjdumpSectionParsing(t *testing.T) {
	out := `
workload:     file format elf64-x86-64

Sections:
Idx Name          Size      VMA               LMA               File off  Algn
  0 .interp       0000001c  0000000000000318  0000000000000318  00000318  2**0
  1 .text         00010000  0000000000001050  0000000000001050  00001050  2**4
  2 .rodata       00004000  0000000000012000  0000000000012000  00012000  2**5
  3 .debug_info   00008000  0000000000000000  0000000000000000  00020000  2**0
`
	sections := parseObjdumpSections(out, 0x20000)
	if len(sections) != 4 {
		t.Fatalf("expected 4 sections, got %d", len(sections))
	}

	byName := map[string]SectionInfo{}
	for _, s := range sections {
		byName[s.Name] = s
	}

	if byName[".text"].SizeBytes != 0x10000 || byName[".text"].Type != SectionCode {
		t.Errorf("unexpected .text: %+v", byName[".text"])
	}
	if byName[".rodata"].Type != SectionReadOnlyData {
		t.Errorf(".rodata classified as %s", byName[".rodata"].Type)
	}
	if byName[".debug_info"].Type != SectionDebug {
		t.Errorf(".debug_info classified as %s", byName[".debug_info"].Type)
	}
	if byName[".interp"].Type != SectionOther {
		t.Errorf(".interp classified as %s", byName[".interp"].Type)
	}
}

func TestSectionClassification(t *testing.T) {
	tests := []struct {
		name string
		want SectionType
	}{
		{".text", SectionCode},
		{".init", SectionCode},
		{".fini", SectionCode},
		{".rodata.str1.1", SectionReadOnlyData},
		{".data.rel.ro", SectionData},
		{".bss", SectionBss},
		{".debug_line", SectionDebug},
		{".dynsym", SectionDynamic},
		{".comment", SectionOther},
	}
	for _, tt := range tests {
		if got := classifySection(tt.name); got != tt.want {
			t.Errorf("classifySection(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestSymbolAnalysis(t *testing.T) {
	path := writeBinary(t, 1000)
	a := NewAnalyzer()
	a.runCommand = func(name string, args ...string) ([]byte, error) {
		if name == "nm" {
			return []byte(`0000000000001050 0000000000000200 T main
0000000000001250 0000000000002000 T process_data
0000000000003250 0000000000000080 t helper
0000000000003300 0000000000000040 d table
`), nil
		}
		return nil, fmt.Errorf("%s: command not found", name)
	}

	analysis, err := a.Analyze(path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	s := analysis.Symbols
	if s.TotalSymbols != 4 {
		t.Errorf("total symbols = %d", s.TotalSymbols)
	}
	if s.ExportedSymbols != 2 || s.LocalSymbols != 2 {
		t.Errorf("exported/local = %d/%d, want 2/2", s.ExportedSymbols, s.LocalSymbols)
	}
	if len(s.LargestSymbols) == 0 || s.LargestSymbols[0].Name != "process_data" {
		t.Errorf("largest symbol = %+v", s.LargestSymbols)
	}
}

func TestDependencyCount(t *testing.T) {
	path := writeBinary(t, 1000)
	a := NewAnalyzer()
	a.runCommand = func(name string, args ...string) ([]byte, error) {
		if name == "ldd" {
			return []byte(`	linux-vdso.so.1 (0x00007fff0)
	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x00007f00)
	/lib64/ld-linux-x86-64.so.2 (0x00007f11)
`), nil
		}
		return nil, fmt.Errorf("%s: command not found", name)
	}

	analysis, err := a.Analyze(path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Dependencies.DynamicDependencies != 2 {
		t.Errorf("dynamic deps = %d, want 2", analysis.Dependencies.DynamicDependencies)
	}
}

func TestOptimizationOpportunities(t *testing.T) {
	// small binary, low debug share: only the compiler-flags suggestion
	opps := buildOpportunities(1000, 50, 10)
	if len(opps) != 1 || opps[0].Kind != OptCompilerFlags {
		t.Fatalf("expected only compiler flags, got %+v", opps)
	}

	// heavy debug info
	opps = buildOpportunities(1000, 300, 10)
	if opps[0].Kind != OptDebugStrip || opps[0].EstimatedSavingsBytes != 300 {
		t.Errorf("expected debug strip first, got %+v", opps[0])
	}

	// large and bloated: everything fires
	opps = buildOpportunities(10<<20, 2<<20, 80)
	kinds := map[OptimizationKind]bool{}
	for _, o := range opps {
		kinds[o.Kind] = true
	}
	for _, k := range []OptimizationKind{OptDebugStrip, OptLTO, OptDeadCode, OptCompilerFlags} {
		if !kinds[k] {
			t.Errorf("missing opportunity %s", k)
		}
	}
}

func TestBloatScoreSteps(t *testing.T) {
	small := bloatScore(50, nil)
	medium := bloatScore(2000, nil)
	large := bloatScore(20000, nil)
	if !(small <= medium && medium <= large) {
		t.Errorf("bloat score not monotone in symbol count: %v %v %v", small, medium, large)
	}

	huge := bloatScore(20000, []SymbolInfo{{SizeBytes: 2 << 20}})
	if huge != 100 {
		t.Errorf("expected cap at 100, got %v", huge)
	}
}

func TestMarkdownReportContent(t *testing.T) {
	path := writeBinary(t, 200000)
	a := newToollessAnalyzer()

	analysis, err := a.Analyze(path)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	report := MarkdownReport("go", analysis)
	for _, want := range []string{"# Binary Size Analysis: go", "## Summary", "## Section Breakdown", "## Optimization Opportunities"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
