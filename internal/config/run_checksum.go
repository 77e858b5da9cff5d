package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type runChecksumPayload struct {
	Name       string   `json:"name"`
	Example    string   `json:"example"`
	Languages  []string `json:"languages"`
	Iterations int      `json:"iterations"`
	Warmup     int      `json:"warmup"`
	Cores      string   `json:"cores,omitempty"`
}

// RunChecksum returns a short, stable checksum that identifies the effective
// benchmark run (example, implementation set and sampling parameters),
// independent of where it was executed.
//
// It computes MD5 over a canonical JSON representation and returns the first 6
// hex characters (equivalent to `md5sum | cut -c1-6`).
func RunChecksum(cfg *BenchmarkConfig, example string) (string, error) {
	if cfg == nil {
		return "", nil
	}

	languages := append([]string(nil), cfg.Benchmark.Languages...)
	sort.Strings(languages)

	payload := runChecksumPayload{
		Name:       cfg.Benchmark.Name,
		Example:    example,
		Languages:  languages,
		Iterations: cfg.Benchmark.Iterations,
		Warmup:     cfg.Benchmark.Warmup,
		Cores:      cfg.Benchmark.Isolation.Cores,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])[:6], nil
}
