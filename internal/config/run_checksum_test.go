package config

import "testing"

func TestRunChecksumStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Benchmark.Name = "suite"
	cfg.Benchmark.Languages = []string{"rust", "go"}

	a, err := RunChecksum(cfg, "fibonacci")
	if err != nil {
		t.Fatalf("RunChecksum: %v", err)
	}
	if len(a) != 6 {
		t.Fatalf("checksum length = %d, want 6", len(a))
	}

	b, _ := RunChecksum(cfg, "fibonacci")
	if a != b {
		t.Errorf("checksum not stable: %s vs %s", a, b)
	}

	// language order must not matter
	cfg.Benchmark.Languages = []string{"go", "rust"}
	c, _ := RunChecksum(cfg, "fibonacci")
	if a != c {
		t.Errorf("checksum depends on language order: %s vs %s", a, c)
	}
}

func TestRunChecksumDistinguishesRuns(t *testing.T) {
	cfg := DefaultConfig()
	base, _ := RunChecksum(cfg, "fibonacci")

	other, _ := RunChecksum(cfg, "primes")
	if base == other {
		t.Error("different examples share a checksum")
	}

	cfg.Benchmark.Iterations++
	changed, _ := RunChecksum(cfg, "fibonacci")
	if base == changed {
		t.Error("different iteration counts share a checksum")
	}
}

func TestRunChecksumNilConfig(t *testing.T) {
	sum, err := RunChecksum(nil, "fibonacci")
	if err != nil || sum != "" {
		t.Errorf("RunChecksum(nil) = %q, %v", sum, err)
	}
}
