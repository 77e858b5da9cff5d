package runner

import (
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler produces one duration sample vector (nanoseconds) per
// implementation. The simulated sampler stands in for a driver that spawns
// the workload; everything downstream of the sample vector is unchanged.
type Sampler interface {
	Sample(implementation string, iterations int) []float64
}

// languageBaseMeans approximate relative performance of each toolchain on a
// CPU-bound workload, in nanoseconds per iteration. Longer names first so
// "ruchy" never matches the "c" entry.
var languageBaseMeans = []struct {
	key  string
	mean float64
}{
	{"python", 5_000_000},
	{"ruchy", 750_000},
	{"rust", 500_000},
	{"js", 2_500_000},
	{"go", 650_000},
	{"c", 520_000},
}

const defaultBaseMean = 1_000_000

type SimulatedSampler struct {
	src   rand.Source
	sigma float64
}

func NewSimulatedSampler(seed uint64) *SimulatedSampler {
	return &SimulatedSampler{
		src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		sigma: 0.05,
	}
}

func (s *SimulatedSampler) Sample(implementation string, iterations int) []float64 {
	mean := float64(defaultBaseMean)
	name := strings.ToLower(implementation)
	for _, entry := range languageBaseMeans {
		if strings.Contains(name, entry.key) {
			mean = entry.mean
			break
		}
	}

	// Mu chosen so the log-normal mean lands on the language base mean
	dist := distuv.LogNormal{
		Mu:    math.Log(mean) - s.sigma*s.sigma/2,
		Sigma: s.sigma,
		Src:   s.src,
	}

	sample := make([]float64, iterations)
	for i := range sample {
		sample[i] = dist.Rand()
	}
	return sample
}
