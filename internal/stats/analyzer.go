package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrEmptyInput = errors.New("empty sample")

type InsufficientSampleSizeError struct {
	Got      int
	Required int
}

func (e *InsufficientSampleSizeError) Error() string {
	return fmt.Sprintf("insufficient sample size: got %d, need %d", e.Got, e.Required)
}

type ConfidenceInterval struct {
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

type OutlierAnalysis struct {
	Count      int       `json:"outliers_detected"`
	Percentage float64   `json:"outlier_percentage"`
	Values     []float64 `json:"outlier_values"`
	Q1         float64   `json:"q1"`
	Q3         float64   `json:"q3"`
	IQR        float64   `json:"iqr"`
	LowerFence float64   `json:"lower_fence"`
	UpperFence float64   `json:"upper_fence"`
}

type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type DistributionMetrics struct {
	Skewness               float64     `json:"skewness"`
	Kurtosis               float64     `json:"kurtosis"`
	CoefficientOfVariation float64     `json:"coefficient_of_variation"`
	Percentiles            Percentiles `json:"percentiles"`
}

type StatisticalAnalysis struct {
	SampleCount  int                 `json:"sample_count"`
	Mean         float64             `json:"mean"`
	Median       float64             `json:"median"`
	StdDev       float64             `json:"std_dev"`
	StdError     float64             `json:"std_error"`
	Min          float64             `json:"min"`
	Max          float64             `json:"max"`
	CI95         ConfidenceInterval  `json:"confidence_interval_95"`
	CI99         ConfidenceInterval  `json:"confidence_interval_99"`
	Outliers     OutlierAnalysis     `json:"outlier_analysis"`
	Distribution DistributionMetrics `json:"distribution_metrics"`
}

// Analyzer computes descriptive statistics and confidence intervals over a
// sample vector of durations.
type Analyzer struct {
	minSampleSize   int
	confidenceLevel float64
}

const DefaultMinSampleSize = 30

func NewAnalyzer(minSampleSize int, confidenceLevel float64) *Analyzer {
	if minSampleSize <= 0 {
		minSampleSize = DefaultMinSampleSize
	}
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		confidenceLevel = 0.95
	}
	return &Analyzer{
		minSampleSize:   minSampleSize,
		confidenceLevel: confidenceLevel,
	}
}

func (a *Analyzer) MinSampleSize() int {
	return a.minSampleSize
}

func (a *Analyzer) Analyze(sample []float64) (*StatisticalAnalysis, error) {
	if len(sample) == 0 {
		return nil, ErrEmptyInput
	}
	if len(sample) < a.minSampleSize {
		return nil, &InsufficientSampleSizeError{Got: len(sample), Required: a.minSampleSize}
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	n := len(sorted)
	mean := stat.Mean(sorted, nil)
	stdDev := stat.StdDev(sorted, nil)
	stdError := stdDev / math.Sqrt(float64(n))

	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	lowerFence := q1 - 1.5*iqr
	upperFence := q3 + 1.5*iqr

	var outlierValues []float64
	for _, v := range sorted {
		if v < lowerFence || v > upperFence {
			outlierValues = append(outlierValues, v)
		}
	}

	return &StatisticalAnalysis{
		SampleCount: n,
		Mean:        mean,
		Median:      Percentile(sorted, 50),
		StdDev:      stdDev,
		StdError:    stdError,
		Min:         sorted[0],
		Max:         sorted[n-1],
		CI95:        confidenceInterval(mean, stdError, n, 0.95),
		CI99:        confidenceInterval(mean, stdError, n, 0.99),
		Outliers: OutlierAnalysis{
			Count:      len(outlierValues),
			Percentage: float64(len(outlierValues)) / float64(n) * 100,
			Values:     outlierValues,
			Q1:         q1,
			Q3:         q3,
			IQR:        iqr,
			LowerFence: lowerFence,
			UpperFence: upperFence,
		},
		Distribution: DistributionMetrics{
			Skewness:               skewness(sorted, stdDev),
			Kurtosis:               kurtosis(sorted, stdDev),
			CoefficientOfVariation: coefficientOfVariation(mean, stdDev),
			Percentiles: Percentiles{
				P5:  Percentile(sorted, 5),
				P25: q1,
				P50: Percentile(sorted, 50),
				P75: q3,
				P95: Percentile(sorted, 95),
				P99: Percentile(sorted, 99),
			},
		},
	}, nil
}

// Percentile interpolates linearly on a sorted sample at index (p/100)*(n-1).
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func confidenceInterval(mean, stdError float64, n int, level float64) ConfidenceInterval {
	margin := 0.0
	if stdError > 0 && n > 1 {
		alpha := 1 - level
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
		margin = t.Quantile(1-alpha/2) * stdError
	}
	return ConfidenceInterval{
		LowerBound:      mean - margin,
		UpperBound:      mean + margin,
		ConfidenceLevel: level,
	}
}

func skewness(sample []float64, stdDev float64) float64 {
	if stdDev == 0 || len(sample) < 3 {
		return 0
	}
	return stat.Skew(sample, nil)
}

func kurtosis(sample []float64, stdDev float64) float64 {
	if stdDev == 0 || len(sample) < 4 {
		return 0
	}
	return stat.ExKurtosis(sample, nil)
}

// Infinity is the sentinel for a zero-mean sample.
func coefficientOfVariation(mean, stdDev float64) float64 {
	if mean == 0 {
		return math.Inf(1)
	}
	return stdDev / math.Abs(mean)
}
