package stats

import (
	"errors"
	"math"
	"testing"
)

func sequentialSample(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i + 1)
	}
	return s
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := NewAnalyzer(30, 0.95)
	if _, err := a.Analyze(nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestAnalyzeInsufficientSampleSize(t *testing.T) {
	a := NewAnalyzer(30, 0.95)

	if _, err := a.Analyze(sequentialSample(29)); err == nil {
		t.Fatal("expected error for sample below minimum size")
	} else {
		var sizeErr *InsufficientSampleSizeError
		if !errors.As(err, &sizeErr) {
			t.Fatalf("expected InsufficientSampleSizeError, got %v", err)
		}
		if sizeErr.Got != 29 || sizeErr.Required != 30 {
			t.Errorf("unexpected error fields: got=%d required=%d", sizeErr.Got, sizeErr.Required)
		}
	}

	if _, err := a.Analyze(sequentialSample(30)); err != nil {
		t.Fatalf("sample at exactly the minimum size should analyze: %v", err)
	}
}

func TestAnalyzeBasicStatistics(t *testing.T) {
	a := NewAnalyzer(5, 0.95)
	analysis, err := a.Analyze([]float64{10, 20, 30, 40, 50})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.SampleCount != 5 {
		t.Errorf("expected sample count 5, got %d", analysis.SampleCount)
	}
	if analysis.Mean != 30 {
		t.Errorf("expected mean 30, got %v", analysis.Mean)
	}
	if analysis.Median != 30 {
		t.Errorf("expected median 30, got %v", analysis.Median)
	}
	if analysis.Min != 10 || analysis.Max != 50 {
		t.Errorf("expected min 10 max 50, got %v %v", analysis.Min, analysis.Max)
	}

	// sample std dev of 10..50 step 10
	expected := math.Sqrt(250)
	if math.Abs(analysis.StdDev-expected) > 1e-9 {
		t.Errorf("expected std dev %v, got %v", expected, analysis.StdDev)
	}
}

func TestPercentileLinearInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 17.5},
		{50, 25},
		{75, 32.5},
		{100, 40},
	}
	for _, tt := range tests {
		if got := Percentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := Percentile([]float64{7}, 95); got != 7 {
		t.Errorf("single element percentile = %v, want 7", got)
	}
}

func TestPercentilesMonotone(t *testing.T) {
	a := NewAnalyzer(30, 0.95)
	sample := make([]float64, 200)
	for i := range sample {
		sample[i] = math.Pow(1.03, float64(i%37)) * 1000
	}

	analysis, err := a.Analyze(sample)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	p := analysis.Distribution.Percentiles
	ordered := []float64{analysis.Min, p.P5, p.P25, p.P50, p.P75, p.P95, p.P99, analysis.Max}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] > ordered[i] {
			t.Fatalf("percentiles not monotone at position %d: %v > %v", i, ordered[i-1], ordered[i])
		}
	}
	if analysis.Median != p.P50 {
		t.Errorf("median %v != P50 %v", analysis.Median, p.P50)
	}
}

func TestConfidenceIntervalNesting(t *testing.T) {
	a := NewAnalyzer(30, 0.95)
	analysis, err := a.Analyze(sequentialSample(100))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.CI95.LowerBound < analysis.CI99.LowerBound {
		t.Errorf("ci95 lower %v below ci99 lower %v", analysis.CI95.LowerBound, analysis.CI99.LowerBound)
	}
	if analysis.CI95.UpperBound > analysis.CI99.UpperBound {
		t.Errorf("ci95 upper %v above ci99 upper %v", analysis.CI95.UpperBound, analysis.CI99.UpperBound)
	}
	if analysis.CI95.LowerBound >= analysis.Mean || analysis.CI95.UpperBound <= analysis.Mean {
		t.Errorf("ci95 [%v, %v] does not bracket mean %v", analysis.CI95.LowerBound, analysis.CI95.UpperBound, analysis.Mean)
	}
}

func TestOutlierFences(t *testing.T) {
	a := NewAnalyzer(10, 0.95)
	sample := append(sequentialSample(40), 100000, -100000)

	analysis, err := a.Analyze(sample)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	o := analysis.Outliers
	if o.LowerFence > o.Q1 || o.Q1 > o.Q3 || o.Q3 > o.UpperFence {
		t.Fatalf("fence ordering violated: %v %v %v %v", o.LowerFence, o.Q1, o.Q3, o.UpperFence)
	}

	flagged := make(map[float64]bool)
	for _, v := range o.Values {
		flagged[v] = true
	}
	for _, v := range sample {
		outside := v < o.LowerFence || v > o.UpperFence
		if outside && !flagged[v] {
			t.Errorf("value %v outside fences but not reported", v)
		}
		if !outside && flagged[v] {
			t.Errorf("value %v inside fences but reported as outlier", v)
		}
	}
	if o.Count != len(o.Values) {
		t.Errorf("outlier count %d != len(values) %d", o.Count, len(o.Values))
	}
}

func TestConstantSample(t *testing.T) {
	a := NewAnalyzer(10, 0.95)
	sample := make([]float64, 50)
	for i := range sample {
		sample[i] = 42
	}

	analysis, err := a.Analyze(sample)
	if err != nil {
		t.Fatalf("constant sample should analyze: %v", err)
	}

	if analysis.StdDev != 0 {
		t.Errorf("expected zero std dev, got %v", analysis.StdDev)
	}
	if analysis.CI95.LowerBound != 42 || analysis.CI95.UpperBound != 42 {
		t.Errorf("ci95 should collapse to the mean, got [%v, %v]", analysis.CI95.LowerBound, analysis.CI95.UpperBound)
	}
	if analysis.CI99.LowerBound != 42 || analysis.CI99.UpperBound != 42 {
		t.Errorf("ci99 should collapse to the mean, got [%v, %v]", analysis.CI99.LowerBound, analysis.CI99.UpperBound)
	}
	if analysis.Outliers.Count != 0 {
		t.Errorf("constant sample has no outliers, got %d", analysis.Outliers.Count)
	}
	if analysis.Distribution.Skewness != 0 || analysis.Distribution.Kurtosis != 0 {
		t.Errorf("expected zero skew/kurtosis, got %v %v", analysis.Distribution.Skewness, analysis.Distribution.Kurtosis)
	}
	if analysis.Distribution.CoefficientOfVariation != 0 {
		t.Errorf("expected zero CV for constant nonzero sample, got %v", analysis.Distribution.CoefficientOfVariation)
	}
}

func TestZeroMeanCoefficientOfVariation(t *testing.T) {
	if cv := coefficientOfVariation(0, 5); !math.IsInf(cv, 1) {
		t.Errorf("expected +Inf CV for zero mean, got %v", cv)
	}
}
