package stats

type Significance string

const (
	NotSignificant         Significance = "not_significant"
	SignificantImprovement Significance = "significant_improvement"
	SignificantRegression  Significance = "significant_regression"
)

type ComparisonResult struct {
	PercentChange  float64      `json:"percent_change"`
	AbsoluteChange float64      `json:"absolute_change"`
	Significance   Significance `json:"significance"`
	BaselineMean   float64      `json:"baseline_mean"`
	CurrentMean    float64      `json:"current_mean"`
}

// Compare classifies current against baseline by 95% confidence interval
// overlap. Overlapping intervals are inconclusive regardless of the size of
// the mean shift; disjoint intervals are significant with the sign of the
// shift. This is deliberately more conservative than a two-sample t-test.
func Compare(baseline, current *StatisticalAnalysis) ComparisonResult {
	delta := current.Mean - baseline.Mean
	pct := 0.0
	if baseline.Mean != 0 {
		pct = delta / baseline.Mean * 100
	}

	significance := NotSignificant
	if !intervalsOverlap(baseline.CI95, current.CI95) {
		if delta > 0 {
			significance = SignificantRegression
		} else if delta < 0 {
			significance = SignificantImprovement
		}
	}

	return ComparisonResult{
		PercentChange:  pct,
		AbsoluteChange: delta,
		Significance:   significance,
		BaselineMean:   baseline.Mean,
		CurrentMean:    current.Mean,
	}
}

func intervalsOverlap(a, b ConfidenceInterval) bool {
	return a.LowerBound <= b.UpperBound && b.LowerBound <= a.UpperBound
}
