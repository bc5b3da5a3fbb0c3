package metrics

import "time"

// SampleResult scores one dataset sample.
type SampleResult struct {
	SampleID       string
	Reference      string
	Hypothesis     string
	CER            float64
	WER            float64
	ProcessingTime time.Duration
	Error          string
}

// AggregateResults summarizes a whole evaluation run.
type AggregateResults struct {
	Engine       string
	TotalSamples int
	SuccessCount int
	FailureCount int

	MeanCER   float64
	MeanWER   float64
	MedianCER float64
	WorstCER  float64

	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	EvaluationDate time.Time
	Results        []SampleResult
}

// Score builds a SampleResult from recognized text.
func Score(sampleID, reference, hypothesis string, elapsed time.Duration) SampleResult {
	return SampleResult{
		SampleID:       sampleID,
		Reference:      reference,
		Hypothesis:     hypothesis,
		CER:            CharacterErrorRate(reference, hypothesis),
		WER:            WordErrorRate(reference, hypothesis),
		ProcessingTime: elapsed,
	}
}

// Aggregate summarizes per-sample results. Failed samples count toward the
// failure tally but not toward the error-rate means.
func Aggregate(engineName string, results []SampleResult) *AggregateResults {
	agg := &AggregateResults{
		Engine:         engineName,
		TotalSamples:   len(results),
		Results:        results,
		EvaluationDate: time.Now(),
	}

	var cers []float64
	var sumCER, sumWER float64
	for _, r := range results {
		agg.TotalProcessingTime += r.ProcessingTime
		if r.Error != "" {
			agg.FailureCount++
			continue
		}
		agg.SuccessCount++
		sumCER += r.CER
		sumWER += r.WER
		cers = append(cers, r.CER)
		if r.CER > agg.WorstCER {
			agg.WorstCER = r.CER
		}
	}

	if agg.SuccessCount > 0 {
		agg.MeanCER = sumCER / float64(agg.SuccessCount)
		agg.MeanWER = sumWER / float64(agg.SuccessCount)
		agg.MedianCER = median(cers)
	}
	if agg.TotalSamples > 0 {
		agg.AverageProcessingTime = agg.TotalProcessingTime / time.Duration(agg.TotalSamples)
	}
	return agg
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
