// Package results persists evaluation runs as YAML reports.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleksandrSemykin/reflow-ocr/internal/eval/metrics"
)

// EvalConfig records how the run was produced.
type EvalConfig struct {
	Engine      string `yaml:"engine"`
	Languages   string `yaml:"languages"`
	DatasetPath string `yaml:"datasetpath"`
	SampleSize  int    `yaml:"samplesize"`
	Timestamp   string `yaml:"timestamp"`
}

// EvalResult is one sample's scores in the report.
type EvalResult struct {
	SampleID       string  `yaml:"sampleid"`
	CER            float64 `yaml:"cer"`
	WER            float64 `yaml:"wer"`
	Hypothesis     string  `yaml:"hypothesis"`
	Reference      string  `yaml:"reference"`
	ProcessingTime string  `yaml:"processingtime"`
	Error          string  `yaml:"error,omitempty"`
}

// EvalSummary aggregates the run.
type EvalSummary struct {
	TotalSamples int     `yaml:"totalsamples"`
	SuccessCount int     `yaml:"successcount"`
	FailureCount int     `yaml:"failurecount"`
	MeanCER      float64 `yaml:"meancer"`
	MeanWER      float64 `yaml:"meanwer"`
	MedianCER    float64 `yaml:"mediancer"`
	WorstCER     float64 `yaml:"worstcer"`
}

// EvalSpec is the complete report document.
type EvalSpec struct {
	Config  EvalConfig   `yaml:"config"`
	Summary EvalSummary  `yaml:"summary"`
	Results []EvalResult `yaml:"results"`
}

// SaveToYAML writes the report into the evals/ directory and returns the
// file path.
func SaveToYAML(languages, datasetPath string, sampleSize int, agg *metrics.AggregateResults) (string, error) {
	if err := os.MkdirAll("evals", 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	spec := EvalSpec{
		Config: EvalConfig{
			Engine:      agg.Engine,
			Languages:   languages,
			DatasetPath: datasetPath,
			SampleSize:  sampleSize,
			Timestamp:   timestamp,
		},
		Summary: EvalSummary{
			TotalSamples: agg.TotalSamples,
			SuccessCount: agg.SuccessCount,
			FailureCount: agg.FailureCount,
			MeanCER:      agg.MeanCER,
			MeanWER:      agg.MeanWER,
			MedianCER:    agg.MedianCER,
			WorstCER:     agg.WorstCER,
		},
		Results: make([]EvalResult, 0, len(agg.Results)),
	}

	for _, r := range agg.Results {
		spec.Results = append(spec.Results, EvalResult{
			SampleID:       r.SampleID,
			CER:            r.CER,
			WER:            r.WER,
			Hypothesis:     r.Hypothesis,
			Reference:      r.Reference,
			ProcessingTime: r.ProcessingTime.Round(time.Millisecond).String(),
			Error:          r.Error,
		})
	}

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	path := filepath.Join("evals", fmt.Sprintf("%s_%s.yaml", agg.Engine, timestamp))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return path, nil
}
