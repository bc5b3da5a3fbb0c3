// Package evalcmd implements the eval subcommands for scoring recognition
// engines against labeled datasets.
package evalcmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine/tesseract"
	"github.com/AleksandrSemykin/reflow-ocr/internal/eval/dataset"
	"github.com/AleksandrSemykin/reflow-ocr/internal/eval/metrics"
	"github.com/AleksandrSemykin/reflow-ocr/internal/eval/results"
)

func NewRunCmd() *cobra.Command {
	var (
		datasetPath string
		engineName  string
		languages   string
		limit       int
		concurrency int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run recognition accuracy evaluation",
		Long: `Runs the selected engine over a labeled dataset and reports
character and word error rates. Results are written to evals/ as YAML.`,
		Example: `  # Evaluate tesseract on a local benchmark
  reflow-ocr eval run --dataset bench/pages.parquet

  # Evaluate gemini on the first 20 samples
  reflow-ocr eval run --dataset bench/pages.jsonl --engine gemini --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(engineName)
			if err != nil {
				return err
			}
			return executeRun(datasetPath, eng, strings.Split(languages, "+"), limit, concurrency, timeout)
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to a .parquet or .jsonl dataset (required)")
	cmd.Flags().StringVar(&engineName, "engine", "tesseract", "Engine to evaluate: tesseract, gemini, ollama, fallback")
	cmd.Flags().StringVar(&languages, "languages", "eng", "Language hints, plus-separated (e.g. rus+eng)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Evaluate at most N samples (0 = all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Samples processed in parallel")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-sample engine timeout")
	if err := cmd.MarkFlagRequired("dataset"); err != nil {
		slog.Error("Unable to mark dataset flag required", "err", err)
	}

	return cmd
}

func executeRun(datasetPath string, eng engine.Engine, languages []string, limit, concurrency int, timeout time.Duration) error {
	slog.Info("Starting evaluation run", "dataset", datasetPath, "engine", eng.Name())

	loader := dataset.NewLoader(datasetPath)
	samples, err := loader.LoadSample(limit)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	slog.Info("Dataset loaded", "samples", len(samples))

	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)
	resultsChan := make(chan metrics.SampleResult, len(samples))

	for i, sample := range samples {
		wg.Add(1)
		go func(idx int, sample dataset.Sample) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			slog.Info("Processing sample", "id", sample.ID, "progress", fmt.Sprintf("%d/%d", idx+1, len(samples)))
			resultsChan <- processSample(loader, eng, sample, languages, timeout)
		}(i, sample)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	collected := make([]metrics.SampleResult, 0, len(samples))
	for result := range resultsChan {
		collected = append(collected, result)
	}

	agg := metrics.Aggregate(eng.Name(), collected)
	printSummary(agg)

	path, err := results.SaveToYAML(strings.Join(languages, "+"), datasetPath, len(samples), agg)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	slog.Info("Results saved", "path", path)
	return nil
}

func processSample(loader *dataset.Loader, eng engine.Engine, sample dataset.Sample, languages []string, timeout time.Duration) metrics.SampleResult {
	start := time.Now()

	imageData, err := loader.ReadImage(sample)
	if err != nil {
		return metrics.SampleResult{SampleID: sample.ID, Error: err.Error(), ProcessingTime: time.Since(start)}
	}

	langs := languages
	if sample.Language != "" {
		langs = []string{sample.Language}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	blocks, err := eng.Recognize(ctx, engine.PageImage{Data: imageData}, engine.Options{Languages: langs})
	elapsed := time.Since(start)
	if err != nil {
		return metrics.SampleResult{SampleID: sample.ID, Error: err.Error(), ProcessingTime: elapsed}
	}

	return metrics.Score(sample.ID, sample.Transcript, blocksText(blocks), elapsed)
}

func blocksText(blocks []document.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if text := block.Text(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func printSummary(agg *metrics.AggregateResults) {
	fmt.Printf("\nEvaluation summary (%s)\n", agg.Engine)
	fmt.Printf("  samples:   %d (%d ok, %d failed)\n", agg.TotalSamples, agg.SuccessCount, agg.FailureCount)
	fmt.Printf("  mean CER:  %.4f\n", agg.MeanCER)
	fmt.Printf("  mean WER:  %.4f\n", agg.MeanWER)
	fmt.Printf("  median CER: %.4f\n", agg.MedianCER)
	fmt.Printf("  worst CER: %.4f\n", agg.WorstCER)
	fmt.Printf("  avg time:  %s\n", agg.AverageProcessingTime.Round(time.Millisecond))
}

func buildEngine(name string) (engine.Engine, error) {
	switch name {
	case "tesseract":
		return tesseract.New(), nil
	case "gemini":
		return engine.NewGemini(""), nil
	case "ollama":
		return engine.NewOllama("", ""), nil
	case "fallback":
		return engine.NewFallback(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (supported: tesseract, gemini, ollama, fallback)", name)
	}
}
