package evalcmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleksandrSemykin/reflow-ocr/internal/eval/dataset"
)

func NewInspectCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect a dataset without running recognition",
		Long:  `Prints sample counts, language distribution, and transcript sizes for a dataset file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := dataset.NewLoader(args[0]).LoadSample(limit)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}

			languages := make(map[string]int)
			invalid := 0
			var totalChars int
			for _, s := range samples {
				lang := s.Language
				if lang == "" {
					lang = "(unset)"
				}
				languages[lang]++
				totalChars += len(s.Transcript)
				if !s.Valid() {
					invalid++
				}
			}

			fmt.Printf("Dataset: %s\n", args[0])
			fmt.Printf("  samples:  %d (%d invalid)\n", len(samples), invalid)
			if len(samples) > 0 {
				fmt.Printf("  avg transcript: %d chars\n", totalChars/len(samples))
			}
			names := make([]string, 0, len(languages))
			for lang := range languages {
				names = append(names, lang)
			}
			sort.Strings(names)
			for _, lang := range names {
				fmt.Printf("  language %s: %d\n", lang, languages[lang])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Inspect at most N samples (0 = all)")
	return cmd
}
