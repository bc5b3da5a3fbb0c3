package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AleksandrSemykin/reflow-ocr/internal/evalcmd"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Recognition accuracy evaluation tools",
		Long: `Evaluation tools for measuring recognition accuracy against labeled datasets.

Supports running an engine over a benchmark of page images with reference
transcripts and reporting character and word error rates.`,
	}

	cmd.AddCommand(evalcmd.NewRunCmd())
	cmd.AddCommand(evalcmd.NewInspectCmd())

	return cmd
}
