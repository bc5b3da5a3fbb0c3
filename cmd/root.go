package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflow-ocr",
		Short: "Document recognition backend with session-based page management",
		Long: `Reflow OCR turns scanned page images into structured documents.

Pages are grouped into sessions, recognized by a pluggable engine
(Tesseract, Gemini, or Ollama), and exported as Markdown, PDF, DOCX,
or HTML. The serve command exposes the full session API over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEvalCmd())

	return cmd
}
