package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleksandrSemykin/reflow-ocr/internal/config"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine/tesseract"
	"github.com/AleksandrSemykin/reflow-ocr/internal/events"
	"github.com/AleksandrSemykin/reflow-ocr/internal/export"
	"github.com/AleksandrSemykin/reflow-ocr/internal/handlers"
	"github.com/AleksandrSemykin/reflow-ocr/internal/pipeline"
	"github.com/AleksandrSemykin/reflow-ocr/internal/preprocess"
	"github.com/AleksandrSemykin/reflow-ocr/internal/storage"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recognition backend server",
		Long: `Starts the Reflow OCR backend on the specified port.

Sessions and their page images are persisted under the data directory
(REFLOW_DATA_DIR) and autosaved on an interval. Recognition runs on the
engine selected by REFLOW_ENGINE, falling back to a placeholder engine
when the primary one fails.`,
		Example: `  # Start server on the default port
  reflow-ocr serve

  # Start server on a custom port
  reflow-ocr serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			repo, err := storage.NewDiskRepository(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("opening data directory: %w", err)
			}
			store, err := storage.New(repo)
			if err != nil {
				return fmt.Errorf("loading sessions: %w", err)
			}

			autosaver := storage.NewAutosaver(store, cfg.AutosaveInterval)
			autosaver.Start()
			defer autosaver.Stop()

			bus := events.NewBus()
			pipe, err := pipeline.New(store, bus, buildServeEngine(cfg), preprocess.Chain{preprocess.Scale{MaxEdge: 3000}}, pipeline.Options{
				Workers:       cfg.Workers,
				EngineTimeout: cfg.EngineTimeout,
				Languages:     strings.Split(cfg.LanguageHint, "+"),
			})
			if err != nil {
				return err
			}
			defer pipe.Close()

			handler := handlers.New(store, pipe, bus, export.NewRegistry(), cfg.ExportTimeout)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Routes(),
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Reflow OCR backend available", "addr", addr, "engine", cfg.Engine, "data_dir", cfg.DataDir)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides REFLOW_PORT)")

	return cmd
}

// buildServeEngine picks the configured engine and chains the placeholder
// fallback behind it so a dead engine degrades instead of failing every run.
func buildServeEngine(cfg *config.Config) engine.Engine {
	var primary engine.Engine
	switch cfg.Engine {
	case "gemini":
		primary = engine.NewGemini(cfg.GeminiModel)
	case "ollama":
		primary = engine.NewOllama(cfg.OllamaHost, cfg.OllamaModel)
	case "fallback":
		return engine.NewFallback()
	default:
		primary = tesseract.New()
	}
	return engine.NewComposite(primary, engine.NewFallback())
}
