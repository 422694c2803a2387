// Command translator dispatches a text file to the Gemini API in
// parallel units and writes the merged, ordered translation.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/app"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/config"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/engine"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/job"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/platform/gemini"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath      string
		inputPath       string
		outputPath      string
		retryFailedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "translator",
		Short: "Translate a text file in parallel units with crash-safe resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if retryFailedOnly {
				cfg.Job.RetryFailedOnly = true
			}

			log := logger.Setup(cfg.Log)

			if outputPath == "" {
				outputPath = defaultOutputPath(inputPath)
			}

			// Interrupt requests cooperative shutdown; in-flight calls
			// finish, progress is preserved for resume.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			translator, err := gemini.New(ctx, log, cfg.LLM)
			if err != nil {
				return err
			}

			store := job.NewStore(log)
			service := app.NewService(cfg, store, translator, engine.LogReporter{Logger: log}, log)

			summary, err := service.Run(ctx, inputPath, outputPath)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				log.Warn("job finished with failed units; rerun to retry them",
					"failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the text file to translate")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "path for the translated output (default: <input>_result.<ext>)")
	cmd.Flags().BoolVar(&retryFailedOnly, "retry-failed-only", false, "on resume, retry only units recorded as failed")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// defaultOutputPath derives input.txt → input_result.txt.
func defaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(filepath.Dir(inputPath), stem+"_result"+ext)
}
