package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/agleyzer/linkinbio/internal/assets"
	"github.com/agleyzer/linkinbio/internal/config"
	"github.com/agleyzer/linkinbio/internal/parser"
	"github.com/agleyzer/linkinbio/internal/stories"
)

var checkAssetsDir string

var checkCmd = &cobra.Command{
	Use:   "check [stories]",
	Short: "Validate a stories list and load every image",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Stories = args[0]
		}
		if cmd.Flags().Changed("assets-dir") {
			cfg.AssetsDir = checkAssetsDir
		}

		logger, err := newLogger(os.Stderr, cfg)
		if err != nil {
			return err
		}

		return runCheck(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkAssetsDir, "assets-dir", "", "directory local image sources are resolved against")
	rootCmd.AddCommand(checkCmd)
}

// runCheck normalizes the stories list and probes every slide, returning
// one combined error for all images that failed to load.
func runCheck(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := parser.ParseStories(cfg.Stories)
	if err != nil {
		return fmt.Errorf("failed to load stories: %w", err)
	}

	slides := stories.Normalize(raw)
	if len(slides) == 0 {
		return fmt.Errorf("%s: no usable slides", cfg.Stories)
	}

	prober := assets.NewProber(cfg.AssetsDir, cfg.ProbeTimeout(), logger)

	bar := progressbar.NewOptions(len(slides),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Checking offers"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var errs error
	for i, s := range slides {
		if err := prober.Probe(ctx, s.Source); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s (%s): %w", s.Label(i), s.Source, err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	failed := multierr.Errors(errs)
	for _, err := range failed {
		fmt.Fprintf(out, "FAIL %v\n", err)
	}
	fmt.Fprintf(out, "%d slides, %d ok, %d failed\n", len(slides), len(slides)-len(failed), len(failed))

	if errs != nil {
		return fmt.Errorf("%d of %d offer images failed to load: %w", len(failed), len(slides), errs)
	}
	return nil
}
