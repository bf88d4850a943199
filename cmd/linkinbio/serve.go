package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agleyzer/linkinbio/internal/assets"
	"github.com/agleyzer/linkinbio/internal/config"
	"github.com/agleyzer/linkinbio/internal/parser"
	"github.com/agleyzer/linkinbio/internal/server"
	"github.com/agleyzer/linkinbio/internal/session"
	"github.com/agleyzer/linkinbio/internal/stories"
)

var serveFlags struct {
	port        int
	stories     string
	assetsDir   string
	durationMS  int
	probeAssets bool
	allowAll    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stories viewer sessions over HTTP",
	Long: `Loads the stories list and serves viewer sessions over HTTP and WebSocket.
Local image sources are served from the assets directory under /assets/.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err := newLogger(os.Stdout, cfg)
		if err != nil {
			return err
		}

		logger.Info("linkinbio starting", "version", Version)

		// Create context for graceful shutdown
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case sig := <-sigChan:
				logger.Info("received signal", "signal", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := runServe(ctx, cfg, logger); err != nil {
			logger.Error("application error", "error", err)
			return err
		}

		logger.Info("linkinbio stopped")
		return nil
	},
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveFlags.port, "port", 8080, "HTTP server port")
	f.StringVar(&serveFlags.stories, "stories", "", "stories list file or URL")
	f.StringVar(&serveFlags.assetsDir, "assets-dir", "", "directory local images are served from")
	f.IntVar(&serveFlags.durationMS, "duration", 0, "per-slide duration in milliseconds")
	f.BoolVar(&serveFlags.probeAssets, "probe-assets", true, "load images on the server instead of waiting for client reports")
	f.BoolVar(&serveFlags.allowAll, "allow-all-origins", false, "allow CORS requests from any origin")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = serveFlags.port
	}
	if f.Changed("stories") {
		cfg.Stories = serveFlags.stories
	}
	if f.Changed("assets-dir") {
		cfg.AssetsDir = serveFlags.assetsDir
	}
	if f.Changed("duration") {
		cfg.DurationMS = serveFlags.durationMS
	}
	if f.Changed("probe-assets") {
		cfg.ProbeAssets = serveFlags.probeAssets
	}
	if f.Changed("allow-all-origins") {
		cfg.AllowAllOrigins = serveFlags.allowAll
	}
}

// runServe loads the stories list and serves sessions until ctx is canceled.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("loading stories", "location", cfg.Stories)
	raw, err := parser.ParseStories(cfg.Stories)
	if err != nil {
		return fmt.Errorf("failed to load stories: %w", err)
	}

	cache := stories.NewCache()
	slides := cache.Normalize(raw)
	logger.Info("loaded stories", "slides", len(slides))
	if len(slides) == 0 {
		logger.Warn("stories list has no usable slides; sessions will show the fallback view")
	}

	opts := session.Options{
		Duration:      cfg.Duration(),
		FrameInterval: cfg.FrameInterval(),
	}
	if cfg.ProbeAssets {
		opts.Prober = assets.NewProber(cfg.AssetsDir, cfg.ProbeTimeout(), logger)
	}

	sessions := session.NewManager(cache, opts, logger)
	defer sessions.UnmountAll()

	go sessions.StartReaper(ctx, reapInterval(cfg.SessionTTL()), cfg.SessionTTL())

	srv := server.New(server.Config{
		Port:         cfg.Port,
		AssetsDir:    cfg.AssetsDir,
		AllowAll:     cfg.AllowAllOrigins,
		PushInterval: cfg.FrameInterval(),
	}, sessions, func() any { return raw }, cache, logger)

	logger.Info("stories viewer ready",
		"sessions", fmt.Sprintf("http://localhost:%d/sessions", cfg.Port),
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Port),
	)

	// Start server (blocks until shutdown)
	return srv.Start(ctx)
}

// reapInterval checks for expired sessions a few times per TTL.
func reapInterval(ttl time.Duration) time.Duration {
	if interval := ttl / 4; interval >= time.Second {
		return interval
	}
	return time.Second
}
