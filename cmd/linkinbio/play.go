package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agleyzer/linkinbio/internal/assets"
	"github.com/agleyzer/linkinbio/internal/config"
	"github.com/agleyzer/linkinbio/internal/parser"
	"github.com/agleyzer/linkinbio/internal/stories"
	"github.com/agleyzer/linkinbio/internal/viewer"
)

const renderInterval = 50 * time.Millisecond

var playFlags struct {
	assetsDir  string
	durationMS int
}

var playCmd = &cobra.Command{
	Use:   "play [stories]",
	Short: "Play a stories list in the terminal",
	Long: `Plays a stories list in the terminal, one progress bar per slide.
Right/left arrows move between slides; Esc or q closes the viewer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Stories = args[0]
		}
		if cmd.Flags().Changed("assets-dir") {
			cfg.AssetsDir = playFlags.assetsDir
		}
		if cmd.Flags().Changed("duration") {
			cfg.DurationMS = playFlags.durationMS
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		// Logs go to stderr and stay quiet so they do not tear the progress bar.
		if !verbose {
			cfg.LogLevel = "error"
		}
		logger, err := newLogger(os.Stderr, cfg)
		if err != nil {
			return err
		}

		return runPlay(cmd.Context(), cfg, os.Stdin, cmd.OutOrStdout(), logger)
	},
}

func init() {
	playCmd.Flags().StringVar(&playFlags.assetsDir, "assets-dir", "", "directory local image sources are resolved against")
	playCmd.Flags().IntVar(&playFlags.durationMS, "duration", 0, "per-slide duration in milliseconds")
	rootCmd.AddCommand(playCmd)
}

// runPlay mounts a viewer over cfg.Stories and renders it until the viewer
// closes or ctx is canceled. Keys are read from in when it is a terminal;
// otherwise playback runs unattended and stops at the fallback view.
func runPlay(ctx context.Context, cfg *config.Config, in *os.File, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := parser.ParseStories(cfg.Stories)
	if err != nil {
		return fmt.Errorf("failed to load stories: %w", err)
	}
	slides := stories.Normalize(raw)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := make(chan struct{})
	var once sync.Once
	onBack := func() { once.Do(func() { close(closed) }) }

	prober := assets.NewProber(cfg.AssetsDir, cfg.ProbeTimeout(), logger)

	var v *viewer.Viewer
	v = viewer.New(slides, onBack, viewer.Options{
		Duration:  cfg.Duration(),
		Scheduler: viewer.NewTickerScheduler(cfg.FrameInterval()),
		OnActivate: func(a viewer.Activation) {
			go func() {
				if err := prober.Probe(ctx, a.Slide.Source); err != nil {
					logger.Warn("asset probe failed", "index", a.Index, "source", a.Slide.Source, "error", err)
					v.ReportError(a)
					return
				}
				v.ReportLoaded(a)
			}()
		},
		Logger: logger,
	})

	interactive := term.IsTerminal(int(in.Fd()))
	nl := "\n"
	if interactive {
		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return fmt.Errorf("enabling raw mode: %w", err)
		}
		defer term.Restore(int(in.Fd()), state)
		nl = "\r\n"

		go readKeys(ctx, in, v)
	}

	v.Mount()
	defer v.Unmount()

	r := &renderer{out: out, nl: nl}
	defer r.finish()

	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	for {
		st := v.State()
		if st.Status.Fallback() {
			if !r.fallback {
				r.showFallback(st, interactive)
			}
			if !interactive {
				return nil
			}
		} else if st.Status == viewer.StatusPlaying {
			r.render(st)
		}

		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// readKeys forwards raw terminal key presses to the viewer.
func readKeys(ctx context.Context, in io.Reader, v *viewer.Viewer) {
	buf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := in.Read(buf)
		if err != nil {
			return
		}
		if key := keyFromBytes(buf[:n]); key != "" {
			v.HandleKey(key)
		}
	}
}

// keyFromBytes maps one raw terminal read to a viewer key name. Ctrl-C and
// q close like Escape.
func keyFromBytes(b []byte) string {
	switch string(b) {
	case "\x1b[C", "\x1bOC", "l":
		return viewer.KeyArrowRight
	case "\x1b[D", "\x1bOD", "h":
		return viewer.KeyArrowLeft
	case "\x1b", "q", "Q", "\x03":
		return viewer.KeyEscape
	default:
		return ""
	}
}

// renderer draws one progress bar per activation.
type renderer struct {
	out      io.Writer
	nl       string
	bar      *progressbar.ProgressBar
	seq      uint64
	desc     string
	errored  bool
	fallback bool
}

func (r *renderer) render(st viewer.State) {
	if r.bar == nil || st.Seq != r.seq {
		r.finish()

		r.seq = st.Seq
		r.errored = false
		r.desc = fmt.Sprintf("[%d/%d] %s", st.ActiveIndex+1, st.Total, st.Label)
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription(r.desc),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	if st.Errored && !r.errored {
		r.errored = true
		r.bar.Describe(r.desc + " (" + st.Notice + ")")
	}

	_ = r.bar.Set(int(math.Round(st.Progress * 100)))
}

func (r *renderer) showFallback(st viewer.State, interactive bool) {
	r.finish()
	r.fallback = true

	fmt.Fprint(r.out, st.Message+r.nl)
	if interactive {
		fmt.Fprint(r.out, "Press Esc or q to close."+r.nl)
	}
}

func (r *renderer) finish() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	fmt.Fprint(r.out, r.nl)
	r.bar = nil
}
