// The linkinbio command serves the offers stories viewer over HTTP and plays
// stories lists in the terminal.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agleyzer/linkinbio/internal/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "linkinbio",
	Short: "Offers stories viewer service",
	Long: `linkinbio plays a list of offer images as auto-advancing stories.
It serves viewer sessions over HTTP and WebSocket, plays a stories list in
the terminal and validates stories lists and their images.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of linkinbio",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkinbio %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "linkinbio.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the text logger used by all commands. --verbose wins over
// the configured level.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})), nil
}
