package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyhall/tutormsg/internal/config"
	"github.com/studyhall/tutormsg/internal/engine"
	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/remote"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tutormsg",
	Short: "Tutoring conversation widget",
	Long: `tutormsg keeps a student/tutor messaging widget in sync with the
StudyHall backend: it polls for new messages, reconciles optimistic
local sends, tracks read state, and serves the result to a terminal
UI or a local HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// buildEngine wires the remote client and the synchronization engine
// from the loaded config. Shared by serve and tui.
func buildEngine() (*engine.Engine, error) {
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("remote URL not configured\n\nAdd to %s:\n\n  [remote]\n  url = \"https://api.studyhall.example\"\n  api_key = \"...\"", configPath())
	}
	if cfg.ParticipantID == "" {
		return nil, fmt.Errorf("participant_id not configured in %s", configPath())
	}

	client, err := remote.New(remote.Config{
		URL:           cfg.Remote.URL,
		APIKey:        cfg.Remote.APIKey,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       cfg.RemoteTimeout(),
		RateLimitQPS:  cfg.Remote.RateLimitQPS,
		ParticipantID: cfg.ParticipantID,
		Role:          message.Role(cfg.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	eng := engine.New(client, engine.Options{
		Role:            message.Role(cfg.Role),
		MinBodyRunes:    cfg.Widget.MinMessageLen,
		SupersedeWindow: cfg.SupersedeWindow(),
		NearBottom:      cfg.Widget.NearBottom,
		ScrollDebounce:  cfg.ScrollDebounce(),
	}).WithLogger(logger)

	return eng, nil
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultHome() + "/config.toml"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.tutormsg/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
