package cmd

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/studyhall/tutormsg/internal/config"
)

func TestBuildEngineRequiresRemoteURL(t *testing.T) {
	origCfg, origLogger := cfg, logger
	defer func() { cfg, logger = origCfg, origLogger }()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg = &config.Config{Role: "student", ParticipantID: "stu-1"}

	if _, err := buildEngine(); err == nil {
		t.Fatal("buildEngine() = nil error, want missing URL error")
	} else if !strings.Contains(err.Error(), "remote URL") {
		t.Errorf("error = %v, want mention of remote URL", err)
	}
}

func TestBuildEngineRequiresParticipant(t *testing.T) {
	origCfg, origLogger := cfg, logger
	defer func() { cfg, logger = origCfg, origLogger }()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg = &config.Config{
		Role:   "student",
		Remote: config.RemoteConfig{URL: "https://api.studyhall.example"},
	}

	if _, err := buildEngine(); err == nil {
		t.Fatal("buildEngine() = nil error, want missing participant error")
	}
}

func TestBuildEngineWiresClient(t *testing.T) {
	origCfg, origLogger := cfg, logger
	defer func() { cfg, logger = origCfg, origLogger }()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg = &config.Config{
		Role:          "student",
		ParticipantID: "stu-1",
		Remote:        config.RemoteConfig{URL: "https://api.studyhall.example", RateLimitQPS: 10, TimeoutSecs: 30},
		Widget:        config.WidgetConfig{MinMessageLen: 5, NearBottom: 150, ScrollDebounceMS: 250, SupersedeWindowSecs: 120},
	}

	eng, err := buildEngine()
	if err != nil {
		t.Fatalf("buildEngine() error = %v", err)
	}
	if eng == nil {
		t.Fatal("buildEngine() returned nil engine")
	}
}
