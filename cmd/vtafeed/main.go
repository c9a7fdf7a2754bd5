// Package main implements vtafeed, the PSS scoring feed. It listens for the
// scoring system's UDP statements, reduces them into the live match state and
// publishes events, state snapshots and diagnostics to the configured outputs.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reStrike-d-o-o/reStrike-VTA/config"
	"github.com/reStrike-d-o-o/reStrike-VTA/match"
	"github.com/reStrike-d-o-o/reStrike-VTA/output/journal"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vtafeed"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	ctx := context.Background()

	if cliCfg.ReplayPath != "" {
		return replayJournal(ctx, cliCfg.ReplayPath, cliCfg.ReplayRun, os.Stdout)
	}

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "layers", cliCfg.ConfigPaths)
		slog.Debug("Effective configuration", "config", cfg.String())
		return nil
	}

	feed, err := buildFeed(cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, feed, cliCfg.ShutdownTimeout)
}

// initializeCLI loads the dotenv file, parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	envFile := getEnv("VTA_ENV_FILE", ".env")
	loaded, err := loadDotEnv(envFile)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load %s: %w", envFile, err)
	}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil, nil, true, nil
		}
		return nil, nil, false, fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(os.Stderr, fs)
		return nil, nil, true, nil
	}

	logger := setupLogger(os.Stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting vtafeed",
		"version", Version,
		"build_time", BuildTime,
		"config", cliCfg.ConfigPaths,
		"env_file_loaded", loaded)

	return cliCfg, logger, false, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, err
	}
	return true, nil
}

// loadConfig merges the layers over the defaults and validates the result
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// runWithSignalHandling starts the feed and stops it on SIGINT or SIGTERM
func runWithSignalHandling(ctx context.Context, feed *Feed, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := feed.Start(signalCtx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	slog.Info("vtafeed started", "listen", feed.ListenAddr(), "metrics", feed.MetricsAddr())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := feed.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	stats := feed.Stats()
	slog.Info("vtafeed shutdown complete",
		"datagrams", stats.Datagrams,
		"statements", stats.Statements,
		"rejected", stats.Rejected)
	return nil
}

type replayOutput struct {
	Run        string      `json:"run"`
	Statements int         `json:"statements"`
	Rejected   []string    `json:"rejected,omitempty"`
	State      match.State `json:"state"`
}

// replayJournal rebuilds a journaled run and writes the result as JSON
func replayJournal(ctx context.Context, path, run string, w io.Writer) error {
	res, err := journal.Replay(ctx, path, run)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}

	out := replayOutput{
		Run:        res.Run,
		Statements: res.Statements,
		State:      res.State,
	}
	for _, e := range res.Rejected {
		out.Rejected = append(out.Rejected, e.Error())
	}
	if len(out.Rejected) > 0 {
		slog.Warn("Replay rejected statements", "run", res.Run, "count", len(out.Rejected))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
