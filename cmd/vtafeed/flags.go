package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ReplayPath      string
	ReplayRun       string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	var configPaths string

	// Define flags with environment variable fallback
	fs.StringVar(&configPaths, "config",
		getEnv("VTA_CONFIG", ""),
		"Configuration files, comma separated; later files override earlier ones (env: VTA_CONFIG)")

	fs.StringVar(&configPaths, "c",
		getEnv("VTA_CONFIG", ""),
		"Configuration files, comma separated (env: VTA_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VTA_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VTA_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VTA_LOG_FORMAT", "json"),
		"Log format: json, text (env: VTA_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("VTA_DEBUG", false),
		"Enable debug mode (env: VTA_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("VTA_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: VTA_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.ReplayPath, "replay", "",
		"Replay a statement journal, print the final match state as JSON and exit")
	fs.StringVar(&cfg.ReplayRun, "run", "",
		"Journal run to replay, defaults to the latest")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs.Output(), fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, p := range strings.Split(configPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.ConfigPaths = append(cfg.ConfigPaths, p)
		}
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if cfg.ReplayPath != "" {
		if _, err := os.Stat(cfg.ReplayPath); err != nil {
			return fmt.Errorf("journal not found: %s", cfg.ReplayPath)
		}
	}
	if cfg.ReplayRun != "" && cfg.ReplayPath == "" {
		return fmt.Errorf("--run requires --replay")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - PSS scoring feed

Receives the scoring system's UDP statements, keeps the live match state and
fans events out to overlays, NATS and the statement journal.

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run with defaults (UDP 0.0.0.0:6000, overlay feed on :8081)
  %s

  # Layer a venue file and a court file
  %s --config=venue.yaml,court3.toml

  # Override single settings from the environment or a dotenv file
  # (VTA_ENV_FILE, default .env)
  export VTA_LISTENER_PORT=6001
  export VTA_NATS_ENABLED=true
  %s --log-format=text

  # Validate configuration only
  %s --config=venue.yaml --validate

  # Rebuild the final state of the latest journaled run
  %s --replay=vta-journal.db

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
