package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"edmanweb/internal/config"
)

const (
	logLevelEnvKey  = "EDMANWEB_LOG_LEVEL"
	logFormatEnvKey = "EDMANWEB_LOG_FORMAT"
)

type levelSource string

const (
	levelFromFlag    levelSource = "flag"
	levelFromEnv     levelSource = "env"
	levelFromConfig  levelSource = "config"
	levelFromDefault levelSource = "default"
)

// configureLoggerForCLI installs the default logger. A bad --log-level is
// an error; a bad env or config value falls back to the default level and
// returns a warning line for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	raw, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(raw)
	if err == nil {
		slog.SetDefault(newLogger(level, os.Getenv(logFormatEnvKey)))
		return "", nil
	}

	switch source {
	case levelFromFlag:
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case levelFromEnv:
		slog.SetDefault(newLogger(slog.LevelInfo, os.Getenv(logFormatEnvKey)))
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	default:
		slog.SetDefault(newLogger(slog.LevelInfo, os.Getenv(logFormatEnvKey)))
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	}
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, levelSource) {
	switch {
	case strings.TrimSpace(flagLevel) != "":
		return flagLevel, levelFromFlag
	case strings.TrimSpace(envLevel) != "":
		return envLevel, levelFromEnv
	case strings.TrimSpace(configLevel) != "":
		return configLevel, levelFromConfig
	default:
		return "", levelFromDefault
	}
}

// parseLogLevel accepts slog level names, "warning" and numeric levels.
// Empty means info.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
