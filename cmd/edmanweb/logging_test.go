package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default info", raw: "", want: slog.LevelInfo},
		{name: "debug", raw: "debug", want: slog.LevelDebug},
		{name: "upper case", raw: " INFO ", want: slog.LevelInfo},
		{name: "warning alias", raw: "warning", want: slog.LevelWarn},
		{name: "error", raw: "error", want: slog.LevelError},
		{name: "numeric", raw: "-4", want: slog.LevelDebug},
		{name: "invalid", raw: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLogLevel(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse level: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSelectedLogLevel(t *testing.T) {
	tests := []struct {
		flag, env, cfg string
		want           string
		source         levelSource
	}{
		{"debug", "error", "warn", "debug", levelFromFlag},
		{"", "warn", "info", "warn", levelFromEnv},
		{"", "", "error", "error", levelFromConfig},
		{"", " ", "", "", levelFromDefault},
	}
	for _, tt := range tests {
		raw, source := selectedLogLevel(tt.flag, tt.env, tt.cfg)
		if raw != tt.want || source != tt.source {
			t.Fatalf("selectedLogLevel(%q, %q, %q) = %q, %q", tt.flag, tt.env, tt.cfg, raw, source)
		}
	}
}

func TestConfigureLoggerForCLI(t *testing.T) {
	t.Run("flag overrides invalid env", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "invalid")
		warning, err := configureLoggerForCLI("debug", "info")
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if warning != "" {
			t.Fatalf("expected no warning, got %q", warning)
		}
		if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			t.Fatal("expected debug logging enabled")
		}
	})

	t.Run("invalid flag returns error", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		if _, err := configureLoggerForCLI("chatty", "info"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid env warns and falls back", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "chatty")
		warning, err := configureLoggerForCLI("", "debug")
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if !strings.Contains(warning, logLevelEnvKey) || !strings.Contains(warning, "defaulting to info") {
			t.Fatalf("expected env fallback warning, got %q", warning)
		}
	})

	t.Run("invalid config warns and falls back", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		warning, err := configureLoggerForCLI("", "chatty")
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if !strings.Contains(warning, "invalid log_level") {
			t.Fatalf("expected config warning, got %q", warning)
		}
	})

	t.Run("json format", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		t.Setenv(logFormatEnvKey, "json")
		if _, err := configureLoggerForCLI("warn", ""); err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if _, ok := slog.Default().Handler().(*slog.JSONHandler); !ok {
			t.Fatalf("expected JSON handler, got %T", slog.Default().Handler())
		}
	})
}
