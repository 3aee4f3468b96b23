package config

import (
	"errors"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(env(map[string]string{"JWT_SECRET": "s"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AppPort != "8080" || cfg.BoardHeight != 20 || cfg.JoinRateLimit != 30 || cfg.JoinRateWindow != time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RelayURL != "ws://127.0.0.1:8080/ws" {
		t.Fatalf("unexpected relay url %q", cfg.RelayURL)
	}
	if cfg.LogLevel != "info" || cfg.LogJSON {
		t.Fatalf("unexpected log settings %+v", cfg)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(env(map[string]string{
		"JWT_SECRET":       "s",
		"APP_PORT":         "9000",
		"REDIS_ADDR":       "localhost:6379",
		"REDIS_DB":         "2",
		"JOIN_RATE_LIMIT":  "5",
		"JOIN_RATE_WINDOW": "10",
		"BOARD_HEIGHT":     "24",
		"LOG_JSON":         "true",
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AppPort != "9000" || cfg.RedisDB != 2 || cfg.JoinRateLimit != 5 || cfg.JoinRateWindow != 10*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BoardHeight != 24 || !cfg.LogJSON || cfg.RelayURL != "ws://127.0.0.1:9000/ws" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := parse(env(nil)); !errors.Is(err, errNoSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if _, err := parse(env(map[string]string{"JWT_SECRET": "s", "REDIS_DB": "x"})); err == nil {
		t.Fatalf("expected error for bad REDIS_DB")
	}
	if _, err := parse(env(map[string]string{"JWT_SECRET": "s", "BOARD_HEIGHT": "2"})); err == nil {
		t.Fatalf("expected error for tiny board")
	}
}
