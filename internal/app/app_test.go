package app

import (
	"reflect"
	"testing"
	"time"
)

func TestParseConfigAppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.ServerURL != def.ServerURL {
		t.Fatalf("expected default server url %q, got %q", def.ServerURL, cfg.ServerURL)
	}
	if cfg.GestureThrottle != def.GestureThrottle {
		t.Fatalf("expected default throttle %s, got %s", def.GestureThrottle, cfg.GestureThrottle)
	}
	if cfg.ResolveInterval != def.ResolveInterval {
		t.Fatalf("expected default resolve interval %s, got %s", def.ResolveInterval, cfg.ResolveInterval)
	}
	if cfg.RPCTimeout != def.RPCTimeout {
		t.Fatalf("expected default rpc timeout %s, got %s", def.RPCTimeout, cfg.RPCTimeout)
	}
	if !reflect.DeepEqual(cfg.LogSinks, def.LogSinks) {
		t.Fatalf("expected default sinks %v, got %v", def.LogSinks, cfg.LogSinks)
	}
	if cfg.LogSeverity != def.LogSeverity {
		t.Fatalf("expected default severity %q, got %q", def.LogSeverity, cfg.LogSeverity)
	}
}

func TestParseConfigReadsEnvironment(t *testing.T) {
	t.Setenv("EDITOR_SERVER_URL", "ws://build-box:9000/editor")
	t.Setenv("EDITOR_GESTURE_THROTTLE", "250ms")
	t.Setenv("EDITOR_RESOLVE_INTERVAL", "500ms")
	t.Setenv("EDITOR_SNAP_SIZE", "0.5")
	t.Setenv("EDITOR_LOG_SINKS", "console,json")
	t.Setenv("EDITOR_LOG_SEVERITY", "debug")

	cfg, err := ParseConfig()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.ServerURL != "ws://build-box:9000/editor" {
		t.Fatalf("expected overridden server url, got %q", cfg.ServerURL)
	}
	if cfg.GestureThrottle != 250*time.Millisecond {
		t.Fatalf("expected 250ms throttle, got %s", cfg.GestureThrottle)
	}
	if cfg.ResolveInterval != 500*time.Millisecond {
		t.Fatalf("expected 500ms resolve interval, got %s", cfg.ResolveInterval)
	}
	if cfg.SnapSize != 0.5 {
		t.Fatalf("expected snap size 0.5, got %v", cfg.SnapSize)
	}
	if !reflect.DeepEqual(cfg.LogSinks, []string{"console", "json"}) {
		t.Fatalf("expected both sinks enabled, got %v", cfg.LogSinks)
	}
	if cfg.LogSeverity != "debug" {
		t.Fatalf("expected debug severity, got %q", cfg.LogSeverity)
	}
}

func TestParseConfigRejectsMalformedDurations(t *testing.T) {
	t.Setenv("EDITOR_GESTURE_THROTTLE", "fast")
	if _, err := ParseConfig(); err == nil {
		t.Fatalf("expected malformed duration to fail parsing")
	}
}
