package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"raise-and-raze/editor/internal/editor"
	"raise-and-raze/editor/internal/mirror"
	netclient "raise-and-raze/editor/internal/net/client"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingsinks "raise-and-raze/editor/logging/sinks"
)

// Config assembles one editor process. Every field can be set from the
// environment; zero values fall back to the envDefault tags.
type Config struct {
	ServerURL         string        `env:"EDITOR_SERVER_URL" envDefault:"ws://localhost:8080/editor"`
	GestureThrottle   time.Duration `env:"EDITOR_GESTURE_THROTTLE" envDefault:"100ms"`
	ResolveInterval   time.Duration `env:"EDITOR_RESOLVE_INTERVAL" envDefault:"2s"`
	HeartbeatInterval time.Duration `env:"EDITOR_HEARTBEAT_INTERVAL" envDefault:"10s"`
	RPCTimeout        time.Duration `env:"EDITOR_RPC_TIMEOUT" envDefault:"5s"`
	SnapSize          float64       `env:"EDITOR_SNAP_SIZE" envDefault:"0"`
	GlobalCoordinates bool          `env:"EDITOR_GLOBAL_COORDINATES" envDefault:"false"`
	LogSinks          []string      `env:"EDITOR_LOG_SINKS" envDefault:"console" envSeparator:","`
	LogJSONPath       string        `env:"EDITOR_LOG_JSON_PATH" envDefault:"editor-events.jsonl"`
	LogSeverity       string        `env:"EDITOR_LOG_SEVERITY" envDefault:"info"`

	Logger telemetry.Logger `env:"-"`
}

// DefaultConfig mirrors the envDefault tags for embedders that skip the
// environment.
func DefaultConfig() Config {
	return Config{
		ServerURL:         "ws://localhost:8080/editor",
		GestureThrottle:   100 * time.Millisecond,
		ResolveInterval:   2 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		RPCTimeout:        5 * time.Second,
		LogSinks:          []string{logging.SinkConsole},
		LogJSONPath:       "editor-events.jsonl",
		LogSeverity:       "info",
	}
}

// ParseConfig reads the process environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse editor environment: %w", err)
	}
	return cfg, nil
}

// Run wires the logging router, telemetry, the server connection and the
// session, then drives target resolution until ctx ends or the connection
// drops. Shutdown drains the router last so late events still land.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	minSeverity, err := logging.ParseSeverity(cfg.LogSeverity)
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.LogSinks
	logConfig.MinimumSeverity = minSeverity
	logConfig.JSON.FilePath = cfg.LogJSONPath

	var namedSinks []logging.NamedSink
	var jsonFile *os.File
	if logConfig.HasSink(logging.SinkConsole) {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: logging.SinkConsole,
			Sink: loggingsinks.NewConsoleSink(os.Stdout, logConfig.Console),
		})
	}
	if logConfig.HasSink(logging.SinkJSON) {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open json event log %s: %w", logConfig.JSON.FilePath, err)
		}
		jsonFile = file
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: logging.SinkJSON,
			Sink: loggingsinks.NewJSON(file, logConfig.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		if jsonFile != nil {
			jsonFile.Close()
		}
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		if jsonFile != nil {
			jsonFile.Close()
		}
	}()

	metrics := &logging.Metrics{}
	world := mirror.New()

	client, err := netclient.Dial(ctx, netclient.Config{
		URL:               cfg.ServerURL,
		RPCTimeout:        cfg.RPCTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Publisher:         router,
		Metrics:           telemetry.WrapMetrics(metrics),
	}, world)
	if err != nil {
		return err
	}
	defer client.Close()

	sess := editor.NewSession(client, world, editor.Config{
		Throttle:        cfg.GestureThrottle,
		ResolveInterval: cfg.ResolveInterval,
		Publisher:       router,
		Metrics:         telemetry.WrapMetrics(metrics),
	})
	defer sess.Close()
	if cfg.SnapSize > 0 {
		sess.SetSnap(cfg.SnapSize)
	}
	sess.SetGlobalCoordinates(cfg.GlobalCoordinates)

	telemetryLogger.Printf("editor connected to %s", cfg.ServerURL)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	sess.Run(runCtx)

	if ctx.Err() != nil {
		return nil
	}
	select {
	case <-client.Done():
		return errors.New("editor channel closed unexpectedly")
	default:
		return nil
	}
}
