// ABOUTME: Entry point for the loopback device daemon
// ABOUTME: Loads configuration, builds the software host and serves it over websockets
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Resonate-Protocol/loopback-go/internal/config"
	"github.com/Resonate-Protocol/loopback-go/internal/events"
	"github.com/Resonate-Protocol/loopback-go/internal/hal"
	"github.com/Resonate-Protocol/loopback-go/internal/logging"
	"github.com/Resonate-Protocol/loopback-go/internal/server"
	"github.com/Resonate-Protocol/loopback-go/internal/store"
	"github.com/Resonate-Protocol/loopback-go/internal/version"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:          "loopbackd",
		Short:        "Run the loopback audio device",
		Long:         "Runs a virtual loopback audio device and serves it to producers, consumers and controllers over websockets.",
		Version:      version.String(),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(viper.GetViper(), cmd); err != nil {
				return err
			}
			return config.Load(viper.GetViper(), configFile)
		},
		RunE: run,
	}
)

func init() {
	config.SetDefaults(viper.GetViper())

	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default loopback.yaml in the user config dir)")
	f.Int("port", 8928, "WebSocket server port")
	f.String("name", server.DefaultName, "Server friendly name")
	f.Int("sample-rate", loopback.DefaultSampleRate, "Nominal sample rate")
	f.Int("channels", loopback.DefaultChannels, "Channels per frame")
	f.Int("ring-frames", loopback.DefaultRingFrames, "Ring buffer capacity in frames")
	f.Int("buffer-frames", hal.DefaultBufferFrames, "Frames moved per I/O cycle")
	f.Int("latency-frames", 0, "Extra latency frames added to the ring")
	f.String("device-name", loopback.DefaultDeviceName, "Device name prefix")
	f.Bool("show-mirror", false, "Publish the mirror device")
	f.Bool("events", true, "Broadcast device start/stop events on a local TCP socket")
	f.String("events-addr", events.DefaultAddr, "Address for device events")
	f.Bool("no-events", false, "Shorthand for --events=false")
	f.Bool("mdns", true, "Advertise the server over mDNS")
	f.Bool("no-mdns", false, "Shorthand for --mdns=false")
	f.Bool("tui", false, "Show the status TUI")
	f.String("data-dir", "", "Directory for persisted device values (default user data dir)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-file", "", "Also log to this file (default user log dir when the TUI is on)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	v := viper.GetViper()
	cfg := config.DaemonFrom(v)
	if v.GetBool("no_events") {
		cfg.Events = false
	}
	if v.GetBool("no_mdns") {
		cfg.MDNS = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// The status TUI needs a terminal; fall back to plain logging under a service manager
	tuiFallback := cfg.TUI && !term.IsTerminal(int(os.Stdout.Fd()))
	if tuiFallback {
		cfg.TUI = false
	}

	debug, err := config.ParseDebug()
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if logFile == "" && cfg.TUI {
		if logFile, err = config.DefaultLogFile(); err != nil {
			return err
		}
	}
	logger, closeLog, err := logging.New(logging.Config{
		Level: cfg.LogLevel,
		File:  logFile,
		Quiet: cfg.TUI,
		Trace: debug.Trace,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	if tuiFallback {
		logger.Warn("stdout is not a terminal, status TUI disabled")
	}

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using configuration file", "path", used)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		if dataDir, err = config.DefaultDataDir(); err != nil {
			return err
		}
	}
	st, err := store.Open(store.Config{Dir: filepath.Join(dataDir, "store"), Logger: logger})
	if err != nil {
		return err
	}
	defer st.Close()

	var broadcaster *events.Broadcaster
	if cfg.Events {
		broadcaster = events.New(events.Config{Addr: cfg.EventsAddr, Logger: logger})
		if err := broadcaster.Start(); err != nil {
			return fmt.Errorf("failed to start device events: %w", err)
		}
		defer broadcaster.Stop()
	}

	// Set before any client can attach
	var srv *server.Server

	host, err := hal.New(cfg.EngineConfig(logger), hal.Config{
		BufferFrames: cfg.BufferFrames,
		Storage:      st,
		Logger:       logger,
		OnRunning: func(endpoint loopback.Endpoint, running bool) {
			event := events.EventStopped
			if running {
				event = events.EventStarted
			}
			if broadcaster != nil {
				broadcaster.Publish(endpoint.DeviceID(), event)
			}
			if srv != nil {
				srv.DeviceEvent(endpoint, running)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	defer host.Close()

	srv = server.New(server.Config{
		Port:       cfg.Port,
		Name:       cfg.Name,
		EnableMDNS: cfg.MDNS,
		UseTUI:     cfg.TUI,
		Logger:     logger,
	}, host)

	if v.ConfigFileUsed() != "" {
		config.Watch(v, logger, func(prev, next config.Daemon) {
			config.ApplyControls(host.Engine(), prev, next, logger)
		})
	}

	host.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig)
		srv.Stop()
	}()

	logger.Info("loopback device running",
		"name", cfg.Name,
		"port", cfg.Port,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"events", cfg.Events)

	if err := srv.Start(); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}
