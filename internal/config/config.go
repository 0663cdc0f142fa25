// ABOUTME: Daemon configuration from flags, environment and the loopback.yaml file
// ABOUTME: Viper keys, defaults, app directories and live reload of device controls
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/loopback-go/internal/events"
	"github.com/Resonate-Protocol/loopback-go/internal/hal"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

// AppName names the config file, env prefix and app directories
const AppName = "loopback"

// Viper keys
const (
	KeyPort                = "port"
	KeyName                = "name"
	KeySampleRate          = "sample_rate"
	KeyChannels            = "channels"
	KeyRingFrames          = "ring_frames"
	KeyBufferFrames        = "buffer_frames"
	KeyLatencyFrames       = "latency_frames"
	KeyZeroTimestampPeriod = "zero_timestamp_period"
	KeyDeviceName          = "device_name"
	KeyShowMirror          = "show_mirror"
	KeyVolume              = "volume"
	KeyMute                = "mute"
	KeyDrift               = "drift"
	KeyEvents              = "events"
	KeyEventsAddr          = "events_addr"
	KeyMDNS                = "mdns"
	KeyTUI                 = "tui"
	KeyDataDir             = "data_dir"
	KeyLogLevel            = "log_level"
	KeyLogFile             = "log_file"
)

// Daemon holds loopbackd settings
type Daemon struct {
	Port                int
	Name                string
	SampleRate          int
	Channels            int
	RingFrames          int
	BufferFrames        int
	LatencyFrames       int
	ZeroTimestampPeriod int
	DeviceName          string
	ShowMirror          bool
	Volume              float64
	Mute                bool
	Drift               float64
	Events              bool
	EventsAddr          string
	MDNS                bool
	TUI                 bool
	DataDir             string
	LogLevel            string
	LogFile             string
}

// Debug holds environment-only switches
type Debug struct {
	Trace      bool `env:"LOOPBACK_TRACE"`
	FakeOutput bool `env:"LOOPBACK_FAKE_OUTPUT"`
}

// ParseDebug reads the debug switches from the environment
func ParseDebug() (Debug, error) {
	d, err := env.ParseAs[Debug]()
	if err != nil {
		return d, fmt.Errorf("error parsing environment: %w", err)
	}
	return d, nil
}

// SetDefaults registers the default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 8928)
	v.SetDefault(KeyName, "Loopback")
	v.SetDefault(KeySampleRate, loopback.DefaultSampleRate)
	v.SetDefault(KeyChannels, loopback.DefaultChannels)
	v.SetDefault(KeyRingFrames, loopback.DefaultRingFrames)
	v.SetDefault(KeyBufferFrames, hal.DefaultBufferFrames)
	v.SetDefault(KeyLatencyFrames, 0)
	v.SetDefault(KeyZeroTimestampPeriod, loopback.DefaultZeroTimestampPeriod)
	v.SetDefault(KeyDeviceName, loopback.DefaultDeviceName)
	v.SetDefault(KeyShowMirror, false)
	v.SetDefault(KeyVolume, 1.0)
	v.SetDefault(KeyMute, false)
	v.SetDefault(KeyDrift, loopback.DefaultDrift)
	v.SetDefault(KeyEvents, true)
	v.SetDefault(KeyEventsAddr, events.DefaultAddr)
	v.SetDefault(KeyMDNS, true)
	v.SetDefault(KeyTUI, false)
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
}

// BindFlags binds the command's flags to their keys. Flags use dashes, keys use underscores.
func BindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		errs = append(errs, v.BindPFlag(key, f))
	})
	return errors.Join(errs...)
}

// Load reads loopback.yaml from configFile or the app config dirs and
// enables LOOPBACK_* environment overrides. A missing file is not an error.
func Load(v *viper.Viper, configFile string) error {
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		dirs, err := ConfigDirs()
		if err != nil {
			return err
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile == "" && errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// ConfigDirs returns where loopback.yaml is looked up, LOOPBACK_CONFIG_HOME first
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("LOOPBACK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DefaultDataDir returns the per-user data directory for persisted device values
func DefaultDataDir() (string, error) {
	p, err := gap.NewScope(gap.User, AppName).DataPath("")
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return p, nil
}

// DefaultLogFile returns the per-user log file path
func DefaultLogFile() (string, error) {
	p, err := gap.NewScope(gap.User, AppName).LogPath("loopbackd.log")
	if err != nil {
		return "", fmt.Errorf("could not find log directory: %w", err)
	}
	return p, nil
}

// DaemonFrom reads the daemon settings from v
func DaemonFrom(v *viper.Viper) Daemon {
	return Daemon{
		Port:                v.GetInt(KeyPort),
		Name:                v.GetString(KeyName),
		SampleRate:          v.GetInt(KeySampleRate),
		Channels:            v.GetInt(KeyChannels),
		RingFrames:          v.GetInt(KeyRingFrames),
		BufferFrames:        v.GetInt(KeyBufferFrames),
		LatencyFrames:       v.GetInt(KeyLatencyFrames),
		ZeroTimestampPeriod: v.GetInt(KeyZeroTimestampPeriod),
		DeviceName:          v.GetString(KeyDeviceName),
		ShowMirror:          v.GetBool(KeyShowMirror),
		Volume:              v.GetFloat64(KeyVolume),
		Mute:                v.GetBool(KeyMute),
		Drift:               v.GetFloat64(KeyDrift),
		Events:              v.GetBool(KeyEvents),
		EventsAddr:          v.GetString(KeyEventsAddr),
		MDNS:                v.GetBool(KeyMDNS),
		TUI:                 v.GetBool(KeyTUI),
		DataDir:             v.GetString(KeyDataDir),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFile:             v.GetString(KeyLogFile),
	}
}

// Validate checks values the engine would reject later with a less useful error
func (d Daemon) Validate() error {
	if !loopback.IsSupportedSampleRate(d.SampleRate) {
		return fmt.Errorf("unsupported sample rate %d", d.SampleRate)
	}
	if d.Channels < 1 {
		return fmt.Errorf("channels must be positive, got %d", d.Channels)
	}
	if d.BufferFrames < 1 || d.BufferFrames > d.RingFrames {
		return fmt.Errorf("buffer frames %d must be between 1 and ring frames %d", d.BufferFrames, d.RingFrames)
	}
	if !(d.Volume >= 0 && d.Volume <= 1) {
		return fmt.Errorf("volume must be between 0 and 1, got %v", d.Volume)
	}
	if !(d.Drift >= 0 && d.Drift <= 1) {
		return fmt.Errorf("drift must be between 0 and 1, got %v", d.Drift)
	}
	return nil
}

// EngineConfig builds the engine configuration
func (d Daemon) EngineConfig(logger *log.Logger) loopback.Config {
	return loopback.Config{
		SampleRate:          d.SampleRate,
		Channels:            d.Channels,
		RingFrames:          d.RingFrames,
		LatencyFrames:       d.LatencyFrames,
		ZeroTimestampPeriod: d.ZeroTimestampPeriod,
		Volume:              loopback.Float(d.Volume),
		Mute:                d.Mute,
		Drift:               loopback.Float(d.Drift),
		DeviceName:          d.DeviceName,
		ShowMirror:          d.ShowMirror,
		Logger:              logger,
	}
}

// ApplyControls pushes the live-reloadable controls that differ between
// prev and next onto the engine
func ApplyControls(e *loopback.Engine, prev, next Daemon, logger *log.Logger) {
	if next.Volume != prev.Volume {
		if err := e.SetVolume(next.Volume); err != nil {
			logger.Warn("volume not reloaded", "error", err)
		} else {
			logger.Info("volume reloaded", "volume", next.Volume)
		}
	}
	if next.Mute != prev.Mute {
		e.SetMute(next.Mute)
		logger.Info("mute reloaded", "mute", next.Mute)
	}
	if next.Drift != prev.Drift {
		if err := e.SetDrift(next.Drift); err != nil {
			logger.Warn("drift not reloaded", "error", err)
		} else {
			logger.Info("drift reloaded", "drift", next.Drift)
		}
	}
}

// Watch calls fn with the previous and new settings whenever the config file changes
func Watch(v *viper.Viper, logger *log.Logger, fn func(prev, next Daemon)) {
	current := DaemonFrom(v)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := DaemonFrom(v)
		if err := next.Validate(); err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		logger.Debug("config file changed", "file", e.Name)
		fn(current, next)
		current = next
	})
	v.WatchConfig()
}
