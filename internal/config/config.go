package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/hcdesk/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. HCDESK_SERVER_LISTEN.
const EnvPrefix = "HCDESK"

// FileName is the config file looked up when no explicit path is given.
const FileName = "hcdesk.toml"

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Sidecar   SidecarConfig   `toml:"sidecar" mapstructure:"sidecar"`
	Handshake HandshakeConfig `toml:"handshake" mapstructure:"handshake"`
	Log       logger.Config   `toml:"log" mapstructure:"log"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Window    WindowConfig    `toml:"window" mapstructure:"window"`
}

type SidecarConfig struct {
	Name           string              `toml:"name" mapstructure:"name"`
	ResourceDir    string              `toml:"resource_dir" mapstructure:"resource_dir"`
	Args           []string            `toml:"args" mapstructure:"args"`
	DevPort        int                 `toml:"dev_port" mapstructure:"dev_port"`
	AutostartDelay time.Duration       `toml:"autostart_delay" mapstructure:"autostart_delay"`
	StopWait       time.Duration       `toml:"stop_wait" mapstructure:"stop_wait"`
	Env            []string            `toml:"env" mapstructure:"env"`
	EnvFiles       []string            `toml:"env_files" mapstructure:"env_files"`
	Output         logger.OutputConfig `toml:"output" mapstructure:"output"`
}

type HandshakeConfig struct {
	MaxLines int           `toml:"max_lines" mapstructure:"max_lines"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type WindowConfig struct {
	Title  string `toml:"title" mapstructure:"title"`
	Width  int    `toml:"width" mapstructure:"width"`
	Height int    `toml:"height" mapstructure:"height"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sidecar.name", "cribl-hc-backend")
	v.SetDefault("sidecar.resource_dir", "")
	v.SetDefault("sidecar.args", []string{"--port", "0"})
	v.SetDefault("sidecar.dev_port", 8080)
	v.SetDefault("sidecar.autostart_delay", "500ms")
	v.SetDefault("sidecar.stop_wait", "5s")
	v.SetDefault("sidecar.env", []string{})
	v.SetDefault("sidecar.env_files", []string{})
	v.SetDefault("sidecar.output.dir", "")
	v.SetDefault("handshake.max_lines", 10)
	v.SetDefault("handshake.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9765")
	v.SetDefault("history.dsn", "")
	v.SetDefault("window.title", "Cribl Health Check")
	v.SetDefault("window.width", 1280)
	v.SetDefault("window.height", 800)
}

// Default returns the configuration used when no file or overrides exist.
func Default() *FileConfig {
	v := viper.New()
	setDefaults(v)
	fc, err := decode(v)
	if err != nil {
		// defaults are static and always decode
		panic(err)
	}
	return fc
}

// Load reads path (TOML), or hcdesk.toml from the working directory and the
// executable's directory when path is empty. A missing implicit file is not an
// error. HCDESK_* environment variables override file values.
func Load(path string) (*FileConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir := exeDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	fc, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*FileConfig, error) {
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &fc, nil
}

// Validate checks value ranges.
func (fc *FileConfig) Validate() error {
	if strings.TrimSpace(fc.Sidecar.Name) == "" {
		return errors.New("sidecar.name must not be empty")
	}
	if fc.Sidecar.DevPort < 1 || fc.Sidecar.DevPort > 65535 {
		return fmt.Errorf("sidecar.dev_port %d out of range", fc.Sidecar.DevPort)
	}
	if fc.Sidecar.AutostartDelay < 0 {
		return errors.New("sidecar.autostart_delay must not be negative")
	}
	if fc.Handshake.MaxLines < 1 {
		return fmt.Errorf("handshake.max_lines must be positive, got %d", fc.Handshake.MaxLines)
	}
	if fc.Handshake.Timeout < 0 {
		return errors.New("handshake.timeout must not be negative")
	}
	if _, err := logger.ParseLevel(fc.Log.Level); err != nil {
		return err
	}
	return nil
}

// SidecarEnv merges env_files (in order) and then the env list into
// KEY=VALUE pairs for the child. Later entries win. The result is sorted.
func (fc *FileConfig) SidecarEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range fc.Sidecar.EnvFiles {
		pairs, err := godotenv.Read(filepath.Clean(p))
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", p, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Sidecar.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// LoadDotEnv loads .env from the working directory and from next to the
// executable into the process environment. Existing variables win.
// It returns the files that were applied.
func LoadDotEnv() []string {
	var candidates []string
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	if dir := exeDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	return loadDotEnvFiles(candidates...)
}

func loadDotEnvFiles(paths ...string) []string {
	var loaded []string
	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
