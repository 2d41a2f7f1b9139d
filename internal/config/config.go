// Package config loads vpnr settings from a TOML or YAML file with VPNR_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/vpnr/internal/logger"
	"github.com/loykin/vpnr/internal/process"
	"github.com/loykin/vpnr/internal/status"
)

// EnvPrefix prefixes environment overrides: engine.tmp_dir is VPNR_ENGINE_TMP_DIR.
const EnvPrefix = "VPNR"

// DefaultWaitTimeout bounds the drain wait when the file does not set one.
const DefaultWaitTimeout = 5 * time.Second

type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     logger.Config `mapstructure:"log"`
	Status  StatusConfig  `mapstructure:"status"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

type EngineConfig struct {
	Name         string            `mapstructure:"name"`
	Argv         []string          `mapstructure:"argv"`
	NativeLibDir string            `mapstructure:"native_lib_dir"`
	TmpDir       string            `mapstructure:"tmp_dir"`
	WorkDir      string            `mapstructure:"workdir"`
	Env          []string          `mapstructure:"env"`
	EnvFiles     []string          `mapstructure:"env_files"`
	WaitTimeout  time.Duration     `mapstructure:"wait_timeout"`
	StdinConfig  string            `mapstructure:"stdin_config"`
	OutputLog    logger.FileConfig `mapstructure:"output_log"`
}

// Exe returns the engine executable, or "" when argv is empty.
func (e EngineConfig) Exe() string {
	if len(e.Argv) == 0 {
		return ""
	}
	return e.Argv[0]
}

type StatusConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"` // standalone /metrics listener when the server is off
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type ServerConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Listen   string    `mapstructure:"listen"`
	BasePath string    `mapstructure:"base_path"`
	TLS      TLSConfig `mapstructure:"tls"`
}

// TLSConfig turns the status server into HTTPS. Explicit cert/key files win
// over Dir; with AutoGenerate a self-signed pair is written into Dir when
// missing.
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	MinVersion   string   `mapstructure:"min_version"` // "1.2" or "1.3"
	CommonName   string   `mapstructure:"common_name"`
	DNSNames     []string `mapstructure:"dns_names"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{WaitTimeout: DefaultWaitTimeout},
		Log:    logger.DefaultConfig(),
		Status: StatusConfig{BufferSize: status.DefaultCapacity},
		Metrics: MetricsConfig{
			Listen:         "127.0.0.1:9464",
			SampleInterval: 5 * time.Second,
		},
		Server: ServerConfig{Listen: "127.0.0.1:8080", BasePath: "/api"},
	}
}

// setDefaults registers every key so that environment overrides apply even
// when the file does not mention the key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine.name", d.Engine.Name)
	v.SetDefault("engine.argv", d.Engine.Argv)
	v.SetDefault("engine.native_lib_dir", "")
	v.SetDefault("engine.tmp_dir", "")
	v.SetDefault("engine.workdir", "")
	v.SetDefault("engine.env", []string{})
	v.SetDefault("engine.env_files", []string{})
	v.SetDefault("engine.wait_timeout", d.Engine.WaitTimeout)
	v.SetDefault("engine.stdin_config", "")
	v.SetDefault("engine.output_log.dir", "")
	v.SetDefault("engine.output_log.output_path", "")
	v.SetDefault("engine.output_log.max_size_mb", 0)
	v.SetDefault("engine.output_log.max_backups", 0)
	v.SetDefault("engine.output_log.max_age_days", 0)
	v.SetDefault("engine.output_log.compress", false)

	v.SetDefault("log.slog.level", string(d.Log.Slog.Level))
	v.SetDefault("log.slog.format", string(d.Log.Slog.Format))
	v.SetDefault("log.slog.color", d.Log.Slog.Color)
	v.SetDefault("log.slog.timestamps", d.Log.Slog.TimeStamps)
	v.SetDefault("log.slog.source", d.Log.Slog.Source)
	v.SetDefault("log.slog.path", "")
	v.SetDefault("log.file.max_size_mb", 0)
	v.SetDefault("log.file.max_backups", 0)
	v.SetDefault("log.file.max_age_days", 0)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("status.buffer_size", d.Status.BufferSize)

	v.SetDefault("history.dsns", []string{})

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("metrics.sample_interval", d.Metrics.SampleInterval)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("server.tls.common_name", "")
	v.SetDefault("server.tls.dns_names", []string{})
	v.SetDefault("server.tls.valid_days", 0)
}

// Load reads path (TOML unless the extension says YAML) and applies VPNR_*
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Engine.Argv) == 0 || strings.TrimSpace(c.Engine.Argv[0]) == "" {
		errs = append(errs, errors.New("engine.argv must name the engine executable"))
	}
	if c.Engine.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.wait_timeout %s must not be negative", c.Engine.WaitTimeout))
	}
	o := c.Engine.OutputLog
	if o.MaxSizeMB < 0 || o.MaxBackups < 0 || o.MaxAgeDays < 0 {
		errs = append(errs, errors.New("engine.output_log rotation values must not be negative"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Status.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("status.buffer_size %d must not be negative", c.Status.BufferSize))
	}
	if c.Metrics.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics.sample_interval %s must not be negative", c.Metrics.SampleInterval))
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required when the server is enabled"))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath))
	}
	if t := c.Server.TLS; t.Enabled {
		if (t.CertFile == "") != (t.KeyFile == "") {
			errs = append(errs, errors.New("server.tls.cert_file and key_file must be set together"))
		}
		if t.CertFile == "" && t.Dir == "" {
			errs = append(errs, errors.New("server.tls needs cert_file/key_file or dir"))
		}
		switch t.MinVersion {
		case "", "1.2", "1.3":
		default:
			errs = append(errs, fmt.Errorf("server.tls.min_version %q must be 1.2 or 1.3", t.MinVersion))
		}
		if t.ValidDays < 0 {
			errs = append(errs, errors.New("server.tls.valid_days must not be negative"))
		}
	}
	return errors.Join(errs...)
}

// LaunchSpec builds the engine launch description. env_files are read in
// order, then engine.env overrides them.
func (c *Config) LaunchSpec() (process.LaunchSpec, error) {
	extra, err := c.engineEnv()
	if err != nil {
		return process.LaunchSpec{}, err
	}
	return process.LaunchSpec{
		Name:         c.Engine.Name,
		Argv:         append([]string(nil), c.Engine.Argv...),
		NativeLibDir: c.Engine.NativeLibDir,
		TmpDir:       c.Engine.TmpDir,
		WorkDir:      c.Engine.WorkDir,
		Env:          extra,
		WaitTimeout:  c.Engine.WaitTimeout,
		StdinConfig:  c.Engine.StdinConfig,
		OutputLog:    c.Engine.OutputLog,
	}, nil
}

func (c *Config) engineEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.Engine.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Engine.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
