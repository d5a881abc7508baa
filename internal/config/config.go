package config

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/docqa-cli/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Session persistence backends.
const (
	SessionBackendFile   = "file"
	SessionBackendBadger = "badger"
)

// Global configuration structure.
type Global struct {
	APIBaseURL     string `mapstructure:"api_base_url" yaml:"api_base_url"`
	HTTPTimeoutSec int    `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Session persistence
	SessionBackend string `mapstructure:"session_backend" yaml:"session_backend"`
	SessionPath    string `mapstructure:"session_path" yaml:"session_path"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.docqa/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := utils.AppDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCQA")
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "http://localhost:5000/api")
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("session_backend", SessionBackendFile)
	v.SetDefault("session_path", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := utils.AppDir()
		if err != nil {
			return nil, err
		}
		_ = utils.EnsureDir(dir)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolve validates enum-like keys and fills the session path default,
// which depends on the chosen backend.
func (c *Global) resolve() error {
	switch c.SessionBackend {
	case "", SessionBackendFile:
		c.SessionBackend = SessionBackendFile
	case SessionBackendBadger:
	default:
		return fmt.Errorf("invalid session_backend: %s (use file or badger)", c.SessionBackend)
	}
	if c.SessionPath == "" {
		dir, err := utils.AppDir()
		if err != nil {
			return err
		}
		if c.SessionBackend == SessionBackendBadger {
			c.SessionPath = filepath.Join(dir, "session.db")
		} else {
			c.SessionPath = filepath.Join(dir, "session.json")
		}
		return nil
	}
	p, err := utils.ExpandHome(c.SessionPath)
	if err != nil {
		return err
	}
	c.SessionPath = p
	return nil
}
