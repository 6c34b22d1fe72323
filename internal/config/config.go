// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PLAYWRIGHTIUM_BROWSER_HEADLESS.
const EnvPrefix = "PLAYWRIGHTIUM"

// FileName is the config file looked up in the working directory and $HOME.
const FileName = "playwrightium"

// Transports a session can run on.
const (
	TransportCDP     = "cdp"
	TransportHTMLDoc = "htmldoc"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Scenario ScenarioConfig `mapstructure:"scenario" yaml:"scenario"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color of each level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and configures the transport sessions run on.
type BrowserConfig struct {
	Transport       string   `mapstructure:"transport" yaml:"transport"`
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string `mapstructure:"args" yaml:"args"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	// MaxFrameDepth bounds frame nesting in the htmldoc transport.
	MaxFrameDepth int `mapstructure:"max_frame_depth" yaml:"max_frame_depth"`
}

// TimeoutsConfig bounds the blocking parts of a session.
type TimeoutsConfig struct {
	Navigation   time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Script       time.Duration `mapstructure:"script" yaml:"script"`
	Alert        time.Duration `mapstructure:"alert" yaml:"alert"`
	Settle       time.Duration `mapstructure:"settle" yaml:"settle"`
	Quit         time.Duration `mapstructure:"quit" yaml:"quit"`
	Wait         time.Duration `mapstructure:"wait" yaml:"wait"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// ScenarioConfig controls how the run command executes flow files.
type ScenarioConfig struct {
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	FailFast    bool `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "playwrightium")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.transport", TransportCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.max_frame_depth", 8)

	// -- Timeouts --
	v.SetDefault("timeouts.navigation", "60s")
	v.SetDefault("timeouts.script", "30s")
	v.SetDefault("timeouts.alert", "5s")
	v.SetDefault("timeouts.settle", "5s")
	v.SetDefault("timeouts.quit", "10s")
	v.SetDefault("timeouts.wait", "10s")
	v.SetDefault("timeouts.poll_interval", "500ms")

	// -- Scenario --
	v.SetDefault("scenario.concurrency", 2)
	v.SetDefault("scenario.fail_fast", false)
}

// Load wires viper to the config file and the environment. An explicit
// path wins; otherwise playwrightium.yaml is searched for in the working
// directory and then in the home directory. A missing file is not an error.
func Load(v *viper.Viper, path string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("failed to expand config path %q: %w", path, err)
		}
		v.SetConfigFile(filepath.Clean(expanded))
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	if c.Scenario.Concurrency <= 0 {
		return fmt.Errorf("scenario.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the browser section.
func (b *BrowserConfig) Validate() error {
	switch b.Transport {
	case TransportCDP, TransportHTMLDoc:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportCDP, TransportHTMLDoc, b.Transport)
	}
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive")
	}
	if b.MaxFrameDepth <= 0 {
		return fmt.Errorf("max_frame_depth must be a positive integer")
	}
	return nil
}

// Validate rejects non-positive durations; every timeout bounds a wait.
func (t *TimeoutsConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"navigation":    t.Navigation,
		"script":        t.Script,
		"alert":         t.Alert,
		"settle":        t.Settle,
		"quit":          t.Quit,
		"wait":          t.Wait,
		"poll_interval": t.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	return nil
}
