package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

// EnvPrefix namespaces environment overrides, e.g. HOSTPROBE_ADDR.
const EnvPrefix = "HOSTPROBE"

type Config struct {
	Addr       string `mapstructure:"addr"`        // HTTP bind address, the bundled UI expects localhost:2048
	LogDir     string `mapstructure:"log_dir"`     // logs directory
	LogLevel   string `mapstructure:"log_level"`   // debug, info, warn, error
	LogConsole bool   `mapstructure:"log_console"` // also log to stderr

	TickInterval time.Duration `mapstructure:"tick_interval"` // 0 disables the scheduler
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"` // bound on a single probe, local or remote
	Shell        string        `mapstructure:"shell"`         // runs local probe commands with "-c"

	RegistryFile   string `mapstructure:"registry_file"` // empty: built-in probes
	BootstrapProbe string `mapstructure:"bootstrap_probe"`
	DiscoveryProbe string `mapstructure:"discovery_probe"`

	Instance          string        `mapstructure:"instance"`        // identifies this run in socket paths; generated when empty
	InstanceGenerated bool          `mapstructure:"-"`               // Instance was not configured
	SocketTemplate    string        `mapstructure:"socket_template"` // {instance} and {host} are substituted
	MaxMessage        int           `mapstructure:"max_message"`     // bytes per framed request or reply
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`

	HostFile string `mapstructure:"host_file"` // watched for the terminal title; empty disables

	StaticDir     string   `mapstructure:"static_dir"`     // served at / when set
	ControlTokens []string `mapstructure:"control_tokens"` // required by PUT /api/host when non-empty
	RateRPM       int      `mapstructure:"rate_rpm"`       // per-client requests per minute, 0 disables
	RateBurst     int      `mapstructure:"rate_burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:2048")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)

	v.SetDefault("tick_interval", "2s")
	v.SetDefault("probe_timeout", "30s")
	v.SetDefault("shell", "/bin/sh")

	v.SetDefault("registry_file", "")
	v.SetDefault("bootstrap_probe", "load")
	v.SetDefault("discovery_probe", "netstat")

	v.SetDefault("instance", "")
	v.SetDefault("socket_template", "~/.hostprobe/hosts/{instance}-{host}.sock")
	v.SetDefault("max_message", 20480)
	v.SetDefault("reconnect_interval", "2s")

	v.SetDefault("host_file", "")

	v.SetDefault("static_dir", "")
	v.SetDefault("control_tokens", []string{})
	v.SetDefault("rate_rpm", 600)
	v.SetDefault("rate_burst", 60)
}

// Load merges, lowest precedence first: defaults, the YAML file at path (if
// any), HOSTPROBE_* environment variables, then flags that were set
// explicitly. Flag names use dashes for the underscores of the keys.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			bindErr = multierr.Append(bindErr, v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f))
		})
		if bindErr != nil {
			return Config{}, hperrors.WrapWithCode(bindErr, hperrors.ErrConfig, "Failed to bind flags", "")
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, hperrors.WrapWithCode(err, hperrors.ErrConfig,
				"Failed to read config file "+path,
				"Check the file exists and is valid YAML")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, hperrors.WrapWithCode(err, hperrors.ErrConfig,
			"Invalid configuration",
			"Durations look like 2s or 500ms, sizes are plain byte counts")
	}
	cfg.ControlTokens = splitTokens(cfg.ControlTokens)

	if cfg.Instance == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			return Config{}, hperrors.WrapWithCode(err, hperrors.ErrConfig, "Couldn't generate an instance id", "Set instance explicitly")
		}
		cfg.Instance = id.String()
		cfg.InstanceGenerated = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if c.Addr == "" {
		errs = multierr.Append(errs, fmt.Errorf("addr must not be empty"))
	}
	if c.TickInterval < 0 {
		errs = multierr.Append(errs, fmt.Errorf("tick_interval must not be negative, got %s", c.TickInterval))
	}
	if c.ProbeTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout))
	}
	if c.ReconnectInterval < 0 {
		errs = multierr.Append(errs, fmt.Errorf("reconnect_interval must not be negative, got %s", c.ReconnectInterval))
	}
	if c.MaxMessage < 64 {
		errs = multierr.Append(errs, fmt.Errorf("max_message must be at least 64 bytes, got %d", c.MaxMessage))
	}
	if c.Shell == "" {
		errs = multierr.Append(errs, fmt.Errorf("shell must not be empty"))
	}
	if !strings.Contains(c.SocketTemplate, "{host}") {
		errs = multierr.Append(errs, fmt.Errorf("socket_template must contain {host}, got %q", c.SocketTemplate))
	}
	if c.RateRPM < 0 || c.RateBurst < 0 {
		errs = multierr.Append(errs, fmt.Errorf("rate_rpm and rate_burst must not be negative"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if errs != nil {
		return hperrors.WrapWithCode(errs, hperrors.ErrConfig, "Invalid configuration", "")
	}
	return nil
}

// splitTokens accepts both list values and a single comma-separated string.
func splitTokens(in []string) []string {
	var out []string
	for _, s := range in {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
