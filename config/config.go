package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. INSTALLD_APP_DIR.
const EnvPrefix = "INSTALLD"

// ConfigFlag names the flag pointing at the YAML file.
const ConfigFlag = "config"

type Config struct {
	DaemonSocket  string        `yaml:"daemon_socket" envconfig:"DAEMON_SOCKET"`
	DaemonTimeout time.Duration `yaml:"daemon_timeout" envconfig:"DAEMON_TIMEOUT"`
	HelperAddr    string        `yaml:"helper_addr" envconfig:"HELPER_ADDR"`
	HelperListen  string        `yaml:"helper_listen" envconfig:"HELPER_LISTEN"`

	AppDir        string `yaml:"app_dir" envconfig:"APP_DIR"`
	PrivateAppDir string `yaml:"private_app_dir" envconfig:"PRIVATE_APP_DIR"`
	LibDir        string `yaml:"lib_dir" envconfig:"LIB_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR"`
	DexDir        string `yaml:"dex_dir" envconfig:"DEX_DIR"`
	ContainerDir  string `yaml:"container_dir" envconfig:"CONTAINER_DIR"`
	ContainerKey  string `yaml:"container_key" envconfig:"CONTAINER_KEY"`
	JournalDir    string `yaml:"journal_dir" envconfig:"JOURNAL_DIR"`
	RegistryPath  string `yaml:"registry_path" envconfig:"REGISTRY_PATH"`

	VerificationEnabled bool          `yaml:"verification_enabled" envconfig:"VERIFICATION_ENABLED"`
	VerificationTimeout time.Duration `yaml:"verification_timeout" envconfig:"VERIFICATION_TIMEOUT"`
	VerificationAddr    string        `yaml:"verification_addr" envconfig:"VERIFICATION_ADDR"`
	Verifiers           []Verifier    `yaml:"verifiers" ignored:"true"`
	LowStorageThreshold int64         `yaml:"low_storage_threshold" envconfig:"LOW_STORAGE_THRESHOLD"`
	BindRetryDelay      time.Duration `yaml:"bind_retry_delay" envconfig:"BIND_RETRY_DELAY"`

	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Verifier is a verification agent the engine sends requests to. Agents
// answer by posting votes to VerificationAddr.
type Verifier struct {
	Package    string `yaml:"package"`
	UID        int    `yaml:"uid"`
	CertDigest string `yaml:"cert_digest"`
	Required   bool   `yaml:"required"`
	Endpoint   string `yaml:"endpoint"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DaemonSocket:        "/run/installd/daemon.sock",
		DaemonTimeout:       100 * time.Second,
		HelperAddr:          "127.0.0.1:7401",
		HelperListen:        "127.0.0.1:7401",
		AppDir:              "/var/lib/installd/app",
		PrivateAppDir:       "/var/lib/installd/app-private",
		LibDir:              "/var/lib/installd/app-lib",
		DataDir:             "/var/lib/installd/data",
		DexDir:              "/var/lib/installd/dex",
		ContainerDir:        "/var/lib/installd/containers",
		JournalDir:          "/var/lib/installd/journal",
		RegistryPath:        "/var/lib/installd/registry",
		VerificationTimeout: 60 * time.Second,
		LowStorageThreshold: 10 << 20,
		BindRetryDelay:      10 * time.Second,
		LogLevel:            "info",
	}
}

func (c *Config) stringKeys() map[string]*string {
	return map[string]*string{
		"daemon_socket":     &c.DaemonSocket,
		"helper_addr":       &c.HelperAddr,
		"helper_listen":     &c.HelperListen,
		"app_dir":           &c.AppDir,
		"private_app_dir":   &c.PrivateAppDir,
		"lib_dir":           &c.LibDir,
		"data_dir":          &c.DataDir,
		"dex_dir":           &c.DexDir,
		"container_dir":     &c.ContainerDir,
		"container_key":     &c.ContainerKey,
		"journal_dir":       &c.JournalDir,
		"registry_path":     &c.RegistryPath,
		"metrics_addr":      &c.MetricsAddr,
		"verification_addr": &c.VerificationAddr,
		"log_level":         &c.LogLevel,
	}
}

func (c *Config) durationKeys() map[string]*time.Duration {
	return map[string]*time.Duration{
		"daemon_timeout":       &c.DaemonTimeout,
		"verification_timeout": &c.VerificationTimeout,
		"bind_retry_delay":     &c.BindRetryDelay,
	}
}

var usage = map[string]string{
	"daemon_socket":         "unix socket of the storage daemon",
	"daemon_timeout":        "deadline of a single storage daemon command",
	"helper_addr":           "storage helper address the engine dials",
	"helper_listen":         "address the storage helper listens on",
	"app_dir":               "directory for installed package archives",
	"private_app_dir":       "directory for forward-locked package archives",
	"lib_dir":               "directory for extracted native libraries",
	"data_dir":              "per-package data directories (daemon)",
	"dex_dir":               "optimized code directory (daemon)",
	"container_dir":         "container volume root",
	"container_key":         "key container volumes are sealed with",
	"journal_dir":           "install journal directory",
	"registry_path":         "package registry database path",
	"metrics_addr":          "serve prometheus metrics on this address, empty disables",
	"log_level":             "log level (debug, info, warn, error)",
	"verification_enabled":  "ask verification agents before installing",
	"verification_timeout":  "how long the required verifier may take",
	"verification_addr":     "address verification agents post votes to, empty disables",
	"low_storage_threshold": "bytes of internal storage kept free",
	"bind_retry_delay":      "delay between attempts to reach the storage helper",
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds a flag per key to cmd, defaulting to Default().
func RegisterFlags(cmd *cobra.Command) {
	d := Default()
	fs := cmd.PersistentFlags()
	fs.String(ConfigFlag, "", "YAML configuration file")
	for key, p := range d.stringKeys() {
		fs.String(flagName(key), *p, usage[key])
	}
	for key, p := range d.durationKeys() {
		fs.Duration(flagName(key), *p, usage[key])
	}
	fs.Bool(flagName("verification_enabled"), d.VerificationEnabled, usage["verification_enabled"])
	fs.Int64(flagName("low_storage_threshold"), d.LowStorageThreshold, usage["low_storage_threshold"])
}

// Load builds the configuration from defaults, the YAML file named by
// --config, INSTALLD_* environment variables and explicitly set flags, in
// increasing precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()

	fs := cmd.Flags()
	if path, _ := fs.GetString(ConfigFlag); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to load config from environment")
	}

	for key, p := range cfg.stringKeys() {
		if fs.Changed(flagName(key)) {
			*p, _ = fs.GetString(flagName(key))
		}
	}
	for key, p := range cfg.durationKeys() {
		if fs.Changed(flagName(key)) {
			*p, _ = fs.GetDuration(flagName(key))
		}
	}
	if name := flagName("verification_enabled"); fs.Changed(name) {
		cfg.VerificationEnabled, _ = fs.GetBool(name)
	}
	if name := flagName("low_storage_threshold"); fs.Changed(name) {
		cfg.LowStorageThreshold, _ = fs.GetInt64(name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

// Validate rejects unusable configurations.
func (c *Config) Validate() error {
	for key, p := range c.stringKeys() {
		switch key {
		case "metrics_addr", "container_key", "verification_addr":
			continue
		}
		if *p == "" {
			return errors.Errorf("%s must be set", key)
		}
	}
	for key, p := range c.durationKeys() {
		if *p <= 0 {
			return errors.Errorf("%s must be positive, got %s", key, *p)
		}
	}
	if c.LowStorageThreshold < 0 {
		return errors.Errorf("low_storage_threshold must not be negative, got %d", c.LowStorageThreshold)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return c.validateVerifiers()
}

func (c *Config) validateVerifiers() error {
	if len(c.Verifiers) > 0 && c.VerificationAddr == "" {
		return errors.New("verifiers need verification_addr to receive votes")
	}
	seen := make(map[string]bool, len(c.Verifiers))
	required := 0
	for i, v := range c.Verifiers {
		switch {
		case v.Package == "":
			return errors.Errorf("verifiers[%d]: package must be set", i)
		case seen[v.Package]:
			return errors.Errorf("verifiers[%d]: %s listed twice", i, v.Package)
		case v.UID <= 0:
			return errors.Errorf("verifiers[%d]: uid must be positive, got %d", i, v.UID)
		case v.Endpoint == "":
			return errors.Errorf("verifiers[%d]: endpoint must be set", i)
		}
		seen[v.Package] = true
		if v.Required {
			required++
		}
	}
	if required > 1 {
		return errors.Errorf("at most one required verifier, got %d", required)
	}
	return nil
}
