package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"etherpush/protocol"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "ETHERPUSH"
	configName  = "receiver"
	configType  = "toml"
	dotEnvFile  = ".env"
	defaultMode = "ask"
)

// Receive modes.
const (
	ModeAsk    = "ask"
	ModeAccept = "accept"
	ModeReject = "reject"
)

type ServerConfig struct {
	HostName string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
}

type ReceiveConfig struct {
	// Mode is ask (terminal prompt), accept (store everything in Dir) or
	// reject (refuse everything).
	Mode string `mapstructure:"mode"`
	Dir  string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives the log when set. In ask mode without a file only
	// warnings and errors reach stderr.
	File string `mapstructure:"file"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Receive ReceiveConfig `mapstructure:"receive"`
	Log     LogConfig     `mapstructure:"log"`

	v *viper.Viper
}

// flag name -> config key
var flagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"dir":        "receive.dir",
	"mode":       "receive.mode",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
}

// LoadConfig reads the receiver configuration. Values are taken, highest
// priority first, from changed flags, ETHERPUSH_* environment variables
// (a .env file next to the config file or in the working directory is
// loaded first), the TOML config file and the defaults. An empty configPath
// searches ~/.etherpush and the working directory for receiver.toml.
func LoadConfig(configPath string, flags *pflag.FlagSet) (Config, error) {
	var config Config

	if err := loadDotEnv(configPath); err != nil {
		return config, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v, err := initViper(configPath, filepath.Join(home, ".etherpush"))
	if err != nil {
		return config, err
	}

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", protocol.DefaultPort)
	v.SetDefault("receive.mode", defaultMode)
	v.SetDefault("receive.dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return config, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readInto(v, &config); err != nil {
		return config, err
	}
	config.v = v

	return config, nil
}

func initViper(configPath, defaultDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultDir)
		v.AddConfigPath(".")
		v.SetConfigName(configName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func loadDotEnv(configPath string) error {
	path := dotEnvFile
	if configPath != "" {
		path = filepath.Join(filepath.Dir(configPath), dotEnvFile)
	}

	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readInto(v *viper.Viper, config *Config) error {
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	config.Receive.Mode = strings.ToLower(strings.TrimSpace(config.Receive.Mode))
	config.Receive.Dir = expandPath(config.Receive.Dir)
	config.Log.File = expandPath(config.Log.File)

	return config.Validate()
}

// Validate checks values viper cannot check by type alone.
func (c Config) Validate() error {
	switch c.Receive.Mode {
	case ModeAsk, ModeAccept, ModeReject:
	default:
		return fmt.Errorf("invalid receive mode %q", c.Receive.Mode)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	return nil
}

// File returns the config file in use, empty when only defaults,
// environment and flags apply.
func (c Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch calls fn with the reloaded configuration whenever the config file
// changes. It reports false when no config file is in use. Reloads that do
// not validate are logged and skipped.
func (c Config) Watch(fn func(Config)) bool {
	if c.File() == "" {
		return false
	}

	v := c.v
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var next Config
		if err := readInto(v, &next); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Watch",
				"file":     e.Name,
				"error":    err.Error(),
			}).Warn("Ignoring invalid config change")
			return
		}
		next.v = v
		fn(next)
	})
	v.WatchConfig()

	return true
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
