// Package config resolves connection settings for the jsonstore tools.
//
// Sources are merged with increasing priority:
//
//  1. built-in defaults
//  2. the jsondb env file (.env.<environment>)
//  3. an optional YAML file
//  4. JSONSTORE_* environment variables
//
// Every call to Load builds a fresh Config; nothing is cached.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/loganszeto/jsonstore-go/client"
)

const (
	DefaultEnvPrefix   = "JSONSTORE_"
	DefaultEnvironment = "development"
	DefaultLogLevel    = "info"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Host        string
	Port        int
	Password    string
	Timeout     time.Duration
	Environment string
	LogLevel    string

	// EnvFile is the env file that was read, empty if none was found.
	EnvFile string
}

// envFileKeys maps jsondb env file keys to config keys.
var envFileKeys = map[string]string{
	"HOST":            "host",
	"PORT":            "port",
	"SERVER_PASSWORD": "password",
	"TIMEOUT":         "timeout",
	"LOG_LEVEL":       "log_level",
}

type loader struct {
	envPrefix   string
	envFile     string
	configFile  string
	environment string
	workDir     string
}

type Option func(*loader)

func WithEnvPrefix(prefix string) Option {
	return func(l *loader) { l.envPrefix = prefix }
}

// WithEnvFile reads path instead of searching for .env.<environment>.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

func WithEnvironment(name string) Option {
	return func(l *loader) { l.environment = name }
}

// WithWorkDir sets where the env file search starts.
func WithWorkDir(dir string) Option {
	return func(l *loader) { l.workDir = dir }
}

func Load(opts ...Option) (*Config, error) {
	l := &loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	if l.environment == "" {
		l.environment = os.Getenv(l.envPrefix + "ENVIRONMENT")
	}
	if l.environment == "" {
		l.environment = DefaultEnvironment
	}

	k := koanf.New(".")
	defaults := map[string]any{
		"host":      client.DefaultHost,
		"port":      client.DefaultPort,
		"timeout":   client.DefaultTimeout.String(),
		"log_level": DefaultLogLevel,
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	envFile, err := l.loadEnvFile(k)
	if err != nil {
		return nil, err
	}

	if l.configFile != "" {
		if err := k.Load(file.Provider(l.configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configFile, err)
		}
	}

	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		Host:        k.String("host"),
		Password:    k.String("password"),
		Environment: l.environment,
		LogLevel:    strings.ToLower(k.String("log_level")),
		EnvFile:     envFile,
	}
	if cfg.Port, err = strconv.Atoi(strings.TrimSpace(k.String("port"))); err != nil {
		return nil, fmt.Errorf("%w: port %q", ErrInvalid, k.String("port"))
	}
	if cfg.Timeout, err = ParseDuration(k.String("timeout")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *loader) loadEnvFile(k *koanf.Koanf) (string, error) {
	path := l.envFile
	if path == "" {
		dir := l.workDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("working directory: %w", err)
			}
			dir = wd
		}
		path = FindEnvFile(dir, l.environment)
		if path == "" {
			return "", nil
		}
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if l.envFile == "" && errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read env file %s: %w", path, err)
	}
	for name, key := range envFileKeys {
		val, ok := values[name]
		if !ok {
			continue
		}
		if key == "password" {
			val = strings.Trim(val, `"'`)
		}
		if err := k.Set(key, val); err != nil {
			return "", fmt.Errorf("set %s: %w", key, err)
		}
	}
	return path, nil
}

// FindEnvFile walks up from dir looking for jsondb/.env.<environment>, then
// .env.<environment>, in each directory. It returns "" if none exists.
func FindEnvFile(dir, environment string) string {
	name := ".env." + environment
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		for _, candidate := range []string{
			filepath.Join(dir, "jsondb", name),
			filepath.Join(dir, name),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ParseDuration accepts a Go duration ("750ms") or whole seconds ("5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: timeout %q", ErrInvalid, s)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalid)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Logger builds the root logger for a binary at the configured level.
func (c *Config) Logger(name string) hclog.Logger {
	level := hclog.LevelFromString(c.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: os.Stderr,
	})
}

func (c *Config) ClientOptions(logger hclog.Logger) client.Options {
	return client.Options{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		Timeout:  c.Timeout,
		Logger:   logger,
	}
}
