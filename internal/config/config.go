package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type HistoryConfig struct {
	Enabled bool   `json:"enabled"` // record one-shot runs; watch and serve always record
	DBPath  string `json:"dbPath"`
	Keep    int    `json:"keep"` // rows kept after each insert; 0 keeps everything
}

type PollConfig struct {
	Interval int `json:"interval"` // seconds
}

type NotificationsConfig struct {
	Enabled   bool   `json:"enabled"`
	Threshold int    `json:"threshold"` // notify when remaining drops below this percentage
	Desktop   bool   `json:"desktop"`   // osascript on macOS, notify-send elsewhere
	Webhook   string `json:"webhook"`
	NtfyURL   string `json:"ntfy"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwtSecret"`
	TokenTTL  string `json:"tokenTTL"` // Go duration, e.g. "720h"
}

type TLSConfig struct {
	Mode     string `json:"mode"` // "self-signed", "manual", or "" for plain HTTP
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
	CacheDir string `json:"cacheDir"`
}

type WebserverConfig struct {
	Port int        `json:"port"`
	Host string     `json:"host"`
	Auth AuthConfig `json:"auth"`
	TLS  TLSConfig  `json:"tls"`
}

type Config struct {
	Command       string              `json:"command"`
	Timeout       int                 `json:"timeout"` // seconds
	Format        string              `json:"format"`
	LogDir        string              `json:"logDir"`
	LogLevel      string              `json:"logLevel"`
	History       HistoryConfig       `json:"history"`
	Poll          PollConfig          `json:"poll"`
	Notifications NotificationsConfig `json:"notifications"`
	Webserver     WebserverConfig     `json:"webserver"`
}

// Formats accepted by the format key and the --format flag.
var Formats = []string{"waybar", "json", "plain"}

func Defaults() Config {
	return Config{
		Command:  "claude",
		Timeout:  15,
		Format:   "waybar",
		LogDir:   filepath.Join(Dir(), "logs"),
		LogLevel: "info",
		History: HistoryConfig{
			DBPath: DBPath(),
			Keep:   10000,
		},
		Poll: PollConfig{Interval: 300},
		Notifications: NotificationsConfig{
			Threshold: 20,
			Desktop:   true,
		},
		Webserver: WebserverConfig{
			Port: 8787,
			Host: "127.0.0.1",
			Auth: AuthConfig{TokenTTL: "720h"},
			TLS:  TLSConfig{CacheDir: filepath.Join(Dir(), "certs")},
		},
	}
}

// Dir is the per-user state directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude-usage")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

func DBPath() string {
	return filepath.Join(Dir(), "history.db")
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports values that would make the commands misbehave.
func (c Config) Validate() error {
	if !ValidFormat(c.Format) {
		return fmt.Errorf("format %q: must be one of waybar, json, plain", c.Format)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %d", c.Poll.Interval)
	}
	switch c.Webserver.TLS.Mode {
	case "", "self-signed":
	case "manual":
		if c.Webserver.TLS.CertFile == "" || c.Webserver.TLS.KeyFile == "" {
			return errors.New("webserver.tls: manual mode needs certFile and keyFile")
		}
	default:
		return fmt.Errorf("webserver.tls.mode %q: must be self-signed or manual", c.Webserver.TLS.Mode)
	}
	if c.Webserver.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Webserver.Auth.TokenTTL); err != nil {
			return fmt.Errorf("webserver.auth.tokenTTL: %w", err)
		}
	}
	return nil
}

func ValidFormat(f string) bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}

func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// TokenTTL is the lifetime of issued API tokens, 30 days unless configured.
func (c Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.Webserver.Auth.TokenTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// Save writes cfg to path, creating the directory if needed. The file holds
// the JWT secret, so it is only readable by the owner.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// EnsureJWTSecret generates a signing secret when none is configured and
// persists it to path so tokens survive restarts.
func EnsureJWTSecret(path string, cfg *Config) error {
	if cfg.Webserver.Auth.JWTSecret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate jwt secret: %w", err)
	}
	cfg.Webserver.Auth.JWTSecret = hex.EncodeToString(buf)
	return Save(path, *cfg)
}
