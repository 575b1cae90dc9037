package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	twauth "github.com/dghubble/oauth1/twitter"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory and the keyring service.
const AppName = "twittter"

// Config is the application's configuration model.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Endpoints   EndpointsConfig   `yaml:"endpoints"`
	HTTP        HTTPConfig        `yaml:"http"`
	Storage     StorageConfig     `yaml:"storage"`
	Timeline    TimelineConfig    `yaml:"timeline"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type CredentialsConfig struct {
	// App credentials. If empty, read from env X_CONSUMER_KEY / X_CONSUMER_SECRET
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
}

type EndpointsConfig struct {
	RequestTokenURL string `yaml:"requestTokenURL"`
	AuthorizeURL    string `yaml:"authorizeURL"`
	AccessTokenURL  string `yaml:"accessTokenURL"`
	APIBase         string `yaml:"apiBase"`
	// Where the provider redirects after authorization. The CLI listens here.
	CallbackURL string `yaml:"callbackURL"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Outbound pacing; rps <= 0 disables it
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type StorageConfig struct {
	// SQLite file holding the timeline snapshot
	DBPath string `yaml:"dbPath"`
	// Fallback directory for credentials when the keyring is unavailable
	CredentialsDir string `yaml:"credentialsDir"`
	KeyringService string `yaml:"keyringService"`
	NoKeyring      bool   `yaml:"noKeyring"`
}

type TimelineConfig struct {
	OfflineFallback bool          `yaml:"offlineFallback"`
	FollowInterval  time.Duration `yaml:"followInterval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Dir is the per-user config directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, AppName)
}

// DefaultPath is where the config file lives unless --config says otherwise.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns a sensible default configuration.
func Default() Config {
	dir := Dir()
	return Config{
		Endpoints: EndpointsConfig{
			RequestTokenURL: twauth.AuthorizeEndpoint.RequestTokenURL,
			AuthorizeURL:    twauth.AuthorizeEndpoint.AuthorizeURL,
			AccessTokenURL:  twauth.AuthorizeEndpoint.AccessTokenURL,
			APIBase:         "https://api.twitter.com/1.1",
			CallbackURL:     "http://127.0.0.1:8976/callback",
		},
		HTTP:     HTTPConfig{Timeout: 15 * time.Second},
		Storage:  StorageConfig{DBPath: filepath.Join(dir, "cache.db"), CredentialsDir: dir, KeyringService: AppName},
		Timeline: TimelineConfig{OfflineFallback: true, FollowInterval: 2 * time.Minute},
		Log:      LogConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if v := os.Getenv("TWITTTER_NO_KEYRING"); v != "" && v != "0" && !strings.EqualFold(v, "false") {
		c.Storage.NoKeyring = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate reports the first problem that would stop the client from working.
func (c Config) Validate() error {
	if c.Credentials.ConsumerKey == "" || c.Credentials.ConsumerSecret == "" {
		return errors.New("consumer key and secret are required (set credentials.consumerKey/consumerSecret or X_CONSUMER_KEY/X_CONSUMER_SECRET)")
	}
	for name, raw := range map[string]string{
		"endpoints.requestTokenURL": c.Endpoints.RequestTokenURL,
		"endpoints.authorizeURL":    c.Endpoints.AuthorizeURL,
		"endpoints.accessTokenURL":  c.Endpoints.AccessTokenURL,
		"endpoints.apiBase":         c.Endpoints.APIBase,
		"endpoints.callbackURL":     c.Endpoints.CallbackURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%s: %q is not an absolute url", name, raw)
		}
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("http.timeout must not be negative")
	}
	if c.HTTP.RPS > 0 && c.HTTP.Burst < 0 {
		return errors.New("http.burst must not be negative")
	}
	return nil
}

// Endpoint returns the OAuth endpoints as an oauth1.Endpoint.
func (c Config) Endpoint() oauth1.Endpoint {
	return oauth1.Endpoint{
		RequestTokenURL: c.Endpoints.RequestTokenURL,
		AuthorizeURL:    c.Endpoints.AuthorizeURL,
		AccessTokenURL:  c.Endpoints.AccessTokenURL,
	}
}

// Load reads YAML config from path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.ResolveEnv()
		return cfg, nil
	}
	return cfg, err
}

// Save writes YAML config to path, creating directories as needed. The file
// may hold the consumer secret, so it is private to the user.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadDotEnv loads .env.local then .env from the working directory. Variables
// already set in the environment win. Missing files are skipped.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	var loaded []string
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}
