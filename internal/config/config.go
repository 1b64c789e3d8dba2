package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all wispr-live environment variables.
const EnvPrefix = "WISPR_LIVE_"

// Config holds all client configuration. The API token is loaded exclusively
// from the environment and never appears in the config file.
type Config struct {
	ServerURL            string `yaml:"server_url"`
	WSPath               string `yaml:"ws_path"`
	ReconnectBaseDelay   string `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    string `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	LevelHistory         int    `yaml:"level_history"`
	RenderFPS            int    `yaml:"render_fps"`
	RefreshDebounce      string `yaml:"refresh_debounce"`
	SearchDebounce       string `yaml:"search_debounce"`
	HealthTimeout        string `yaml:"health_timeout"`
	StatusAddr           string `yaml:"status_addr"`
	MetricsNamespace     string `yaml:"metrics_namespace"`
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
	LogFile              string `yaml:"log_file"`

	// Secret, env var only.
	APIToken string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ServerURL:          "http://127.0.0.1:8080",
		WSPath:             "/ws",
		ReconnectBaseDelay: "1s",
		ReconnectMaxDelay:  "30s",
		LevelHistory:       64,
		RenderFPS:          30,
		RefreshDebounce:    "250ms",
		SearchDebounce:     "300ms",
		HealthTimeout:      "2s",
		StatusAddr:         "127.0.0.1:7071",
		MetricsNamespace:   "wispr_live",
		LogLevel:           "info",
		LogFormat:          "console",
		LogFile:            "data/wispr-live.log",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseDelay is parseDuration that also accepts zero.
func parseDelay(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func (c *Config) ParsedReconnectBaseDelay() time.Duration {
	return parseDuration(c.ReconnectBaseDelay, time.Second)
}

func (c *Config) ParsedReconnectMaxDelay() time.Duration {
	return parseDuration(c.ReconnectMaxDelay, 30*time.Second)
}

func (c *Config) ParsedRefreshDebounce() time.Duration {
	return parseDuration(c.RefreshDebounce, 250*time.Millisecond)
}

// ParsedSearchDebounce may be zero, which writes the search box into the
// location on every keystroke.
func (c *Config) ParsedSearchDebounce() time.Duration {
	return parseDelay(c.SearchDebounce, 300*time.Millisecond)
}

func (c *Config) ParsedHealthTimeout() time.Duration {
	return parseDuration(c.HealthTimeout, 2*time.Second)
}

// WebSocketURL derives the live channel URL from ServerURL and WSPath.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.ServerURL))
	if err != nil {
		return "", fmt.Errorf("parse server_url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server_url %q has no host", c.ServerURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server_url scheme %q", u.Scheme)
	}

	path := strings.TrimSpace(c.WSPath)
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

func applyEnvOverrides(cfg *Config) {
	strs := []struct {
		key string
		dst *string
	}{
		{"SERVER_URL", &cfg.ServerURL},
		{"WS_PATH", &cfg.WSPath},
		{"RECONNECT_BASE_DELAY", &cfg.ReconnectBaseDelay},
		{"RECONNECT_MAX_DELAY", &cfg.ReconnectMaxDelay},
		{"REFRESH_DEBOUNCE", &cfg.RefreshDebounce},
		{"SEARCH_DEBOUNCE", &cfg.SearchDebounce},
		{"HEALTH_TIMEOUT", &cfg.HealthTimeout},
		{"STATUS_ADDR", &cfg.StatusAddr},
		{"METRICS_NAMESPACE", &cfg.MetricsNamespace},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"LOG_FORMAT", &cfg.LogFormat},
		{"LOG_FILE", &cfg.LogFile},
	}
	for _, s := range strs {
		if v := os.Getenv(EnvPrefix + s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RECONNECT_ATTEMPTS", &cfg.MaxReconnectAttempts},
		{"LEVEL_HISTORY", &cfg.LevelHistory},
		{"RENDER_FPS", &cfg.RenderFPS},
	}
	for _, i := range ints {
		if v := os.Getenv(EnvPrefix + i.key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*i.dst = n
			}
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.APIToken = os.Getenv(EnvPrefix + "API_TOKEN")
}

func validate(cfg *Config) []string {
	var warnings []string

	if _, err := cfg.WebSocketURL(); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid server_url %q: %v.", cfg.ServerURL, err))
	}

	durations := []struct {
		name, value, fallback string
		allowZero             bool
	}{
		{"reconnect_base_delay", cfg.ReconnectBaseDelay, "1s", false},
		{"reconnect_max_delay", cfg.ReconnectMaxDelay, "30s", false},
		{"refresh_debounce", cfg.RefreshDebounce, "250ms", false},
		{"search_debounce", cfg.SearchDebounce, "300ms", true},
		{"health_timeout", cfg.HealthTimeout, "2s", false},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil || v < 0 || (v == 0 && !d.allowZero) {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default %s.", d.name, d.value, d.fallback))
		}
	}

	if cfg.ParsedReconnectMaxDelay() < cfg.ParsedReconnectBaseDelay() {
		warnings = append(warnings, "reconnect_max_delay is shorter than reconnect_base_delay; every retry will wait reconnect_max_delay.")
	}
	if cfg.RenderFPS <= 0 || cfg.RenderFPS > 30 {
		warnings = append(warnings, fmt.Sprintf("render_fps %d out of range, clamping to 30.", cfg.RenderFPS))
	}
	if cfg.LevelHistory <= 0 {
		warnings = append(warnings, fmt.Sprintf("level_history %d must be positive, using 64.", cfg.LevelHistory))
	}

	return warnings
}
