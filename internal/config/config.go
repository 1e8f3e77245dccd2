// Package config loads the panel configuration from YAML with environment
// overrides, and implements the two upstream collaborators the ingestion
// core depends on: bridge URL resolution and namespace sanitization.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultBridgePort is the conventional rosbridge/Foxglove bridge port.
const DefaultBridgePort = 8765

var validate *validator.Validate

func init() {
	validate = validator.New()
	// A ROS name: slash-separated segments of [A-Za-z0-9_], optionally
	// absolute. Empty is allowed here; required-ness is a separate tag.
	_ = validate.RegisterValidation("rosname", func(fl validator.FieldLevel) bool {
		return rosNamePattern.MatchString(fl.Field().String())
	})
}

var (
	rosNamePattern  = regexp.MustCompile(`^/?[A-Za-z0-9_]+(/[A-Za-z0-9_]+)*$`)
	invalidNameChar = regexp.MustCompile(`[^A-Za-z0-9_/]`)
	repeatedSlash   = regexp.MustCompile(`/{2,}`)
)

// Bridge identifies the WebSocket bridge endpoint. An empty host means
// the bridge is not resolvable yet and the monitor must not connect.
type Bridge struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Server configures the dashboard HTTP server.
type Server struct {
	Port int `yaml:"port"`
	// PasswordHash is the bcrypt hash of the operator password. Empty
	// disables authentication entirely.
	PasswordHash string `yaml:"password_hash"`
	// JWTSecret signs session tokens; generated per-process when empty.
	JWTSecret string `yaml:"jwt_secret"`
}

// Panel tunes the ingestion core.
type Panel struct {
	HistorySize  int `yaml:"history_size"`
	StaleSeconds int `yaml:"stale_seconds"`
	RetrySeconds int `yaml:"retry_seconds"`
}

// Config is the full rosdash configuration.
type Config struct {
	Bridge    Bridge `yaml:"bridge"`
	Namespace string `yaml:"namespace" validate:"required,rosname"`
	Server    Server `yaml:"server"`
	Panel     Panel  `yaml:"panel"`
	LogFile   string `yaml:"log_file"`

	// NamespaceWarning is set when the configured namespace needed
	// correction; the UI surfaces it as a banner.
	NamespaceWarning string `yaml:"-"`
}

// Load reads the YAML file at path, applies env overrides, sanitizes the
// namespace and validates the result. A missing file is not an error;
// defaults plus env still have to validate.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Bridge:    Bridge{Port: DefaultBridgePort},
		Namespace: "/robot",
		Server:    Server{Port: 8080},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, uerr)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	ns, warning := SanitizeNamespace(cfg.Namespace)
	cfg.Namespace = ns
	cfg.NamespaceWarning = warning

	if cfg.Bridge.Port == 0 {
		cfg.Bridge.Port = DefaultBridgePort
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ROSDASH_BRIDGE_HOST"); v != "" {
		cfg.Bridge.Host = v
	}
	if v := os.Getenv("ROSDASH_BRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.Port = port
		}
	}
	if v := os.Getenv("ROSDASH_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("ROSDASH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ROSDASH_PASSWORD_HASH"); v != "" {
		cfg.Server.PasswordHash = v
	}
	if v := os.Getenv("ROSDASH_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("ROSDASH_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// SanitizeNamespace corrects a raw namespace against the ROS name charset
// and returns the usable value plus a human-readable warning when the
// input needed correction. An input with nothing salvageable returns an
// empty namespace, which fails validation downstream.
func SanitizeNamespace(raw string) (ns, warning string) {
	trimmed := strings.TrimSpace(raw)
	cleaned := invalidNameChar.ReplaceAllString(trimmed, "")
	cleaned = repeatedSlash.ReplaceAllString(cleaned, "/")
	cleaned = strings.TrimSuffix(cleaned, "/")
	if cleaned != "" && !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if cleaned == "/" {
		cleaned = ""
	}
	if cleaned != trimmed && trimmed != "" {
		warning = fmt.Sprintf("namespace %q is not a valid ROS name, corrected to %q", raw, cleaned)
	}
	return cleaned, warning
}

// BridgeURL resolves the WebSocket URL for the configured bridge, or ""
// when the host is unknown. The monitor treats "" as "not ready, do not
// connect".
func (c *Config) BridgeURL() string {
	if c.Bridge.Host == "" {
		return ""
	}
	return fmt.Sprintf("ws://%s:%d", c.Bridge.Host, c.Bridge.Port)
}
