// Package config reads viewer settings from the environment, optionally
// overlaid by a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/deckcast/go/internal/viewer/fit"
	"github.com/mcdev12/deckcast/go/internal/viewer/render"
	"github.com/mcdev12/deckcast/go/internal/viewer/screen"
	"github.com/mcdev12/deckcast/go/internal/viewer/session"
)

// Transport and rasterizer names.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"

	RasterizerFitz    = "fitz"
	RasterizerOutline = "outline"
)

// FileEnv names the environment variable holding the YAML overlay path.
const FileEnv = "DECKCAST_CONFIG"

// NATS holds the NATS transport settings.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Stream        string `yaml:"stream"`
}

// Config holds everything the viewer binary needs.
type Config struct {
	Room      string `yaml:"room"`
	Role      string `yaml:"role"`
	Transport string `yaml:"transport"`
	ServerURL string `yaml:"server_url"`
	NATS      NATS   `yaml:"nats"`

	Document        string `yaml:"document"`
	DocumentBaseURL string `yaml:"document_base_url"`
	Rasterizer      string `yaml:"rasterizer"`

	// Viewport lays out the main surface, or the presenter's current slide.
	Viewport screen.Layout `yaml:"viewport"`
	// NextViewport lays out the presenter's next slide.
	NextViewport screen.Layout `yaml:"next_viewport"`

	FrameRate      float64       `yaml:"frame_rate"`
	ResizeDebounce time.Duration `yaml:"resize_debounce"`
	SettleRetries  int           `yaml:"settle_retries"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`

	PreviewAddr string `yaml:"preview_addr"`
	LogLevel    string `yaml:"log_level"`
}

// NewConfigFromEnv reads DECKCAST_*, NATS_* and a few common variables, with
// defaults.
func NewConfigFromEnv() Config {
	return Config{
		Room:      getEnv("DECKCAST_ROOM", ""),
		Role:      getEnv("DECKCAST_ROLE", string(session.RoleGuest)),
		Transport: getEnv("DECKCAST_TRANSPORT", TransportWebSocket),
		ServerURL: getEnv("DECKCAST_SERVER_URL", "ws://localhost:8080/ws"),
		NATS: NATS{
			URL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "deckcast.rooms"),
			Stream:        getEnv("NATS_STREAM", ""),
		},

		Document:        getEnv("DECKCAST_DOCUMENT", ""),
		DocumentBaseURL: getEnv("DECKCAST_DOCUMENT_BASE_URL", "http://localhost:8080"),
		Rasterizer:      getEnv("DECKCAST_RASTERIZER", RasterizerFitz),

		Viewport: screen.Layout{
			Width:        getEnvAsFloat("DECKCAST_VIEWPORT_WIDTH", 1280),
			Height:       getEnvAsFloat("DECKCAST_VIEWPORT_HEIGHT", 720),
			Padding:      fit.Uniform(getEnvAsFloat("DECKCAST_VIEWPORT_PADDING", 0)),
			Border:       fit.Uniform(getEnvAsFloat("DECKCAST_VIEWPORT_BORDER", 0)),
			Margin:       fit.Uniform(getEnvAsFloat("DECKCAST_TARGET_MARGIN", 0)),
			PixelDensity: getEnvAsFloat("DECKCAST_PIXEL_DENSITY", 1),
		},
		NextViewport: screen.Layout{
			Width:        getEnvAsFloat("DECKCAST_NEXT_VIEWPORT_WIDTH", 640),
			Height:       getEnvAsFloat("DECKCAST_NEXT_VIEWPORT_HEIGHT", 360),
			PixelDensity: getEnvAsFloat("DECKCAST_PIXEL_DENSITY", 1),
		},

		FrameRate:      getEnvAsFloat("DECKCAST_FRAME_RATE", 60),
		ResizeDebounce: getEnvAsDuration("DECKCAST_RESIZE_DEBOUNCE", 80*time.Millisecond),
		SettleRetries:  getEnvAsInt("DECKCAST_SETTLE_RETRIES", -1),
		ReconnectWait:  getEnvAsDuration("DECKCAST_RECONNECT_WAIT", 2*time.Second),

		PreviewAddr: getEnv("PREVIEW_ADDR", ":8090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// Load reads the environment, applies the file named by DECKCAST_CONFIG if
// set, and validates the result.
func Load() (Config, error) {
	cfg := NewConfigFromEnv()
	if path := os.Getenv(FileEnv); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks the settings and normalizes the names in place.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Room) == "" {
		errs = append(errs, errors.New("room is required"))
	}
	role, err := session.ParseRole(c.Role)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Role = string(role)
	}

	c.Transport = strings.ToLower(c.Transport)
	switch c.Transport {
	case TransportWebSocket:
		if c.ServerURL == "" {
			errs = append(errs, errors.New("websocket transport needs a server url"))
		}
	case TransportNATS:
		if c.NATS.URL == "" || c.NATS.SubjectPrefix == "" {
			errs = append(errs, errors.New("nats transport needs a url and subject prefix"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	c.Rasterizer = strings.ToLower(c.Rasterizer)
	if c.Rasterizer != RasterizerFitz && c.Rasterizer != RasterizerOutline {
		errs = append(errs, fmt.Errorf("unknown rasterizer %q", c.Rasterizer))
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		errs = append(errs, errors.New("viewport width and height must be positive"))
	}
	if role == session.RolePresenter && (c.NextViewport.Width <= 0 || c.NextViewport.Height <= 0) {
		errs = append(errs, errors.New("next viewport width and height must be positive"))
	}
	if c.FrameRate <= 0 {
		errs = append(errs, errors.New("frame rate must be positive"))
	}
	if c.ResizeDebounce < 0 || c.ReconnectWait < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}

	return errors.Join(errs...)
}

// SessionRole returns the validated role.
func (c Config) SessionRole() session.Role {
	return session.Role(c.Role)
}

// FrameInterval is the display frame period.
func (c Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.FrameRate)
}

// ScreenSpecs lays out the surfaces for the role: current and next slide for
// the presenter, a single main surface otherwise.
func (c Config) ScreenSpecs() []screen.Spec {
	if c.SessionRole() == session.RolePresenter {
		return []screen.Spec{
			{ID: render.SurfaceCurrent, Layout: c.Viewport},
			{ID: render.SurfaceNext, Layout: c.NextViewport},
		}
	}
	return []screen.Spec{{ID: render.SurfaceMain, Layout: c.Viewport}}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
