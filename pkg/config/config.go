// Package config loads the settings of the gmapwidget demo.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/browser/wsbrowser"
	"github.com/roffe/gmapwidget/pkg/gmap"
	"github.com/roffe/gmapwidget/pkg/latlng"
)

const (
	DefaultPath = "gmapwidget.yml"
	EnvPrefix   = "GMAP_"
)

type Config struct {
	Map     MapConfig     `koanf:"map"`
	Browser BrowserConfig `koanf:"browser"`
	Google  GoogleConfig  `koanf:"google"`
	Log     LogConfig     `koanf:"log"`
}

// MapConfig is the initial state of the map.
type MapConfig struct {
	Center string `koanf:"center"`
	Zoom   int    `koanf:"zoom"`
	Type   string `koanf:"type"`
}

type BrowserConfig struct {
	Listen string `koanf:"listen"`
	Open   bool   `koanf:"open"`
}

type GoogleConfig struct {
	APIKey string `koanf:"api_key"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

func Default() *Config {
	return &Config{
		Map: MapConfig{
			Center: "33.0,5.0",
			Zoom:   2,
			Type:   gmap.Hybrid.String(),
		},
		Browser: BrowserConfig{
			Listen: wsbrowser.DefaultAddr,
			Open:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load starts from Default, applies the YAML file at path if it exists and
// then the GMAP_* environment, e.g. GMAP_MAP_ZOOM or GMAP_GOOGLE_API_KEY.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// GMAP_GOOGLE_API_KEY -> google.api_key
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv adds the variables of a .env file to the environment. Variables
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.Map.LatLng(); err != nil {
		return err
	}
	if c.Map.Zoom < gmap.MinZoom || c.Map.Zoom > gmap.MaxZoom {
		return fmt.Errorf("map.zoom %d must be between %d and %d", c.Map.Zoom, gmap.MinZoom, gmap.MaxZoom)
	}
	if _, err := c.Map.MapType(); err != nil {
		return err
	}
	if c.Browser.Listen == "" {
		return fmt.Errorf("browser.listen is required")
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return nil
}

func (m MapConfig) LatLng() (latlng.LatLng, error) {
	c, ok := latlng.Parse(m.Center)
	if !ok {
		return latlng.LatLng{}, fmt.Errorf("invalid map.center %q: want \"lat,lon\"", m.Center)
	}
	return c, nil
}

func (m MapConfig) MapType() (gmap.MapType, error) {
	t, err := gmap.ParseMapType(m.Type)
	if err != nil {
		return gmap.DefaultType, fmt.Errorf("invalid map.type: %w", err)
	}
	return t, nil
}

// Logger builds a zap logger at the configured level.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", l.Level, err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
