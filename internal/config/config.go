package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "QPKG"

// Config holds the repository and server configuration
type Config struct {
	StorageRoot      string   `envconfig:"STORAGE_ROOT"`
	WebsiteRoot      string   `envconfig:"WEBSITE_ROOT"`
	CacheDir         string   `envconfig:"CACHE_DIR"`
	Sources          []string `envconfig:"SOURCES"`
	DefaultPlatforms []string `envconfig:"DEFAULT_PLATFORMS" default:"no-platform"`
	Listen           string   `envconfig:"LISTEN" default:":8080"`
	LogLevel         string   `envconfig:"LOG_LEVEL" default:"info"`

	DefaultsConfig
}

// DefaultsConfig holds the descriptor fallbacks applied to every source
type DefaultsConfig struct {
	Category               string `envconfig:"DEFAULT_CATEGORY"`
	Type                   string `envconfig:"DEFAULT_TYPE"`
	Languages              string `envconfig:"DEFAULT_LANGUAGES"`
	FirmwareMinimumVersion string `envconfig:"DEFAULT_FW_VERSION"`
}

// Load loads configuration from QPKG_* environment variables
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("failed to load config: %w", err))
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DefaultPlatforms: []string{"no-platform"},
		Listen:           ":8080",
		LogLevel:         "info",
	}
}

// Validate checks the fields required to build a repository
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return models.NewError(models.ErrInvalidConfig, "", errors.New("storage root is required"))
	}
	if _, err := c.websiteURL(); err != nil {
		return err
	}
	if len(c.DefaultPlatforms) == 0 {
		return models.NewError(models.ErrInvalidConfig, "", errors.New("at least one default platform is required"))
	}
	return nil
}

// Repository converts the configuration into the repository model. The
// website root always ends with a slash so relative paths resolve below it.
func (c *Config) Repository() (*models.RepositoryConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	website, err := c.websiteURL()
	if err != nil {
		return nil, err
	}

	return &models.RepositoryConfig{
		StorageRoot:      filepath.Clean(c.StorageRoot),
		WebsiteRoot:      website,
		CacheDir:         c.CacheDir,
		DefaultPlatforms: append([]string(nil), c.DefaultPlatforms...),
	}, nil
}

// SourceDirs returns the source directories, relative entries resolved
// against the storage root. No sources means the storage root itself.
func (c *Config) SourceDirs() []string {
	if len(c.Sources) == 0 {
		return []string{filepath.Clean(c.StorageRoot)}
	}

	var dirs []string
	for _, source := range c.Sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if !filepath.IsAbs(source) {
			source = filepath.Join(c.StorageRoot, source)
		}
		dirs = append(dirs, filepath.Clean(source))
	}
	return dirs
}

// SourceDefaults returns the descriptor fallbacks for every source
func (c *Config) SourceDefaults() models.SourceDefaults {
	return models.SourceDefaults{
		Category:               c.Category,
		Type:                   c.Type,
		Languages:              c.Languages,
		FirmwareMinimumVersion: c.FirmwareMinimumVersion,
	}
}

// ApplyLogLevel sets the logrus level from LogLevel
func (c *Config) ApplyLogLevel() error {
	if c.LogLevel == "" {
		return nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("invalid log level %q: %w", c.LogLevel, err))
	}
	logrus.SetLevel(level)
	return nil
}

func (c *Config) websiteURL() (*url.URL, error) {
	if c.WebsiteRoot == "" {
		return nil, models.NewError(models.ErrInvalidConfig, "", errors.New("website root is required"))
	}
	u, err := url.Parse(c.WebsiteRoot)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("invalid website root: %w", err))
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("website root %q must be an absolute URL", c.WebsiteRoot))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
