package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/oasref/middleware"
	"github.com/vitalvas/oasref/openapi"
	"github.com/vitalvas/oasref/refsource"
)

// DefaultPath is read when Load is given no path.
const DefaultPath = "oasref.yaml"

type InfoConfig struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type ServerConfig struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

type SourceConfig struct {
	Location string   `yaml:"location"`
	Publish  []string `yaml:"publish"`
}

type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type SecuritySchemeConfig struct {
	Type             string `yaml:"type"`
	Scheme           string `yaml:"scheme"`
	BearerFormat     string `yaml:"bearer_format"`
	Name             string `yaml:"name"`
	In               string `yaml:"in"`
	OpenIDConnectURL string `yaml:"openid_connect_url"`
	Description      string `yaml:"description"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	DocsPath    string   `yaml:"docs_path"`
	DocsUI      string   `yaml:"docs_ui"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	Info                  InfoConfig                      `yaml:"info"`
	Servers               []ServerConfig                  `yaml:"servers"`
	PathPrefix            string                          `yaml:"path_prefix"`
	APIVersion            string                          `yaml:"api_version"`
	IncludeEmptyEndpoints bool                            `yaml:"include_empty_endpoints"`
	DefaultTag            string                          `yaml:"default_tag"`
	Sources               map[string]SourceConfig         `yaml:"sources"`
	Fetch                 FetchConfig                     `yaml:"fetch"`
	SecuritySchemes       map[string]SecuritySchemeConfig `yaml:"security_schemes"`
	Security              []map[string][]string           `yaml:"security"`
	Log                   LogConfig                       `yaml:"log"`
	HTTP                  HTTPConfig                      `yaml:"http"`
}

// Load reads the YAML config at path, applies defaults and environment
// overrides, and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Info.Title == "" {
		c.Info.Title = "API"
	}
	if c.Info.Version == "" {
		c.Info.Version = "1.0.0"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 5 * time.Second
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 1
	}
	if c.Fetch.Backoff == 0 {
		c.Fetch.Backoff = 200 * time.Millisecond
	}
	if c.Fetch.RetryInterval == 0 {
		c.Fetch.RetryInterval = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.HTTP.DocsPath == "" {
		c.HTTP.DocsPath = "/docs"
	}
	if c.HTTP.DocsUI == "" {
		c.HTTP.DocsUI = "redoc"
	}
}

func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.PathPrefix != "" {
		if _, err := regexp.Compile(c.PathPrefix); err != nil {
			return fmt.Errorf("path_prefix: %w", err)
		}
	}
	if c.Fetch.Timeout < 0 || c.Fetch.Backoff < 0 || c.Fetch.MaxRetries < 0 {
		return errors.New("fetch: timeout, backoff and max_retries cannot be negative")
	}

	for _, name := range c.sourceNames() {
		if strings.TrimSpace(c.Sources[name].Location) == "" {
			return fmt.Errorf("sources.%s.location cannot be empty", name)
		}
	}
	if _, err := c.NewSources(nil); err != nil {
		return err
	}

	if _, err := c.Middlewares(slog.Default()); err != nil {
		return err
	}

	for i, req := range c.Security {
		for scheme := range req {
			if _, ok := c.SecuritySchemes[scheme]; !ok {
				return fmt.Errorf("security[%d]: unknown scheme %q", i, scheme)
			}
		}
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Middlewares returns the middlewares every served request passes through:
// panic recovery, request ids and, when origins are configured, CORS.
func (c *Config) Middlewares(logger *slog.Logger) ([]middleware.Func, error) {
	mws := []middleware.Func{
		middleware.Recovery(logger),
		middleware.RequestID(middleware.RequestIDConfig{TrustIncoming: true}),
	}
	if len(c.HTTP.CORSOrigins) > 0 {
		cors, err := middleware.CORS(middleware.CORSConfig{AllowedOrigins: c.HTTP.CORSOrigins, MaxAge: 600})
		if err != nil {
			return nil, fmt.Errorf("http.cors_origins: %w", err)
		}
		mws = append(mws, cors)
	}
	return mws, nil
}

// FetchSettings returns the fetch settings shared by all sources.
func (c *Config) FetchSettings() refsource.Settings {
	return refsource.Settings{
		Timeout:       c.Fetch.Timeout,
		MaxRetries:    c.Fetch.MaxRetries,
		Backoff:       c.Fetch.Backoff,
		RetryInterval: c.Fetch.RetryInterval,
	}
}

// NewSources builds the configured sources sorted by name. A nil logger
// uses slog.Default.
func (c *Config) NewSources(logger *slog.Logger) ([]*refsource.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sources := make([]*refsource.Source, 0, len(c.Sources))
	for _, name := range c.sourceNames() {
		sc := c.Sources[name]
		s, err := refsource.NewSource(name, sc.Location,
			refsource.WithSettings(c.FetchSettings()),
			refsource.WithPublish(sc.Publish...),
			refsource.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// NewRegistry builds the schema registry of the configured sources.
func (c *Config) NewRegistry(logger *slog.Logger) (*refsource.Registry, error) {
	sources, err := c.NewSources(logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return refsource.NewRegistry(sources, refsource.WithRegistryLogger(logger))
}

// GeneratorConfig returns the document assembly settings.
func (c *Config) GeneratorConfig() openapi.Config {
	cfg := openapi.Config{
		Info: openapi.Info{
			Title:       c.Info.Title,
			Version:     c.Info.Version,
			Description: c.Info.Description,
		},
		PathPrefix:            c.PathPrefix,
		APIVersion:            c.APIVersion,
		IncludeEmptyEndpoints: c.IncludeEmptyEndpoints,
		DefaultTag:            c.DefaultTag,
	}

	for _, s := range c.Servers {
		cfg.Servers = append(cfg.Servers, openapi.Server{URL: s.URL, Description: s.Description})
	}

	if len(c.SecuritySchemes) > 0 {
		cfg.SecuritySchemes = make(map[string]*openapi.SecurityScheme, len(c.SecuritySchemes))
		for name, s := range c.SecuritySchemes {
			cfg.SecuritySchemes[name] = &openapi.SecurityScheme{
				Type:             s.Type,
				Scheme:           s.Scheme,
				BearerFormat:     s.BearerFormat,
				Name:             s.Name,
				In:               s.In,
				OpenIDConnectURL: s.OpenIDConnectURL,
				Description:      s.Description,
			}
		}
	}

	for _, req := range c.Security {
		r := make(openapi.SecurityRequirement, len(req))
		for scheme, scopes := range req {
			if scopes == nil {
				scopes = []string{}
			}
			r[scheme] = scopes
		}
		cfg.Security = append(cfg.Security, r)
	}

	return cfg
}

func (c *Config) sourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyEnvOverrides(c *Config) {
	setString(&c.Log.Level, "OASREF_LOG_LEVEL")
	setString(&c.Log.Format, "OASREF_LOG_FORMAT")
	setString(&c.PathPrefix, "OASREF_PATH_PREFIX")
	setString(&c.APIVersion, "OASREF_API_VERSION")
	setDuration(&c.Fetch.Timeout, "OASREF_FETCH_TIMEOUT")
	setInt(&c.Fetch.MaxRetries, "OASREF_FETCH_MAX_RETRIES")
	setString(&c.HTTP.Addr, "OASREF_HTTP_ADDR")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
