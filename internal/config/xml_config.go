// Package config provides XML-based configuration management for the picture map service.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"NbPicture"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Widget runtime configuration
	Widgets WidgetsConfig `xml:"Widgets"`

	// Breakpoint media queries; replaces the built-in set when non-empty
	MediaQueries MediaQueriesConfig `xml:"MediaQueries"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory        string `xml:"DataDirectory"`
	ImagesDirectory      string `xml:"ImagesDirectory"`
	DefinitionsDirectory string `xml:"DefinitionsDirectory"`
	MaxUploadSize        string `xml:"MaxUploadSize"`
}

// WidgetsConfig contains widget session settings
type WidgetsConfig struct {
	MaxWidgets             int    `xml:"MaxWidgets"`
	IdleTimeoutMinutes     int    `xml:"IdleTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	ResizeDebounceMs       int    `xml:"ResizeDebounceMs"`
	Touch                  bool   `xml:"Touch"`
	IDScheme               string `xml:"IDScheme"` // uuid or counter
	WatchDefinitions       bool   `xml:"WatchDefinitions"`
}

// MediaQueriesConfig lists named breakpoints
type MediaQueriesConfig struct {
	Queries []MediaQuery `xml:"Query"`
}

// MediaQuery is one named breakpoint
type MediaQuery struct {
	Name  string `xml:"name,attr"`
	Query string `xml:",chardata"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogVerbosity            int  `xml:"LogVerbosity"`
	EnableRequestLogging    bool `xml:"EnableRequestLogging"`
	EnableJournal           bool `xml:"EnableJournal"`
	WebSocketMaxMessageSize int  `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:        "./data",
			ImagesDirectory:      "./data/images",
			DefinitionsDirectory: "./data/definitions",
			MaxUploadSize:        "32M",
		},
		Widgets: WidgetsConfig{
			MaxWidgets:             100,
			IdleTimeoutMinutes:     30,
			CleanupIntervalMinutes: 5,
			ResizeDebounceMs:       0,
			Touch:                  false,
			IDScheme:               "uuid",
			WatchDefinitions:       true,
		},
		Advanced: AdvancedConfig{
			LogVerbosity:            0,
			EnableRequestLogging:    true,
			EnableJournal:           true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- nb-picture Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.ImagesDirectory = filepath.Join(dataDir, "images")
		c.Storage.DefinitionsDirectory = filepath.Join(dataDir, "definitions")
	}

	if defsDir := os.Getenv("DEFINITIONS_DIR"); defsDir != "" {
		c.Storage.DefinitionsDirectory = defsDir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.ImagesDirectory,
		&c.Storage.DefinitionsDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetMediaQueries returns the configured breakpoints, or nil when the
// built-in set applies.
func (c *AppConfig) GetMediaQueries() map[string]string {
	if len(c.MediaQueries.Queries) == 0 {
		return nil
	}
	queries := make(map[string]string, len(c.MediaQueries.Queries))
	for _, q := range c.MediaQueries.Queries {
		queries[q.Name] = q.Query
	}
	return queries
}

// IdleTimeout returns how long an unused widget is kept.
func (w WidgetsConfig) IdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle widgets are collected.
func (w WidgetsConfig) CleanupInterval() time.Duration {
	if w.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(w.CleanupIntervalMinutes) * time.Minute
}

// ResizeDebounce returns the delay applied to window resizes.
func (w WidgetsConfig) ResizeDebounce() time.Duration {
	return time.Duration(w.ResizeDebounceMs) * time.Millisecond
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ImagesDirectory,
		c.Storage.DefinitionsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
