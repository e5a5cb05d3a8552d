package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cobiv/internal/logging"
	"cobiv/internal/mediatypes"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// DefaultThumbnailSize is the thumbnail long side used when none is configured.
const DefaultThumbnailSize = 120

// DefaultConfigName is the configuration file created under the home directory.
const DefaultConfigName = "cobiv.yml"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	// File is the configuration file that was read.
	File string

	DatabasePath  string
	ThumbnailDir  string
	ThumbnailSize int
	Repository    string
	Extensions    []string
	Ignore        []string
	LogFile       string
	MetricsAddr   string

	// raw is the YAML document with env overrides applied, for Lookup.
	raw map[string]interface{}
}

// fileConfig mirrors the YAML layout of the configuration file.
type fileConfig struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Thumbnails struct {
		Path      string `yaml:"path"`
		ImageSize int    `yaml:"image_size"`
	} `yaml:"thumbnails"`
	Repository string   `yaml:"repository"`
	Extensions []string `yaml:"extensions"`
	Ignore     []string `yaml:"ignore"`
	Log        struct {
		File string `yaml:"file"`
	} `yaml:"log"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// HomeDir returns the per-user directory holding the default configuration,
// catalog and thumbnails.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cobiv"), nil
}

func defaultFileConfig(base string) fileConfig {
	var fc fileConfig
	fc.Database.Path = filepath.Join(base, "cobiv.db")
	fc.Thumbnails.Path = filepath.Join(base, "thumbnails")
	fc.Thumbnails.ImageSize = DefaultThumbnailSize
	fc.Repository = filepath.Join("~", "Pictures")
	fc.Extensions = append([]string(nil), mediatypes.DefaultImageExtensions...)
	fc.Ignore = []string{".*"}
	return fc
}

// LoadConfig reads the YAML configuration at path, or at ~/.cobiv/cobiv.yml
// when path is empty, writing a default file first if it does not exist.
// A .env file in the working directory and COBIV_* environment variables
// override file values.
func LoadConfig(path string) (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("  Failed to load .env: %v", err)
	}

	base, err := HomeDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(base, DefaultConfigName)
	}
	path = expandHome(path)

	defaults := defaultFileConfig(base)
	if err := writeDefault(path, defaults); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	fc := defaults
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := &Config{
		File:          path,
		DatabasePath:  fc.Database.Path,
		ThumbnailDir:  fc.Thumbnails.Path,
		ThumbnailSize: fc.Thumbnails.ImageSize,
		Repository:    fc.Repository,
		Extensions:    fc.Extensions,
		Ignore:        fc.Ignore,
		LogFile:       fc.Log.File,
		MetricsAddr:   fc.Metrics.Addr,
		raw:           raw,
	}
	config.applyEnv()

	if config.ThumbnailSize <= 0 {
		logging.Warn("  Invalid thumbnail size %d, using default: %d", config.ThumbnailSize, DefaultThumbnailSize)
		config.ThumbnailSize = DefaultThumbnailSize
	}
	if len(config.Extensions) == 0 {
		config.Extensions = append([]string(nil), mediatypes.DefaultImageExtensions...)
	}

	config.DatabasePath = expandHome(config.DatabasePath)
	config.ThumbnailDir = expandHome(config.ThumbnailDir)
	config.Repository = expandHome(config.Repository)
	config.LogFile = expandHome(config.LogFile)

	logging.Info("  Config file:     %s", config.File)
	logging.Info("  Database:        %s", config.DatabasePath)
	logging.Info("  Thumbnails:      %s (%dpx)", config.ThumbnailDir, config.ThumbnailSize)
	logging.Info("  Repository:      %s", config.Repository)
	logging.Info("  Extensions:      %s", strings.Join(config.Extensions, ","))
	logging.Info("  Ignore:          %s", strings.Join(config.Ignore, ","))
	logging.Info("  Metrics:         %s", valueOr(config.MetricsAddr, "DISABLED"))
	logging.Info("  LOG_LEVEL:       %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dbDir := filepath.Dir(config.DatabasePath)
	if err := ensureDirectory(dbDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(dbDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(config.ThumbnailDir, "thumbnails"); err != nil {
		return nil, fmt.Errorf("thumbnail directory error: %w", err)
	}
	logging.Info("  [OK] Thumbnail directory ready")

	return config, nil
}

// applyEnv overlays COBIV_* environment variables onto the file values.
func (c *Config) applyEnv() {
	if v := getEnv("COBIV_DATABASE_PATH", ""); v != "" {
		c.DatabasePath = v
		c.set("database.path", v)
	}
	if v := getEnv("COBIV_THUMBNAIL_DIR", ""); v != "" {
		c.ThumbnailDir = v
		c.set("thumbnails.path", v)
	}
	if v := getEnv("COBIV_THUMBNAIL_SIZE", ""); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			logging.Warn("Invalid integer value for COBIV_THUMBNAIL_SIZE: %q, keeping %d", v, c.ThumbnailSize)
		} else {
			c.ThumbnailSize = size
			c.set("thumbnails.image_size", size)
		}
	}
	if v := getEnv("COBIV_REPOSITORY", ""); v != "" {
		c.Repository = v
		c.set("repository", v)
	}
	if v := getEnv("COBIV_EXTENSIONS", ""); v != "" {
		c.Extensions = splitList(v)
		c.set("extensions", v)
	}
	if v := getEnv("COBIV_LOG_FILE", ""); v != "" {
		c.LogFile = v
		c.set("log.file", v)
	}
	if v := getEnv("COBIV_METRICS_ADDR", ""); v != "" {
		c.MetricsAddr = v
		c.set("metrics.addr", v)
	}
}

// Lookup returns the value at a dotted key such as "thumbnails.image_size".
// Lists are joined with commas.
func (c *Config) Lookup(key string) (string, bool) {
	var node interface{} = c.raw
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return "", false
		}
		node, ok = m[part]
		if !ok {
			return "", false
		}
	}

	switch v := node.(type) {
	case nil:
		return "", false
	case map[string]interface{}:
		return "", false
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(v), true
	}
}

func (c *Config) set(key string, value interface{}) {
	if c.raw == nil {
		c.raw = make(map[string]interface{})
	}
	parts := strings.Split(key, ".")
	m := c.raw
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// writeDefault creates the configuration file with default values unless it exists.
func writeDefault(path string, fc fileConfig) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	logging.Info("  Created default config file: %s", path)
	return nil
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, created bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if created {
		logging.Info("  Created new catalog schema")
	}
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogThumbnailInit logs thumbnail cache initialization
func LogThumbnailInit(dir string, size int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL CACHE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Directory: %s", dir)
	logging.Info("  Cell size: %dpx", size)
}

// LogSyncStarted logs the start of a catalog synchronization
func LogSyncStarted() {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CATALOG SYNC")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Starting sync...")
}

// LogSyncFinished logs the outcome of a catalog synchronization
func LogSyncFinished(added, removed, failed int, duration time.Duration) {
	logging.Info("  [OK] Sync finished in %v: %d added, %d removed, %d failed", duration, added, removed, failed)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes, err
}

// LogMetricsServer logs the metrics endpoint and its routes
func LogMetricsServer(router *mux.Router, addr string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("METRICS SERVER")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Listening on %s", addr)

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	for _, route := range routes {
		logging.Debug("    %-6s %s", route.Method, route.Path)
	}
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
               __    _
   _________  / /_  (_)   __
  / ___/ __ \/ __ \/ / | / /
 / /__/ /_/ / /_/ / /| |/ /
 \___/\____/_.___/_/ |___/

------------------------------------------------------------`
	logging.Debug("%s", banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
