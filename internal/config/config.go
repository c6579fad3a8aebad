package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"playamap/internal/geocode"
	appLog "playamap/internal/log"
	"playamap/internal/timeline"
)

// ICSConfig describes an extra ICS calendar whose events join the directory
// events.
type ICSConfig struct {
	// URL is the ICS endpoint or a local path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// DataConfig points at the event and camp directories.
type DataConfig struct {
	// Events and Camps are URLs (http/https) or local file paths to the
	// directory JSON exports.
	Events string `yaml:"events" json:"events"`
	Camps  string `yaml:"camps" json:"camps"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir stores HTTP bodies and ETag metadata between fetches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// PlaybackConfig bounds the scrubber and sets the playback speeds.
type PlaybackConfig struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`

	// Steps are the selectable simulated minutes per tick.
	Steps []int `yaml:"steps" json:"steps"`
	// Step is the initial step; must be one of Steps.
	Step int `yaml:"step" json:"step"`

	// Interval is the wall-clock time between ticks.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// DaylightConfig holds "HH:MM" wall-clock bounds of the sunrise and sunset fades.
type DaylightConfig struct {
	SunriseStart string `yaml:"sunrise_start" json:"sunrise_start"`
	SunriseEnd   string `yaml:"sunrise_end" json:"sunrise_end"`
	SunsetStart  string `yaml:"sunset_start" json:"sunset_start"`
	SunsetEnd    string `yaml:"sunset_end" json:"sunset_end"`
}

// PreviewConfig controls the headless capture of the marker page.
type PreviewConfig struct {
	Width   int           `yaml:"width" json:"width"`
	Height  int           `yaml:"height" json:"height"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// OutputPath is where /preview.png and -preview write the PNG.
	OutputPath string `yaml:"output_path" json:"output_path"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone of the event city (e.g. "America/Los_Angeles").
	// Daylight fades are evaluated on this wall clock.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a standard 5-field cron schedule for reloading the
	// directory data. Empty disables periodic reload.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Data DataConfig `yaml:"data" json:"data"`

	// Calibration selects a calibration by name, first among Calibrations,
	// then among the built-ins.
	Calibration  string                `yaml:"calibration" json:"calibration"`
	Calibrations []geocode.Calibration `yaml:"calibrations,omitempty" json:"calibrations,omitempty"`

	Playback PlaybackConfig `yaml:"playback" json:"playback"`
	Daylight DaylightConfig `yaml:"daylight" json:"daylight"`
	Preview  PreviewConfig  `yaml:"preview" json:"preview"`
}

var (
	defaultStart = time.Date(2025, time.August, 24, 0, 0, 0, 0, time.FixedZone("PDT", -7*60*60))
	defaultEnd   = time.Date(2025, time.September, 1, 21, 0, 0, 0, time.FixedZone("PDT", -7*60*60))
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{RefreshCron: "*/15 * * * *"}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Los_Angeles"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Data.Events == "" {
		c.Data.Events = "data/events.json"
	}
	if c.Data.Camps == "" {
		c.Data.Camps = "data/camps.json"
	}
	if c.Data.ICS == nil {
		c.Data.ICS = []ICSConfig{}
	}
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = "./cache/feed"
	}
	if c.Calibration == "" {
		c.Calibration = geocode.Measured2025
	}

	if c.Playback.Start.IsZero() {
		c.Playback.Start = defaultStart
	}
	if c.Playback.End.IsZero() {
		c.Playback.End = defaultEnd
	}
	if len(c.Playback.Steps) == 0 {
		c.Playback.Steps = append([]int(nil), timeline.DefaultSteps...)
	}
	if !containsInt(c.Playback.Steps, c.Playback.Step) {
		c.Playback.Step = c.Playback.Steps[len(c.Playback.Steps)-1]
	}
	if c.Playback.Interval <= 0 {
		c.Playback.Interval = timeline.DefaultInterval
	}

	if c.Daylight.SunriseStart == "" {
		c.Daylight.SunriseStart = "06:00"
	}
	if c.Daylight.SunriseEnd == "" {
		c.Daylight.SunriseEnd = "06:30"
	}
	if c.Daylight.SunsetStart == "" {
		c.Daylight.SunsetStart = "19:30"
	}
	if c.Daylight.SunsetEnd == "" {
		c.Daylight.SunsetEnd = "20:00"
	}

	if c.Preview.Width <= 0 {
		c.Preview.Width = 1200
	}
	if c.Preview.Height <= 0 {
		c.Preview.Height = 1200
	}
	if c.Preview.Timeout <= 0 {
		c.Preview.Timeout = 30 * time.Second
	}
	if c.Preview.OutputPath == "" {
		c.Preview.OutputPath = "./cache/preview.png"
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Validate checks values that Normalize cannot repair.
func (c *Config) Validate() error {
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
		}
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if _, err := c.SelectedCalibration(); err != nil {
		return err
	}
	if _, err := c.Daylight.build(time.UTC); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// Window is the configured playback window.
func (c *Config) Window() (timeline.Window, error) {
	return timeline.NewWindow(c.Playback.Start, c.Playback.End)
}

// SelectedCalibration returns the calibration named by Calibration.
func (c *Config) SelectedCalibration() (geocode.Calibration, error) {
	for _, cal := range c.Calibrations {
		if cal.Name == c.Calibration {
			return cal, nil
		}
	}
	if cal, ok := geocode.Builtin(c.Calibration); ok {
		return cal, nil
	}
	return geocode.Calibration{}, fmt.Errorf("config: unknown calibration %q (built-in: %s)",
		c.Calibration, strings.Join(geocode.BuiltinNames(), ", "))
}

// DaylightIn builds the daylight model on the configured wall clock.
func (c *Config) DaylightIn(loc *time.Location) (timeline.Daylight, error) {
	return c.Daylight.build(loc)
}

func (d DaylightConfig) build(loc *time.Location) (timeline.Daylight, error) {
	var out timeline.Daylight
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sunrise_start", d.SunriseStart, &out.SunriseStart},
		{"sunrise_end", d.SunriseEnd, &out.SunriseEnd},
		{"sunset_start", d.SunsetStart, &out.SunsetStart},
		{"sunset_end", d.SunsetEnd, &out.SunsetEnd},
	}
	for _, f := range fields {
		t, err := time.Parse("15:04", f.raw)
		if err != nil {
			return out, fmt.Errorf("config: daylight %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	}
	if !(out.SunriseStart <= out.SunriseEnd && out.SunriseEnd <= out.SunsetStart && out.SunsetStart <= out.SunsetEnd) {
		return out, errors.New("config: daylight bounds must be in order sunrise_start <= sunrise_end <= sunset_start <= sunset_end")
	}
	out.Location = loc
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".playamap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
