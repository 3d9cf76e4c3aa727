package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the server configuration. Sources in increasing priority:
// defaults, settings.json, FLOWCANVAS_* environment, command flags.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	Catalog    string `json:"catalog,omitempty"`
	Autosave   string `json:"autosave"`
	Versioned  bool   `json:"versioned"`
	Panel      bool   `json:"panel"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(flowcanvasDir(), "flowcanvas.db"),
		LogLevel:   "info",
		Autosave:   "@every 1m",
	}
}

func flowcanvasDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowcanvas"
	}
	return filepath.Join(home, ".flowcanvas")
}

func settingsPath() string {
	if v := os.Getenv("FLOWCANVAS_SETTINGS"); v != "" {
		return v
	}
	return filepath.Join(flowcanvasDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(flowcanvasDir(), "flowcanvas.pid")
}

// envOverrides binds FLOWCANVAS_* variables to config fields.
var envOverrides = []struct {
	name  string
	apply func(c *Config, v string)
}{
	{"FLOWCANVAS_LISTEN_ADDR", func(c *Config, v string) { c.ListenAddr = v }},
	{"FLOWCANVAS_DB_PATH", func(c *Config, v string) { c.DBPath = v }},
	{"FLOWCANVAS_LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }},
	{"FLOWCANVAS_CATALOG", func(c *Config, v string) { c.Catalog = v }},
	{"FLOWCANVAS_AUTOSAVE", func(c *Config, v string) { c.Autosave = v }},
	{"FLOWCANVAS_VERSIONED", func(c *Config, v string) { c.Versioned, _ = strconv.ParseBool(v) }},
	{"FLOWCANVAS_PANEL", func(c *Config, v string) { c.Panel, _ = strconv.ParseBool(v) }},
}

// loadConfig layers defaults, the settings file and the environment. A
// missing or malformed settings file leaves the defaults in place.
func loadConfig() Config {
	cfg := defaultConfig()
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(&cfg, v)
		}
	}
	return cfg
}

// autosaveEnabled reports whether the autosave schedule is switched on.
func (c Config) autosaveEnabled() bool {
	return c.Autosave != "" && c.Autosave != "off"
}

// configDiff splits a reload into what applies live and what only takes
// effect after a restart.
type configDiff struct {
	PanelChanged    bool
	LogLevelChanged bool
	RestartNeeded   []string
}

func diffConfigs(old, next Config) configDiff {
	d := configDiff{
		PanelChanged:    old.Panel != next.Panel,
		LogLevelChanged: old.LogLevel != next.LogLevel,
	}
	if old.ListenAddr != next.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != next.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.Catalog != next.Catalog {
		d.RestartNeeded = append(d.RestartNeeded, "catalog")
	}
	if old.Autosave != next.Autosave || old.Versioned != next.Versioned {
		d.RestartNeeded = append(d.RestartNeeded, "autosave")
	}
	return d
}
