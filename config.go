package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds the server settings. Each flag falls back to an
// environment variable, then to a built-in default.
type Config struct {
	ProjectDir  string
	EntryFile   string
	Port        int
	ElmBin      string
	ElmJSONBin  string
	ElmHome     string
	RegistryURL string
	LogLevel    string
}

// LoadConfig parses args with defaults taken from getenv.
func LoadConfig(args []string, getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}

		return fallback
	}

	defaultPort := 0

	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", v, err)
		}

		defaultPort = p
	}

	defaultElmHome := getenv("ELM_HOME")
	if defaultElmHome == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			defaultElmHome = filepath.Join(homeDir, ".elm")
		}
	}

	var cfg Config

	fs := flag.NewFlagSet("claude-elm", flag.ContinueOnError)
	fs.StringVar(&cfg.ProjectDir, "project", env("PROJECT_FOLDER", "."), "Elm project folder containing elm.json")
	fs.StringVar(&cfg.EntryFile, "entry", env("ENTRY_FILE", "./src/Main.elm"), "Entry file compiled by elm_check_project")
	fs.IntVar(&cfg.Port, "port", defaultPort, "Serve streamable HTTP on 127.0.0.1:port instead of stdio")
	fs.StringVar(&cfg.ElmBin, "elm", env("ELM_BIN", "elm"), "Elm compiler binary")
	fs.StringVar(&cfg.ElmJSONBin, "elm-json", env("ELM_JSON_BIN", "elm-json"), "elm-json binary used to manage dependencies")
	fs.StringVar(&cfg.ElmHome, "elm-home", defaultElmHome, "Elm home directory holding the local package cache")
	fs.StringVar(&cfg.RegistryURL, "registry", env("ELM_REGISTRY_URL", defaultRegistryURL), "Elm package registry base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", env("ELM_MCP_LOG", "info"), "Log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ProjectDir, validation.Required),
		validation.Field(&c.EntryFile, validation.Required),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.ElmBin, validation.Required),
		validation.Field(&c.ElmJSONBin, validation.Required),
		validation.Field(&c.RegistryURL, validation.Required, is.URL),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}
