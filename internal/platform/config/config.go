package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type HTTPConfig struct {
	Addr string
}

// ForumConfig carries the process-wide forum defaults. Loaded once at start,
// read-only afterwards.
type ForumConfig struct {
	PerPage       int
	SearchEnabled bool
	SearchURL     string
	SearchAPIKey  string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	Forum       ForumConfig
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
		Forum: ForumConfig{
			PerPage:      envInt("FORUM_PER_PAGE", 20),
			SearchURL:    strings.TrimSpace(os.Getenv("SEARCH_URL")),
			SearchAPIKey: strings.TrimSpace(os.Getenv("SEARCH_API_KEY")),
		},
	}
	cfg.Forum.SearchEnabled = cfg.Forum.SearchURL != ""
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
