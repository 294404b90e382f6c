// Package config loads witdeps settings from the environment, an optional
// .env file and an optional YAML table of known interfaces.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/fetch"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvCacheDir        = "WITDEPS_CACHE_DIR"
	EnvRegistry        = "WITDEPS_REGISTRY"
	EnvLogLevel        = "WITDEPS_LOG_LEVEL"
	EnvKnownInterfaces = "WITDEPS_KNOWN_INTERFACES"
	EnvValidateCore    = "WITDEPS_VALIDATE_CORE"
	EnvS3Endpoint      = "WITDEPS_S3_ENDPOINT"
	EnvS3Region        = "WITDEPS_S3_REGION"
	EnvS3AccessKey     = "WITDEPS_S3_ACCESS_KEY"
	EnvS3SecretKey     = "WITDEPS_S3_SECRET_KEY"
	EnvS3Bucket        = "WITDEPS_S3_BUCKET"
	EnvS3Prefix        = "WITDEPS_S3_PREFIX"
	EnvS3UseSSL        = "WITDEPS_S3_USE_SSL"
)

type Config struct {
	// S3 is nil unless an endpoint is configured.
	S3       *fetch.S3Config
	CacheDir string
	Registry string
	LogLevel string
	// KnownFile is the YAML file Known was extended from, if any.
	KnownFile    string
	Known        bindings.KnownInterfaces
	ValidateCore bool
}

// Load reads .env from the working directory when present, then the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a configuration from a variable lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &Config{
		CacheDir:     firstNonEmpty(env(EnvCacheDir), defaultCacheDir()),
		Registry:     firstNonEmpty(env(EnvRegistry), fetch.DefaultRegistry),
		LogLevel:     firstNonEmpty(env(EnvLogLevel), "info"),
		KnownFile:    env(EnvKnownInterfaces),
		Known:        bindings.DefaultKnownInterfaces(),
		ValidateCore: parseBool(env(EnvValidateCore), true),
	}

	if endpoint := env(EnvS3Endpoint); endpoint != "" {
		cfg.S3 = &fetch.S3Config{
			Endpoint:  endpoint,
			Region:    firstNonEmpty(env(EnvS3Region), "us-east-1"),
			AccessKey: env(EnvS3AccessKey),
			SecretKey: env(EnvS3SecretKey),
			Bucket:    firstNonEmpty(env(EnvS3Bucket), "witdeps-cache"),
			Prefix:    env(EnvS3Prefix),
			UseSSL:    parseBool(env(EnvS3UseSSL), true),
		}
	}

	if cfg.KnownFile != "" {
		known, err := LoadKnownInterfaces(cfg.KnownFile)
		if err != nil {
			return nil, err
		}
		cfg.Known = cfg.Known.Merge(known)
	}
	return cfg, nil
}

// LoadKnownInterfaces reads a YAML file of the form
//
//	std:
//	  - wasi:io
//	sdk:
//	  - pattern: wasi:http
//	    path: spin_sdk::http
func LoadKnownInterfaces(path string) (bindings.KnownInterfaces, error) {
	var known bindings.KnownInterfaces
	data, err := os.ReadFile(path)
	if err != nil {
		return known, errors.IO("read known interfaces", path, err)
	}
	if err := yaml.Unmarshal(data, &known); err != nil {
		return known, errors.New(errors.PhaseConfig, errors.KindSyntax).
			Name(path).
			Detail("decode known interfaces").
			Cause(err).
			Build()
	}
	for i, b := range known.SDK {
		if b.Pattern == "" || b.Path == "" {
			return known, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Name(path).
				Detail("sdk entry %d needs pattern and path", i).
				Build()
		}
	}
	return known, nil
}

// S3Store opens the configured remote cache, or returns nil.
func (c *Config) S3Store() (fetch.Store, error) {
	if c.S3 == nil {
		return nil, nil
	}
	s, err := fetch.NewS3Store(*c.S3)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Cache opens the component cache.
func (c *Config) Cache() (*fetch.Cache, error) {
	remote, err := c.S3Store()
	if err != nil {
		return nil, err
	}
	return fetch.NewCache(c.CacheDir, remote)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "witdeps")
}

func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
