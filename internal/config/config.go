package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the effective patchwise configuration.
type Config struct {
	Reviews        []string      `yaml:"reviews,omitempty"`
	ShortOnly      bool          `yaml:"shortOnly"`
	Model          string        `yaml:"model"`
	ProviderURL    string        `yaml:"providerUrl,omitempty"`
	APIKey         string        `yaml:"apiKey,omitempty"`
	TimeoutSeconds int           `yaml:"timeoutSeconds"`
	MaxConcurrency int           `yaml:"maxConcurrency"`
	Retries        int           `yaml:"retries"`
	Format         string        `yaml:"format"`
	FailOn         string        `yaml:"failOn"`
	LogLevel       string        `yaml:"logLevel"`
	LogFile        string        `yaml:"logFile,omitempty"`
	RepoPath       string        `yaml:"repoPath"`
	RulesFile      string        `yaml:"rulesFile,omitempty"`
	Context        ContextConfig `yaml:"context"`
	Build          BuildConfig   `yaml:"build"`
	Cache          CacheConfig   `yaml:"cache"`
	Privacy        PrivacyConfig `yaml:"privacy"`
}

// ContextConfig controls how much surrounding code AI reviewers see.
type ContextConfig struct {
	SurroundLines int    `yaml:"surroundLines"`
	HistoryDepth  int    `yaml:"historyDepth"`
	LSP           bool   `yaml:"lsp"`
	Clangd        string `yaml:"clangd"`
}

// BuildConfig controls kernel builds run by the static reviewers.
type BuildConfig struct {
	Arch string `yaml:"arch"`
	LLVM bool   `yaml:"llvm"`
	// Jobs is the make -j value; 0 means one per CPU.
	Jobs int `yaml:"jobs"`
	// PatchDir holds fixup series applied before the tools run:
	// general/*.patch, then <reviewer>/*.patch.
	PatchDir string `yaml:"patchDir,omitempty"`
}

// CacheConfig controls the baseline output cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir,omitempty"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// PrivacyConfig controls redaction of text sent to a model.
type PrivacyConfig struct {
	RedactSecrets bool     `yaml:"redactSecrets"`
	RedactPaths   []string `yaml:"redactPaths,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:          "openai/Pro",
		TimeoutSeconds: 300,
		MaxConcurrency: 4,
		Retries:        3,
		Format:         "text",
		FailOn:         "none",
		LogLevel:       "warn",
		RepoPath:       ".",
		Context: ContextConfig{
			SurroundLines: 3,
			HistoryDepth:  5,
			Clangd:        "clangd",
		},
		Build: BuildConfig{
			Arch: "arm64",
			LLVM: true,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
		},
	}
}

// fileConfig mirrors Config with pointer fields so that a key missing from
// the file leaves the lower layer alone.
type fileConfig struct {
	Reviews        *[]string          `yaml:"reviews"`
	ShortOnly      *bool              `yaml:"shortOnly"`
	Model          *string            `yaml:"model"`
	ProviderURL    *string            `yaml:"providerUrl,omitempty"`
	APIKey         *string            `yaml:"apiKey"`
	TimeoutSeconds *int               `yaml:"timeoutSeconds"`
	MaxConcurrency *int               `yaml:"maxConcurrency"`
	Retries        *int               `yaml:"retries"`
	Format         *string            `yaml:"format"`
	FailOn         *string            `yaml:"failOn"`
	LogLevel       *string            `yaml:"logLevel"`
	LogFile        *string            `yaml:"logFile"`
	RepoPath       *string            `yaml:"repoPath"`
	RulesFile      *string            `yaml:"rulesFile"`
	Context        *fileContextConfig `yaml:"context"`
	Build          *fileBuildConfig   `yaml:"build"`
	Cache          *fileCacheConfig   `yaml:"cache"`
	Privacy        *filePrivacyConfig `yaml:"privacy"`
}

type fileContextConfig struct {
	SurroundLines *int    `yaml:"surroundLines"`
	HistoryDepth  *int    `yaml:"historyDepth"`
	LSP           *bool   `yaml:"lsp"`
	Clangd        *string `yaml:"clangd"`
}

type fileBuildConfig struct {
	Arch     *string `yaml:"arch"`
	LLVM     *bool   `yaml:"llvm"`
	Jobs     *int    `yaml:"jobs"`
	PatchDir *string `yaml:"patchDir"`
}

type fileCacheConfig struct {
	Enabled    *bool   `yaml:"enabled"`
	Dir        *string `yaml:"dir"`
	TTLSeconds *int    `yaml:"ttlSeconds"`
}

type filePrivacyConfig struct {
	RedactSecrets *bool     `yaml:"redactSecrets"`
	RedactPaths   *[]string `yaml:"redactPaths"`
}

// ConfigDir returns the platform-appropriate config directory for patchwise.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "patchwise"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "patchwise"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "patchwise"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "patchwise"), nil
	default:
		return filepath.Join(home, ".config", "patchwise"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return fc, nil
}

// LoadFile returns the defaults overlaid with the config file. A missing
// file is not an error.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	fc, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	mergeFile(&cfg, fc)
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ErrExists is returned by Init when a config file is already present.
var ErrExists = errors.New("config file already exists")

// Init writes the default config to the config file and returns its path.
func Init(force bool) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s: %w", path, ErrExists)
	}
	return path, Save(Default())
}

// Set updates a single key in the config file. The API key is never
// persisted this way.
func Set(key, value string) error {
	if key == "apiKey" {
		return fmt.Errorf("apiKey cannot be stored with config set; use PATCHWISE_API_KEY or OPENAI_API_KEY")
	}
	cfg, err := LoadFile()
	if err != nil {
		return err
	}
	if err := SetField(&cfg, key, value); err != nil {
		return err
	}
	return Save(cfg)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags and is keyed like SetField.
func Load(overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// Validate rejects values no command can work with.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json", "markdown", "sarif":
	default:
		return fmt.Errorf("invalid format %q (want text, json, markdown or sarif)", c.Format)
	}
	switch c.FailOn {
	case "none", "info", "warning", "error":
	default:
		return fmt.Errorf("invalid failOn %q (want none, info, warning or error)", c.FailOn)
	}
	if c.TimeoutSeconds < 0 || c.MaxConcurrency < 0 || c.Retries < 0 || c.Build.Jobs < 0 {
		return errors.New("timeoutSeconds, maxConcurrency, retries and build.jobs must not be negative")
	}
	return nil
}

func mergeFile(dst *Config, src fileConfig) {
	setIf(&dst.Reviews, src.Reviews)
	setIf(&dst.ShortOnly, src.ShortOnly)
	setIf(&dst.Model, src.Model)
	setIf(&dst.ProviderURL, src.ProviderURL)
	setIf(&dst.APIKey, src.APIKey)
	setIf(&dst.TimeoutSeconds, src.TimeoutSeconds)
	setIf(&dst.MaxConcurrency, src.MaxConcurrency)
	setIf(&dst.Retries, src.Retries)
	setIf(&dst.Format, src.Format)
	setIf(&dst.FailOn, src.FailOn)
	setIf(&dst.LogLevel, src.LogLevel)
	setIf(&dst.LogFile, src.LogFile)
	setIf(&dst.RepoPath, src.RepoPath)
	setIf(&dst.RulesFile, src.RulesFile)
	if c := src.Context; c != nil {
		setIf(&dst.Context.SurroundLines, c.SurroundLines)
		setIf(&dst.Context.HistoryDepth, c.HistoryDepth)
		setIf(&dst.Context.LSP, c.LSP)
		setIf(&dst.Context.Clangd, c.Clangd)
	}
	if b := src.Build; b != nil {
		setIf(&dst.Build.Arch, b.Arch)
		setIf(&dst.Build.LLVM, b.LLVM)
		setIf(&dst.Build.Jobs, b.Jobs)
		setIf(&dst.Build.PatchDir, b.PatchDir)
	}
	if c := src.Cache; c != nil {
		setIf(&dst.Cache.Enabled, c.Enabled)
		setIf(&dst.Cache.Dir, c.Dir)
		setIf(&dst.Cache.TTLSeconds, c.TTLSeconds)
	}
	if p := src.Privacy; p != nil {
		setIf(&dst.Privacy.RedactSecrets, p.RedactSecrets)
		setIf(&dst.Privacy.RedactPaths, p.RedactPaths)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct{ env, key string }{
	{"PATCHWISE_REVIEWS", "reviews"},
	{"PATCHWISE_SHORT_ONLY", "shortOnly"},
	{"PATCHWISE_MODEL", "model"},
	{"PATCHWISE_PROVIDER_URL", "providerUrl"},
	{"PATCHWISE_TIMEOUT", "timeoutSeconds"},
	{"PATCHWISE_MAX_CONCURRENCY", "maxConcurrency"},
	{"PATCHWISE_RETRIES", "retries"},
	{"PATCHWISE_FORMAT", "format"},
	{"PATCHWISE_FAIL_ON", "failOn"},
	{"PATCHWISE_LOG_LEVEL", "logLevel"},
	{"PATCHWISE_LOG_FILE", "logFile"},
	{"PATCHWISE_REPO_PATH", "repoPath"},
	{"PATCHWISE_RULES_FILE", "rulesFile"},
	{"PATCHWISE_ARCH", "build.arch"},
	{"PATCHWISE_JOBS", "build.jobs"},
	{"PATCHWISE_PATCH_DIR", "build.patchDir"},
	{"PATCHWISE_CACHE_DIR", "cache.dir"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	if v := os.Getenv("PATCHWISE_API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.APIKey == "" {
		cfg.APIKey = v
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every key SetField accepts, in display order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for _, s := range setters {
		keys = append(keys, s.key)
	}
	return keys
}

type setter struct {
	key string
	set func(cfg *Config, value string) error
}

var setters = []setter{
	{"reviews", func(c *Config, v string) error { c.Reviews = splitList(v); return nil }},
	{"shortOnly", boolField(func(c *Config) *bool { return &c.ShortOnly })},
	{"model", stringField(func(c *Config) *string { return &c.Model })},
	{"providerUrl", stringField(func(c *Config) *string { return &c.ProviderURL })},
	{"apiKey", stringField(func(c *Config) *string { return &c.APIKey })},
	{"timeoutSeconds", intField(func(c *Config) *int { return &c.TimeoutSeconds })},
	{"maxConcurrency", intField(func(c *Config) *int { return &c.MaxConcurrency })},
	{"retries", intField(func(c *Config) *int { return &c.Retries })},
	{"format", stringField(func(c *Config) *string { return &c.Format })},
	{"failOn", stringField(func(c *Config) *string { return &c.FailOn })},
	{"logLevel", stringField(func(c *Config) *string { return &c.LogLevel })},
	{"logFile", stringField(func(c *Config) *string { return &c.LogFile })},
	{"repoPath", stringField(func(c *Config) *string { return &c.RepoPath })},
	{"rulesFile", stringField(func(c *Config) *string { return &c.RulesFile })},
	{"context.surroundLines", intField(func(c *Config) *int { return &c.Context.SurroundLines })},
	{"context.historyDepth", intField(func(c *Config) *int { return &c.Context.HistoryDepth })},
	{"context.lsp", boolField(func(c *Config) *bool { return &c.Context.LSP })},
	{"context.clangd", stringField(func(c *Config) *string { return &c.Context.Clangd })},
	{"build.arch", stringField(func(c *Config) *string { return &c.Build.Arch })},
	{"build.llvm", boolField(func(c *Config) *bool { return &c.Build.LLVM })},
	{"build.jobs", intField(func(c *Config) *int { return &c.Build.Jobs })},
	{"build.patchDir", stringField(func(c *Config) *string { return &c.Build.PatchDir })},
	{"cache.enabled", boolField(func(c *Config) *bool { return &c.Cache.Enabled })},
	{"cache.dir", stringField(func(c *Config) *string { return &c.Cache.Dir })},
	{"cache.ttlSeconds", intField(func(c *Config) *int { return &c.Cache.TTLSeconds })},
	{"privacy.redactSecrets", boolField(func(c *Config) *bool { return &c.Privacy.RedactSecrets })},
	{"privacy.redactPaths", func(c *Config, v string) error { c.Privacy.RedactPaths = splitList(v); return nil }},
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	for _, s := range setters {
		if s.key == key {
			if err := s.set(cfg, value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown config key: %s", key)
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("must be an integer: %w", err)
		}
		*field(c) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("must be true or false: %w", err)
		}
		*field(c) = b
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
