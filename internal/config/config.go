package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini/gemini-2.5-flash"
	// DefaultPort matches the port browser clients connect to.
	DefaultPort = 8000
	// DefaultTemperature is the generation temperature for new conversations.
	DefaultTemperature = 0.2
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Default returns the built-in configuration.
func Default() *types.Config {
	temp := DefaultTemperature
	return &types.Config{
		Model:    DefaultModel,
		Provider: make(map[string]types.ProviderConfig),
		Server: types.ServerConfig{
			Hostname:       "0.0.0.0",
			Port:           DefaultPort,
			AllowedOrigins: []string{"*"},
			PingInterval:   "30s",
			WriteTimeout:   "10s",
			InboundQueue:   16,
		},
		Persona: types.PersonaConfig{
			Temperature: &temp,
			Stop:        []string{},
		},
		Log: types.LogConfig{Level: "INFO"},
	}
}

// LoadEnv loads .env files into the process environment. Missing files
// are skipped and variables already set are left untouched.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/chatrelay/)
// 3. Project config (chatrelay.json / chatrelay.jsonc in directory)
// 4. CHATRELAY_CONFIG file
// 5. CHATRELAY_CONFIG_CONTENT inline JSON
// 6. Environment variables
func Load(directory string) (*types.Config, error) {
	config := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	var candidates [][2]string
	globalPath := GetPaths().Config
	candidates = append(candidates,
		[2]string{GlobalConfigPath(), globalPath},
		[2]string{filepath.Join(globalPath, "chatrelay.jsonc"), globalPath},
	)
	if directory != "" {
		candidates = append(candidates,
			[2]string{filepath.Join(directory, "chatrelay.json"), directory},
			[2]string{filepath.Join(directory, "chatrelay.jsonc"), directory},
		)
	}
	if configPath := os.Getenv("CHATRELAY_CONFIG"); configPath != "" {
		candidates = append(candidates, [2]string{configPath, filepath.Dir(configPath)})
	}

	for _, c := range candidates {
		if err := loadOnce(c[0], c[1]); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("CHATRELAY_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("CHATRELAY_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	applyEnvOverrides(config)
	normalizeProviderConfig(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := resolvePath(filePattern.FindStringSubmatch(match)[1], baseDir)

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // unresolved references stay as written
		}

		// Escape for a JSON string; strip the surrounding quotes Marshal adds.
		escaped, _ := json.Marshal(string(content))
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// resolvePath expands ~/ and makes relative paths relative to baseDir.
func resolvePath(p, baseDir string) string {
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(os.Getenv("HOME"), p[2:])
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		return filepath.Join(baseDir, p)
	}
	return p
}

// normalizeProviderConfig merges Options fields into direct fields.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target. Zero values in source
// leave target untouched.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	s, t := source.Server, &target.Server
	if s.Hostname != "" {
		t.Hostname = s.Hostname
	}
	if s.Port != 0 {
		t.Port = s.Port
	}
	if len(s.AllowedOrigins) > 0 {
		t.AllowedOrigins = s.AllowedOrigins
	}
	if s.PingInterval != "" {
		t.PingInterval = s.PingInterval
	}
	if s.WriteTimeout != "" {
		t.WriteTimeout = s.WriteTimeout
	}
	if s.InboundQueue != 0 {
		t.InboundQueue = s.InboundQueue
	}

	p, tp := source.Persona, &target.Persona
	if p.File != "" {
		tp.File = p.File
	}
	if p.Directive != "" {
		tp.Directive = p.Directive
	}
	if p.Temperature != nil {
		tp.Temperature = p.Temperature
	}
	if p.Stop != nil {
		tp.Stop = p.Stop
	}
	if p.Watch {
		tp.Watch = true
	}

	r, tr := source.Registry, &target.Registry
	if r.MaxEntries != 0 {
		tr.MaxEntries = r.MaxEntries
	}
	if r.IdleTTL != "" {
		tr.IdleTTL = r.IdleTTL
	}
	if r.SweepInterval != "" {
		tr.SweepInterval = r.SweepInterval
	}

	if source.Log.Level != "" {
		target.Log.Level = source.Log.Level
	}
	if source.Log.Pretty {
		target.Log.Pretty = true
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys; the first variable found wins.
	providerEnvMap := map[string][]string{
		"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"openai":    {"OPENAI_API_KEY"},
		"anthropic": {"ANTHROPIC_API_KEY"},
		"ark":       {"ARK_API_KEY"},
	}

	for provider, envVars := range providerEnvMap {
		for _, envVar := range envVars {
			apiKey := os.Getenv(envVar)
			if apiKey == "" {
				continue
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
			break
		}
	}

	if model := os.Getenv("CHATRELAY_MODEL"); model != "" {
		config.Model = model
	}
	if port := os.Getenv("CHATRELAY_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Server.Port = n
		}
	}
	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if persona := os.Getenv("CHATRELAY_PERSONA_FILE"); persona != "" {
		config.Persona.File = persona
	}
}

// Duration parses a configured duration, returning def for an empty string.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
