// Package config loads application configuration from config files,
// environment variables, and the per-user .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     App     `mapstructure:"app"`
	Sources Sources `mapstructure:"sources"`
	AI      AI      `mapstructure:"ai"`
	Output  Output  `mapstructure:"output"`
	Cache   Cache   `mapstructure:"cache"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	Contact string `mapstructure:"contact"` // contact address sent to polite-pool APIs (OpenAlex mailto)
}

// Sources holds per-upstream credentials and knobs
type Sources struct {
	Pubmed          PubmedConfig          `mapstructure:"pubmed"`
	SemanticScholar SemanticScholarConfig `mapstructure:"semanticscholar"`
}

// PubmedConfig holds NCBI E-utilities configuration. An API key lifts the
// rate limit from 3 to 10 requests per second.
type PubmedConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SemanticScholarConfig holds Semantic Scholar Graph API configuration.
type SemanticScholarConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AI holds LLM configuration for the optional narrative brief
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Output holds report output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
}

// Cache holds report cache configuration
type Cache struct {
	Directory string `mapstructure:"directory"`
	TTL       string `mapstructure:"ttl"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	loadEnvFiles()

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".litscout")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// loadEnvFiles reads the per-user .env and then a local one. godotenv never
// overrides variables already present in the process environment, so the
// precedence is: process env > ~/.config/litscout/.env > ./.env.
func loadEnvFiles() {
	if home, err := os.UserHomeDir(); err == nil {
		userEnv := filepath.Join(home, ".config", "litscout", ".env")
		if _, err := os.Stat(userEnv); err == nil {
			_ = godotenv.Load(userEnv)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.contact", "litscout@example.com")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-1.5-flash-latest")

	// Output defaults
	viper.SetDefault("output.directory", "reports")

	// Cache defaults
	viper.SetDefault("cache.directory", "~/.cache/litscout")
	viper.SetDefault("cache.ttl", "24h")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("sources.pubmed.api_key", []string{
		"NCBI_API_KEY",
		"PUBMED_API_KEY",
	})

	bindEnvKeys("sources.semanticscholar.api_key", []string{
		"S2_API_KEY",
		"SEMANTIC_SCHOLAR_API_KEY",
	})

	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys("app.contact", []string{
		"LITSCOUT_CONTACT",
		"OPENALEX_MAILTO",
	})

	bindEnvKeys("app.debug", []string{
		"LITSCOUT_DEBUG",
		"DEBUG",
	})

	bindEnvKeys("cache.directory", []string{
		"LITSCOUT_CACHE_DIR",
	})

	bindEnvKeys("output.directory", []string{
		"LITSCOUT_OUTPUT_DIR",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.Cache.Directory != "" {
		config.Cache.Directory = expandPath(config.Cache.Directory)
	}
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}

	if config.Cache.TTL != "" {
		if _, err := time.ParseDuration(config.Cache.TTL); err != nil {
			return fmt.Errorf("invalid duration for cache.ttl: %s", config.Cache.TTL)
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Convenience getters for commonly used configuration values
func GetNCBIAPIKey() string      { return Get().Sources.Pubmed.APIKey }
func GetS2APIKey() string        { return Get().Sources.SemanticScholar.APIKey }
func GetGeminiAPIKey() string    { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string     { return Get().AI.Gemini.Model }
func GetContact() string         { return Get().App.Contact }
func GetOutputDirectory() string { return Get().Output.Directory }
func GetCacheDirectory() string  { return Get().Cache.Directory }
func IsDebugMode() bool          { return Get().App.Debug }

// GetCacheTTL returns the report cache TTL, falling back to 24h if the
// configured value cannot be parsed.
func GetCacheTTL() time.Duration {
	ttl, err := time.ParseDuration(Get().Cache.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return ttl
}

// HasGeminiKey reports whether a usable Gemini API key is configured.
func HasGeminiKey() bool {
	key := GetGeminiAPIKey()
	if key == "" {
		return false
	}
	// Reject obvious placeholder values from copied config templates.
	placeholders := []string{"your-api-key", "YOUR_API_KEY", "PLACEHOLDER", "CHANGE_ME"}
	for _, placeholder := range placeholders {
		if key == placeholder {
			return false
		}
	}
	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
