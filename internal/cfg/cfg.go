// Package cfg loads service settings from a YAML file named by CONFIG_FILE,
// from environment variables, or both (environment wins). A .env file in the
// working directory is loaded into the environment first when present.
package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tabml/internal/preprocess"
)

type Settings struct {
	DataPath       string
	TargetColumn   string
	IDPrefix       string
	Seed           int64
	TestSize       float64
	DropColumns    []string
	LogLevel       string
	LogFile        string
	LogMaxSizeMB   int
	LogMaxBackups  int
	ServerPort     int
	ServerURL      string
	ModelCacheSize int
	RequestTimeout time.Duration
	MaxBatchRows   int
}

type ConfigFile struct {
	Data struct {
		Path string `yaml:"path"`
	} `yaml:"data"`

	Training struct {
		Target      string   `yaml:"target"`
		IDPrefix    string   `yaml:"idPrefix"`
		Seed        *int64   `yaml:"seed"`
		TestSize    float64  `yaml:"testSize"`
		DropColumns []string `yaml:"dropColumns"`
	} `yaml:"training"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
	} `yaml:"logging"`

	Server struct {
		Port           int    `yaml:"port"`
		URL            string `yaml:"url"`
		ModelCacheSize int    `yaml:"modelCacheSize"`
		RequestTimeout string `yaml:"requestTimeout"`
		MaxBatchRows   int    `yaml:"maxBatchRows"`
	} `yaml:"server"`
}

func Load() (Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv adds the variables of path to the environment without
// overriding ones that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 10 * time.Second
	}

	seed := int64(42)
	if config.Training.Seed != nil {
		seed = *config.Training.Seed
	}

	dropColumns := config.Training.DropColumns
	if dropColumns == nil {
		dropColumns = preprocess.DefaultDropColumns
	}

	settings := Settings{
		DataPath:       getEnvOrDefault("DATA_PATH", orDefault(config.Data.Path, "data")),
		TargetColumn:   getEnvOrDefault("TARGET_COLUMN", config.Training.Target),
		IDPrefix:       getEnvOrDefault("MODEL_ID_PREFIX", orDefault(config.Training.IDPrefix, "model")),
		Seed:           getInt64OrDefault("SEED", seed),
		TestSize:       getFloatFromEnvOrConfig("TEST_SIZE", config.Training.TestSize, 0.2),
		DropColumns:    getListOrDefault("DROP_COLUMNS", dropColumns),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", orDefault(config.Logging.Level, "info")),
		LogFile:        getEnvOrDefault("LOG_FILE", config.Logging.File),
		LogMaxSizeMB:   getIntFromEnvOrConfig("LOG_MAX_SIZE_MB", config.Logging.MaxSizeMB, 100),
		LogMaxBackups:  getIntFromEnvOrConfig("LOG_MAX_BACKUPS", config.Logging.MaxBackups, 3),
		ServerPort:     getIntFromEnvOrConfig("SERVER_PORT", config.Server.Port, 8080),
		ServerURL:      getEnvOrDefault("SERVER_URL", config.Server.URL),
		ModelCacheSize: getIntFromEnvOrConfig("MODEL_CACHE_SIZE", config.Server.ModelCacheSize, 16),
		RequestTimeout: getDurationOrDefault("REQUEST_TIMEOUT", requestTimeout),
		MaxBatchRows:   getIntFromEnvOrConfig("MAX_BATCH_ROWS", config.Server.MaxBatchRows, 10000),
	}
	settings.ServerURL = orDefault(settings.ServerURL, fmt.Sprintf("http://localhost:%d", settings.ServerPort))

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:       getEnvOrDefault("DATA_PATH", "data"),
		TargetColumn:   os.Getenv("TARGET_COLUMN"), // optional, commands may pass it
		IDPrefix:       getEnvOrDefault("MODEL_ID_PREFIX", "model"),
		Seed:           getInt64OrDefault("SEED", 42),
		TestSize:       getFloatOrDefault("TEST_SIZE", 0.2),
		DropColumns:    getListOrDefault("DROP_COLUMNS", preprocess.DefaultDropColumns),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		LogMaxSizeMB:   getIntOrDefault("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:  getIntOrDefault("LOG_MAX_BACKUPS", 3),
		ServerPort:     getIntOrDefault("SERVER_PORT", 8080),
		ModelCacheSize: getIntOrDefault("MODEL_CACHE_SIZE", 16),
		RequestTimeout: getDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second),
		MaxBatchRows:   getIntOrDefault("MAX_BATCH_ROWS", 10000),
	}
	settings.ServerURL = getEnvOrDefault("SERVER_URL", fmt.Sprintf("http://localhost:%d", settings.ServerPort))

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getListOrDefault splits a comma separated variable. Set but empty means an
// empty list.
func getListOrDefault(key string, defaultValue []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.IDPrefix == "" || strings.ContainsAny(settings.IDPrefix, "/ ") {
		return fmt.Errorf("model id prefix must be non-empty without '/' or spaces, got %q", settings.IDPrefix)
	}

	if settings.TestSize <= 0 || settings.TestSize >= 0.9 {
		return fmt.Errorf("test size must be between 0 and 0.9, got %f", settings.TestSize)
	}
	if settings.Seed < 0 {
		return fmt.Errorf("seed must be non-negative, got %d", settings.Seed)
	}
	for _, col := range settings.DropColumns {
		if col == settings.TargetColumn && col != "" {
			return fmt.Errorf("target column %q cannot also be dropped", col)
		}
	}

	if !logLevels[strings.ToLower(settings.LogLevel)] {
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}
	if settings.LogMaxSizeMB <= 0 || settings.LogMaxSizeMB > 10000 {
		return fmt.Errorf("log max size must be between 1 and 10000 MB, got %d", settings.LogMaxSizeMB)
	}
	if settings.LogMaxBackups < 0 || settings.LogMaxBackups > 100 {
		return fmt.Errorf("log max backups must be between 0 and 100, got %d", settings.LogMaxBackups)
	}

	if settings.ServerPort < 1024 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", settings.ServerPort)
	}
	if settings.ModelCacheSize <= 0 || settings.ModelCacheSize > 1024 {
		return fmt.Errorf("model cache size must be between 1 and 1024, got %d", settings.ModelCacheSize)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}
	if settings.MaxBatchRows <= 0 || settings.MaxBatchRows > 1000000 {
		return fmt.Errorf("max batch rows must be between 1 and 1000000, got %d", settings.MaxBatchRows)
	}

	return nil
}
