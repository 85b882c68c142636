package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/mmk-jobqueue/config"
)

// logLevel backs the default handler so the level can be raised or lowered once config is loaded.
var logLevel = new(slog.LevelVar)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of the logger returned by InitLogger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// ConfigureLogger applies the loaded log level and, in development mode, swaps the JSON
// handler for a human-readable text handler with source locations. It returns the new default.
func ConfigureLogger(cfg *config.AppConfig) *slog.Logger {
	if cfg == nil {
		return slog.Default()
	}
	SetLogLevel(cfg.SlogLevel())
	if !cfg.IsDev {
		return slog.Default()
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true,
	}))
	slog.SetDefault(logger)
	return logger
}

// envFileVar names extra dotenv files (comma separated) loaded ahead of ./.env.
const envFileVar = "JOBQUEUE_ENV_FILE"

// LoadConfig loads configuration from dotenv files and the environment. Variables already
// present in the environment win over dotenv values.
func LoadConfig() (config.AppConfig, error) {
	if err := loadDotenv(dotenvFiles()); err != nil {
		return config.AppConfig{}, err
	}

	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

func dotenvFiles() []string {
	var files []string
	for f := range strings.SplitSeq(os.Getenv(envFileVar), ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return append(files, ".env")
}

// loadDotenv loads each file in order. Missing files are skipped.
func loadDotenv(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ValidateServiceConfig validates that at least one service is enabled.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	return nil
}

// GetEnabledServices returns the enabled service names in a stable order.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	enabledServices := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabledServices = append(enabledServices, string(mode))
		}
	}
	slices.Sort(enabledServices)
	return enabledServices
}
