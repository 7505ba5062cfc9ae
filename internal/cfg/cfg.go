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

	"afyaband-ml/internal/common"
	"afyaband-ml/internal/risk"
)

const (
	defaultInferenceTimeout = 5 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
)

type Settings struct {
	Host              string
	Port              int
	Debug             bool
	ModelsDir         string
	RandomForestFile  string
	XGBoostFile       string
	PythonPath        string
	InferenceTimeout  time.Duration
	EnableSurrogates  bool
	DefaultAge        int
	DefaultBMI        float64
	CriticalThreshold float64
	WarningThreshold  float64
	DataPath          string
	StreamWindow      int
	StreamMinReadings int
	CORSOrigins       []string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

type ConfigFile struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		Debug           bool     `yaml:"debug"`
		CORSOrigins     []string `yaml:"corsOrigins"`
		ShutdownTimeout string   `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Models struct {
		Dir              string `yaml:"dir"`
		RandomForest     string `yaml:"randomForest"`
		XGBoost          string `yaml:"xgboost"`
		PythonPath       string `yaml:"pythonPath"`
		InferenceTimeout string `yaml:"inferenceTimeout"`
		EnableSurrogates bool   `yaml:"enableSurrogates"`
	} `yaml:"models"`

	Profile struct {
		DefaultAge int     `yaml:"defaultAge"`
		DefaultBMI float64 `yaml:"defaultBMI"`
	} `yaml:"profile"`

	Risk struct {
		CriticalThreshold float64 `yaml:"criticalThreshold"`
		WarningThreshold  float64 `yaml:"warningThreshold"`
	} `yaml:"risk"`

	Stream struct {
		Window      int `yaml:"window"`
		MinReadings int `yaml:"minReadings"`
	} `yaml:"stream"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load reads a .env file when present, then settings from the YAML file named
// by CONFIG_FILE or from the environment alone. Environment variables always
// win over YAML values.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
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

	inferenceTimeout, err := time.ParseDuration(config.Models.InferenceTimeout)
	if err != nil {
		inferenceTimeout = defaultInferenceTimeout
	}

	shutdownTimeout, err := time.ParseDuration(config.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = defaultShutdownTimeout
	}

	settings := Settings{
		Host:              getEnvOrDefault(common.EnvHost, orString(config.Server.Host, common.DefaultHost)),
		Port:              getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		Debug:             getBoolFromEnvOrConfig(common.EnvDebug, config.Server.Debug),
		ModelsDir:         getEnvOrDefault(common.EnvModelsDir, orString(config.Models.Dir, common.DefaultModelsDir)),
		RandomForestFile:  getEnvOrDefault(common.EnvRandomForestModel, orString(config.Models.RandomForest, common.DefaultRandomForestModel)),
		XGBoostFile:       getEnvOrDefault(common.EnvXGBoostModel, orString(config.Models.XGBoost, common.DefaultXGBoostModel)),
		PythonPath:        getEnvOrDefault(common.EnvPythonPath, config.Models.PythonPath),
		InferenceTimeout:  getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		EnableSurrogates:  getBoolFromEnvOrConfig(common.EnvEnableSurrogates, config.Models.EnableSurrogates),
		DefaultAge:        getIntFromEnvOrConfig(common.EnvDefaultAge, config.Profile.DefaultAge, common.DefaultAge),
		DefaultBMI:        getFloatFromEnvOrConfig(common.EnvDefaultBMI, config.Profile.DefaultBMI, common.DefaultBMI),
		CriticalThreshold: getFloatFromEnvOrConfig(common.EnvCriticalThreshold, config.Risk.CriticalThreshold, common.DefaultCriticalThreshold),
		WarningThreshold:  getFloatFromEnvOrConfig(common.EnvWarningThreshold, config.Risk.WarningThreshold, common.DefaultWarningThreshold),
		DataPath:          getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		StreamWindow:      getIntFromEnvOrConfig(common.EnvStreamWindow, config.Stream.Window, common.DefaultStreamWindow),
		StreamMinReadings: getIntFromEnvOrConfig(common.EnvStreamMinReadings, config.Stream.MinReadings, common.DefaultStreamMinReadings),
		CORSOrigins:       getListFromEnvOrConfig(common.EnvCORSOrigins, config.Server.CORSOrigins, []string{"*"}),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, orString(config.System.LogFormat, common.DefaultLogFormat)),
		ShutdownTimeout:   shutdownTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Host:              getEnvOrDefault(common.EnvHost, common.DefaultHost),
		Port:              getIntOrDefault(common.EnvPort, common.DefaultPort),
		Debug:             getBoolOrDefault(common.EnvDebug, false),
		ModelsDir:         getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		RandomForestFile:  getEnvOrDefault(common.EnvRandomForestModel, common.DefaultRandomForestModel),
		XGBoostFile:       getEnvOrDefault(common.EnvXGBoostModel, common.DefaultXGBoostModel),
		PythonPath:        os.Getenv(common.EnvPythonPath), // optional
		InferenceTimeout:  getDurationOrDefault(common.EnvInferenceTimeout, defaultInferenceTimeout),
		EnableSurrogates:  getBoolOrDefault(common.EnvEnableSurrogates, false),
		DefaultAge:        getIntOrDefault(common.EnvDefaultAge, common.DefaultAge),
		DefaultBMI:        getFloatOrDefault(common.EnvDefaultBMI, common.DefaultBMI),
		CriticalThreshold: getFloatOrDefault(common.EnvCriticalThreshold, common.DefaultCriticalThreshold),
		WarningThreshold:  getFloatOrDefault(common.EnvWarningThreshold, common.DefaultWarningThreshold),
		DataPath:          os.Getenv(common.EnvDataPath), // optional
		StreamWindow:      getIntOrDefault(common.EnvStreamWindow, common.DefaultStreamWindow),
		StreamMinReadings: getIntOrDefault(common.EnvStreamMinReadings, common.DefaultStreamMinReadings),
		CORSOrigins:       splitOrDefault(os.Getenv(common.EnvCORSOrigins), []string{"*"}),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		ShutdownTimeout:   defaultShutdownTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Thresholds returns the configured risk tiers.
func (s *Settings) Thresholds() risk.Thresholds {
	return risk.Thresholds{Critical: s.CriticalThreshold, Warning: s.WarningThreshold}
}

// EffectiveLogLevel is LogLevel, raised to debug when Debug is set.
func (s *Settings) EffectiveLogLevel() string {
	if s.Debug && s.LogLevel != "trace" {
		return "debug"
	}
	return s.LogLevel
}

// Addr is the listen address for the HTTP server.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getListFromEnvOrConfig(key string, configValue, def []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, def)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return def
}

func getIntFromEnvOrConfig(key string, configValue, def int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getFloatFromEnvOrConfig(key string, configValue, def float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true, "disabled": true,
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}

	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.RandomForestFile == "" || settings.XGBoostFile == "" {
		return fmt.Errorf("model file names cannot be empty")
	}

	if settings.InferenceTimeout < 100*time.Millisecond || settings.InferenceTimeout > time.Minute {
		return fmt.Errorf("inference timeout must be between 100ms and 1m, got %v", settings.InferenceTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	// Profile defaults must themselves pass request validation
	if settings.DefaultAge <= common.MinAge || settings.DefaultAge > common.MaxAge {
		return fmt.Errorf("default age must be between %d and %d, got %d", common.MinAge+1, common.MaxAge, settings.DefaultAge)
	}
	if settings.DefaultBMI < common.MinBMI || settings.DefaultBMI > common.MaxBMI {
		return fmt.Errorf("default BMI must be between %.0f and %.0f, got %f", common.MinBMI, common.MaxBMI, settings.DefaultBMI)
	}

	if err := settings.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid risk thresholds: %w", err)
	}

	if settings.StreamWindow < common.MinStreamWindow || settings.StreamWindow > common.MaxStreamWindow {
		return fmt.Errorf("stream window must be between %d and %d, got %d", common.MinStreamWindow, common.MaxStreamWindow, settings.StreamWindow)
	}
	if settings.StreamMinReadings < 1 || settings.StreamMinReadings > settings.StreamWindow {
		return fmt.Errorf("stream min readings must be between 1 and the window size %d, got %d", settings.StreamWindow, settings.StreamMinReadings)
	}

	if len(settings.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be specified")
	}

	if !validLogLevels[strings.ToLower(settings.LogLevel)] {
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
