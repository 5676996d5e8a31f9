// Package config loads service settings from the environment.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

type Config struct {
	Host            string
	Port            int
	LogLevel        string
	ShutdownTimeout time.Duration

	ModelURL          string
	ModelCacheDir     string
	OnnxLibraryPath   string
	ModelInputName    string
	ModelOutputName   string
	ModelOutputShape  []int64
	ModelIntraThreads int
	ImageHeight       int
	ImageWidth        int
	MaxImagePixels    int64

	MaxUploadBytes int64

	StoreBackend  string
	DatabaseDSN   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Collection    string
}

// Load reads the configuration. Variables from a .env file in the working
// directory are applied first without overriding the real environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnvAsInt("PORT", 8080),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		ModelURL:          getEnv("MODEL_URL", "file://models/model.onnx"),
		ModelCacheDir:     getEnv("MODEL_CACHE_DIR", filepath.Join(os.TempDir(), "skin-check-model")),
		OnnxLibraryPath:   getEnv("ONNX_LIBRARY_PATH", ""),
		ModelInputName:    getEnv("MODEL_INPUT_NAME", "input"),
		ModelOutputName:   getEnv("MODEL_OUTPUT_NAME", "output"),
		ModelOutputShape:  getEnvAsShape("MODEL_OUTPUT_SHAPE", []int64{1, 1}),
		ModelIntraThreads: getEnvAsInt("MODEL_INTRA_OP_THREADS", 0),
		ImageHeight:       getEnvAsInt("IMAGE_HEIGHT", 224),
		ImageWidth:        getEnvAsInt("IMAGE_WIDTH", 224),
		MaxImagePixels:    getEnvAsInt64("MAX_IMAGE_PIXELS", 40_000_000),

		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 1_000_000),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseDSN:   getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=skincheck port=5432 sslmode=disable"),
		SQLitePath:    getEnv("SQLITE_PATH", "predictions.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		Collection:    getEnv("PREDICTION_COLLECTION", "predictions"),
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsShape parses a comma separated list of dimensions, e.g. "1,1".
func getEnvAsShape(key string, defaultValue []int64) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	shape := make([]int64, 0, len(parts))
	for _, p := range parts {
		dim, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || dim <= 0 {
			return defaultValue
		}
		shape = append(shape, dim)
	}
	return shape
}
