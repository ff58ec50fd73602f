package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string

	FFmpegPath string
	YtdlpPath  string
	// Base64-encoded Netscape cookie jar passed to the downloader when set.
	// The decoded blob only ever touches a scoped temp file.
	DownloaderCookiesB64 string

	// Bound on a single ingestion run, download and transcode included.
	IngestTimeout time.Duration

	MaxTracksPerUser   int
	MaxUploadDuration  time.Duration
	MaxUploadSizeBytes int64

	TempDir string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Public base URL prefixed to blob object paths to mint playable URLs.
	PublicBaseURL string

	JWTSecret string
	// Path to the newline-separated email allow-list, hot-reloaded on change.
	AllowlistPath string

	LogPath  string
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		YtdlpPath:            getEnv("YTDLP_PATH", "yt-dlp"),
		DownloaderCookiesB64: os.Getenv("DOWNLOADER_COOKIES_B64"),

		IngestTimeout: time.Duration(getEnvInt("INGEST_TIMEOUT_SECONDS", 300)) * time.Second,

		MaxTracksPerUser:   getEnvInt("MAX_TRACKS_PER_USER", 25),
		MaxUploadDuration:  time.Duration(getEnvInt("MAX_UPLOAD_DURATION_SECONDS", 300)) * time.Second,
		MaxUploadSizeBytes: int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 15)) << 20,

		TempDir: getEnv("INGEST_TEMP_DIR", os.TempDir()),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for secrets
		DBName:     getEnv("DB_NAME", "clipfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "clipfm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		AllowlistPath: getEnv("ALLOWLIST_PATH", "allowlist.txt"),

		LogPath:  getEnv("LOG_PATH", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}
