package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Client-side keys drive the session client and the player; the Server* / DB* / Minio* keys are only
// read by the development backend.
type Config struct {
	APIURL         string // REST base, e.g. http://localhost:8085/api
	MediaURL       string // streaming base, manifests live at <MediaURL>/track/<id>/index.m3u8
	HTTPTimeout    time.Duration
	RefreshTimeout time.Duration

	// 会话存储
	SessionStore    string // file, redis or memory
	SessionFile     string
	SessionRedisKey string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// HLS 引擎
	HLSRequestTimeout time.Duration
	ManifestTimeout   time.Duration
	HLSSegmentRetries int
	HLSMaxBuffer      float64 // seconds buffered ahead of the play position

	// 播放器
	MaxNetworkRecoveries int
	MaxMediaRecoveries   int
	PlayerOutput         string // headless or ffplay
	FFplayPath           string
	OutputTick           time.Duration
	RemoteAddr           string

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// 开发后端
	ServerAddr      string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	UserStore       string // memory or mysql
	TokenStore      string // memory or redis
	MediaStore      string // local or minio
	MediaDir        string
	MediaCacheTTL   time.Duration // redis segment cache in front of the media store; 0 disables
	FFmpegPath      string
	AudioBitrate    string
	HLSSegmentTime  int // seconds per segment when ingesting
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioRegion     string
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

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") and bare integers, which are read as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".soundy", "session.json")
	}
	return filepath.Join(home, ".soundy", "session.json")
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	apiURL := strings.TrimRight(getEnv("API_URL", "http://localhost:8085/api"), "/")

	return &Config{
		APIURL:         apiURL,
		MediaURL:       strings.TrimRight(getEnv("MEDIA_URL", apiURL+"/file"), "/"),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RefreshTimeout: getEnvDuration("REFRESH_TIMEOUT", 15*time.Second),

		SessionStore:    getEnv("SESSION_STORE", "file"),
		SessionFile:     getEnv("SESSION_FILE", defaultSessionFile()),
		SessionRedisKey: getEnv("SESSION_REDIS_KEY", "soundy:session"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		HLSRequestTimeout: getEnvDuration("HLS_REQUEST_TIMEOUT", 10*time.Second),
		ManifestTimeout:   getEnvDuration("MANIFEST_TIMEOUT", 15*time.Second),
		HLSSegmentRetries: getEnvInt("HLS_SEGMENT_RETRIES", 3),
		HLSMaxBuffer:      getEnvFloat("HLS_MAX_BUFFER", 30),

		MaxNetworkRecoveries: getEnvInt("PLAYER_MAX_NETWORK_RECOVERIES", 3),
		MaxMediaRecoveries:   getEnvInt("PLAYER_MAX_MEDIA_RECOVERIES", 2),
		PlayerOutput:         getEnv("PLAYER_OUTPUT", "headless"),
		FFplayPath:           getEnv("FFPLAY_PATH", "ffplay"),
		OutputTick:           getEnvDuration("OUTPUT_TICK", 250*time.Millisecond),
		RemoteAddr:           getEnv("REMOTE_ADDR", "127.0.0.1:8090"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		ServerAddr:      getEnv("SERVER_ADDR", ":8085"),
		JWTSecret:       getEnv("JWT_SECRET", "soundy-dev-secret"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		UserStore:       getEnv("USER_STORE", "memory"),
		TokenStore:      getEnv("TOKEN_STORE", "memory"),
		MediaStore:      getEnv("MEDIA_STORE", "local"),
		MediaDir:        getEnv("MEDIA_DIR", filepath.Join("static", "streams")),
		MediaCacheTTL:   getEnvDuration("MEDIA_CACHE_TTL", 0),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate:    getEnv("AUDIO_BITRATE", "192k"),
		HLSSegmentTime:  getEnvInt("HLS_SEGMENT_TIME", 10),
		DBHost:          getEnv("DB_HOST", "127.0.0.1"),
		DBPort:          getEnv("DB_PORT", "3306"),
		DBUser:          getEnv("DB_USER", "root"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBName:          getEnv("DB_NAME", "soundy"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "soundy"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
	}
}
