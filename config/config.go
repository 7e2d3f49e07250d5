package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with defaults
// suitable for local development.
type Config struct {
	Port      string
	SecretKey string // 浏览器会话 Cookie 的签名密钥
	Debug     bool   // 调试模式下错误响应包含详细信息

	// Spotify API 配置
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// 管理员配置
	AdminKeyword string

	// 点歌策略配置
	TrackCooldownPeriod time.Duration // 同一首歌再次点播的冷却时间
	SessionExpiration   time.Duration // 会话过期时间
	RadioQueueLimit     int           // 电台队列预览长度上限

	// 活动模式（婚礼/派对单人控台）
	EventMode        bool
	EventConfigPath  string // 预设歌曲配置文件路径
	TipQRCodePath    string

	// Redis配置（搜索缓存，RedisHost 为空时禁用）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	SearchCacheTTL time.Duration

	// 日志配置
	LogLevel   string
	LogPath    string
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

// getEnvSeconds 以秒为单位读取时长配置
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		Port:      getEnv("PORT", "5000"),
		SecretKey: os.Getenv("SECRET_KEY"), // 签名密钥不提供默认值
		Debug:     getEnvBool("DEBUG", false),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", "http://localhost:5000/callback"),

		AdminKeyword: os.Getenv("ADMIN_KEYWORD"),

		// 冷却时间统一为一个可配置策略，默认20分钟
		TrackCooldownPeriod: getEnvSeconds("TRACK_COOLDOWN_PERIOD", 20*time.Minute),
		SessionExpiration:   getEnvSeconds("SESSION_EXPIRATION_TIME", 24*time.Hour),
		RadioQueueLimit:     getEnvInt("RADIO_QUEUE_LIMIT", 5),

		EventMode:       getEnvBool("EVENT_MODE", false),
		EventConfigPath: getEnv("EVENT_CONFIG_PATH", "event_preset_songs.json"),
		TipQRCodePath:   getEnv("TIP_QR_CODE_PATH", "/static/tip-qr.png"),

		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SearchCacheTTL: getEnvSeconds("SEARCH_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", "logs/lazydj.log"),
	}
}
