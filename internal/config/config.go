package config

import (
	"os"
	"strconv"
	"time"
)

// 上流呼び出しタイムアウトの許容範囲。
// 生成APIとブログAPIの呼び出しはこの範囲内で必ず打ち切る。
const (
	MinUpstreamTimeout = 20 * time.Second
	MaxUpstreamTimeout = 30 * time.Second
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 資格情報の欠落は起動失敗にせず、リクエスト処理時にMissingCredentialsで検査する。
type Config struct {
	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	GeminiRPMLimit    int
	GenerationTimeout time.Duration

	// Blogger
	BloggerClientID     string
	BloggerClientSecret string
	BloggerRedirectURL  string
	BloggerRefreshToken string
	BloggerBlogID       string
	PublishTimeout      time.Duration

	// Rate Limit
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Redis（未設定ならインメモリのカウンタを使う）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Collector
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	Environment       string
}

// Load は環境変数からConfigを読み込む。
// 省略可能な値の不正な指定はデフォルト値で補う。
func Load() *Config {
	cfg := &Config{}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-flash")
	cfg.GeminiRPMLimit = getEnvInt("GEMINI_RPM_LIMIT", 0)
	cfg.GenerationTimeout = clampDuration(
		getEnvDuration("GENERATION_TIMEOUT", 25*time.Second),
		MinUpstreamTimeout, MaxUpstreamTimeout)

	cfg.BloggerClientID = os.Getenv("BLOGGER_CLIENT_ID")
	cfg.BloggerClientSecret = os.Getenv("BLOGGER_CLIENT_SECRET")
	cfg.BloggerRedirectURL = os.Getenv("BLOGGER_REDIRECT_URL")
	cfg.BloggerRefreshToken = os.Getenv("BLOGGER_REFRESH_TOKEN")
	cfg.BloggerBlogID = os.Getenv("BLOGGER_BLOG_ID")
	cfg.PublishTimeout = clampDuration(
		getEnvDuration("PUBLISH_TIMEOUT", 25*time.Second),
		MinUpstreamTimeout, MaxUpstreamTimeout)

	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", 5)

	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.Environment = getEnvString("APP_ENV", "development")

	return cfg
}

// MissingCredentials は未設定の必須環境変数名を返す。
// パイプラインは外部APIを呼ぶ前にこの結果を検査し、
// 欠落があれば変数名のみ（値は決して含めない）をエラーに載せる。
func (c *Config) MissingCredentials() []string {
	required := []struct {
		name  string
		value string
	}{
		{"GEMINI_API_KEY", c.GeminiAPIKey},
		{"BLOGGER_CLIENT_ID", c.BloggerClientID},
		{"BLOGGER_CLIENT_SECRET", c.BloggerClientSecret},
		{"BLOGGER_REDIRECT_URL", c.BloggerRedirectURL},
		{"BLOGGER_REFRESH_TOKEN", c.BloggerRefreshToken},
		{"BLOGGER_BLOG_ID", c.BloggerBlogID},
	}

	var missing []string
	for _, v := range required {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	return missing
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
