package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// App holds the runtime configuration loaded from environment variables and
// an optional config.yaml in the working directory.
type App struct {
	Env      string
	HTTPPort string

	SheetsBackend   string
	CredentialsFile string
	UserSheetID     string
	HistorySheetID  string
	SheetTab        string

	CacheBackend string
	QueueBackend string
	RedisAddr    string
	DatabaseURL  string

	JWTIssuer      string
	JWTSigningKey  string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	RequireAuth    bool
	PasswordScheme string

	RateLimitPerMin      int
	LoginRateLimitPerMin int
	CORSOrigins          string

	ExportBucket string
	S3Endpoint   string
	S3Region     string
	S3AccessKey  string
	S3SecretKey  string
}

// Production reports whether the app runs in release mode.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Load returns application config with sensible defaults.
func Load() App {
	v := viper.New()
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("warning: error reading config file: %v", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) App {
	return App{
		Env:      getEnv(v, "APP_ENV", "dev"),
		HTTPPort: getEnv(v, "HTTP_PORT", "8081"),

		SheetsBackend:   getEnv(v, "SHEETS_BACKEND", "google"),
		CredentialsFile: getEnv(v, "GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		UserSheetID:     getEnv(v, "ATTENDANCE_SHEET", ""),
		HistorySheetID:  getEnv(v, "SHEET_HISTORY", ""),
		SheetTab:        getEnv(v, "SHEET_TAB", "Sheet1"),

		CacheBackend: getEnv(v, "CACHE_BACKEND", "memory"),
		QueueBackend: getEnv(v, "QUEUE_BACKEND", "memory"),
		RedisAddr:    getEnv(v, "REDIS_ADDR", "localhost:6379"),
		DatabaseURL:  getEnv(v, "DATABASE_URL", ""),

		JWTIssuer:      getEnv(v, "JWT_ISSUER", "sheetattend"),
		JWTSigningKey:  getEnv(v, "JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:      durationEnv(v, "ACCESS_TTL", 15*time.Minute),
		RefreshTTL:     durationEnv(v, "REFRESH_TTL", 24*time.Hour),
		RequireAuth:    boolEnv(v, "REQUIRE_AUTH", false),
		PasswordScheme: getEnv(v, "PASSWORD_SCHEME", "sha256"),

		RateLimitPerMin:      intEnv(v, "RATE_LIMIT_PER_MIN", 120),
		LoginRateLimitPerMin: intEnv(v, "LOGIN_RATE_LIMIT_PER_MIN", 10),
		CORSOrigins:          getEnv(v, "CORS_ORIGINS", "*"),

		ExportBucket: getEnv(v, "EXPORT_BUCKET", ""),
		S3Endpoint:   getEnv(v, "S3_ENDPOINT", ""),
		S3Region:     getEnv(v, "S3_REGION", "us-east-1"),
		S3AccessKey:  getEnv(v, "S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv(v, "S3_SECRET_KEY", ""),
	}
}

func getEnv(v *viper.Viper, key, fallback string) string {
	if val := strings.TrimSpace(v.GetString(key)); val != "" {
		return val
	}
	return fallback
}

func durationEnv(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if val := getEnv(v, key, ""); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(v *viper.Viper, key string, fallback bool) bool {
	if val := getEnv(v, key, ""); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			log.Printf("invalid bool for %s, using fallback %v", key, fallback)
			return fallback
		}
		return b
	}
	return fallback
}

func intEnv(v *viper.Viper, key string, fallback int) int {
	if val := getEnv(v, key, ""); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Printf("invalid int for %s, using fallback %d", key, fallback)
			return fallback
		}
		return n
	}
	return fallback
}
