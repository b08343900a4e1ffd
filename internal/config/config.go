package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"vpnbot/internal/models"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Outline  OutlineConfig
	Yookassa YookassaConfig
	HTTP     HTTPConfig
	Schedule ScheduleConfig
	Logger   LoggerConfig

	// PlansFile overrides the embedded plan catalog when set.
	PlansFile string `env:"PLANS_FILE"`
}

type DatabaseConfig struct {
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"vpnbot"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type TelegramConfig struct {
	BotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`
	// BroadcastRate is messages per second for admin broadcasts.
	BroadcastRate float64 `env:"BROADCAST_RATE" envDefault:"20"`
}

// IsAdmin reports whether the chat id belongs to an operator.
func (c TelegramConfig) IsAdmin(id models.TelegramID) bool {
	for _, admin := range c.AdminIDs {
		if models.TelegramID(admin) == id {
			return true
		}
	}
	return false
}

type OutlineConfig struct {
	APIURL string `env:"OUTLINE_API_URL"`
	// Outline servers ship self-signed certificates.
	InsecureTLS bool          `env:"OUTLINE_INSECURE_TLS" envDefault:"true"`
	Timeout     time.Duration `env:"OUTLINE_TIMEOUT" envDefault:"10s"`
}

type YookassaConfig struct {
	ShopID       string        `env:"YOOKASSA_SHOP_ID"`
	SecretKey    string        `env:"YOOKASSA_SECRET_KEY"`
	APIURL       string        `env:"YOOKASSA_API_URL" envDefault:"https://api.yookassa.ru/v3"`
	ReturnURL    string        `env:"YOOKASSA_RETURN_URL" envDefault:"https://t.me"`
	Currency     string        `env:"YOOKASSA_CURRENCY" envDefault:"RUB"`
	Timeout      time.Duration `env:"YOOKASSA_TIMEOUT" envDefault:"10s"`
	AllowedCIDRs []string      `env:"YOOKASSA_ALLOWED_CIDRS" envSeparator:"," envDefault:"185.71.76.0/27,185.71.77.0/27,77.75.153.0/25,77.75.156.11/32,77.75.156.35/32,77.75.154.128/25,2a02:5180::/32"`
}

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	// TrustProxy enables X-Forwarded-For / X-Real-IP handling.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`
}

type ScheduleConfig struct {
	SyncInterval           time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	ExpiryCheckInterval    time.Duration `env:"EXPIRY_CHECK_INTERVAL" envDefault:"1h"`
	ExpiryNotificationDays int           `env:"EXPIRY_NOTIFICATION_DAYS" envDefault:"1"`
	PendingTTL             time.Duration `env:"PENDING_TTL" envDefault:"24h"`
}

type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
	Output string `env:"LOG_OUTPUT" envDefault:"stdout"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Schedule.ExpiryNotificationDays < 0 {
		return nil, fmt.Errorf("EXPIRY_NOTIFICATION_DAYS must not be negative")
	}
	return &cfg, nil
}
