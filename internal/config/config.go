package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	PriceSourceCoinGecko = "coingecko"
	PriceSourceBinance   = "binance"

	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMongo    = "mongo"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")

type Config struct {
	TelegramBotToken    string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramPollTimeout int           `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	TelegramSendTimeout time.Duration `env:"TELEGRAM_SEND_TIMEOUT,default=15s"`

	PriceSource       string        `env:"PRICE_SOURCE,default=coingecko"`
	CoinGeckoBaseURL  string        `env:"COINGECKO_BASE_URL,default=https://api.coingecko.com/api/v3"`
	CoinGeckoTimeout  time.Duration `env:"COINGECKO_TIMEOUT,default=10s"`
	BinanceWSURL      string        `env:"BINANCE_WS_URL,default=wss://stream.binance.com:9443"`
	BinanceStaleAfter time.Duration `env:"BINANCE_STALE_AFTER,default=2m"`

	FireTimeout       time.Duration `env:"FIRE_TIMEOUT,default=30s"`
	PreviewOnActivate bool          `env:"PREVIEW_ON_ACTIVATE,default=true"`

	StoreDriver       string        `env:"STORE_DRIVER,default=file"`
	StoreFile         string        `env:"STORE_FILE,default=data/subscribers.json"`
	SQLitePath        string        `env:"SQLITE_PATH,default=data/cryptowatch.db"`
	DBHost            string        `env:"DB_HOST,default=localhost"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=cryptowatch"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	MongoURI          string        `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MongoDatabase     string        `env:"MONGO_DATABASE,default=cryptowatch"`
	PersistInterval   time.Duration `env:"PERSIST_INTERVAL,default=5m"`

	HTTPAddr    string `env:"HTTP_ADDR,default=:8080"`
	HTTPEnabled bool   `env:"HTTP_ENABLED,default=true"`

	LogLevel      string `env:"LOG_LEVEL,default=info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB,default=50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS,default=5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS,default=28"`
}

// Load reads a .env file from the working directory when there is one, then
// the process environment. Variables already set win over the file.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.PriceSource {
	case PriceSourceCoinGecko, PriceSourceBinance:
	default:
		return fmt.Errorf("unknown PRICE_SOURCE %q", c.PriceSource)
	}
	switch c.StoreDriver {
	case StoreDriverFile, StoreDriverPostgres, StoreDriverSQLite, StoreDriverMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PersistInterval <= 0 {
		return fmt.Errorf("PERSIST_INTERVAL must be positive, got %s", c.PersistInterval)
	}
	return nil
}

// RequireToken is checked by commands that talk to Telegram.
func (c Config) RequireToken() error {
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return ErrMissingToken
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		c.DBHost,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBPort,
		c.DBSSLMode,
	)
}
