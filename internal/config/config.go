package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// GetDecimalEnv returns a decimal environment variable or a default value.
func GetDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type EventsConfig struct {
	Driver       string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
}

type LedgerConfig struct {
	LockTimeout        time.Duration
	SuspiciousAmount   decimal.Decimal
	BankName           string
	Currency           string
	PinBcryptCost      int
	HistoryCacheTTL    time.Duration
	AccountOpenRetries int
}

type WebhookConfig struct {
	MoniepointSecret string
	PaystackSecret   string
}

type PayoutConfig struct {
	Rail            string
	BaseURL         string
	APIKey          string
	Secret          string
	StripeSecretKey string
	Timeout         time.Duration
}

type BillerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type WorkerConfig struct {
	Interval     time.Duration
	AbandonAfter time.Duration
	BatchSize    int
	// BillRequeryAfter is how long a bill with unknown delivery waits
	// before its first status query.
	BillRequeryAfter time.Duration
}

// Config is the full runtime configuration.
type Config struct {
	Env         string
	Port        string
	JWTSecret   string
	CORSOrigins string
	CheckoutURL string
	Database    DatabaseConfig
	Redis       RedisConfig
	Events      EventsConfig
	Ledger      LedgerConfig
	Webhooks    WebhookConfig
	Payout      PayoutConfig
	Biller      BillerConfig
	Worker      WorkerConfig
}

// Load reads the configuration from the environment. Call LoadEnv first to
// pick up a .env file.
func Load() *Config {
	return &Config{
		Env:         GetEnv("ENV", "development"),
		Port:        GetEnv("PORT", "3000"),
		JWTSecret:   GetEnv("JWT_SECRET", ""),
		CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		CheckoutURL: GetEnv("GATEWAY_CHECKOUT_URL", "https://checkout.example.com/pay"),
		Database: DatabaseConfig{
			Driver:          GetEnv("STORE_DRIVER", "postgres"),
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "walletledger"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Driver:       GetEnv("EVENTS_DRIVER", "none"),
			RedisChannel: GetEnv("REDIS_EVENTS_CHANNEL", "ledger.events"),
			KafkaBrokers: splitList(GetEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   GetEnv("KAFKA_TOPIC", "ledger.transactions"),
		},
		Ledger: LedgerConfig{
			LockTimeout:        GetDurationEnv("LOCK_TIMEOUT", 3*time.Second),
			SuspiciousAmount:   GetDecimalEnv("SUSPICIOUS_AMOUNT_THRESHOLD", decimal.NewFromInt(100000)),
			BankName:           GetEnv("LEDGER_BANK_NAME", "GAX Bank"),
			Currency:           GetEnv("LEDGER_CURRENCY", "NGN"),
			PinBcryptCost:      GetIntEnv("PIN_BCRYPT_COST", 10),
			HistoryCacheTTL:    GetDurationEnv("HISTORY_CACHE_TTL", 5*time.Minute),
			AccountOpenRetries: GetIntEnv("ACCOUNT_OPEN_RETRIES", 5),
		},
		Webhooks: WebhookConfig{
			MoniepointSecret: GetEnv("MONIEPOINT_WEBHOOK_SECRET", ""),
			PaystackSecret:   GetEnv("PAYSTACK_WEBHOOK_SECRET", ""),
		},
		Payout: PayoutConfig{
			Rail:            GetEnv("PAYOUT_RAIL", "http"),
			BaseURL:         GetEnv("PAYOUT_BASE_URL", "https://sandbox.moniepoint.com"),
			APIKey:          GetEnv("PAYOUT_API_KEY", ""),
			Secret:          GetEnv("PAYOUT_SECRET", ""),
			StripeSecretKey: GetEnv("STRIPE_SECRET_KEY", ""),
			Timeout:         GetDurationEnv("PAYOUT_TIMEOUT", 30*time.Second),
		},
		Biller: BillerConfig{
			BaseURL: GetEnv("BILLER_BASE_URL", "https://api.example.com"),
			APIKey:  GetEnv("BILLER_API_KEY", ""),
			Timeout: GetDurationEnv("BILLER_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Interval:     GetDurationEnv("SETTLE_INTERVAL", time.Minute),
			AbandonAfter: GetDurationEnv("PAYMENT_ABANDON_AFTER", time.Hour),
			BatchSize:    GetIntEnv("SETTLE_BATCH_SIZE", 100),

			BillRequeryAfter: GetDurationEnv("BILL_REQUERY_AFTER", 2*time.Minute),
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
