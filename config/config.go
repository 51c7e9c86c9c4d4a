package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Gateway    GatewayConfig
	Webhook    WebhookConfig
	Settlement SettlementConfig
	Loyalty    LoyaltyConfig
	RateLimit  RateLimitConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address is the client.
	TrustedProxies []string
}

type DatabaseConfig struct {
	Driver          string // mysql | postgres | sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent | error | warn | info
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// GatewayConfig holds the defaults of the bank-style check/pay gateway.
// Enabled, MinSum and MaxSum can be overridden at runtime through system settings.
type GatewayConfig struct {
	Name          string
	Enabled       bool
	MinSum        decimal.Decimal
	MaxSum        decimal.Decimal
	AllowedCIDRs  []string
	PaymentMethod string
}

type WebhookConfig struct {
	Gateway         string
	LoyaltyCurrency string
	PublicKeyPath   string // empty disables signature verification
}

// SettlementConfig points at the external payment microservice used by QR redemption.
// An empty BaseURL switches to the stub settler (development only).
type SettlementConfig struct {
	BaseURL        string
	APIKey         string
	Currency       string
	Timeout        time.Duration
	PrivateKeyPath string // empty sends unsigned requests
}

type LoyaltyConfig struct {
	DefaultCashbackRate decimal.Decimal
}

// AdminConfig seeds the first ADMIN account on startup when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.trusted_proxies", "")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "loyalpay:loyalpay@tcp(localhost:3306)/loyalpay?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "error")

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.refresh_secret", "change-me-refresh")
	v.SetDefault("jwt.access_expiry", "24h")
	v.SetDefault("jwt.refresh_expiry", "720h")
	v.SetDefault("jwt.issuer", "loyalpay")

	v.SetDefault("gateway.name", "osmp")
	v.SetDefault("gateway.enabled", true)
	v.SetDefault("gateway.min_sum", "1.00")
	v.SetDefault("gateway.max_sum", "15000.00")
	v.SetDefault("gateway.allowed_cidrs", "")
	v.SetDefault("gateway.payment_method", "bank")

	v.SetDefault("webhook.gateway", "processor")
	v.SetDefault("webhook.loyalty_currency", "COIN")
	v.SetDefault("webhook.public_key_path", "")

	v.SetDefault("settlement.base_url", "")
	v.SetDefault("settlement.api_key", "")
	v.SetDefault("settlement.currency", "USD")
	v.SetDefault("settlement.timeout", "15s")
	v.SetDefault("settlement.private_key_path", "")

	v.SetDefault("loyalty.default_cashback_rate", "5")

	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window", "60s")

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

// Load reads .env (if present), an optional config.yaml in the working directory and
// environment variables such as DATABASE_DSN or GATEWAY_ALLOWED_CIDRS.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Println("[config] no config file found, using defaults and environment")
	}

	minSum, err := decimal.NewFromString(v.GetString("gateway.min_sum"))
	if err != nil {
		return nil, errors.New("gateway.min_sum: " + err.Error())
	}
	maxSum, err := decimal.NewFromString(v.GetString("gateway.max_sum"))
	if err != nil {
		return nil, errors.New("gateway.max_sum: " + err.Error())
	}
	cashbackRate, err := decimal.NewFromString(v.GetString("loyalty.default_cashback_rate"))
	if err != nil {
		return nil, errors.New("loyalty.default_cashback_rate: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Env:            v.GetString("server.env"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			TrustedProxies: splitList(v.GetString("server.trusted_proxies")),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		JWT: JWTConfig{
			AccessSecret:  v.GetString("jwt.access_secret"),
			RefreshSecret: v.GetString("jwt.refresh_secret"),
			AccessExpiry:  v.GetDuration("jwt.access_expiry"),
			RefreshExpiry: v.GetDuration("jwt.refresh_expiry"),
			Issuer:        v.GetString("jwt.issuer"),
		},
		Gateway: GatewayConfig{
			Name:          v.GetString("gateway.name"),
			Enabled:       v.GetBool("gateway.enabled"),
			MinSum:        minSum,
			MaxSum:        maxSum,
			AllowedCIDRs:  splitList(v.GetString("gateway.allowed_cidrs")),
			PaymentMethod: v.GetString("gateway.payment_method"),
		},
		Webhook: WebhookConfig{
			Gateway:         v.GetString("webhook.gateway"),
			LoyaltyCurrency: v.GetString("webhook.loyalty_currency"),
			PublicKeyPath:   v.GetString("webhook.public_key_path"),
		},
		Settlement: SettlementConfig{
			BaseURL:        strings.TrimRight(v.GetString("settlement.base_url"), "/"),
			APIKey:         v.GetString("settlement.api_key"),
			Currency:       v.GetString("settlement.currency"),
			Timeout:        v.GetDuration("settlement.timeout"),
			PrivateKeyPath: v.GetString("settlement.private_key_path"),
		},
		Loyalty: LoyaltyConfig{
			DefaultCashbackRate: cashbackRate,
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("ratelimit.requests"),
			Window:   v.GetDuration("ratelimit.window"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin.email"),
			Password: v.GetString("admin.password"),
		},
	}, nil
}

// splitList accepts "a,b" or "a b" lists as they come from env vars.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
