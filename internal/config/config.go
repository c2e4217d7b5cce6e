package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database    DatabaseConfig
	JWT         JWTConfig
	App         AppConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Payroll     PayrollConfig
	MobileMoney MobileMoneyConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PayrollConfig overrides the statutory defaults. Zero values mean "keep the default".
type PayrollConfig struct {
	EmployeeRate    decimal.Decimal
	EmployerRate    decimal.Decimal
	AnnualCeiling   decimal.Decimal
	OvertimeRate    decimal.Decimal
	MinimumWage     decimal.Decimal
	EnforceSMIG     bool
	CalcConcurrency int
}

type MobileMoneyConfig struct {
	Orange            OrangeMoneyConfig
	MTN               MTNConfig
	Wave              WaveConfig
	MinInterval       time.Duration
	HTTPTimeout       time.Duration
	ReconcileInterval time.Duration // 0 disables the background reconciliation
}

type OrangeMoneyConfig struct {
	ClientID       string
	ClientSecret   string
	BaseURL        string
	MerchantMSISDN string
	Environment    string
}

type MTNConfig struct {
	APIUser         string
	APIKey          string
	SubscriptionKey string
	BaseURL         string
	Environment     string
}

type WaveConfig struct {
	APIKey     string
	BaseURL    string
	SuccessURL string
	ErrorURL   string
}

func (o OrangeMoneyConfig) Configured() bool { return o.ClientID != "" && o.ClientSecret != "" }
func (m MTNConfig) Configured() bool         { return m.APIUser != "" && m.APIKey != "" }
func (w WaveConfig) Configured() bool        { return w.APIKey != "" }

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment", "error", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "sialou-paie"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.Redis = RedisConfig{
		URL:          getEnv("REDIS_URL", ""),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		LockTTL:      getEnvDuration("DISBURSEMENT_LOCK_TTL", 10*time.Minute),
	}

	config.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS"),
		Topic:   getEnv("KAFKA_NOTIFICATION_TOPIC", "payroll.notifications"),
	}

	// Payroll policy overrides
	config.Payroll = PayrollConfig{
		EnforceSMIG:     getEnvBool("ENFORCE_SMIG", true),
		CalcConcurrency: getEnvInt("PAYROLL_CALC_CONCURRENCY", 8),
	}
	for _, o := range []struct {
		key string
		dst *decimal.Decimal
	}{
		{"CNPS_EMPLOYEE_RATE", &config.Payroll.EmployeeRate},
		{"CNPS_EMPLOYER_RATE", &config.Payroll.EmployerRate},
		{"CNPS_ANNUAL_CEILING", &config.Payroll.AnnualCeiling},
		{"OVERTIME_RATE", &config.Payroll.OvertimeRate},
		{"SMIG", &config.Payroll.MinimumWage},
	} {
		value, err := getEnvDecimal(o.key)
		if err != nil {
			return nil, err
		}
		*o.dst = value
	}

	config.MobileMoney = MobileMoneyConfig{
		Orange: OrangeMoneyConfig{
			ClientID:       getEnv("ORANGE_MONEY_CLIENT_ID", ""),
			ClientSecret:   getEnv("ORANGE_MONEY_CLIENT_SECRET", ""),
			BaseURL:        getEnv("ORANGE_MONEY_BASE_URL", "https://api.orange.com"),
			MerchantMSISDN: getEnv("ORANGE_MONEY_MERCHANT_MSISDN", ""),
			Environment:    getEnv("ORANGE_MONEY_ENVIRONMENT", "sandbox"),
		},
		MTN: MTNConfig{
			APIUser:         getEnv("MTN_API_USER", ""),
			APIKey:          getEnv("MTN_API_KEY", ""),
			SubscriptionKey: getEnv("MTN_SUBSCRIPTION_KEY", ""),
			BaseURL:         getEnv("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			Environment:     getEnv("MTN_ENVIRONMENT", "sandbox"),
		},
		Wave: WaveConfig{
			APIKey:     getEnv("WAVE_API_KEY", ""),
			BaseURL:    getEnv("WAVE_BASE_URL", "https://api.wave.com"),
			SuccessURL: getEnv("WAVE_SUCCESS_URL", ""),
			ErrorURL:   getEnv("WAVE_ERROR_URL", ""),
		},
		MinInterval:       getEnvDuration("PROVIDER_MIN_INTERVAL", time.Second),
		HTTPTimeout:       getEnvDuration("PROVIDER_HTTP_TIMEOUT", 30*time.Second),
		ReconcileInterval: getEnvDuration("PAYMENT_RECONCILE_INTERVAL", 5*time.Minute),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Payroll.CalcConcurrency < 1 {
		return fmt.Errorf("PAYROLL_CALC_CONCURRENCY must be at least 1")
	}
	if c.MobileMoney.MinInterval < 0 {
		return fmt.Errorf("PROVIDER_MIN_INTERVAL must not be negative")
	}
	if c.MobileMoney.MTN.Configured() && c.MobileMoney.MTN.SubscriptionKey == "" {
		return fmt.Errorf("MTN_SUBSCRIPTION_KEY is required when MTN credentials are set")
	}
	return nil
}

// Policy returns the statutory defaults with the process-wide overrides
// applied. Zero-valued overrides mean unset.
func (p PayrollConfig) Policy() payroll.Policy {
	var overrides payroll.PayrollSettings
	for _, o := range []struct {
		value decimal.Decimal
		dst   **decimal.Decimal
	}{
		{p.EmployeeRate, &overrides.EmployeeRate},
		{p.EmployerRate, &overrides.EmployerRate},
		{p.AnnualCeiling, &overrides.AnnualCeiling},
		{p.OvertimeRate, &overrides.OvertimeRate},
		{p.MinimumWage, &overrides.MinimumWage},
	} {
		if !o.value.IsZero() {
			v := o.value
			*o.dst = &v
		}
	}
	enforce := p.EnforceSMIG
	overrides.EnforceMinimumWage = &enforce
	return payroll.DefaultPolicy().WithSettings(overrides)
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDecimal returns decimal.Zero when the variable is unset.
func getEnvDecimal(key string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return parsed, nil
}
