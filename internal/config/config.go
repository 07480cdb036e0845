package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (session tokens)
	JWT JWTConfig

	// SMS configuration (pickup confirmations)
	SMS SMSConfig

	// CORS configuration
	CORS CORSConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Redis configuration (session store and chat notifications)
	Redis RedisConfig

	// Booking funnel configuration
	Booking BookingConfig

	// Pickup flow configuration
	Pickup PickupConfig

	// API client configuration
	Client ClientConfig

	// Verification brute-force protection
	RateLimit RateLimitConfig

	// Scheduled cleanup jobs
	Maintenance MaintenanceConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port             string
	Environment      string // development, staging, production
	LogLevel         string // debug, info, warn, error
	EnableRequestLog bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	Driver             string // "postgres" (lib/pq) or "pgx"
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret             string
	SessionTokenExpiry time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" logs messages, "production" sends them
	Method   string // "url" or "api_v2"
	APIURL   string
	ESMSQK   string // Dialog URL message key (for URL method)
	Username string
	Password string
	Mask     string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// PaymentConfig holds PAYable IPG configuration
type PaymentConfig struct {
	Environment   string // "dev", "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // secret, only used for checkValue
	LogoURL       string
	ReturnURL     string
	WebhookURL    string
	BaseURL       string // overrides the environment endpoint when set
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Namespace     string
	SessionTTL    time.Duration
	EventsEnabled bool // false falls back to the in-process pub/sub
}

// BookingConfig holds day-pass pricing and funnel settings. Prices are in cents.
type BookingConfig struct {
	BasePrice              int64
	GuidedTourSurcharge    int64
	Currency               string
	TimeZone               string
	TimeSlots              []string
	GuidedSlots            []string
	PickupLocations        []string
	PersistAttempts        int
	PersistInitialInterval time.Duration
	PersistMaxInterval     time.Duration
}

// PickupConfig holds pickup flow settings
type PickupConfig struct {
	MinSearchingDelay time.Duration
	MaxGroupSize      int
}

// RateLimitConfig bounds failed booking verifications per booking ID and per IP
type RateLimitConfig struct {
	Enabled            bool
	MaxBookingAttempts int
	BookingWindow      time.Duration
	MaxIPAttempts      int
	IPWindow           time.Duration
}

// MaintenanceConfig holds the cron settings
type MaintenanceConfig struct {
	CronEnabled   bool
	RetentionDays int // closed chats and pickup requests older than this are purged
}

// ClientConfig holds settings for the HTTP client used by the booking flows
type ClientConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

// Load loads server configuration from environment variables
func Load() (*Config, error) {
	config := fromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadClient loads configuration for tools that only talk to the HTTP API.
// Database and JWT settings are not required.
func LoadClient() (*Config, error) {
	config := fromEnv()
	if err := config.validateBooking(); err != nil {
		return nil, err
	}
	if config.Client.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	return config, nil
}

func fromEnv() *Config {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			SessionTokenExpiry: time.Duration(getEnvAsInt("JWT_SESSION_TOKEN_EXPIRY", 172800)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			Method:   getEnv("DIALOG_SMS_METHOD", "url"),
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			ESMSQK:   getEnv("DIALOG_SMS_ESMSQK", ""),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYABLE_ENVIRONMENT", "sandbox"),
			MerchantKey:   getEnv("PAYABLE_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYABLE_MERCHANT_TOKEN", ""),
			LogoURL:       getEnv("PAYABLE_LOGO_URL", ""),
			ReturnURL:     getEnv("PAYABLE_RETURN_URL", ""),
			WebhookURL:    getEnv("PAYABLE_WEBHOOK_URL", ""),
			BaseURL:       getEnv("PAYABLE_BASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			Namespace:     getEnv("REDIS_NAMESPACE", "daypass"),
			SessionTTL:    time.Duration(getEnvAsInt("REDIS_SESSION_TTL", 0)) * time.Second,
			EventsEnabled: getEnvAsBool("REDIS_EVENTS_ENABLED", false),
		},
		Booking: BookingConfig{
			BasePrice:              int64(getEnvAsInt("BOOKING_BASE_PRICE_CENTS", 2500)),
			GuidedTourSurcharge:    int64(getEnvAsInt("BOOKING_GUIDED_SURCHARGE_CENTS", 500)),
			Currency:               getEnv("BOOKING_CURRENCY", "EUR"),
			TimeZone:               getEnv("SERVICE_TIME_ZONE", "Europe/Lisbon"),
			TimeSlots:              getEnvAsSlice("BOOKING_TIME_SLOTS", []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00"}),
			GuidedSlots:            getEnvAsSlice("BOOKING_GUIDED_SLOTS", []string{"10:00", "14:00"}),
			PickupLocations:        getEnvAsSlice("BOOKING_PICKUP_LOCATIONS", []string{"Sintra Train Station", "Sintra Village Centre", "Cascais Marina"}),
			PersistAttempts:        getEnvAsInt("BOOKING_PERSIST_ATTEMPTS", 3),
			PersistInitialInterval: time.Duration(getEnvAsInt("BOOKING_PERSIST_INITIAL_INTERVAL_MS", 500)) * time.Millisecond,
			PersistMaxInterval:     time.Duration(getEnvAsInt("BOOKING_PERSIST_MAX_INTERVAL_MS", 4000)) * time.Millisecond,
		},
		Pickup: PickupConfig{
			MinSearchingDelay: time.Duration(getEnvAsInt("PICKUP_MIN_SEARCHING_DELAY_MS", 1500)) * time.Millisecond,
			MaxGroupSize:      getEnvAsInt("PICKUP_MAX_GROUP_SIZE", 50),
		},
		Client: ClientConfig{
			APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
			Timeout:    time.Duration(getEnvAsInt("API_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:            getEnvAsBool("VERIFY_RATE_LIMIT_ENABLED", true),
			MaxBookingAttempts: getEnvAsInt("VERIFY_MAX_BOOKING_ATTEMPTS", 5),
			BookingWindow:      time.Duration(getEnvAsInt("VERIFY_BOOKING_WINDOW_MINUTES", 15)) * time.Minute,
			MaxIPAttempts:      getEnvAsInt("VERIFY_MAX_IP_ATTEMPTS", 20),
			IPWindow:           time.Duration(getEnvAsInt("VERIFY_IP_WINDOW_MINUTES", 60)) * time.Minute,
		},
		Maintenance: MaintenanceConfig{
			CronEnabled:   getEnvAsBool("CRON_ENABLED", true),
			RetentionDays: getEnvAsInt("DATA_RETENTION_DAYS", 30),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if err := c.validateBooking(); err != nil {
		return err
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxBookingAttempts < 1 || c.RateLimit.MaxIPAttempts < 1) {
		return fmt.Errorf("VERIFY_MAX_BOOKING_ATTEMPTS and VERIFY_MAX_IP_ATTEMPTS must be at least 1")
	}

	if c.Maintenance.RetentionDays < 1 {
		return fmt.Errorf("DATA_RETENTION_DAYS must be at least 1")
	}

	// Validate SMS configuration only in production mode
	if c.SMS.Mode == "production" {
		switch c.SMS.Method {
		case "url":
			if c.SMS.ESMSQK == "" {
				return fmt.Errorf("DIALOG_SMS_ESMSQK is required for URL method in production mode")
			}
		case "api_v2":
			if c.SMS.APIURL == "" {
				return fmt.Errorf("DIALOG_SMS_API_URL is required for API v2 method in production mode")
			}
			if c.SMS.Username == "" || c.SMS.Password == "" {
				return fmt.Errorf("DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required for API v2 method in production mode")
			}
		default:
			return fmt.Errorf("invalid SMS method: %s (must be 'url' or 'api_v2')", c.SMS.Method)
		}
	}

	return nil
}

func (c *Config) validateBooking() error {
	if _, err := time.LoadLocation(c.Booking.TimeZone); err != nil {
		return fmt.Errorf("invalid SERVICE_TIME_ZONE %q: %w", c.Booking.TimeZone, err)
	}

	if c.Booking.BasePrice <= 0 {
		return fmt.Errorf("BOOKING_BASE_PRICE_CENTS must be positive")
	}

	if c.Booking.PersistAttempts < 1 {
		return fmt.Errorf("BOOKING_PERSIST_ATTEMPTS must be at least 1")
	}

	for _, slot := range c.Booking.GuidedSlots {
		if !contains(c.Booking.TimeSlots, slot) {
			return fmt.Errorf("guided slot %s is not one of BOOKING_TIME_SLOTS", slot)
		}
	}

	return nil
}

// Location returns the service time zone
func (c *BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
