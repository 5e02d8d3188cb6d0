package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-storefront/models"
)

// Config is the process configuration read from the environment or a .env file.
type Config struct {
	Port            string
	MongoURI        string
	MongoDB         string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    []string
	JWTSecret       string
	DefaultRegionID string
	DefaultCurrency string
	GatewayTimeout  time.Duration
	CORSOrigins     []string

	Stripe   StripeConfig
	Razorpay RazorpayConfig
	Email    EmailConfig
}

type StripeConfig struct {
	APIKey  string
	APIBase string
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	APIBase   string
}

type EmailConfig struct {
	PostmarkToken  string
	SendGridAPIKey string
	Sender         string
}

// ProviderCredentials are the secrets one gateway adapter needs.
type ProviderCredentials struct {
	KeyID   string
	Secret  string
	APIBase string
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Proceeding with environment variables.")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) Config {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	timeout, err := time.ParseDuration(get("GATEWAY_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		log.Printf("config invalid GATEWAY_TIMEOUT=%q, using 10s", getenv("GATEWAY_TIMEOUT"))
		timeout = 10 * time.Second
	}

	return Config{
		Port:            get("PORT", "8000"),
		MongoURI:        get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         get("MONGO_DB", "ecommerce"),
		RedisAddr:       get("REDIS_ADDR", ""),
		RedisPassword:   get("REDIS_PASSWORD", ""),
		KafkaBrokers:    splitList(get("KAFKA_BROKERS", "")),
		JWTSecret:       get("JWT_SECRET", ""),
		DefaultRegionID: get("DEFAULT_REGION_ID", ""),
		DefaultCurrency: strings.ToLower(get("DEFAULT_CURRENCY", "usd")),
		GatewayTimeout:  timeout,
		CORSOrigins:     splitList(get("CORS_ORIGINS", "")),
		Stripe: StripeConfig{
			APIKey:  get("STRIPE_API_KEY", ""),
			APIBase: get("STRIPE_API_BASE", "https://api.stripe.com"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     get("RAZORPAY_KEY_ID", ""),
			KeySecret: get("RAZORPAY_KEY_SECRET", ""),
			APIBase:   get("RAZORPAY_API_BASE", "https://api.razorpay.com"),
		},
		Email: EmailConfig{
			PostmarkToken:  get("POSTMARK_API_TOKEN", ""),
			SendGridAPIKey: get("SENDGRID_API_KEY", ""),
			Sender:         get("EMAIL_SENDER", ""),
		},
	}
}

// Provider returns the credentials of a gateway. A provider whose secrets are
// missing fails here, at first use, so other providers keep working.
func (c Config) Provider(id models.ProviderID) (ProviderCredentials, error) {
	switch id {
	case models.ProviderManual:
		return ProviderCredentials{}, nil
	case models.ProviderStripe:
		if c.Stripe.APIKey == "" {
			return ProviderCredentials{}, models.ErrProviderMisconfigured.Wrap(fmt.Errorf("STRIPE_API_KEY is not set"))
		}
		return ProviderCredentials{Secret: c.Stripe.APIKey, APIBase: c.Stripe.APIBase}, nil
	case models.ProviderRazorpay:
		if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
			return ProviderCredentials{}, models.ErrProviderMisconfigured.Wrap(fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set"))
		}
		return ProviderCredentials{KeyID: c.Razorpay.KeyID, Secret: c.Razorpay.KeySecret, APIBase: c.Razorpay.APIBase}, nil
	default:
		return ProviderCredentials{}, models.ErrProviderNotFound
	}
}

// Warnings lists missing settings that disable a feature without stopping the process.
func (c Config) Warnings() []string {
	var warnings []string
	if c.JWTSecret == "" {
		warnings = append(warnings, "JWT_SECRET is not set; every /store request will be rejected")
	}
	if c.Stripe.APIKey == "" {
		warnings = append(warnings, "STRIPE_API_KEY is not set; stripe sessions will fail")
	}
	if c.Razorpay.KeySecret == "" {
		warnings = append(warnings, "RAZORPAY_KEY_SECRET is not set; razorpay signatures cannot be verified")
	}
	if c.Email.PostmarkToken == "" && c.Email.SendGridAPIKey == "" {
		warnings = append(warnings, "no e-mail provider configured; order confirmations will only be logged")
	}
	return warnings
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
