package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all tunable parameters for the agent, the CLI and the
// fleet consumer. Values come from the environment, optionally seeded from a
// .env file, with defaults that match the hosted backend's expectations.
type Config struct {
	APIURL     string
	WSURL      string
	GeocodeURL string
	Country    string
	RoutingURL string
	UserAgent  string

	Debounce       time.Duration
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	HeartbeatOut   time.Duration
	HeartbeatIn    time.Duration
	RequestTimeout time.Duration
	CacheTTL       time.Duration

	Token string
	Email string
	Role  string

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	PGDSN string

	StripeKey      string
	StripeCurrency string
	StripeCustomer string

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		APIURL:          "http://localhost:8080/api",
		WSURL:           "ws://localhost:8080/ws",
		GeocodeURL:      "https://nominatim.openstreetmap.org",
		Country:         "Sri Lanka",
		RoutingURL:      "https://router.project-osrm.org",
		UserAgent:       "ride-booking-agent/1.0",
		Debounce:        time.Second,
		PollInterval:    5 * time.Second,
		ReconnectDelay:  5 * time.Second,
		HeartbeatOut:    4 * time.Second,
		HeartbeatIn:     4 * time.Second,
		RequestTimeout:  10 * time.Second,
		CacheTTL:        10 * time.Minute,
		HTTPAddr:        ":8090",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "drivers_geo",
		KafkaTopic:      "order-tracking",
		KafkaGroup:      "fleet-consumer",
		StripeCurrency:  "lkr",
		LogLevel:        "info",
	}
}

// Load reads the optional env file (".env" when path is empty) and then the
// environment. A missing env file is not an error.
func Load(path string) (Config, error) {
	var errs []error
	files := []string{}
	if path != "" {
		files = append(files, path)
	}
	if err := godotenv.Load(files...); err != nil && (path != "" || !errors.Is(err, fs.ErrNotExist)) {
		errs = append(errs, fmt.Errorf("load env file: %w", err))
	}

	cfg := defaultConfig()

	setStringFromEnv(&cfg.APIURL, "API_URL")
	setStringFromEnv(&cfg.WSURL, "WS_URL")
	setStringFromEnv(&cfg.GeocodeURL, "GEOCODE_URL")
	setStringFromEnv(&cfg.Country, "GEOCODE_COUNTRY")
	setStringFromEnv(&cfg.RoutingURL, "ROUTING_URL")
	setStringFromEnv(&cfg.UserAgent, "USER_AGENT")

	setDurationFromEnv(&cfg.Debounce, "BOOKING_DEBOUNCE", &errs)
	setDurationFromEnv(&cfg.PollInterval, "POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ReconnectDelay, "PUSH_RECONNECT_DELAY", &errs)
	setDurationFromEnv(&cfg.HeartbeatOut, "PUSH_HEARTBEAT_OUT", &errs)
	setDurationFromEnv(&cfg.HeartbeatIn, "PUSH_HEARTBEAT_IN", &errs)
	setDurationFromEnv(&cfg.RequestTimeout, "REQUEST_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.CacheTTL, "CACHE_TTL", &errs)

	cfg.Token = strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	cfg.Email = strings.TrimSpace(os.Getenv("AUTH_EMAIL"))
	cfg.Role = strings.ToUpper(strings.TrimSpace(os.Getenv("AUTH_ROLE")))

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.StripeKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.StripeCurrency, "STRIPE_CURRENCY")
	cfg.StripeCustomer = os.Getenv("STRIPE_CUSTOMER_ID")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c Config) validate() []error {
	var errs []error
	for key, raw := range map[string]string{"API_URL": c.APIURL, "WS_URL": c.WSURL, "GEOCODE_URL": c.GeocodeURL, "ROUTING_URL": c.RoutingURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", key, raw))
		}
	}
	if c.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_DEBOUNCE must be > 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be > 0"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("PUSH_RECONNECT_DELAY must be > 0"))
	}
	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
