package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Reminder holds the scheduler policy. Windows and offsets were hard-coded
// in earlier versions of the system; they are configuration now, with the
// historical values as defaults for behavioral parity.
type Reminder struct {
	EscalationOffsets []int         // days before the activity, e.g. 7,3,1
	UpcomingInterval  time.Duration // minimum gap between upcoming reminders
	OverdueInterval   time.Duration // minimum gap between overdue reminders
	MaxReminders      int           // automated-pass ceiling per slip
	OverdueEnabled    bool
	TickInterval      time.Duration
}

// Server captures process-level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string // empty selects the in-memory store
	RedisURL      string // empty disables the scheduler run-lock
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	AppSecret     string // feeds the verification hash; one secret per deployment
	BaseURL       string // public origin used in signing links
	BookingAPIURL string // empty selects the in-memory booking provider

	// AccessGrace is how long past the activity date a token still opens the
	// slip for signing.
	AccessGrace time.Duration

	Reminder Reminder
}

// FromEnv builds a Server config from environment variables so main stays
// lean. A local .env is loaded first when present; real environments set
// variables directly.
func FromEnv() Server {
	_ = godotenv.Load()

	cfg := Server{
		Addr:          envOr("SLIPGATE_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaTopic:    envOr("KAFKA_AUDIT_TOPIC", "slipgate.audit"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AppSecret:     envOr("APP_SECRET", "dev-app-secret-change-in-production"),
		BaseURL:       envOr("SLIPGATE_BASE_URL", "http://localhost:8080"),
		BookingAPIURL: os.Getenv("BOOKING_API_URL"),
		AccessGrace:   envDuration("ACCESS_GRACE", 30*24*time.Hour),
		Reminder: Reminder{
			EscalationOffsets: envInts("REMINDER_OFFSETS", []int{7, 3, 1}),
			UpcomingInterval:  envDuration("REMINDER_UPCOMING_INTERVAL", 12*time.Hour),
			OverdueInterval:   envDuration("REMINDER_OVERDUE_INTERVAL", 24*time.Hour),
			MaxReminders:      envInt("REMINDER_MAX", 5),
			OverdueEnabled:    envOr("REMINDER_OVERDUE_ENABLED", "true") == "true",
			TickInterval:      envDuration("REMINDER_TICK_INTERVAL", 5*time.Minute),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInts(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
