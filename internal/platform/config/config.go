package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	Upstream Upstream
	Redis    Redis
	Session  Session
	QR       QR
}

// Upstream points at the remote enrollment service this wizard fronts.
type Upstream struct {
	BaseURL       string
	VerifyTimeout time.Duration
	CheckTimeout  time.Duration
}

// Redis holds connection settings for the optional server-side stores.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session controls cookie persistence and the wizard's timing model.
type Session struct {
	CookieName       string
	ExpirationWindow time.Duration
	OTPTimeout       time.Duration
	OTPDebounce      time.Duration
	MaxAttempts      int
	SubmitCooldown   time.Duration
	AttemptReset     time.Duration
}

// QR controls the registration artifact issued after OTP verification.
type QR struct {
	SigningKey string
	TTL        time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CHITENV_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	upstream := os.Getenv("CHITENV_UPSTREAM_URL")
	if upstream == "" {
		upstream = "https://cust.spacetextiles.net"
	}

	signingKey := os.Getenv("CHITENV_QR_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr: addr,
		Upstream: Upstream{
			BaseURL:       upstream,
			VerifyTimeout: 30 * time.Second,
			CheckTimeout:  10 * time.Second,
		},
		Redis: Redis{
			URL:          os.Getenv("CHITENV_REDIS_URL"),
			PoolSize:     envInt("CHITENV_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CHITENV_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Session: Session{
			CookieName:       "formData",
			ExpirationWindow: 10 * time.Minute,
			OTPTimeout:       60 * time.Second,
			OTPDebounce:      800 * time.Millisecond,
			MaxAttempts:      5,
			SubmitCooldown:   5 * time.Second,
			AttemptReset:     time.Hour,
		},
		QR: QR{
			SigningKey: signingKey,
			TTL:        20 * time.Minute,
		},
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
