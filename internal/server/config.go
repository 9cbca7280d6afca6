// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Host           string `env:"HOST"`
	Port           int    `env:"PORT,default=3000" validate:"gte=1,lte=65535"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096" validate:"gt=0"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=20" validate:"gt=0"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`

	// Liveness: a ping every PingInterval, a read deadline of PongWait.
	PingInterval time.Duration `env:"PING_INTERVAL,default=54s" validate:"gt=0,ltfield=PongWait"`
	PongWait     time.Duration `env:"PONG_WAIT,default=60s" validate:"gt=0"`
	WriteWait    time.Duration `env:"WRITE_WAIT,default=10s" validate:"gt=0"`

	MaxDisplayNameLength int    `env:"MAX_DISPLAY_NAME_LENGTH,default=32" validate:"gt=0"`
	MaxBodyLength        int    `env:"MAX_BODY_LENGTH,default=500" validate:"gte=0"`
	CensoredWords        string `env:"CENSORED_WORDS"`

	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

var configValidator = validator.New()

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		Port:                 3000,
		AllowedOrigins:       "*",
		MaxMessageSize:       4096,
		SendBufferSize:       256,
		RateLimitBurst:       20,
		RateLimitRefill:      time.Second,
		PingInterval:         54 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxDisplayNameLength: chat.DefaultMaxDisplayNameLength,
		MaxBodyLength:        chat.DefaultMaxBodyLength,
		LogLevel:             "INFO",
		ShutdownTimeout:      10 * time.Second,
	}
}

// LoadConfig reads the optional env files (".env" when none is given), then
// the process environment, and validates the result.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins returns the configured WebSocket origins.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Censored returns the configured censored words.
func (c Config) Censored() []string {
	return splitList(c.CensoredWords)
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
