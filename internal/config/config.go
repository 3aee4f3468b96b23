package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"tetris_together/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	JWTSecret     string
	AllowedOrigin string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel string
	LogJSON  bool

	// Join endpoint limits
	JoinRateLimit  int
	JoinRateWindow time.Duration

	BoardHeight int

	// RelayURL is where clients dial the relay
	RelayURL string
}

var errNoSecret = errors.New("JWT_SECRET is not set")

// Load reads .env and the environment for the relay server. A missing
// JWT_SECRET is fatal.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := parse(os.Getenv)
	if err != nil {
		logger.Fatal("config: " + err.Error())
	}
	return cfg
}

// LoadClient is Load for tools that never sign tokens.
func LoadClient() *Config {
	_ = godotenv.Load()

	cfg, err := parse(os.Getenv)
	if err != nil && !errors.Is(err, errNoSecret) {
		logger.Fatal("config: " + err.Error())
	}
	return cfg
}

func parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		AppPort:        stringEnv(getenv, "APP_PORT", "8080"),
		JWTSecret:      getenv("JWT_SECRET"),
		AllowedOrigin:  getenv("ALLOWED_ORIGIN"),
		RedisAddr:      getenv("REDIS_ADDR"),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		LogLevel:       stringEnv(getenv, "LOG_LEVEL", "info"),
		LogJSON:        getenv("LOG_JSON") == "true",
		JoinRateLimit:  30,
		JoinRateWindow: 60 * time.Second,
		BoardHeight:    20,
	}

	var err error
	if cfg.RedisDB, err = intEnv(getenv, "REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JoinRateLimit, err = intEnv(getenv, "JOIN_RATE_LIMIT", cfg.JoinRateLimit); err != nil {
		return nil, err
	}
	window, err := intEnv(getenv, "JOIN_RATE_WINDOW", int(cfg.JoinRateWindow/time.Second))
	if err != nil {
		return nil, err
	}
	cfg.JoinRateWindow = time.Duration(window) * time.Second
	if cfg.BoardHeight, err = intEnv(getenv, "BOARD_HEIGHT", cfg.BoardHeight); err != nil {
		return nil, err
	}
	// pieces spawn in the top four rows
	if cfg.BoardHeight < 4 {
		return nil, fmt.Errorf("BOARD_HEIGHT must be at least 4, got %d", cfg.BoardHeight)
	}

	cfg.RelayURL = stringEnv(getenv, "RELAY_URL", "ws://127.0.0.1:"+cfg.AppPort+"/ws")

	if cfg.JWTSecret == "" {
		return cfg, errNoSecret
	}
	return cfg, nil
}

func stringEnv(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return n, nil
}
