package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBSource  string
	Port      string
	Env       string
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration
}

func Load() (*Config, error) {
	dbSource := strings.TrimSpace(os.Getenv("DB_SOURCE"))
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "pontosledger"
	}

	ttl := 12 * time.Hour
	if raw := os.Getenv("JWT_TTL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid JWT_TTL_MINUTES value: %q", raw)
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	return &Config{
		DBSource:  dbSource,
		Port:      port,
		Env:       env,
		JWTSecret: jwtSecret,
		JWTIssuer: issuer,
		JWTTTL:    ttl,
	}, nil
}
