// Package config loads the service configuration from a YAML file with
// environment-variable overrides. Signing secrets come from the environment
// only; they never live in the config file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/rate"
)

type Config struct {
	Env        string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Store      `yaml:"store"`
	Redis      `yaml:"redis"`
	Tokens     `yaml:"tokens"`
	RateLimits `yaml:"rate_limits"`
	BcryptCost int `yaml:"bcrypt_cost" env-default:"12"`
}

type HTTPServer struct {
	Address           string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env-default:"5s"`
}

type Store struct {
	// DatabaseURL empty means the in-memory store; anything else is handed
	// to the Postgres pool.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-default:""`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Tokens struct {
	AccessSecret  string        `yaml:"-" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshSecret string        `yaml:"-" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env-default:"24h"`
	RememberMeTTL time.Duration `yaml:"remember_me_ttl" env-default:"720h"`
	Issuer        string        `yaml:"issuer" env-default:"opsdesk"`
}

type RateLimits struct {
	Global       LimitPolicy `yaml:"global"`
	Auth         LimitPolicy `yaml:"auth"`
	Login        LimitPolicy `yaml:"login"`
	PublicTicket LimitPolicy `yaml:"public_ticket"`
}

type LimitPolicy struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// MustLoad reads the config file and environment, panicking on any problem.
// Configuration defects should stop the process before it serves a request.
func MustLoad(configPath string) *Config {
	config, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return config
}

// Load reads the config file when present, then applies environment
// variables on top. A missing file with a complete environment is fine.
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			return nil, err
		}
		return &config, nil
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Engine translates the loaded file into the engine configuration, filling
// any unset rate-limit class from the production defaults.
func (c *Config) Engine() authcore.Config {
	cfg := authcore.DefaultConfig()

	cfg.Token.AccessSecret = []byte(c.Tokens.AccessSecret)
	cfg.Token.RefreshSecret = []byte(c.Tokens.RefreshSecret)
	if c.Tokens.AccessTTL > 0 {
		cfg.Token.AccessTTL = c.Tokens.AccessTTL
	}
	if c.Tokens.RefreshTTL > 0 {
		cfg.Token.RefreshTTL = c.Tokens.RefreshTTL
	}
	if c.Tokens.RememberMeTTL > 0 {
		cfg.Token.RememberMeRefreshTTL = c.Tokens.RememberMeTTL
	}
	if c.Tokens.Issuer != "" {
		cfg.Token.Issuer = c.Tokens.Issuer
	}
	if c.BcryptCost > 0 {
		cfg.BcryptCost = c.BcryptCost
	}

	apply := func(class rate.Class, p LimitPolicy) {
		if p.Max <= 0 || p.Window <= 0 {
			return
		}
		policy := cfg.RateLimits[class]
		policy.Window = p.Window
		policy.Max = p.Max
		cfg.RateLimits[class] = policy
	}
	apply(rate.ClassGlobal, c.RateLimits.Global)
	apply(rate.ClassAuth, c.RateLimits.Auth)
	apply(rate.ClassLogin, c.RateLimits.Login)
	apply(rate.ClassPublicTicket, c.RateLimits.PublicTicket)

	return cfg
}
