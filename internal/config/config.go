package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Blocklist BlocklistConfig
	Guard     GuardConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Token store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// BlocklistConfig controls where revoked token ids live and how long they are kept.
type BlocklistConfig struct {
	Store string

	AccessRetention  time.Duration
	RefreshRetention time.Duration

	// SweepInterval of zero disables the background sweeper; sweeps still
	// happen opportunistically on logout.
	SweepInterval time.Duration
}

// GuardConfig carries the redirect targets shared by all guards.
type GuardConfig struct {
	// APIPrefix marks requests that get JSON denials instead of redirects.
	APIPrefix string
	LoginURI  string
	VerifyURI string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Blocklist.Store = strings.ToLower(strings.TrimSpace(os.Getenv("TOKEN_STORE")))
	if c.Blocklist.Store == "" {
		c.Blocklist.Store = StorePostgres
	}

	if c.Blocklist.Store == StorePostgres {
		c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
		{
			n, err := mustInt("DB_PORT")
			n, parseErrs = appendParseErr(parseErrs, n, err)
			c.DB.Port = n
		}
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	if c.Blocklist.Store == StoreRedis {
		c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
		{
			n, err := mustInt("REDIS_PORT")
			n, parseErrs = appendParseErr(parseErrs, n, err)
			c.Redis.Port = n
		}
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")

	c.Blocklist.AccessRetention, parseErrs = optionalDuration(parseErrs, "BLOCKLIST_ACCESS_RETENTION")
	c.Blocklist.RefreshRetention, parseErrs = optionalDuration(parseErrs, "BLOCKLIST_REFRESH_RETENTION")
	c.Blocklist.SweepInterval, parseErrs = optionalDuration(parseErrs, "BLOCKLIST_SWEEP_INTERVAL")

	c.Guard.APIPrefix = strings.TrimSpace(os.Getenv("GUARD_API_PREFIX"))
	c.Guard.LoginURI = strings.TrimSpace(os.Getenv("GUARD_LOGIN_URI"))
	c.Guard.VerifyURI = strings.TrimSpace(os.Getenv("GUARD_VERIFY_URI"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Blocklist.Store {
	case "":
		c.Blocklist.Store = StorePostgres
		errs = append(errs, c.validateDB()...)
	case StorePostgres:
		errs = append(errs, c.validateDB()...)
	case StoreRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("TOKEN_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_STORE must be one of postgres, redis, memory, got %q", c.Blocklist.Store))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Blocklist.AccessRetention <= 0 {
		c.Blocklist.AccessRetention = 7 * 24 * time.Hour
	}
	if c.Blocklist.RefreshRetention <= 0 {
		c.Blocklist.RefreshRetention = 30 * 24 * time.Hour
	}
	// A revoked token must stay blocked for as long as it could still verify.
	if c.Blocklist.AccessRetention < c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("BLOCKLIST_ACCESS_RETENTION must be at least JWT_ACCESS_TTL"))
	}
	if c.Blocklist.RefreshRetention < c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("BLOCKLIST_REFRESH_RETENTION must be at least JWT_REFRESH_TTL"))
	}
	if c.Blocklist.SweepInterval < 0 {
		errs = append(errs, errors.New("BLOCKLIST_SWEEP_INTERVAL must not be negative"))
	}

	if c.Guard.APIPrefix == "" {
		c.Guard.APIPrefix = "/v1/"
	}
	if c.Guard.LoginURI == "" {
		c.Guard.LoginURI = "/login?callbackURI=%s"
	}
	if c.Guard.VerifyURI == "" {
		c.Guard.VerifyURI = "/verify?callbackURI=%s"
	}
	if strings.Count(c.Guard.LoginURI, "%s") != 1 {
		errs = append(errs, fmt.Errorf("GUARD_LOGIN_URI must contain exactly one %%s, got %q", c.Guard.LoginURI))
	}
	if strings.Count(c.Guard.VerifyURI, "%s") != 1 {
		errs = append(errs, fmt.Errorf("GUARD_VERIFY_URI must contain exactly one %%s, got %q", c.Guard.VerifyURI))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optionalDuration returns zero for an unset key and records a parse error for a malformed one.
func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
