package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lodi-net/lodi/internal/approval"
	"github.com/lodi-net/lodi/internal/signature"
)

const (
	defaultAppName          = "Lodi"
	defaultLogLevel         = "info"
	defaultRegistryAddr     = "127.0.0.1:2924"
	defaultApprovalAddr     = "127.0.0.1:2925"
	defaultGatewayAddr      = "127.0.0.1:2926"
	defaultHTTPPort         = "8080"
	defaultFreshnessWindow  = 30 * time.Second
	defaultPushTimeout      = 15 * time.Second
	defaultUpstreamTimeout  = 3 * time.Second
	defaultClientReadTime   = 10 * time.Second
	defaultSessionTTL       = 12 * time.Hour
	defaultCapacity         = 100
	defaultLoginAttempts    = 5
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	configFileEnvVar        = "CONFIG_FILE"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	freshnessWindowEnvVar   = "FRESHNESS_WINDOW"
	pushTimeoutEnvVar       = "PUSH_TIMEOUT"
	upstreamTimeoutEnvVar   = "UPSTREAM_TIMEOUT"
	clientReadTimeoutEnvVar = "CLIENT_READ_TIMEOUT"
	sessionTTLEnvVar        = "SESSION_TTL"
	idempotencyTTLEnvVar    = "IDEMPOTENCY_TTL"
)

// Config captures runtime configuration shared by every Lodi process. Each
// binary reads only the fields it needs.
type Config struct {
	AppName  string `toml:"app_name"`
	LogLevel string `toml:"log_level"`

	RegistryAddr string `toml:"registry_addr"`
	ApprovalAddr string `toml:"approval_addr"`
	GatewayAddr  string `toml:"gateway_addr"`
	HTTPPort     string `toml:"http_port"`

	DatabaseURL string `toml:"database_url"`
	RedisURL    string `toml:"redis_url"`

	FreshnessWindow   Duration `toml:"freshness_window"`
	PushTimeout       Duration `toml:"push_timeout"`
	UpstreamTimeout   Duration `toml:"upstream_timeout"`
	ClientReadTimeout Duration `toml:"client_read_timeout"`
	SessionTTL        Duration `toml:"session_ttl"`
	ShutdownPeriod    Duration `toml:"shutdown_timeout"`
	IdempotencyTTL    Duration `toml:"idempotency_ttl"`

	RegistryCapacity       int    `toml:"registry_capacity"`
	DeviceCapacity         int    `toml:"device_capacity"`
	DeviceReRegisterPolicy string `toml:"device_reregister_policy"`
	LoginAttemptsPerMinute int    `toml:"login_attempts_per_minute"`

	UserID          uint32 `toml:"user_id"`
	Modulus         uint64 `toml:"signature_modulus"`
	PublicExponent  uint64 `toml:"public_exponent"`
	PrivateExponent uint64 `toml:"private_exponent"`
}

// Duration lets TOML files spell durations as strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	keys := signature.DefaultKeyPair()
	return Config{
		AppName:                defaultAppName,
		LogLevel:               defaultLogLevel,
		RegistryAddr:           defaultRegistryAddr,
		ApprovalAddr:           defaultApprovalAddr,
		GatewayAddr:            defaultGatewayAddr,
		HTTPPort:               defaultHTTPPort,
		FreshnessWindow:        Duration{defaultFreshnessWindow},
		PushTimeout:            Duration{defaultPushTimeout},
		UpstreamTimeout:        Duration{defaultUpstreamTimeout},
		ClientReadTimeout:      Duration{defaultClientReadTime},
		SessionTTL:             Duration{defaultSessionTTL},
		ShutdownPeriod:         Duration{defaultShutdownDelay},
		IdempotencyTTL:         Duration{defaultIdempotencyTTL},
		RegistryCapacity:       defaultCapacity,
		DeviceCapacity:         defaultCapacity,
		DeviceReRegisterPolicy: string(approval.PolicyIgnore),
		LoginAttemptsPerMinute: defaultLoginAttempts,
		Modulus:                keys.Modulus,
		PublicExponent:         keys.Public,
		PrivateExponent:        keys.Private,
	}
}

// Load starts from Defaults, applies the TOML file named by CONFIG_FILE if
// set, then applies environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(configFileEnvVar); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.RegistryAddr = getEnv("REGISTRY_ADDR", cfg.RegistryAddr)
	cfg.ApprovalAddr = getEnv("APPROVAL_ADDR", cfg.ApprovalAddr)
	cfg.GatewayAddr = getEnv("GATEWAY_ADDR", cfg.GatewayAddr)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DeviceReRegisterPolicy = getEnv("DEVICE_REREGISTER_POLICY", cfg.DeviceReRegisterPolicy)

	durations := []struct {
		name string
		dst  *Duration
	}{
		{freshnessWindowEnvVar, &cfg.FreshnessWindow},
		{pushTimeoutEnvVar, &cfg.PushTimeout},
		{upstreamTimeoutEnvVar, &cfg.UpstreamTimeout},
		{clientReadTimeoutEnvVar, &cfg.ClientReadTimeout},
		{sessionTTLEnvVar, &cfg.SessionTTL},
		{idempotencyTTLEnvVar, &cfg.IdempotencyTTL},
	}
	for _, d := range durations {
		if err := durationEnv(d.name, d.dst); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = Duration{time.Duration(seconds) * time.Second}
	} else if err := durationEnv(shutdownDurationEnvVar, &cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"REGISTRY_CAPACITY", &cfg.RegistryCapacity},
		{"DEVICE_CAPACITY", &cfg.DeviceCapacity},
		{"LOGIN_ATTEMPTS_PER_MINUTE", &cfg.LoginAttemptsPerMinute},
	}
	for _, i := range ints {
		if v := os.Getenv(i.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", i.name, err)
			}
			*i.dst = n
		}
	}

	if v := os.Getenv("LODI_USER_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LODI_USER_ID: %w", err)
		}
		cfg.UserID = uint32(id)
	}
	uints := []struct {
		name string
		dst  *uint64
	}{
		{"SIGNATURE_MODULUS", &cfg.Modulus},
		{"PUBLIC_EXPONENT", &cfg.PublicExponent},
		{"PRIVATE_EXPONENT", &cfg.PrivateExponent},
	}
	for _, u := range uints {
		if v := os.Getenv(u.name); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", u.name, err)
			}
			*u.dst = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no process can run with.
func (c Config) Validate() error {
	if c.Modulus < 2 {
		return fmt.Errorf("signature modulus must be at least 2, got %d", c.Modulus)
	}
	if c.FreshnessWindow.Duration < time.Second {
		return fmt.Errorf("freshness window must be at least 1s, got %s", c.FreshnessWindow)
	}
	if c.RegistryCapacity <= 0 || c.DeviceCapacity <= 0 {
		return fmt.Errorf("capacities must be positive")
	}
	if _, err := approval.ParsePolicy(c.DeviceReRegisterPolicy); err != nil {
		return err
	}
	return nil
}

// Keys returns the signing key pair described by the configuration.
func (c Config) Keys() signature.KeyPair {
	return signature.KeyPair{Modulus: c.Modulus, Public: c.PublicExponent, Private: c.PrivateExponent}
}

// Policy returns the parsed device re-registration policy.
func (c Config) Policy() approval.ReRegisterPolicy {
	p, _ := approval.ParsePolicy(c.DeviceReRegisterPolicy)
	return p
}

// HTTPAddress returns the listen address in the format Fiber expects.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.HTTPPort, ":") {
		return c.HTTPPort
	}
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		dst.Duration = time.Duration(seconds) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	dst.Duration = d
	return nil
}
