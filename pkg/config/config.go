// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	envPort             = "PORT"
	envHost             = "DEVSERVE_HOST"
	envRoot             = "DEVSERVE_ROOT"
	envUpstreamURL      = "DEVSERVE_UPSTREAM_URL"
	envProxyPrefix      = "DEVSERVE_PROXY_PREFIX"
	envProxyTimeout     = "DEVSERVE_PROXY_TIMEOUT"
	envProxyOnError     = "DEVSERVE_PROXY_ON_ERROR"
	envProxyStatus      = "DEVSERVE_PROXY_STATUS"
	envTLSCert          = "DEVSERVE_TLS_CERT"
	envTLSKey           = "DEVSERVE_TLS_KEY"
	envLogLevel         = "DEVSERVE_LOG_LEVEL"
	envLogFormat        = "DEVSERVE_LOG_FORMAT"
	envConfigFile       = "DEVSERVE_CONFIG"
	envGracefulShutdown = "DEVSERVE_GRACEFUL_SHUTDOWN"

	defaultHost              = "0.0.0.0"
	defaultPort              = 3000
	defaultUpstreamURL       = "http://localhost:3001"
	defaultProxyPrefix       = "/dist"
	defaultLogLevel          = "info"
	defaultLogFormat         = LogFormatAuto
	defaultServerIdleTimeout = 120 * time.Second
	defaultGracefulShutdown  = 10 * time.Second
)

// Proxy failure modes.
const (
	// OnErrorAbort closes the client connection without a response.
	OnErrorAbort = "abort"
	// OnErrorBadGateway replies 502 (or 504 on timeout).
	OnErrorBadGateway = "bad_gateway"
)

// Proxy status modes.
const (
	// StatusFixed always answers 200 for proxied requests.
	StatusFixed = "fixed"
	// StatusUpstream relays the upstream status code.
	StatusUpstream = "upstream"
)

// Log formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// dotEnvFile is loaded before the environment is read. Missing is fine.
var dotEnvFile = ".env"

// DefaultHeaders are injected into every response.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Embedder-Policy": "require-corp",
		"Access-Control-Allow-Origin":  "*",
	}
}

// DefaultExcludedHeaders are dropped from proxied upstream responses.
func DefaultExcludedHeaders() []string {
	return []string{
		"Cross-Origin-Embedder-Policy",
		"Cross-Origin-Opener-Policy",
		"Date",
	}
}

// DefaultMIMETypes overrides the platform extension mapping.
func DefaultMIMETypes() map[string]string {
	return map[string]string{
		".wasm": "application/wasm",
	}
}

// Config captures runtime settings for the dev server. It is built once by
// Load and never mutated afterwards.
type Config struct {
	Host string `validate:"omitempty,hostname_rfc1123|ip"`
	Port int    `validate:"gte=0,lte=65535"`
	Root string `validate:"required,dir"`

	// Upstream is the origin proxied requests are forwarded to. Nil when
	// proxying is disabled.
	Upstream *url.URL `validate:"-"`
	// ProxyPrefix selects proxied requests; empty disables the proxy.
	ProxyPrefix  string        `validate:"omitempty,startswith=/"`
	ProxyTimeout time.Duration `validate:"gte=0"`
	ProxyOnError string        `validate:"oneof=abort bad_gateway"`
	ProxyStatus  string        `validate:"oneof=fixed upstream"`

	Headers         map[string]string `validate:"dive,keys,required,endkeys,required"`
	ExcludedHeaders []string          `validate:"dive,required"`
	MIMETypes       map[string]string `validate:"dive,keys,startswith=.,endkeys,required"`

	TLSCertFile string `validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `validate:"required_with=TLSCertFile"`

	LogLevel  string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFormat string `validate:"oneof=auto console json"`

	ServerReadTimeout       time.Duration `validate:"gte=0"`
	ServerWriteTimeout      time.Duration `validate:"gte=0"`
	ServerIdleTimeout       time.Duration `validate:"gte=0"`
	GracefulShutdownTimeout time.Duration `validate:"gt=0"`

	upstreamRaw string
}

// Addr returns the host:port pair the server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ProxyEnabled reports whether a proxy prefix is configured.
func (c Config) ProxyEnabled() bool {
	return c.ProxyPrefix != ""
}

// TLSEnabled reports whether both halves of a certificate pair are set.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Load builds the configuration from defaults, an optional config file, a
// .env file, environment variables and command line arguments, in increasing
// order of precedence. args includes the program name at index 0.
func Load(args []string) (Config, error) {
	flags, err := parseArgs(args)
	if err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	cfg, err := defaults()
	if err != nil {
		return Config{}, err
	}

	if path := lo.CoalesceOrEmpty(flags.configFile, strings.TrimSpace(os.Getenv(envConfigFile))); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := flags.apply(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaults() (Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	return Config{
		Host:                    defaultHost,
		Port:                    defaultPort,
		Root:                    wd,
		ProxyPrefix:             defaultProxyPrefix,
		ProxyOnError:            OnErrorAbort,
		ProxyStatus:             StatusFixed,
		Headers:                 DefaultHeaders(),
		ExcludedHeaders:         DefaultExcludedHeaders(),
		MIMETypes:               DefaultMIMETypes(),
		LogLevel:                defaultLogLevel,
		LogFormat:               defaultLogFormat,
		ServerIdleTimeout:       defaultServerIdleTimeout,
		GracefulShutdownTimeout: defaultGracefulShutdown,
		upstreamRaw:             defaultUpstreamURL,
	}, nil
}

func applyEnv(cfg *Config) error {
	port, err := getPort(envPort, cfg.Port)
	if err != nil {
		return err
	}
	cfg.Port = port

	// An explicitly empty host binds all interfaces.
	if val, ok := os.LookupEnv(envHost); ok {
		cfg.Host = strings.TrimSpace(val)
	}
	if val, ok := os.LookupEnv(envProxyPrefix); ok {
		cfg.ProxyPrefix = strings.TrimSpace(val)
	}

	cfg.Root = getString(envRoot, cfg.Root)
	cfg.upstreamRaw = getString(envUpstreamURL, cfg.upstreamRaw)
	cfg.ProxyTimeout = getDuration(envProxyTimeout, cfg.ProxyTimeout)
	cfg.ProxyOnError = strings.ToLower(getString(envProxyOnError, cfg.ProxyOnError))
	cfg.ProxyStatus = strings.ToLower(getString(envProxyStatus, cfg.ProxyStatus))
	cfg.TLSCertFile = getString(envTLSCert, cfg.TLSCertFile)
	cfg.TLSKeyFile = getString(envTLSKey, cfg.TLSKeyFile)
	cfg.LogLevel = strings.ToLower(getString(envLogLevel, cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getString(envLogFormat, cfg.LogFormat))
	cfg.GracefulShutdownTimeout = getDuration(envGracefulShutdown, cfg.GracefulShutdownTimeout)

	return nil
}

// finalize normalizes derived fields and validates the result.
func (c *Config) finalize() error {
	c.MIMETypes = lo.MapKeys(c.MIMETypes, func(_ string, ext string) string {
		return strings.ToLower(ext)
	})

	if err := validate(c); err != nil {
		return err
	}

	if !c.ProxyEnabled() {
		c.Upstream = nil
		return nil
	}

	upstream, err := url.Parse(c.upstreamRaw)
	if err != nil {
		return fmt.Errorf("invalid upstream url %q: %w", c.upstreamRaw, err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return fmt.Errorf("upstream url %q must be absolute (scheme://host)", c.upstreamRaw)
	}
	c.Upstream = upstream

	return nil
}

func validate(c *Config) error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate configuration: %w", err)
	}

	msgs := lo.Map(verrs, func(e validator.FieldError, _ int) string {
		return fmt.Sprintf("%s failed %q (value %v)", e.Namespace(), e.Tag(), e.Value())
	})
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// getPort is strict: a malformed port is a startup error rather than a
// silent fallback.
func getPort(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	return parsePort(key, val)
}

func parsePort(source, val string) (int, error) {
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", source, val, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %d: out of range", source, port)
	}
	return port, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
