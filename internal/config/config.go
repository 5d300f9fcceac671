// Package config loads the service configuration from environment variables,
// optionally layered over a TOML file named by CONFIG_FILE. Precedence is
// environment, then file, then built-in default.
//
// Malformed values are errors, not silent fallbacks: Load collects every
// parse and validation problem and returns them joined, so a bad deploy
// reports all of its mistakes at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port              string        // PORT
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	MaxHeaderBytes    int           // MAX_HEADER_BYTES
	GinMode           string        // GIN_MODE: debug|release|test
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string // LOG_LEVEL
	Pretty bool   // LOG_PRETTY: console writer instead of JSON
}

// APIConfig shapes the public HTTP surface.
type APIConfig struct {
	BasePath       string        // API_BASE_PATH
	SwaggerEnabled bool          // SWAGGER_ENABLED
	MaxBodyBytes   int64         // MAX_BODY_BYTES: JSON bodies
	IdempotencyTTL time.Duration // IDEMPOTENCY_TTL
}

// RateLimitConfig feeds the per-caller token buckets.
type RateLimitConfig struct {
	RPS       float64 // RATE_RPS
	Burst     int     // RATE_BURST
	WriteCost int     // RATE_WRITE_COST: tokens charged per write
}

// CORSConfig lists allowed browser origins; empty allows all.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS (comma separated)
}

// SecurityConfig controls response hardening.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// DBConfig selects and addresses the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH: SQLite file
	URL    string // DATABASE_URL: postgres DSN
}

// DSN is the connection string for the selected driver.
func (d DBConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// FeedConfig tunes feed aggregation.
type FeedConfig struct {
	ExploreWindow int // EXPLORE_WINDOW: recent posts ranked by the explore feed
}

// StoriesConfig tunes story visibility and purging.
type StoriesConfig struct {
	TTL            time.Duration // STORY_TTL
	Retention      time.Duration // STORY_RETENTION: grace period after expiry before purge
	ReaperEnabled  bool          // REAPER_ENABLED
	ReaperSchedule string        // REAPER_SCHEDULE: cron spec or @every descriptor
}

// MediaConfig selects where uploads are stored.
type MediaConfig struct {
	Backend        string // MEDIA_BACKEND: local|s3
	Dir            string // MEDIA_DIR: local root
	PublicBaseURL  string // MEDIA_PUBLIC_BASE_URL
	S3Bucket       string // S3_BUCKET
	S3Region       string // AWS_REGION
	S3Endpoint     string // S3_ENDPOINT: custom endpoint (MinIO, localstack)
	MaxUploadBytes int64  // MAX_UPLOAD_BYTES
}

// RealtimeConfig tunes change detection for ETags.
type RealtimeConfig struct {
	// PollInterval re-reads store fingerprints so writes made by other
	// replicas invalidate this replica's ETags. Zero relies on the
	// in-process bus alone.
	PollInterval time.Duration // VERSIONS_POLL_INTERVAL
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (host:port)
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0,1]
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	API       APIConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	DB        DBConfig
	Media     MediaConfig
	Feed      FeedConfig
	Stories   StoriesConfig
	Realtime  RealtimeConfig
	OTEL      OTELConfig
}

// MustLoad is Load for main: it panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// fileConfig is the TOML overlay. Durations use time.ParseDuration syntax.
// Only tunables live here; secrets and addresses stay in the environment.
type fileConfig struct {
	Feed struct {
		ExploreWindow int `toml:"explore_window"`
	} `toml:"feed"`
	Stories struct {
		TTL            string `toml:"ttl"`
		Retention      string `toml:"retention"`
		ReaperEnabled  *bool  `toml:"reaper_enabled"`
		ReaperSchedule string `toml:"reaper_schedule"`
	} `toml:"stories"`
	Media struct {
		Backend        string `toml:"backend"`
		Dir            string `toml:"dir"`
		PublicBaseURL  string `toml:"public_base_url"`
		S3Bucket       string `toml:"s3_bucket"`
		S3Region       string `toml:"s3_region"`
		S3Endpoint     string `toml:"s3_endpoint"`
		MaxUploadBytes int64  `toml:"max_upload_bytes"`
	} `toml:"media"`
	RateLimit struct {
		RPS       float64 `toml:"rps"`
		Burst     int     `toml:"burst"`
		WriteCost int     `toml:"write_cost"`
	} `toml:"rate_limit"`
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fc, nil
}

// Load builds the configuration and validates it.
func Load() (Config, error) {
	fc, err := readFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return Config{}, err
	}
	e := &env{}

	reaperOn := true
	if fc.Stories.ReaperEnabled != nil {
		reaperOn = *fc.Stories.ReaperEnabled
	}

	cfg := Config{
		Server: ServerConfig{
			Port:              e.str("PORT", "8080"),
			ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
			GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			Pretty: e.flag("LOG_PRETTY", false),
		},
		API: APIConfig{
			BasePath:       normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),
			SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
			MaxBodyBytes:   e.integer64("MAX_BODY_BYTES", 1<<20),
			IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RPS:       e.float("RATE_RPS", nonZero(fc.RateLimit.RPS, 5)),
			Burst:     e.integer("RATE_BURST", nonZero(fc.RateLimit.Burst, 10)),
			WriteCost: e.integer("RATE_WRITE_COST", nonZero(fc.RateLimit.WriteCost, 2)),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "app.db"),
			URL:    e.str("DATABASE_URL", ""),
		},
		Media: MediaConfig{
			Backend:        strings.ToLower(e.str("MEDIA_BACKEND", nonZero(fc.Media.Backend, "local"))),
			Dir:            e.str("MEDIA_DIR", nonZero(fc.Media.Dir, "media")),
			PublicBaseURL:  e.str("MEDIA_PUBLIC_BASE_URL", fc.Media.PublicBaseURL),
			S3Bucket:       e.str("S3_BUCKET", fc.Media.S3Bucket),
			S3Region:       e.str("AWS_REGION", nonZero(fc.Media.S3Region, "us-east-1")),
			S3Endpoint:     e.str("S3_ENDPOINT", fc.Media.S3Endpoint),
			MaxUploadBytes: e.integer64("MAX_UPLOAD_BYTES", nonZero(fc.Media.MaxUploadBytes, 10<<20)),
		},
		Feed: FeedConfig{
			ExploreWindow: e.integer("EXPLORE_WINDOW", nonZero(fc.Feed.ExploreWindow, 50)),
		},
		Stories: StoriesConfig{
			TTL:            e.dur("STORY_TTL", e.fileDur("stories.ttl", fc.Stories.TTL, 24*time.Hour)),
			Retention:      e.dur("STORY_RETENTION", e.fileDur("stories.retention", fc.Stories.Retention, 0)),
			ReaperEnabled:  e.flag("REAPER_ENABLED", reaperOn),
			ReaperSchedule: e.str("REAPER_SCHEDULE", nonZero(fc.Stories.ReaperSchedule, "@every 1h")),
		},
		Realtime: RealtimeConfig{
			PollInterval: e.dur("VERSIONS_POLL_INTERVAL", 0),
		},
		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-social-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.Log.Level == "warning" {
		cfg.Log.Level = "warn"
	}
	switch cfg.Server.GinMode {
	case "debug", "release", "test":
	default:
		cfg.Server.GinMode = "release"
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	s := cfg.Server
	check(strings.TrimSpace(s.Port) != "", "PORT must not be empty")
	check(s.ReadTimeout > 0 && s.ReadHeaderTimeout > 0 && s.WriteTimeout > 0 && s.IdleTimeout > 0,
		"server timeouts must be positive durations")
	check(s.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	check(cfg.API.MaxBodyBytes > 0, "MAX_BODY_BYTES must be > 0")
	check(cfg.API.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")

	switch cfg.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(cfg.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(cfg.DB.URL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
	}

	switch cfg.Media.Backend {
	case "local":
		check(strings.TrimSpace(cfg.Media.Dir) != "", "MEDIA_DIR must not be empty")
	case "s3":
		check(strings.TrimSpace(cfg.Media.S3Bucket) != "", "S3_BUCKET is required when MEDIA_BACKEND=s3")
	default:
		errs = append(errs, errors.New("MEDIA_BACKEND must be one of: local, s3"))
	}
	check(cfg.Media.MaxUploadBytes > 0, "MAX_UPLOAD_BYTES must be > 0")

	check(cfg.Feed.ExploreWindow >= 1, "EXPLORE_WINDOW must be >= 1")
	check(cfg.Stories.TTL > 0, "STORY_TTL must be > 0")
	check(cfg.Stories.Retention >= 0, "STORY_RETENTION must be >= 0")
	if _, err := ParseSchedule(cfg.Stories.ReaperSchedule); err != nil {
		errs = append(errs, fmt.Errorf("REAPER_SCHEDULE is invalid: %w", err))
	}
	check(cfg.Realtime.PollInterval >= 0, "VERSIONS_POLL_INTERVAL must be >= 0")

	r := cfg.RateLimit
	check(r.RPS >= 0, "RATE_RPS must be >= 0")
	check(r.Burst >= 1, "RATE_BURST must be >= 1")
	check(r.WriteCost >= 1 && r.WriteCost <= max(r.Burst, 1), "RATE_WRITE_COST must be between 1 and RATE_BURST")

	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// ParseSchedule parses a five-field cron spec or an @-descriptor such as
// "@every 1h". Load validates REAPER_SCHEDULE with it and the reaper
// schedules with its result.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(strings.TrimSpace(spec))
}

// env reads typed variables and remembers every value it could not parse.
// Unset or empty variables take the default.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) bad(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", k, v, kind))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return n
}

func (e *env) integer64(k string, def int64) int64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return n
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(k, v, "number")
		return def
	}
	return f
}

func (e *env) flag(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k, v, "boolean")
	return def
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(k, v, "duration")
		return def
	}
	return d
}

// fileDur parses a duration from the TOML overlay; empty means def.
func (e *env) fileDur(key, v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(key, v, "duration")
		return def
	}
	return d
}

// nonZero returns v unless it is the zero value (or blank, for strings).
func nonZero[T comparable](v, def T) T {
	var zero T
	if s, ok := any(v).(string); ok && strings.TrimSpace(s) == "" {
		return def
	}
	if v == zero {
		return def
	}
	return v
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath yields "/" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
