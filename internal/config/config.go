package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the collector.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       logging.Level

	// DBURL selects the persistence backend. Empty means in-memory
	// repositories, useful for local runs and tests.
	DBURL string

	FetchHeadless     bool
	FetchNavTimeout   time.Duration
	FetchRetries      int
	FetchBackoffBase  time.Duration
	FetchBackoffCap   time.Duration
	FetchMaxBrowsers  int
	FetchScrollRounds int

	FetchCircuitEnabled        bool
	FetchCircuitFailureCount   int
	FetchCircuitOpenTimeout    time.Duration
	FetchCircuitHalfOpenMaxReq int

	ResolveHighThreshold float64
	ResolveLowThreshold  float64
	ResolveEpsilon       float64

	Jobs []JobConfig

	UptraceEnabled bool
	UptraceDSN     string
}

// JobConfig describes one scheduled source job. Exactly one of Every,
// CronExpr, or Once is set after parsing.
type JobConfig struct {
	Name        string
	Adapter     string
	URL         string
	Every       time.Duration
	CronExpr    string
	Once        bool
	Concurrency int
	RateLimit   float64
	Enabled     bool
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}

	fetchHeadless, err := strconv.ParseBool(getEnv("FETCH_HEADLESS", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_HEADLESS: %w", err)
	}
	fetchNavTimeout, err := time.ParseDuration(getEnv("FETCH_NAV_TIMEOUT", "45s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_NAV_TIMEOUT: %w", err)
	}
	if fetchNavTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_NAV_TIMEOUT must be > 0")
	}
	fetchRetries, err := getEnvAsInt("FETCH_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_RETRIES: %w", err)
	}
	if fetchRetries < 1 {
		return Config{}, fmt.Errorf("FETCH_RETRIES must be >= 1")
	}
	fetchBackoffBase, err := time.ParseDuration(getEnv("FETCH_BACKOFF_BASE", "500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_BACKOFF_BASE: %w", err)
	}
	if fetchBackoffBase <= 0 {
		return Config{}, fmt.Errorf("FETCH_BACKOFF_BASE must be > 0")
	}
	fetchBackoffCap, err := time.ParseDuration(getEnv("FETCH_BACKOFF_CAP", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_BACKOFF_CAP: %w", err)
	}
	if fetchBackoffCap < fetchBackoffBase {
		return Config{}, fmt.Errorf("FETCH_BACKOFF_CAP must be >= FETCH_BACKOFF_BASE")
	}
	fetchMaxBrowsers, err := getEnvAsInt("FETCH_MAX_BROWSERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_MAX_BROWSERS: %w", err)
	}
	if fetchMaxBrowsers < 1 {
		return Config{}, fmt.Errorf("FETCH_MAX_BROWSERS must be >= 1")
	}
	fetchScrollRounds, err := getEnvAsInt("FETCH_SCROLL_ROUNDS", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_SCROLL_ROUNDS: %w", err)
	}
	if fetchScrollRounds < 0 {
		return Config{}, fmt.Errorf("FETCH_SCROLL_ROUNDS must be >= 0")
	}

	fetchCircuitEnabled, err := strconv.ParseBool(getEnv("FETCH_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_CIRCUIT_ENABLED: %w", err)
	}
	fetchCircuitFailureCount, err := getEnvAsInt("FETCH_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if fetchCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("FETCH_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	fetchCircuitOpenTimeout, err := time.ParseDuration(getEnv("FETCH_CIRCUIT_OPEN_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if fetchCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	fetchCircuitHalfOpenMaxReq, err := getEnvAsInt("FETCH_CIRCUIT_HALF_OPEN_MAX_REQ", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if fetchCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("FETCH_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	resolveHigh, err := getEnvAsFloat("RESOLVE_HIGH_THRESHOLD", 0.90)
	if err != nil {
		return Config{}, fmt.Errorf("parse RESOLVE_HIGH_THRESHOLD: %w", err)
	}
	resolveLow, err := getEnvAsFloat("RESOLVE_LOW_THRESHOLD", 0.75)
	if err != nil {
		return Config{}, fmt.Errorf("parse RESOLVE_LOW_THRESHOLD: %w", err)
	}
	resolveEpsilon, err := getEnvAsFloat("RESOLVE_EPSILON", 0.02)
	if err != nil {
		return Config{}, fmt.Errorf("parse RESOLVE_EPSILON: %w", err)
	}
	if resolveHigh <= resolveLow {
		return Config{}, fmt.Errorf("RESOLVE_HIGH_THRESHOLD must be > RESOLVE_LOW_THRESHOLD")
	}
	if resolveEpsilon < 0 {
		return Config{}, fmt.Errorf("RESOLVE_EPSILON must be >= 0")
	}

	jobs, err := parseJobs(getEnv("JOBS", ""), splitCSV(getEnv("JOBS_ENABLED", "")))
	if err != nil {
		return Config{}, fmt.Errorf("parse JOBS: %w", err)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	return Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("APP_SERVICE_NAME", "sportpipe-collector"),
		ServiceVersion: getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("APP_HTTP_ADDR", ":8080"),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		LogLevel:       parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),

		DBURL: strings.TrimSpace(getEnv("DB_URL", "")),

		FetchHeadless:     fetchHeadless,
		FetchNavTimeout:   fetchNavTimeout,
		FetchRetries:      fetchRetries,
		FetchBackoffBase:  fetchBackoffBase,
		FetchBackoffCap:   fetchBackoffCap,
		FetchMaxBrowsers:  fetchMaxBrowsers,
		FetchScrollRounds: fetchScrollRounds,

		FetchCircuitEnabled:        fetchCircuitEnabled,
		FetchCircuitFailureCount:   fetchCircuitFailureCount,
		FetchCircuitOpenTimeout:    fetchCircuitOpenTimeout,
		FetchCircuitHalfOpenMaxReq: fetchCircuitHalfOpenMaxReq,

		ResolveHighThreshold: resolveHigh,
		ResolveLowThreshold:  resolveLow,
		ResolveEpsilon:       resolveEpsilon,

		Jobs: jobs,

		UptraceEnabled: uptraceEnabled,
		UptraceDSN:     uptraceDSN,
	}, nil
}

// parseJobs decodes the JOBS env var. Entries are separated by semicolons
// because cron expressions may contain commas. Fields within an entry are
// pipe separated:
//
//	name|adapter|url|schedule[|concurrency[|rate]]
//
// The schedule field is "once", a Go duration like "15m", or a cron
// expression. An empty JOBS_ENABLED list enables every parsed job.
func parseJobs(raw string, enabled []string) ([]JobConfig, error) {
	entries := splitList(raw, ";")
	if len(entries) == 0 {
		return nil, nil
	}

	enabledSet := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		enabledSet[name] = struct{}{}
	}

	out := make([]JobConfig, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		fields := strings.Split(entry, "|")
		if len(fields) < 4 {
			return nil, fmt.Errorf("invalid job entry %q, expected name|adapter|url|schedule", entry)
		}

		jc := JobConfig{
			Name:        strings.TrimSpace(fields[0]),
			Adapter:     strings.TrimSpace(fields[1]),
			URL:         strings.TrimSpace(fields[2]),
			Concurrency: 1,
		}
		if jc.Name == "" || jc.Adapter == "" || jc.URL == "" {
			return nil, fmt.Errorf("job entry %q has empty name, adapter, or url", entry)
		}
		if _, dup := seen[jc.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %q", jc.Name)
		}
		seen[jc.Name] = struct{}{}

		schedule := strings.TrimSpace(fields[3])
		switch {
		case schedule == "":
			return nil, fmt.Errorf("job entry %q has empty schedule", entry)
		case strings.EqualFold(schedule, "once"):
			jc.Once = true
		default:
			if every, err := time.ParseDuration(schedule); err == nil {
				if every <= 0 {
					return nil, fmt.Errorf("job entry %q has non-positive interval", entry)
				}
				jc.Every = every
			} else {
				// Not a duration, assume a cron expression. It is
				// validated when the job is registered.
				jc.CronExpr = schedule
			}
		}

		if len(fields) > 4 && strings.TrimSpace(fields[4]) != "" {
			concurrency, err := strconv.Atoi(strings.TrimSpace(fields[4]))
			if err != nil {
				return nil, fmt.Errorf("invalid concurrency in job entry %q: %w", entry, err)
			}
			if concurrency < 1 {
				return nil, fmt.Errorf("concurrency must be >= 1 in job entry %q", entry)
			}
			jc.Concurrency = concurrency
		}
		if len(fields) > 5 && strings.TrimSpace(fields[5]) != "" {
			rateLimit, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid rate in job entry %q: %w", entry, err)
			}
			if rateLimit < 0 {
				return nil, fmt.Errorf("rate must be >= 0 in job entry %q", entry)
			}
			jc.RateLimit = rateLimit
		}

		if len(enabledSet) == 0 {
			jc.Enabled = true
		} else {
			_, jc.Enabled = enabledSet[jc.Name]
		}

		out = append(out, jc)
	}

	return out, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	return splitList(v, ",")
}

func splitList(v, sep string) []string {
	parts := strings.Split(v, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
