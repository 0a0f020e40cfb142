package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected HTTPAddr: %q", cfg.HTTPAddr)
	}
	if cfg.DBURL != "" {
		t.Fatalf("expected empty DBURL by default, got %q", cfg.DBURL)
	}
	if !cfg.FetchHeadless {
		t.Fatalf("expected FetchHeadless=true by default")
	}
	if cfg.FetchMaxBrowsers != 4 {
		t.Fatalf("unexpected FetchMaxBrowsers: %d", cfg.FetchMaxBrowsers)
	}
	if cfg.ResolveHighThreshold != 0.90 || cfg.ResolveLowThreshold != 0.75 || cfg.ResolveEpsilon != 0.02 {
		t.Fatalf("unexpected resolve thresholds: %+v", cfg)
	}
	if len(cfg.Jobs) != 0 {
		t.Fatalf("expected no jobs by default, got %d", len(cfg.Jobs))
	}
}

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `uptrace-dsn="https://token@uptrace.dev/1"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@uptrace.dev/1" {
		t.Fatalf("unexpected UptraceDSN: %q", cfg.UptraceDSN)
	}
}

func TestLoad_ThresholdOrdering(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("RESOLVE_HIGH_THRESHOLD", "0.7")
	t.Setenv("RESOLVE_LOW_THRESHOLD", "0.8")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when high threshold <= low threshold")
	}
}

func TestLoad_FetchValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("FETCH_RETRIES", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for FETCH_RETRIES=0")
	}
}

func TestParseJobs(t *testing.T) {
	jobs, err := parseJobs(
		"premier-squads|squadlist|https://example.com/squad|15m|2|0.5;"+
			"fixtures|matchevents|https://example.com/fixtures|0 */6 * * *;"+
			"backfill|squadlist|https://example.com/archive|once",
		nil,
	)
	if err != nil {
		t.Fatalf("parse jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}

	first := jobs[0]
	if first.Name != "premier-squads" || first.Adapter != "squadlist" {
		t.Fatalf("unexpected first job: %+v", first)
	}
	if first.Every != 15*time.Minute || first.Concurrency != 2 || first.RateLimit != 0.5 {
		t.Fatalf("unexpected first job schedule fields: %+v", first)
	}
	if !first.Enabled {
		t.Fatalf("expected jobs enabled when JOBS_ENABLED is empty")
	}

	if jobs[1].CronExpr != "0 */6 * * *" || jobs[1].Every != 0 {
		t.Fatalf("unexpected cron job: %+v", jobs[1])
	}
	if !jobs[2].Once {
		t.Fatalf("expected once schedule: %+v", jobs[2])
	}
}

func TestParseJobs_EnabledFilter(t *testing.T) {
	jobs, err := parseJobs(
		"a|squadlist|https://example.com/a|1h;b|squadlist|https://example.com/b|1h",
		[]string{"b"},
	)
	if err != nil {
		t.Fatalf("parse jobs: %v", err)
	}
	if jobs[0].Enabled {
		t.Fatalf("job a should be disabled")
	}
	if !jobs[1].Enabled {
		t.Fatalf("job b should be enabled")
	}
}

func TestParseJobs_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing fields":   "a|squadlist|https://example.com/a",
		"empty name":       "|squadlist|https://example.com/a|1h",
		"duplicate name":   "a|squadlist|https://example.com/a|1h;a|squadlist|https://example.com/b|1h",
		"zero interval":    "a|squadlist|https://example.com/a|0s",
		"bad concurrency":  "a|squadlist|https://example.com/a|1h|zero",
		"zero concurrency": "a|squadlist|https://example.com/a|1h|0",
		"negative rate":    "a|squadlist|https://example.com/a|1h|1|-2",
	}
	for name, raw := range cases {
		if _, err := parseJobs(raw, nil); err == nil {
			t.Fatalf("%s: expected error for %q", name, raw)
		}
	}
}
