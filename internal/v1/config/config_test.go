package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv saves and clears the variables ValidateEnv reads, restoring
// them when the test finishes.
func setupTestEnv(t *testing.T) {
	t.Helper()

	vars := []string{
		"PORT", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "STATS_STREAM",
		"GO_ENV", "LOG_LEVEL", "AUTH0_DOMAIN", "AUTH0_AUDIENCE", "SKIP_AUTH",
		"DEVELOPMENT_MODE", "ALLOWED_ORIGINS", "OTEL_ENABLED", "OTEL_COLLECTOR_ADDR",
		"TICK_HZ", "SNAPSHOT_HZ", "RATE_LIMIT_WS_IP", "RATE_LIMIT_WS_USER", "RATE_LIMIT_CHAT",
	}
	orig := make(map[string]string, len(vars))
	for _, v := range vars {
		orig[v] = os.Getenv(v)
		os.Unsetenv(v)
	}
	t.Cleanup(func() {
		for k, v := range orig {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

func TestValidateEnv_MissingPort(t *testing.T) {
	setupTestEnv(t)

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error when PORT is missing")
	}
	if !strings.Contains(err.Error(), "PORT is required") {
		t.Errorf("expected PORT error, got: %v", err)
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "not-a-port")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid PORT")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("expected port range error, got: %v", err)
	}
}

func TestValidateEnv_Defaults(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GoEnv != "production" {
		t.Errorf("expected GoEnv production, got %s", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", cfg.LogLevel)
	}
	if cfg.StatsStream != "stats:matches" {
		t.Errorf("expected default stats stream, got %s", cfg.StatsStream)
	}
	if cfg.TickHz != 30 || cfg.SnapshotHz != 15 {
		t.Errorf("expected tick 30 / snapshot 15, got %d / %d", cfg.TickHz, cfg.SnapshotHz)
	}
	if cfg.RateLimitWsIP != "100-M" || cfg.RateLimitChat != "30-M" {
		t.Errorf("unexpected rate limit defaults: %s / %s", cfg.RateLimitWsIP, cfg.RateLimitChat)
	}
	if cfg.RedisEnabled {
		t.Error("expected Redis disabled by default")
	}
}

func TestValidateEnv_RedisDefaults(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RedisEnabled {
		t.Error("expected Redis enabled")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %s", cfg.RedisAddr)
	}
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "no-port-here")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for malformed REDIS_ADDR")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Errorf("expected REDIS_ADDR error, got: %v", err)
	}
}

func TestValidateEnv_TickBounds(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")
	os.Setenv("TICK_HZ", "500")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for out-of-range TICK_HZ")
	}
	if !strings.Contains(err.Error(), "TICK_HZ") {
		t.Errorf("expected TICK_HZ error, got: %v", err)
	}
}

func TestValidateEnv_SnapshotAboveTick(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")
	os.Setenv("TICK_HZ", "20")
	os.Setenv("SNAPSHOT_HZ", "30")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error when SNAPSHOT_HZ exceeds TICK_HZ")
	}
	if !strings.Contains(err.Error(), "SNAPSHOT_HZ") {
		t.Errorf("expected SNAPSHOT_HZ error, got: %v", err)
	}
}

func TestValidateEnv_MalformedInt(t *testing.T) {
	setupTestEnv(t)
	os.Setenv("PORT", "8080")
	os.Setenv("TICK_HZ", "fast")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for non-integer TICK_HZ")
	}
	if !strings.Contains(err.Error(), "must be an integer") {
		t.Errorf("expected integer parse error, got: %v", err)
	}
}

func TestIsValidHostPort(t *testing.T) {
	cases := map[string]bool{
		"localhost:6379": true,
		"10.0.0.1:4317":  true,
		"localhost":      false,
		":6379":          false,
		"host:notaport":  false,
		"host:70000":     false,
	}
	for addr, want := range cases {
		if got := isValidHostPort(addr); got != want {
			t.Errorf("isValidHostPort(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestRedactSecret(t *testing.T) {
	if redactSecret("") != "" {
		t.Error("empty secret should stay empty")
	}
	if redactSecret("short") != "***" {
		t.Error("short secret should be fully redacted")
	}
	got := redactSecret("supersecretpassword")
	if got != "supersec***" {
		t.Errorf("unexpected redaction: %s", got)
	}
	if strings.Contains(got, "password") {
		t.Error("redaction leaked the secret tail")
	}
}
