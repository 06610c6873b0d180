package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/catherinevee/integration-auditor/internal/safety"
)

// SafetyFromEnv layers the environment variables named in spec.md §6
// ("Environment-driven safety config": allowlist, operation caps, rate
// limits, maintenance window, confirmation thresholds, circuit-breaker
// parameters) onto base, mirroring the teacher's
// applyEnvironmentOverrides. Unset variables leave base's field untouched.
func SafetyFromEnv(base safety.Config) safety.Config {
	cfg := base

	if v := os.Getenv("AUDITOR_ALLOWLIST"); v != "" {
		cfg.AllowlistEnabled = true
		cfg.Allowlist = splitCSV(v)
	}

	if v := os.Getenv("AUDITOR_MAX_OPS_PER_INTEGRATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpsPerIntegration = n
		}
	}
	if v := os.Getenv("AUDITOR_MAX_TOTAL_OPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTotalOps = n
		}
	}
	if v := os.Getenv("AUDITOR_MAX_CONCURRENT_INTEGRATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentIntegrations = n
		}
	}

	if v := os.Getenv("AUDITOR_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("AUDITOR_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.BurstLimit = n
		}
	}

	if v := os.Getenv("AUDITOR_CONFIRM_DESTRUCTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Confirmation.Destructive = n
		}
	}
	if v := os.Getenv("AUDITOR_CONFIRM_TOTAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Confirmation.Total = n
		}
	}
	if v := os.Getenv("AUDITOR_CONFIRM_HIGH_RISK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Confirmation.HighRisk = n
		}
	}

	if v := os.Getenv("AUDITOR_CIRCUIT_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("AUDITOR_CIRCUIT_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CircuitBreaker.RecoveryTimeout = d
		}
	}
	if v := os.Getenv("AUDITOR_CIRCUIT_HALF_OPEN_MAX_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreaker.HalfOpenMaxCalls = n
		}
	}

	// AUDITOR_MAINTENANCE_WINDOW_DAYS="mon,tue,wed" and
	// AUDITOR_MAINTENANCE_WINDOW_RANGE="22:00-02:00" must both be set;
	// a malformed pair is ignored rather than failing startup, since
	// the controller treats a nil window as "always open".
	days := os.Getenv("AUDITOR_MAINTENANCE_WINDOW_DAYS")
	rangeStr := os.Getenv("AUDITOR_MAINTENANCE_WINDOW_RANGE")
	if days != "" && rangeStr != "" {
		if win, err := safety.ParseMaintenanceWindow(splitCSV(days), rangeStr, time.Local); err == nil {
			cfg.MaintenanceWindow = win
		}
	}

	return cfg
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
