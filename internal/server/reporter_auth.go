package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/me/ilcdirac/pkg/model"
)

// ReporterEnvVar holds reporter keys as JSON: {"key": ["JobWrapper"]}.
const ReporterEnvVar = "ILCDIRAC_REPORTER_KEYS"

// Reporter is the authenticated caller of a write endpoint.
type Reporter struct {
	KeyID   string   // hash of the key, never the key itself
	Sources []string // status sources the key may report as; empty means any
}

// ReporterFromContext extracts the Reporter from request context.
func ReporterFromContext(ctx context.Context) *Reporter {
	if rp, ok := ctx.Value(reporterKey).(*Reporter); ok {
		return rp
	}
	return nil
}

// CanReportAs reports whether the reporter may record statuses from source.
func (rp *Reporter) CanReportAs(source string) bool {
	if rp == nil {
		return false
	}
	if len(rp.Sources) == 0 || source == "" {
		return true
	}
	return slices.Contains(rp.Sources, source)
}

// ReporterKeyConfig maps reporter keys to what they may report.
type ReporterKeyConfig struct {
	Keys map[string]ReporterKeyEntry `json:"keys"`
}

// ReporterKeyEntry describes one key.
type ReporterKeyEntry struct {
	Sources     []string `json:"sources"`
	Description string   `json:"description,omitempty"`
}

// LoadReporterKeys reads keys from configFile (when set) and then from
// ILCDIRAC_REPORTER_KEYS, the latter taking precedence.
func LoadReporterKeys(configFile string) (*ReporterKeyConfig, error) {
	cfg := &ReporterKeyConfig{Keys: make(map[string]ReporterKeyEntry)}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read reporter keys: %w", err)
		}
		var fileCfg ReporterKeyConfig
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse reporter keys %s: %w", configFile, err)
		}
		for k, v := range fileCfg.Keys {
			cfg.Keys[k] = v
		}
	}

	if envVal := os.Getenv(ReporterEnvVar); envVal != "" {
		var envKeys map[string][]string
		if err := json.Unmarshal([]byte(envVal), &envKeys); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ReporterEnvVar, err)
		}
		for key, sources := range envKeys {
			cfg.Keys[key] = ReporterKeyEntry{Sources: sources}
		}
	}
	return cfg, nil
}

// Lookup returns the entry of key, or nil.
func (c *ReporterKeyConfig) Lookup(key string) *ReporterKeyEntry {
	if entry, ok := c.Keys[key]; ok {
		return &entry
	}
	return nil
}

// IsEnabled returns true if any reporter keys are configured.
func (c *ReporterKeyConfig) IsEnabled() bool {
	return c != nil && len(c.Keys) > 0
}

// hashKey creates a short hash of the key for logging purposes.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8])
}

// reporterAuthMiddleware validates the X-Reporter-Key header. With no keys
// configured every caller is an anonymous reporter allowed any source.
func reporterAuthMiddleware(keys *ReporterKeyConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			if !keys.IsEnabled() {
				ctx := context.WithValue(r.Context(), reporterKey, &Reporter{KeyID: "none"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			key := r.Header.Get("X-Reporter-Key")
			if key == "" {
				respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
					Code:    model.ErrUnauthorized,
					Message: "reporter authentication required (X-Reporter-Key header missing)",
				})
				return
			}
			entry := keys.Lookup(key)
			if entry == nil {
				logger.Warn("invalid reporter key", "key_hash", hashKey(key))
				respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
					Code:    model.ErrUnauthorized,
					Message: "invalid reporter key",
				})
				return
			}

			rp := &Reporter{KeyID: hashKey(key), Sources: entry.Sources}
			ctx := context.WithValue(r.Context(), reporterKey, rp)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
