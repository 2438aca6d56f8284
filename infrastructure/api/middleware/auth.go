package middleware

import "net/http"

// APIKeyHeader is the header clients send their key in.
const APIKeyHeader = "X-API-KEY"

// AuthConfig holds the accepted API keys. An empty config disables auth.
type AuthConfig struct {
	keys map[string]bool
}

// NewAuthConfigWithKeys creates an AuthConfig accepting the given keys.
func NewAuthConfigWithKeys(keys []string) AuthConfig {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = true
		}
	}
	return AuthConfig{keys: set}
}

// Enabled reports whether any keys are configured.
func (c AuthConfig) Enabled() bool {
	return len(c.keys) > 0
}

// Valid reports whether the given key is accepted.
func (c AuthConfig) Valid(key string) bool {
	return c.keys[key]
}

// WriteProtect returns middleware that requires a valid API key for
// mutating methods. GET, HEAD and OPTIONS pass through unchecked, so
// read-only access stays open. With no keys configured everything passes.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled() || readOnlyMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if !config.Valid(r.Header.Get(APIKeyHeader)) {
				WriteErrorStatus(w, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteProtectAuth is a convenience wrapper building the config from a
// key list.
func WriteProtectAuth(keys []string) func(http.Handler) http.Handler {
	return WriteProtect(NewAuthConfigWithKeys(keys))
}

func readOnlyMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
