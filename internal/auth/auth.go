package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/prite36/floraseven/internal/config"
)

// Manager checks API credentials: an X-API-Key header or HTTP Basic auth
// against a bcrypt password hash.
type Manager struct {
	enabled      bool
	apiKey       string
	username     string
	passwordHash string
}

func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		enabled:      cfg.Enabled,
		apiKey:       cfg.APIKey,
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
	}
}

// Enabled reports whether requests must authenticate.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// ValidateAPIKey checks the provided API key in constant time.
func (m *Manager) ValidateAPIKey(key string) bool {
	if m.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

// AuthenticateUser validates username and password. Basic auth is off
// unless both a username and a password hash are configured.
func (m *Manager) AuthenticateUser(username, password string) bool {
	if m.passwordHash == "" || m.username == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.passwordHash), []byte(password)) == nil
}

// Authenticate reports whether the request carries valid credentials.
func (m *Manager) Authenticate(r *http.Request) bool {
	if !m.enabled {
		return true
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return m.ValidateAPIKey(key)
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return m.AuthenticateUser(user, pass)
	}
	return false
}

// Middleware rejects unauthenticated requests through deny.
func (m *Manager) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Authenticate(r) {
				w.Header().Set("WWW-Authenticate", `Basic realm="floraseven"`)
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashPassword creates a bcrypt hash for AUTH_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
