package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/request"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// SetUserInContext attaches the authenticated user. Exported so handler
// tests can build authenticated requests.
func SetUserInContext(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserAuth validates HS256-signed bearer tokens and resolves the token's
// subject to a known user. The subject claim must be the user's UUID.
func UserAuth(secret string, users database.UserRepositoryInterface) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			token, err := jwt.Parse([]byte(tokenStr),
				jwt.WithKey(jwa.HS256, key),
				jwt.WithValidate(true),
			)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, err := uuid.Parse(token.Subject())
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid token subject")
				return
			}

			exists, err := users.Exists(r.Context(), userID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to resolve user")
				return
			}
			if !exists {
				respondError(w, http.StatusUnauthorized, "Unknown user")
				return
			}

			user := &models.User{ID: userID}
			if email, ok := token.Get("email"); ok {
				if s, ok := email.(string); ok {
					user.Email = s
				}
			}

			ctx := SetUserInContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceAuth guards operational endpoints with the service role key.
// Comparison is constant-time.
func ServiceAuth(serviceKey string) func(http.Handler) http.Handler {
	expected := []byte(serviceKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(tokenStr), expected) != 1 {
				respondError(w, http.StatusUnauthorized, "Invalid service key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPAllowlist restricts an endpoint to a fixed set of source IPs. An empty
// allowlist disables the check.
func IPAllowlist(allowed []string) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ip := range allowed {
		allowedSet[ip] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if len(allowedSet) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := request.ClientIP(r)
			if host := stripPort(ip); host != "" {
				ip = host
			}
			if _, ok := allowedSet[ip]; !ok {
				respondError(w, http.StatusUnauthorized, "Source not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// stripPort removes a trailing :port from host:port addresses.
func stripPort(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx != -1 && !strings.Contains(addr[idx:], "]") {
		// Leave IPv6 addresses without brackets alone.
		if strings.Count(addr, ":") == 1 || strings.HasPrefix(addr, "[") {
			return strings.Trim(addr[:idx], "[]")
		}
	}
	return addr
}

// respondError sends a minimal JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
