package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mir00r/stand-router/internal/config"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
)

const subjectKey contextKey = "jwt_subject"

// JWTAuthMiddleware guards the admin API with HMAC signed bearer tokens
type JWTAuthMiddleware struct {
	config config.JWTConfig
	method jwt.SigningMethod
	logger *logger.Logger
}

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(cfg config.JWTConfig, logger *logger.Logger) (*JWTAuthMiddleware, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported JWT algorithm: %s", cfg.Algorithm)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("JWT secret key is required")
	}

	jm := &JWTAuthMiddleware{
		config: cfg,
		method: method,
		logger: logger.MiddlewareLogger("jwt_auth"),
	}

	jm.logger.WithFields(map[string]interface{}{
		"algorithm": cfg.Algorithm,
		"issuer":    cfg.Issuer,
	}).Info("JWT authentication middleware initialized")

	return jm, nil
}

// SubjectFromContext returns the authenticated token subject, if any
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// JWTAuth returns the JWT authentication middleware
func (jm *JWTAuthMiddleware) JWTAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				jm.logger.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
				}).Warn("JWT token missing")
				jm.writeJWTError(w, "authentication required")
				return
			}

			claims, err := jm.ValidateToken(token)
			if err != nil {
				jm.logger.WithError(err).WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
				}).Warn("JWT validation failed")
				jm.writeJWTError(w, "invalid token")
				return
			}

			jm.logger.WithFields(map[string]interface{}{
				"subject": claims.Subject,
				"path":    r.URL.Path,
			}).Debug("JWT authentication successful")

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateToken parses tokenString and checks signature, expiry and issuer
func (jm *JWTAuthMiddleware) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(jm.config.SecretKey), nil
	}, jwt.WithValidMethods([]string{jm.method.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if jm.config.Issuer != "" && claims.Issuer != jm.config.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}

// IssueToken signs a token for subject valid for ttl
func (jm *JWTAuthMiddleware) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    jm.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jm.method, claims).SignedString([]byte(jm.config.SecretKey))
}

// extractToken reads a bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func (jm *JWTAuthMiddleware) writeJWTError(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, apperrors.NewError(apperrors.ErrCodeAuthenticationFailed, "jwt_auth", message))
}

// GetStats returns JWT authentication statistics
func (jm *JWTAuthMiddleware) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"enabled":   jm.config.Enabled,
		"algorithm": jm.config.Algorithm,
		"issuer":    jm.config.Issuer,
	}
}
