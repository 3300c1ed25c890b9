package middleware

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "arbiter/pkg/errors"
	"arbiter/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AdminAuthConfig controls validation of staff tokens on privileged routes.
type AdminAuthConfig struct {
	Secret string
	Issuer string
	Roles  []string
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthMiddleware enforces an HS256 bearer token with a staff role.
func AdminAuthMiddleware(cfg AdminAuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	allowed := cfg.Roles
	if len(allowed) == 0 {
		allowed = []string{"admin"}
	}
	return func(c *gin.Context) {
		if len(secret) == 0 {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "admin auth not configured")
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		claims, err := parseAdminToken(token, secret, cfg.Issuer)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if !hasRole(claims.Role, allowed) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set("admin_subject", claims.Subject)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}

func parseAdminToken(raw string, secret []byte, issuer string) (*adminClaims, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	parsed, err := jwt.ParseWithClaims(raw, &adminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("token expired")
		}
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	if !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	claims, ok := parsed.Claims.(*adminClaims)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	if issuer != "" && claims.Issuer != issuer {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	if claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}
	return claims, nil
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
