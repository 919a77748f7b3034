package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/r3hensler/base-client-server/internal/model"
	"github.com/r3hensler/base-client-server/internal/service"
)

const authUserKey = "auth_user"

// AuthMiddleware authenticates the request from the access-token cookie,
// falling back to a Bearer header for non-browser clients. The subject is
// re-checked against the store so a deactivated or deleted user is rejected
// even while their token signature is still valid.
func AuthMiddleware(svc *service.AuthService) gin.HandlerFunc {
	accessCookie := svc.Cookies().AccessName
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, _ := c.Cookie(accessCookie)
		if token == "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Not authenticated"})
			c.Abort()
			return
		}

		user, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Not authenticated"})
			c.Abort()
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.User {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.User); ok {
			return user
		}
	}
	return nil
}

// ClientIP trusts only X-Real-IP, which the reverse proxy sets from the peer
// address. X-Forwarded-For is client-spoofable and deliberately ignored.
func ClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if c.RemoteIP() != "" {
		return c.RemoteIP()
	}
	return "unknown"
}

// SecurityHeaders adds the standard hardening headers to every response.
// HSTS is added outside development since TLS terminates at the proxy.
func SecurityHeaders(env string) gin.HandlerFunc {
	hsts := env == "production" || env == "staging"
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
