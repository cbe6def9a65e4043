package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/utils"
)

const sessionKeyPrefix = "Session:"

func SessionKey(token string) string {
	return sessionKeyPrefix + token
}

// Session is stored in Redis at login under SessionKey(token).
type Session struct {
	UserId     int    `json:"user_id"`
	Username   string `json:"username"`
	TenantId   string `json:"tenant_id"`
	OfficeId   int    `json:"office_id"`
	OfficeName string `json:"office_name"`
}

// SessionMiddleware puts the caller of a valid token into the request context.
// Requests without a token pass through untouched; RequireSession rejects them
// where a session is needed. Paths under skipPrefixes carry someone else's
// bearer token (Pub/Sub push) and are never checked.
func SessionMiddleware(skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := utils.JwtValidate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// a logged out token is still a valid jwt, only the session is gone
		if config.GetRedisDB() != nil {
			var sess Session
			exists, err := config.GetRedisObject(SessionKey(token), &sess)
			if err != nil {
				config.LogError(config.GetLogger(), "sessionMiddleware.go", "SessionMiddleware", "GetRedisObject", claims.Username, err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
				return
			}
			if !exists || sess.TenantId != claims.TenantId {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetTenantIdInContext(ctx, claims.TenantId)
		ctx = utils.SetUsernameInContext(ctx, claims.Username)
		ctx = utils.SetUserIdInContext(ctx, claims.UserId)
		ctx = utils.SetOfficeIdInContext(ctx, claims.OfficeId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := utils.TenantFromContext(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
