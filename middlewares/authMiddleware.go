package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const bearer = "Bearer "

// bearerToken reads the token from "Authorization: Bearer <token>", falling
// back to the plain "token" header the mobile app sends.
func bearerToken(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
		return strings.TrimSpace(auth[len(bearer):])
	}
	return strings.TrimSpace(c.GetHeader("token"))
}
