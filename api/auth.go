package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/middlewares"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

type LoginRequest struct {
	Tenant   string `json:"tenant" validate:"required,notblank,max=64"`
	Username string `json:"username" validate:"required,notblank,max=100"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token      string `json:"token"`
	ExpiresIn  int64  `json:"expires_in"`
	UserId     int    `json:"user_id"`
	Username   string `json:"username"`
	TenantId   string `json:"tenant_id"`
	OfficeId   int    `json:"office_id"`
	OfficeName string `json:"office_name"`
}

// Login checks the credentials against Fineract and opens a session.
func (h *Handlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			respondValidation(c, err)
			return
		}
		tenantId := strings.TrimSpace(req.Tenant)
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		remote, err := h.newRemote(tenantId)
		if err != nil {
			config.LogError(config.GetLogger(), "auth.go", "Login", "newRemote", tenantId, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fineract is not configured"})
			return
		}
		auth, err := remote.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
		if err != nil {
			if errors.Is(err, fineract.ErrNotAuthenticated) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
				return
			}
			respondRemoteError(c, err)
			return
		}

		token, err := utils.JwtGenerate(auth.UserID, auth.Username, tenantId, auth.OfficeID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sess := middlewares.Session{
			UserId:     auth.UserID,
			Username:   auth.Username,
			TenantId:   tenantId,
			OfficeId:   auth.OfficeID,
			OfficeName: auth.OfficeName,
		}
		lifespan := utils.TokenLifespan()
		if err := config.SetRedisObject(middlewares.SessionKey(token), &sess, lifespan); err != nil {
			config.LogError(config.GetLogger(), "auth.go", "Login", "SetRedisObject", auth.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store session"})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:      token,
			ExpiresIn:  int64(lifespan.Seconds()),
			UserId:     sess.UserId,
			Username:   sess.Username,
			TenantId:   sess.TenantId,
			OfficeId:   sess.OfficeId,
			OfficeName: sess.OfficeName,
		})
	}
}

func (h *Handlers) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := config.RemoveRedisKey(middlewares.SessionKey(token)); err != nil {
			config.LogError(config.GetLogger(), "auth.go", "Logout", "RemoveRedisKey", "", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func sessionUser(c *gin.Context) (string, bool) {
	ctx := c.Request.Context()
	username, ok := utils.GetUsernameFromContext(ctx)
	if _, err := utils.TenantFromContext(ctx); err != nil || !ok || username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return username, true
}

func bindPasscode(c *gin.Context) (string, bool) {
	var req models.NewPasscode
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return "", false
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return "", false
	}
	return req.Passcode, true
}

// SetPasscode stores the device unlock passcode of the signed-in user.
func (h *Handlers) SetPasscode() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUser(c)
		if !ok {
			return
		}
		passcode, ok := bindPasscode(c)
		if !ok {
			return
		}
		if err := models.SetPasscode(c.Request.Context(), username, passcode); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handlers) VerifyPasscode() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := sessionUser(c)
		if !ok {
			return
		}
		passcode, ok := bindPasscode(c)
		if !ok {
			return
		}
		err := models.VerifyPasscode(c.Request.Context(), username, passcode)
		switch {
		case err == nil:
			c.Status(http.StatusNoContent)
		case errors.Is(err, utils.ErrorInvalidPasscode):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid passcode"})
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "passcode is not set"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}
