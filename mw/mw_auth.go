package mw

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"npcs-desk/constants"
	"npcs-desk/entities"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var GIN_CONTEXT_CLIENT = "Client"

var (
	ErrBadToken     = errors.New("missing or invalid dashboard token")
	ErrNotConnected = errors.New("no API key connected")
)

// WrapClientInfo checks the dashboard token sent in the x-api-key header
// and records the caller. An empty token leaves the dashboard open, which
// is only sensible when it listens on localhost.
func WrapClientInfo(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := Client{RemoteAddr: c.ClientIP()}

		if token != "" {
			sent := c.GetHeader(constants.ParamAPIKey)
			if subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				logger.Debug("dashboard token rejected", zap.String("remote_addr", client.RemoteAddr))
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					entities.NewResponse().Fail(constants.ServerUnauthorized, ErrBadToken))
				return
			}
			client.Authenticated = true
		}

		c.Set(GIN_CONTEXT_CLIENT, &client)
		c.Next()
	}
}

func GetClientFromGin(c *gin.Context) *Client {
	if inf, exists := c.Get(GIN_CONTEXT_CLIENT); exists {
		if client, ok := inf.(*Client); ok {
			return client
		}
	}
	return &Client{RemoteAddr: c.ClientIP()}
}

// RequireConnected rejects requests until an API key has been accepted,
// the way the desktop app stays on the credential screen.
func RequireConnected(session Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !session.Connected() {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				entities.NewResponse().Fail(constants.ServerNotConnected, ErrNotConnected))
			return
		}
		c.Next()
	}
}
