package session

import (
	"errors"
	"net/http"

	"npcs-desk/constants"
	"npcs-desk/entities"
	"npcs-desk/mw"
	"npcs-desk/neuropacs"
	"npcs-desk/scheduler"
	"npcs-desk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionAPI struct {
	connector Connector
	caller    scheduler.Caller
	logger    *zap.Logger
}

func NewSessionAPI(connector Connector, caller scheduler.Caller, logger *zap.Logger) (app *SessionAPI) {
	app = &SessionAPI{
		connector: connector,
		caller:    caller,
		logger:    logger,
	}
	return app
}

func (app *SessionAPI) InitRoute(engine *gin.Engine, path string) {
	g := engine.Group(path)
	g.GET("", app.GetSession)
	g.POST("", app.CreateSession)
	g.DELETE("", app.DeleteSession)
}

func (app *SessionAPI) current() (*Session, error) {
	key, err := app.connector.StoredAPIKey()
	if err != nil {
		return nil, err
	}
	return &Session{
		Connected:    app.connector.Connected(),
		HasStoredKey: key != "",
		APIKey:       MaskKey(key),
	}, nil
}

func (app *SessionAPI) GetSession(c *gin.Context) {
	resp := entities.NewResponse()

	var (
		session *Session
		err     error
	)
	if cerr := app.caller.Call(c.Request.Context(), func() {
		session, err = app.current()
	}); cerr != nil {
		err = cerr
	}
	if err != nil {
		app.logger.Error("cannot read session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err))
		return
	}

	resp.Data = session
	c.JSON(http.StatusOK, resp)
}

// CreateSession connects with a new API key. The key is stored only once
// the service has accepted it.
func (app *SessionAPI) CreateSession(c *gin.Context) {
	resp := entities.NewResponse()

	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.IsValidData() {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, neuropacs.ErrInvalidCredential))
		return
	}

	ctx := c.Request.Context()
	var (
		session *Session
		err     error
	)
	if cerr := app.caller.Call(ctx, func() {
		if err = app.connector.Connect(ctx, req.APIKey); err == nil {
			session, err = app.current()
		}
	}); cerr != nil {
		err = cerr
	}

	switch {
	case err == nil:
	case errors.Is(err, neuropacs.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, resp.Fail(constants.ServerInvalidAPIKey, err))
		return
	case errors.Is(err, neuropacs.ErrTransport):
		c.JSON(http.StatusBadGateway, resp.Fail(constants.ServerRemoteError, err))
		return
	default:
		app.logger.Error("cannot connect", zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err))
		return
	}

	app.logger.Info("API key connected", zap.String("client", mw.GetClientFromGin(c).RemoteAddr))
	resp.Data = session
	c.JSON(http.StatusOK, resp)
}

// DeleteSession goes back to the credential screen. It needs confirm=true.
func (app *SessionAPI) DeleteSession(c *gin.Context) {
	resp := entities.NewResponse()

	if !utils.IsTruthy(c.Query(constants.ParamConfirm)) {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, entities.ErrConfirmationRequired))
		return
	}

	if err := app.caller.Call(c.Request.Context(), app.connector.Disconnect); err != nil {
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err))
		return
	}

	app.logger.Info("API key disconnected", zap.String("client", mw.GetClientFromGin(c).RemoteAddr))
	c.JSON(http.StatusOK, resp)
}
