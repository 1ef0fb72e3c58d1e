package job

import (
	"context"
	"errors"
	"net/http"

	"npcs-desk/constants"
	"npcs-desk/entities"

	"github.com/gin-gonic/gin"
)

var ErrMissingEnabled = errors.New("enabled is required")

type Settings struct {
	QCEnabled bool   `json:"qc_enabled"`
	Connected bool   `json:"connected"`
	StorePath string `json:"store_path"`
}

type QCRequest struct {
	Enabled *bool `json:"enabled"`
}

func (app *JobAPI) InitSettingsRoute(engine *gin.Engine, path string) {
	group := engine.Group(path)
	group.GET("", app.GetSettings)
	group.PUT("/qc", app.SetQC)
}

func (app *JobAPI) InitNoticeRoute(engine *gin.Engine, path string) {
	group := engine.Group(path)
	group.GET("", app.GetNotices)
}

func (app *JobAPI) settings() Settings {
	return Settings{
		QCEnabled: app.manager.QCEnabled(),
		Connected: app.manager.Connected(),
		StorePath: app.manager.store.Path(),
	}
}

func (app *JobAPI) GetSettings(c *gin.Context) {
	resp := entities.NewResponse()

	var settings Settings
	err := app.call(c, func(ctx context.Context) error {
		settings = app.settings()
		return nil
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = settings
	c.JSON(http.StatusOK, resp)
}

// SetQC turns the QC gate on or off for uploads that finish from now on.
func (app *JobAPI) SetQC(c *gin.Context) {
	resp := entities.NewResponse()

	var req QCRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, ErrMissingEnabled))
		return
	}

	var settings Settings
	err := app.call(c, func(ctx context.Context) error {
		app.manager.SetQCEnabled(*req.Enabled)
		settings = app.settings()
		return nil
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = settings
	c.JSON(http.StatusOK, resp)
}

// GetNotices lists what the desktop app would have shown in dialogs.
func (app *JobAPI) GetNotices(c *gin.Context) {
	resp := entities.NewResponse()

	notices := app.manager.Notices().List()
	resp.Count = len(notices)
	resp.Data = notices
	c.JSON(http.StatusOK, resp)
}
