package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"npcs-desk/constants"
	"npcs-desk/dataset"
	"npcs-desk/entities"
	"npcs-desk/mw"
	"npcs-desk/neuropacs"
	"npcs-desk/results"
	"npcs-desk/scheduler"
	"npcs-desk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	ErrUnknownSink    = errors.New("unknown export target")
	ErrNotConvertible = errors.New("only XML results can be converted to JSON")
)

type JobAPI struct {
	manager *Manager
	caller  scheduler.Caller
	sinks   map[string]results.Sink
	logger  *zap.Logger
}

type SubmitRequest struct {
	Path string `json:"path"`
}

type ExportRequest struct {
	Format string `json:"format"`
	Target string `json:"target"`
}

// NewJobAPI serves the dashboard. Every handler reaches the manager
// through caller, so manager state is only touched by the main loop.
func NewJobAPI(manager *Manager, caller scheduler.Caller, sinks map[string]results.Sink, logger *zap.Logger) (app *JobAPI) {
	app = &JobAPI{
		manager: manager,
		caller:  caller,
		sinks:   sinks,
		logger:  logger,
	}
	return app
}

func (app *JobAPI) InitRoute(engine *gin.Engine, path string) {
	group := engine.Group(path, mw.RequireConnected(app.manager))
	group.GET("", app.GetJobs)
	group.POST("", app.SubmitJob)
	group.PUT("/:id", app.TrackJob)
	group.GET("/:id/status", app.CheckStatus)
	group.DELETE("/:id", app.DeleteJob)
	group.GET("/:id/results", app.GetResults)
	group.POST("/:id/results/export", app.ExportResults)
}

func (app *JobAPI) InitUploadRoute(engine *gin.Engine, path string) {
	group := engine.Group(path)
	group.GET("/:id", app.GetUpload)
}

// call runs fn on the main loop with the request context.
func (app *JobAPI) call(c *gin.Context, fn func(ctx context.Context) error) error {
	ctx := c.Request.Context()
	var err error
	if cerr := app.caller.Call(ctx, func() { err = fn(ctx) }); cerr != nil {
		return cerr
	}
	return err
}

func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrUnknownUpload), os.IsNotExist(err):
		return http.StatusNotFound, constants.ServerNotFound
	case errors.Is(err, ErrDuplicateJob), errors.Is(err, ErrQCNotPassed):
		return http.StatusConflict, constants.ServerConflict
	case errors.Is(err, ErrEmptyOrderID), errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrUnknownSink), errors.Is(err, ErrNotConvertible),
		errors.Is(err, results.ErrUnknownFormat),
		errors.Is(err, dataset.ErrNoDICOMFiles), errors.Is(err, dataset.ErrNotDirectory):
		return http.StatusBadRequest, constants.ServerInvalidData
	case errors.Is(err, neuropacs.ErrNotConnected):
		return http.StatusUnauthorized, constants.ServerNotConnected
	case errors.Is(err, neuropacs.ErrInvalidCredential), errors.Is(err, neuropacs.ErrKeyJobMismatch):
		return http.StatusForbidden, constants.ServerInvalidAPIKey
	case errors.Is(err, neuropacs.ErrTransport):
		return http.StatusBadGateway, constants.ServerRemoteError
	}
	return http.StatusInternalServerError, constants.ServerError
}

func (app *JobAPI) fail(c *gin.Context, resp *entities.Response, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		app.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		app.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, resp.Fail(code, err))
}

func (app *JobAPI) GetJobs(c *gin.Context) {
	resp := entities.NewResponse()

	params := utils.ConvertGinRequestToParams(c)
	var views []View
	err := app.call(c, func(ctx context.Context) (err error) {
		views, err = app.manager.Jobs(ctx, Query{Search: params.Search, Column: params.Column, Sort: params.Sort})
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Count = len(views)
	resp.Data = views
	c.JSON(http.StatusOK, resp)
}

// SubmitJob starts an upload and answers before it finishes. The upload
// is followed with GET /uploads/:id.
func (app *JobAPI) SubmitJob(c *gin.Context) {
	resp := entities.NewResponse()

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, fmt.Errorf("dataset path is required")))
		return
	}

	var up *Upload
	err := app.call(c, func(ctx context.Context) (err error) {
		up, err = app.manager.Submit(ctx, req.Path)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = up.Status()
	c.JSON(http.StatusAccepted, resp)
}

func (app *JobAPI) GetUpload(c *gin.Context) {
	resp := entities.NewResponse()

	orderID := c.Param(constants.ParamID)
	var st UploadStatus
	err := app.call(c, func(ctx context.Context) (err error) {
		st, err = app.manager.UploadStatus(orderID)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = st
	c.JSON(http.StatusOK, resp)
}

// TrackJob adds an order id created by another client.
func (app *JobAPI) TrackJob(c *gin.Context) {
	resp := entities.NewResponse()

	orderID := c.Param(constants.ParamID)
	var job *Job
	err := app.call(c, func(ctx context.Context) (err error) {
		job, err = app.manager.Track(ctx, orderID)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = NewView(*job)
	c.JSON(http.StatusOK, resp)
}

func (app *JobAPI) CheckStatus(c *gin.Context) {
	resp := entities.NewResponse()

	orderID := c.Param(constants.ParamID)
	var job *Job
	err := app.call(c, func(ctx context.Context) (err error) {
		job, err = app.manager.CheckStatus(ctx, orderID)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	resp.Data = NewView(*job)
	c.JSON(http.StatusOK, resp)
}

func (app *JobAPI) DeleteJob(c *gin.Context) {
	resp := entities.NewResponse()

	if !utils.IsTruthy(c.Query(constants.ParamConfirm)) {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, entities.ErrConfirmationRequired))
		return
	}

	orderID := c.Param(constants.ParamID)
	err := app.call(c, func(ctx context.Context) error {
		return app.manager.Delete(orderID)
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	ret := make(map[string]interface{})
	ret[constants.ParamOrderID] = orderID
	resp.Data = ret
	c.JSON(http.StatusOK, resp)
}

// GetResults returns the raw payload as a download. as=json converts XML
// results for clients that only read JSON.
func (app *JobAPI) GetResults(c *gin.Context) {
	resp := entities.NewResponse()

	orderID := c.Param(constants.ParamID)
	requested := c.Query(constants.ParamFormat)
	var (
		payload []byte
		format  string
	)
	err := app.call(c, func(ctx context.Context) (err error) {
		payload, format, err = app.manager.Results(ctx, orderID, requested)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	contentType := results.ContentType(format)
	name := results.FileName(orderID, format)
	if strings.EqualFold(c.Query(constants.ParamAs), "json") && format != constants.FormatJSON {
		if format != constants.FormatXML {
			app.fail(c, resp, ErrNotConvertible)
			return
		}
		if payload, err = results.XMLToJSON(payload); err != nil {
			app.fail(c, resp, err)
			return
		}
		contentType = results.ContentType(constants.FormatJSON)
		name = results.FileName(orderID, constants.FormatJSON)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, payload)
}

func (app *JobAPI) ExportResults(c *gin.Context) {
	resp := entities.NewResponse()

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, err))
		return
	}
	if req.Target == "" {
		req.Target = constants.SinkFile
	}
	sink, ok := app.sinks[req.Target]
	if !ok {
		app.fail(c, resp, fmt.Errorf("%w: %q", ErrUnknownSink, req.Target))
		return
	}

	orderID := c.Param(constants.ParamID)
	var location string
	err := app.call(c, func(ctx context.Context) (err error) {
		location, err = app.manager.ExportResults(ctx, orderID, req.Format, sink)
		return err
	})
	if err != nil {
		app.fail(c, resp, err)
		return
	}

	ret := make(map[string]interface{})
	ret["location"] = location
	resp.Data = ret
	c.JSON(http.StatusOK, resp)
}
