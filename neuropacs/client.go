// Package neuropacs is a thin client over the remote analysis service.
// Every call is attempted once; callers decide what a failure means.
package neuropacs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"npcs-desk/constants"
	"npcs-desk/dataset"

	"github.com/dustin/go-humanize"
	"github.com/gojektech/heimdall/v6/httpclient"
	"go.uber.org/zap"
)

type Config struct {
	ServerURL     string
	OriginType    string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

type Client struct {
	cfg          Config
	httpClient   *httpclient.Client
	uploadClient *httpclient.Client
	logger       *zap.Logger

	mu           sync.RWMutex
	apiKey       string
	connectionID string
}

type kvStr2Inf = map[string]interface{}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = constants.DefaultRemoteTimeout
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = constants.DefaultUploadTimeout
	}
	if cfg.OriginType == "" {
		cfg.OriginType = constants.OriginType
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	return &Client{
		cfg:          cfg,
		httpClient:   httpclient.NewClient(httpclient.WithHTTPTimeout(cfg.Timeout)),
		uploadClient: httpclient.NewClient(httpclient.WithHTTPTimeout(cfg.UploadTimeout)),
		logger:       logger,
	}
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.connectionID
}

func (c *Client) Connected() bool {
	key, _ := c.credentials()
	return key != ""
}

// Connect validates apiKey against the service. On failure the client
// keeps whatever connection it had before.
func (c *Client) Connect(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrInvalidCredential
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/connect/", apiKey, "", kvStr2Inf{
		"origin_type": c.cfg.OriginType,
	})
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, readError(res))
	case res.StatusCode >= 300:
		return remoteError("connect", readError(res))
	}

	var conn struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&conn); err != nil {
		return fmt.Errorf("connect: %w: parsing response: %v", ErrTransport, err)
	}

	c.mu.Lock()
	c.apiKey = apiKey
	c.connectionID = conn.ConnectionID
	c.mu.Unlock()

	c.logger.Info("connected to analysis service", zap.String("server", c.cfg.ServerURL))
	return nil
}

func (c *Client) NewJob(ctx context.Context) (string, error) {
	var ret struct {
		OrderID string `json:"order_id"`
	}
	if err := c.call(ctx, "newJob", "/api/newJob/", kvStr2Inf{}, &ret); err != nil {
		return "", err
	}
	if ret.OrderID == "" {
		return "", fmt.Errorf("newJob: %w: empty order id", ErrTransport)
	}
	return ret.OrderID, nil
}

// Upload sends every file of ds, reporting the percentage done after each
// file. The first failure aborts the upload.
func (c *Client) Upload(ctx context.Context, orderID string, ds *dataset.Dataset, onProgress func(percent int)) error {
	apiKey, connID := c.credentials()
	if apiKey == "" {
		return ErrNotConnected
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}

	total := len(ds.Files)
	start := time.Now()
	onProgress(0)
	for i, f := range ds.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.uploadFile(ctx, apiKey, connID, orderID, ds.ID, f); err != nil {
			return err
		}
		onProgress((i + 1) * 100 / total)
	}
	if total == 0 {
		onProgress(100)
	}

	c.logger.Info("dataset uploaded",
		zap.String("order_id", orderID),
		zap.String("dataset_id", ds.ID),
		zap.String("size", humanize.Bytes(uint64(ds.TotalSize))),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (c *Client) uploadFile(ctx context.Context, apiKey, connID, orderID, datasetID string, f dataset.File) error {
	data, err := ioutil.ReadFile(f.Path)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/uploadDataset/%s/%s", escapePath(orderID), escapePath(f.Rel))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.ServerURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req, apiKey, connID)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dataset-Id", datasetID)

	res, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w: %v", f.Rel, ErrTransport, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return remoteError("upload "+f.Rel, readError(res))
	}
	return nil
}

// RunJob starts the analysis of an uploaded dataset.
func (c *Client) RunJob(ctx context.Context, orderID string) error {
	return c.call(ctx, "runJob", "/api/runJob/", kvStr2Inf{
		"order_id":     orderID,
		"product_name": constants.Product,
	}, nil)
}

// CheckStatus returns the rendered status of a job, see FormatStatus.
func (c *Client) CheckStatus(ctx context.Context, orderID string) (string, error) {
	var status jobStatus
	if err := c.call(ctx, "checkStatus", "/api/checkStatus/", kvStr2Inf{"order_id": orderID}, &status); err != nil {
		return "", err
	}
	return FormatStatus(status), nil
}

func (c *Client) CheckQC(ctx context.Context, orderID string) (QCResult, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "qcCheck", "/api/qcCheck/", kvStr2Inf{
		"order_id": orderID,
		"format":   "txt",
	}, &raw); err != nil {
		return QCResult{State: QCPending}, err
	}
	return DecodeQC(raw), nil
}

// GetResults returns the raw result payload, binary for PNG and text for
// the other formats.
func (c *Client) GetResults(ctx context.Context, orderID, format string) ([]byte, error) {
	var raw []byte
	err := c.call(ctx, "getResults", "/api/getResults/", kvStr2Inf{
		"order_id": orderID,
		"format":   format,
	}, &raw)
	return raw, err
}

// call posts body as JSON. out may be nil, a *[]byte for the raw body,
// or anything json can decode into.
func (c *Client) call(ctx context.Context, op, path string, body kvStr2Inf, out interface{}) error {
	apiKey, connID := c.credentials()
	if apiKey == "" {
		return ErrNotConnected
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, apiKey, connID, body)
	if err != nil {
		return err
	}
	c.logger.Debug("remote call", zap.String("op", op), zap.String("path", path))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return remoteError(op, readError(res))
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		b, err := ioutil.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
		}
		*v = b
		return nil
	default:
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w: parsing response: %v", op, ErrTransport, err)
		}
		return nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, path, apiKey, connID string, body kvStr2Inf) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("Error encoding request: %s", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ServerURL+path, &buf)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, apiKey, connID)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey, connID string) {
	req.Header.Set("X-Api-Key", apiKey)
	req.Header.Set("Origin-Type", c.cfg.OriginType)
	if connID != "" {
		req.Header.Set("Connection-Id", connID)
	}
}

func readError(res *http.Response) string {
	b, err := ioutil.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil || len(b) == 0 {
		return res.Status
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
