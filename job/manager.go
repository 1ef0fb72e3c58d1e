package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"npcs-desk/constants"
	"npcs-desk/dataset"
	"npcs-desk/neuropacs"
	"npcs-desk/results"
	"npcs-desk/scheduler"

	"go.uber.org/zap"
)

var (
	ErrEmptyOrderID = errors.New("order id is empty")
	ErrDuplicateJob = errors.New("order id already tracked")
	ErrQCNotPassed  = errors.New("job has not passed QC")
)

// Service is what the manager needs from the remote analysis service.
type Service interface {
	Connect(ctx context.Context, apiKey string) error
	Connected() bool
	NewJob(ctx context.Context) (string, error)
	Upload(ctx context.Context, orderID string, ds *dataset.Dataset, onProgress func(percent int)) error
	RunJob(ctx context.Context, orderID string) error
	CheckStatus(ctx context.Context, orderID string) (string, error)
	CheckQC(ctx context.Context, orderID string) (neuropacs.QCResult, error)
	GetResults(ctx context.Context, orderID, format string) ([]byte, error)
}

type Scanner interface {
	Scan(path string) (*dataset.Dataset, error)
}

type Config struct {
	QCEnabled       bool
	QCInterval      time.Duration
	QCTimeout       time.Duration
	RefreshInterval time.Duration
	UploadRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		QCEnabled:       true,
		QCInterval:      constants.DefaultQCInterval,
		QCTimeout:       constants.DefaultQCTimeout,
		RefreshInterval: constants.DefaultRefreshInterval,
		UploadRetention: constants.DefaultUploadRetention,
	}
}

// Manager owns the application state and drives the job lifecycle.
// Its methods must run on the scheduler's main loop, except Connected and
// Notices which are safe anywhere. Upload workers talk back through Post.
type Manager struct {
	service Service
	scanner Scanner
	store   *JobStore
	sched   scheduler.Scheduler
	notices *Notices
	logger  *zap.Logger
	cfg     Config

	// signedIn is 1 while the dashboard is open. It is read outside the
	// main loop.
	signedIn  int32
	qcEnabled bool
	uploads   map[string]*Upload
	gates     map[string]*qcGate
	refresh   scheduler.Handle
}

func NewManager(service Service, scanner Scanner, store *JobStore, sched scheduler.Scheduler,
	notices *Notices, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		service:   service,
		scanner:   scanner,
		store:     store,
		sched:     sched,
		notices:   notices,
		logger:    logger,
		cfg:       cfg,
		qcEnabled: cfg.QCEnabled,
		uploads:   make(map[string]*Upload),
		gates:     make(map[string]*qcGate),
	}
}

func (m *Manager) Notices() *Notices {
	return m.notices
}

func (m *Manager) Connected() bool {
	return atomic.LoadInt32(&m.signedIn) == 1 && m.service.Connected()
}

// Connect validates apiKey and, only when it is accepted, stores it.
func (m *Manager) Connect(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if err := m.service.Connect(ctx, apiKey); err != nil {
		return err
	}
	if err := m.store.SetAPIKey(apiKey); err != nil {
		return err
	}
	atomic.StoreInt32(&m.signedIn, 1)
	m.startRefresh()
	return nil
}

// Resume connects with the stored key, if there is one.
func (m *Manager) Resume(ctx context.Context) error {
	apiKey, err := m.store.GetAPIKey()
	if err != nil || apiKey == "" {
		return err
	}
	if err := m.service.Connect(ctx, apiKey); err != nil {
		m.logger.Warn("stored API key rejected", zap.Error(err))
		return err
	}
	atomic.StoreInt32(&m.signedIn, 1)
	m.startRefresh()
	return nil
}

// Disconnect returns to the credential screen. The service keeps its
// connection so running QC checks go on polling, and the key is only
// replaced once a new one connects.
func (m *Manager) Disconnect() {
	atomic.StoreInt32(&m.signedIn, 0)
	if m.refresh != nil {
		m.refresh.Cancel()
		m.refresh = nil
	}
}

func (m *Manager) StoredAPIKey() (string, error) {
	return m.store.GetAPIKey()
}

func (m *Manager) QCEnabled() bool {
	return m.qcEnabled
}

func (m *Manager) SetQCEnabled(enabled bool) {
	m.qcEnabled = enabled
	if enabled {
		m.logger.Info("QC check enabled")
	} else {
		m.logger.Info("QC check disabled")
	}
}

// Jobs refreshes every job and returns the ones matching q.
func (m *Manager) Jobs(ctx context.Context, q Query) ([]View, error) {
	jobs, err := m.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err = FilterJobs(jobs, q)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewView(job))
	}
	return views, nil
}

// CheckStatus refreshes a single job on request.
func (m *Manager) CheckStatus(ctx context.Context, orderID string) (*Job, error) {
	job, err := m.store.GetJob(orderID)
	if err != nil {
		return nil, err
	}
	// the remote status means nothing until QC lets the job run
	if job.QC == constants.QCInProgress || job.QC == constants.QCFail {
		return job, nil
	}
	status, err := m.service.CheckStatus(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("checking status of %s: %w", orderID, err)
	}
	if status != job.LastStatus {
		if err := m.store.UpdateField(orderID, "last_status", status); err != nil {
			return nil, err
		}
		job.LastStatus = status
	}
	return job, nil
}

// Track adds a job created elsewhere, e.g. by another client.
func (m *Manager) Track(ctx context.Context, orderID string) (*Job, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrEmptyOrderID
	}
	if _, err := m.store.GetJob(orderID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, orderID)
	} else if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	status, err := m.service.CheckStatus(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("tracking %s: %w", orderID, err)
	}

	job := Job{
		OrderID:    orderID,
		DatasetID:  constants.UnknownDataset,
		LastStatus: status,
		Product:    constants.Product,
		Timestamp:  m.timestamp(),
		QC:         constants.QCNotApplicable,
	}
	if err := m.store.AddJob(job); err != nil {
		return nil, err
	}
	m.notices.Info("Add order", orderID, fmt.Sprintf("Adding %s to list.", orderID))
	return &job, nil
}

// Delete forgets a job locally and stops its QC polling.
func (m *Manager) Delete(orderID string) error {
	if gate, ok := m.gates[orderID]; ok {
		gate.stop()
	}
	if err := m.store.RemoveJob(orderID); err != nil {
		return err
	}
	m.logger.Info("job deleted", zap.String("order_id", orderID))
	return nil
}

// Results fetches the results of a tracked job.
func (m *Manager) Results(ctx context.Context, orderID, format string) ([]byte, string, error) {
	f, err := results.ParseFormat(format)
	if err != nil {
		return nil, "", err
	}
	job, err := m.store.GetJob(orderID)
	if err != nil {
		return nil, "", err
	}
	if job.QC == constants.QCInProgress || job.QC == constants.QCFail {
		return nil, "", fmt.Errorf("%w: %s", ErrQCNotPassed, orderID)
	}
	payload, err := m.service.GetResults(ctx, orderID, f)
	if err != nil {
		return nil, "", fmt.Errorf("getting results of %s: %w", orderID, err)
	}
	return payload, f, nil
}

// ExportResults fetches results and hands them to sink.
func (m *Manager) ExportResults(ctx context.Context, orderID, format string, sink results.Sink) (string, error) {
	payload, f, err := m.Results(ctx, orderID, format)
	if err != nil {
		return "", err
	}
	location, err := sink.Store(ctx, results.FileName(orderID, f), results.ContentType(f), payload)
	if err != nil {
		return "", fmt.Errorf("exporting results of %s: %w", orderID, err)
	}
	m.notices.Info("Results saved", orderID, fmt.Sprintf("Results saved to %s", location))
	return location, nil
}

func (m *Manager) timestamp() string {
	return m.sched.Now().Format(TimestampLayout)
}
