package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"npcs-desk/constants"
	"npcs-desk/dataset"
	"npcs-desk/scheduler"

	"go.uber.org/zap"
)

var ErrUnknownUpload = errors.New("upload not found")

// Upload tracks one dataset upload. Its fields are written on the main
// loop and may be read from anywhere through Status.
type Upload struct {
	orderID   string
	datasetID string
	summary   string

	mu       sync.Mutex
	progress int
	finished bool
	err      error

	done chan struct{}
}

type UploadStatus struct {
	OrderID   string `json:"order_id"`
	DatasetID string `json:"dataset_id"`
	Summary   string `json:"summary"`
	Progress  int    `json:"progress"`
	Finished  bool   `json:"finished"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newUpload(orderID string, ds *dataset.Dataset) *Upload {
	return &Upload{
		orderID:   orderID,
		datasetID: ds.ID,
		summary:   ds.Summary(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the worker has handed its result to the main loop.
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

func (u *Upload) Status() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	st := UploadStatus{
		OrderID:   u.orderID,
		DatasetID: u.datasetID,
		Summary:   u.summary,
		Progress:  u.progress,
		Finished:  u.finished,
	}
	switch {
	case !u.finished:
		st.State = constants.JobStateUploading
	case u.err != nil:
		st.State = constants.JobStateFailed
		st.Error = u.err.Error()
	}
	return st
}

func (u *Upload) setProgress(p int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p > u.progress {
		u.progress = p
	}
}

func (u *Upload) finish(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.finished = true
	u.err = err
}

// Submit scans the dataset at path, creates a remote job and starts
// uploading in the background. The job record is created once the upload
// completes.
func (m *Manager) Submit(ctx context.Context, path string) (*Upload, error) {
	ds, err := m.scanner.Scan(path)
	if err != nil {
		return nil, err
	}
	orderID, err := m.service.NewJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	up := newUpload(orderID, ds)
	m.uploads[orderID] = up
	m.logger.Info("uploading dataset",
		zap.String("order_id", orderID),
		zap.String("dataset_id", ds.ID),
		zap.String("dataset", ds.Summary()))

	go m.uploadWorker(up, ds)
	return up, nil
}

func (m *Manager) uploadWorker(up *Upload, ds *dataset.Dataset) {
	defer close(up.done)
	err := m.service.Upload(context.Background(), up.orderID, ds, func(p int) {
		m.sched.Post(func() { up.setProgress(p) })
	})
	m.sched.Post(func() { m.uploadFinished(up, err) })
}

func (m *Manager) UploadStatus(orderID string) (UploadStatus, error) {
	up, ok := m.uploads[orderID]
	if !ok {
		return UploadStatus{}, fmt.Errorf("%w: %s", ErrUnknownUpload, orderID)
	}
	return up.Status(), nil
}

// forgetUpload drops a finished upload once its progress has had time to
// be read.
func (m *Manager) forgetUpload(up *Upload) {
	if m.cfg.UploadRetention <= 0 {
		return
	}
	var h scheduler.Handle
	h = m.sched.Every(m.cfg.UploadRetention, func() {
		h.Cancel()
		if m.uploads[up.orderID] == up {
			delete(m.uploads, up.orderID)
		}
	})
}

func (m *Manager) uploadFinished(up *Upload, err error) {
	up.finish(err)
	m.forgetUpload(up)
	if err != nil {
		m.notices.Warn("Upload failed", up.orderID, fmt.Sprintf("Upload of %s failed: %v", up.datasetID, err))
		return
	}
	up.setProgress(100)

	ctx := context.Background()
	job := Job{
		OrderID:   up.orderID,
		DatasetID: up.datasetID,
		Product:   constants.Product,
		Timestamp: m.timestamp(),
	}

	if m.qcEnabled {
		job.QC = constants.QCInProgress
		job.LastStatus = constants.StatusQCRunning
		if err := m.store.AddJob(job); err != nil {
			m.logger.Error("cannot record job", zap.String("order_id", job.OrderID), zap.Error(err))
			return
		}
		orderID := job.OrderID
		m.startQC(ctx, orderID, func(passed bool) { m.afterQC(ctx, orderID, passed) })
		return
	}

	if err := m.service.RunJob(ctx, job.OrderID); err != nil {
		m.notices.Warn("Job start failed", job.OrderID, fmt.Sprintf("Job %s could not be started: %v", job.OrderID, err))
		return
	}
	job.QC = constants.QCNotApplicable
	job.LastStatus = constants.StatusInitializing
	if err := m.store.AddJob(job); err != nil {
		m.logger.Error("cannot record job", zap.String("order_id", job.OrderID), zap.Error(err))
		return
	}
	m.notices.Info("Job Started", job.OrderID, fmt.Sprintf("Job %s started successfully!", job.OrderID))
}
