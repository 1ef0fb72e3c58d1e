package job

import (
	"context"
	"errors"

	"npcs-desk/constants"
	"npcs-desk/neuropacs"

	"go.uber.org/zap"
)

// Refresh asks the service for the status of every job that did not fail
// QC and stores the ones that changed. Jobs the current API key cannot
// access are dropped. Other errors keep the stored status.
func (m *Manager) Refresh(ctx context.Context) ([]Job, error) {
	if !m.service.Connected() {
		return nil, neuropacs.ErrNotConnected
	}
	jobs, err := m.store.ListJobs()
	if err != nil {
		return nil, err
	}

	ret := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.QC == constants.QCFail {
			ret = append(ret, job)
			continue
		}

		status, err := m.service.CheckStatus(ctx, job.OrderID)
		switch {
		case errors.Is(err, neuropacs.ErrKeyJobMismatch):
			m.logger.Info("removing job the API key cannot access", zap.String("order_id", job.OrderID))
			if err := m.store.RemoveJob(job.OrderID); err != nil {
				m.logger.Error("cannot remove job", zap.String("order_id", job.OrderID), zap.Error(err))
				ret = append(ret, job)
			}
			continue
		case err != nil:
			m.logger.Warn("status check failed", zap.String("order_id", job.OrderID), zap.Error(err))
		case status != job.LastStatus:
			if err := m.store.UpdateField(job.OrderID, "last_status", status); err != nil {
				m.logger.Error("cannot store job status", zap.String("order_id", job.OrderID), zap.Error(err))
			} else {
				job.LastStatus = status
			}
		}
		ret = append(ret, job)
	}
	return ret, nil
}

func (m *Manager) startRefresh() {
	if m.refresh != nil || m.cfg.RefreshInterval <= 0 {
		return
	}
	m.refresh = m.sched.Every(m.cfg.RefreshInterval, func() {
		if _, err := m.Refresh(context.Background()); err != nil {
			m.logger.Warn("periodic status refresh failed", zap.Error(err))
		}
	})
}
