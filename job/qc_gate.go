package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"npcs-desk/constants"
	"npcs-desk/neuropacs"
	"npcs-desk/scheduler"

	"go.uber.org/zap"
)

// qcGate polls the remote QC check of one job until it resolves or the
// timeout passes. Pending at the timeout counts as FAIL, so a job never
// starts without an explicit or forced outcome.
type qcGate struct {
	m        *Manager
	ctx      context.Context
	orderID  string
	started  time.Time
	handle   scheduler.Handle
	polls    int
	resolved bool
	cont     func(passed bool)
}

// startQC polls once right away and then every QCInterval. cont runs
// exactly once, after the QC value has been stored.
func (m *Manager) startQC(ctx context.Context, orderID string, cont func(passed bool)) *qcGate {
	gate := &qcGate{
		m:       m,
		ctx:     ctx,
		orderID: orderID,
		started: m.sched.Now(),
		cont:    cont,
	}
	m.gates[orderID] = gate

	gate.poll()
	if !gate.resolved {
		gate.handle = m.sched.Every(m.cfg.QCInterval, gate.poll)
	}
	return gate
}

func (gate *qcGate) poll() {
	if gate.resolved {
		return
	}
	gate.polls++

	qc, err := gate.m.service.CheckQC(gate.ctx, gate.orderID)
	if err != nil {
		gate.m.logger.Warn("QC check failed, still pending",
			zap.String("order_id", gate.orderID), zap.Error(err))
		qc = neuropacs.QCResult{State: neuropacs.QCPending}
	}

	switch qc.State {
	case neuropacs.QCPassed:
		gate.resolve(true, "")
	case neuropacs.QCFailed:
		gate.resolve(false, qc.Reason)
	default:
		elapsed := gate.m.sched.Now().Sub(gate.started)
		if elapsed >= gate.m.cfg.QCTimeout {
			gate.resolve(false, fmt.Sprintf("no QC result after %s", elapsed))
		}
	}
}

// stop ends polling without an outcome, used when the job is deleted.
func (gate *qcGate) stop() {
	gate.resolved = true
	if gate.handle != nil {
		gate.handle.Cancel()
	}
	delete(gate.m.gates, gate.orderID)
}

func (gate *qcGate) resolve(passed bool, reason string) {
	gate.stop()

	qc := constants.QCFail
	if passed {
		qc = constants.QCPass
	}
	gate.m.logger.Info("QC resolved",
		zap.String("order_id", gate.orderID),
		zap.String("qc", qc),
		zap.String("reason", reason),
		zap.Int("polls", gate.polls))

	err := gate.m.store.UpdateField(gate.orderID, "qc", qc)
	if errors.Is(err, ErrJobNotFound) {
		gate.m.logger.Info("job removed while QC was running", zap.String("order_id", gate.orderID))
		return
	}
	if err != nil {
		gate.m.logger.Error("cannot store QC result", zap.String("order_id", gate.orderID), zap.Error(err))
	}
	gate.cont(passed)
}

// afterQC starts the job if QC passed and reports the outcome.
func (m *Manager) afterQC(ctx context.Context, orderID string, passed bool) {
	if passed {
		if err := m.service.RunJob(ctx, orderID); err != nil {
			m.notices.Warn("Job start failed", orderID, fmt.Sprintf("Job %s could not be started: %v", orderID, err))
		} else {
			m.updateStatus(orderID, constants.StatusInitializing)
			m.notices.Info("Job Started", orderID, fmt.Sprintf("Job %s started successfully!", orderID))
		}
	} else {
		m.updateStatus(orderID, constants.StatusQCFailed)
		m.notices.Warn("QC Failed", orderID, fmt.Sprintf("QC check for job %s failed or timed out. Job will not run.", orderID))
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("status refresh after QC failed", zap.Error(err))
	}
}

func (m *Manager) updateStatus(orderID, status string) {
	if err := m.store.UpdateField(orderID, "last_status", status); err != nil {
		m.logger.Error("cannot store job status", zap.String("order_id", orderID), zap.Error(err))
	}
}
