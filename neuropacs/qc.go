package neuropacs

import (
	"bytes"
	"encoding/json"

	"npcs-desk/constants"
)

type QCState int

const (
	QCPending QCState = iota
	QCPassed
	QCFailed
)

func (s QCState) String() string {
	switch s {
	case QCPassed:
		return constants.QCPass
	case QCFailed:
		return constants.QCFail
	}
	return "PENDING"
}

type QCResult struct {
	State  QCState
	Reason string
}

func (r QCResult) Resolved() bool {
	return r.State != QCPending
}

// Position of the overall verdict in the QC report array.
const qcVerdictIndex = 11

// DecodeQC turns the raw qcCheck payload into a QCResult. The service
// answers either with the report array, whose verdict element carries
// {"Status": "PASS"|"FAIL"}, or with an object whose "status" field
// signals a failure. Anything else is still pending.
func DecodeQC(raw []byte) QCResult {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return QCResult{State: QCPending}
	}

	switch raw[0] {
	case '[':
		var report []json.RawMessage
		if err := json.Unmarshal(raw, &report); err != nil || len(report) <= qcVerdictIndex {
			return QCResult{State: QCPending}
		}
		var verdict struct {
			Status string `json:"Status"`
		}
		if err := json.Unmarshal(report[qcVerdictIndex], &verdict); err != nil {
			return QCResult{State: QCPending}
		}
		switch verdict.Status {
		case constants.QCPass:
			return QCResult{State: QCPassed}
		case constants.QCFail:
			return QCResult{State: QCFailed, Reason: "QC report verdict FAIL"}
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return QCResult{State: QCPending}
		}
		status, ok := obj["status"]
		if !ok || string(status) == "null" {
			return QCResult{State: QCPending}
		}
		var reason string
		if err := json.Unmarshal(status, &reason); err != nil {
			reason = string(status)
		}
		return QCResult{State: QCFailed, Reason: reason}
	}
	return QCResult{State: QCPending}
}
