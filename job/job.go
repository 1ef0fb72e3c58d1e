package job

import (
	"encoding/json"
	"strings"

	"npcs-desk/constants"
	"npcs-desk/results"
)

// TimestampLayout is how job timestamps are written to the store.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var mapQC = map[string]bool{
	constants.QCNotApplicable: true,
	constants.QCInProgress:    true,
	constants.QCPass:          true,
	constants.QCFail:          true,
}

// Job is one persisted job record, keyed by OrderID.
type Job struct {
	OrderID    string `json:"order_id"`
	DatasetID  string `json:"dataset_id"`
	LastStatus string `json:"last_status"`
	Product    string `json:"product"`
	Timestamp  string `json:"timestamp"`
	QC         string `json:"qc"`
}

// View is a job as the dashboard shows it.
type View struct {
	Job
	State   string               `json:"state"`
	Results []results.FormatInfo `json:"results,omitempty"`
}

func IsValidQC(qc string) bool {
	return mapQC[qc]
}

// StateOf derives the lifecycle state of a stored job.
func StateOf(job Job) string {
	switch {
	case job.QC == constants.QCFail:
		return constants.JobStateQCFail
	case job.QC == constants.QCInProgress:
		return constants.JobStateQCPending
	case job.LastStatus == constants.StatusFinished:
		return constants.JobStateFinished
	case strings.HasPrefix(job.LastStatus, constants.StatusFailedPrefix):
		return constants.JobStateFailed
	}
	return constants.JobStateRunning
}

func NewView(job Job) View {
	view := View{Job: job, State: StateOf(job)}
	if view.State == constants.JobStateFinished {
		view.Results = results.Available()
	}
	return view
}

// Column returns the value of a column by its json name.
func (job *Job) Column(name string) (string, bool) {
	switch name {
	case "order_id":
		return job.OrderID, true
	case "dataset_id":
		return job.DatasetID, true
	case "last_status":
		return job.LastStatus, true
	case "product":
		return job.Product, true
	case "timestamp":
		return job.Timestamp, true
	case "qc":
		return job.QC, true
	}
	return "", false
}

func (job *Job) String() string {
	b, _ := json.Marshal(job)
	return string(b)
}
