package job

import (
	"testing"

	"npcs-desk/constants"

	"github.com/stretchr/testify/assert"
)

var sampleJob = Job{
	OrderID:    "order-1",
	DatasetID:  "study-01",
	LastStatus: constants.StatusInitializing,
	Product:    constants.Product,
	Timestamp:  "2024-01-01 10:00:00.000000",
	QC:         constants.QCNotApplicable,
}

func TestIsValidQC(t *testing.T) {
	for _, qc := range []string{"NA", "IP", "PASS", "FAIL"} {
		assert.True(t, IsValidQC(qc), qc)
	}
	assert.False(t, IsValidQC("pass"))
	assert.False(t, IsValidQC(""))
}

func TestStateOf(t *testing.T) {
	{
		assert.Equal(t, constants.JobStateRunning, StateOf(sampleJob))
	}
	{
		job := sampleJob
		job.QC = constants.QCInProgress
		job.LastStatus = constants.StatusQCRunning
		assert.Equal(t, constants.JobStateQCPending, StateOf(job))
	}
	{
		job := sampleJob
		job.QC = constants.QCFail
		job.LastStatus = constants.StatusQCFailed
		assert.Equal(t, constants.JobStateQCFail, StateOf(job))
	}
	{
		job := sampleJob
		job.QC = constants.QCPass
		job.LastStatus = constants.StatusFinished
		assert.Equal(t, constants.JobStateFinished, StateOf(job))
	}
	{
		job := sampleJob
		job.LastStatus = "Failed - corrupt series"
		assert.Equal(t, constants.JobStateFailed, StateOf(job))
	}
}

func TestColumn(t *testing.T) {
	{
		v, ok := sampleJob.Column("dataset_id")
		assert.True(t, ok)
		assert.Equal(t, "study-01", v)
	}
	{
		_, ok := sampleJob.Column("actions")
		assert.False(t, ok)
	}
}

func TestString(t *testing.T) {
	{
		assert.NotEqual(t, "{}", sampleJob.String())
	}
	{
		job := Job{}
		assert.Equal(t, "{\"order_id\":\"\",\"dataset_id\":\"\",\"last_status\":\"\",\"product\":\"\",\"timestamp\":\"\",\"qc\":\"\"}", job.String())
	}
}

func TestNewView(t *testing.T) {
	v := NewView(sampleJob)
	assert.Equal(t, sampleJob.OrderID, v.OrderID)
	assert.Equal(t, constants.JobStateRunning, v.State)
	assert.Empty(t, v.Results)

	done := sampleJob
	done.LastStatus = constants.StatusFinished
	v = NewView(done)
	assert.Equal(t, constants.JobStateFinished, v.State)
	assert.Len(t, v.Results, 4)
}
