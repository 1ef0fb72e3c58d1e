package job

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"npcs-desk/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *JobStore {
	dir, err := ioutil.TempDir("", "jobstore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return NewJobStore(filepath.Join(dir, "app_data.json"), zap.NewNop())
}

func readFile(t *testing.T, store *JobStore) string {
	b, err := ioutil.ReadFile(store.Path())
	require.NoError(t, err)
	return string(b)
}

func TestStoreDefaultsWhenMissing(t *testing.T) {
	store := newTestStore(t)

	key, err := store.GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "", key)

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NotNil(t, jobs)
}

func TestStoreMalformedFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, ioutil.WriteFile(store.Path(), []byte("{not json"), 0644))

	_, err := store.ListJobs()
	assert.Error(t, err)
	assert.Error(t, store.AddJob(sampleJob))
	assert.Equal(t, "{not json", readFile(t, store))
}

func TestStoreAPIKey(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddJob(sampleJob))
	require.NoError(t, store.SetAPIKey("key-1"))

	key, err := store.GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "key-1", key)

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestStoreAddJobIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddJob(sampleJob))

	dup := sampleJob
	dup.DatasetID = "other"
	dup.LastStatus = "Finished"
	require.NoError(t, store.AddJob(dup))

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, sampleJob, jobs[0])
}

func TestStoreKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		j := sampleJob
		j.OrderID = id
		require.NoError(t, store.AddJob(j))
	}
	jobs, err := store.ListJobs()
	require.NoError(t, err)
	ids := make([]string, 0)
	for _, j := range jobs {
		ids = append(ids, j.OrderID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestStoreUpdateField(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddJob(sampleJob))

	require.NoError(t, store.UpdateField(sampleJob.OrderID, "last_status", "45% - Initializing"))
	require.NoError(t, store.UpdateField(sampleJob.OrderID, "qc", constants.QCPass))

	got, err := store.GetJob(sampleJob.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "45% - Initializing", got.LastStatus)
	assert.Equal(t, constants.QCPass, got.QC)
}

func TestStoreUpdateFieldFailuresDoNotWrite(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddJob(sampleJob))
	before := readFile(t, store)

	{
		err := store.UpdateField("missing", "last_status", "x")
		assert.True(t, errors.Is(err, ErrJobNotFound))
	}
	{
		err := store.UpdateField(sampleJob.OrderID, "colour", "x")
		assert.True(t, errors.Is(err, ErrUnknownField))
	}
	{
		err := store.UpdateField(sampleJob.OrderID, "order_id", "x")
		assert.True(t, errors.Is(err, ErrUnknownField))
	}
	{
		err := store.UpdateField(sampleJob.OrderID, "qc", "MAYBE")
		assert.True(t, errors.Is(err, ErrInvalidQC))
	}
	assert.Equal(t, before, readFile(t, store))
}

func TestStoreRemoveJob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddJob(sampleJob))
	other := sampleJob
	other.OrderID = "order-2"
	require.NoError(t, store.AddJob(other))

	require.NoError(t, store.RemoveJob(sampleJob.OrderID))
	require.NoError(t, store.RemoveJob("never-there"))

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "order-2", jobs[0].OrderID)

	_, err = store.GetJob(sampleJob.OrderID)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestStoreReadsLegacyRecords(t *testing.T) {
	store := newTestStore(t)
	legacy := `{"api_key":"k","jobs":[{"order_id":"old","dataset_id":"d","last_status":"Started","product":"p","timestamp":"t"}]}`
	require.NoError(t, ioutil.WriteFile(store.Path(), []byte(legacy), 0644))

	got, err := store.GetJob("old")
	require.NoError(t, err)
	assert.Equal(t, constants.QCNotApplicable, got.QC)
	assert.NoError(t, store.UpdateField("old", "qc", constants.QCPass))
}
