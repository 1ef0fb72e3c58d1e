package neuropacs

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"npcs-desk/constants"
	"npcs-desk/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const goodKey = "good-key"

type fakeService struct {
	mu       sync.Mutex
	uploaded []string
	bodies   map[string]map[string]interface{}
	status   string
	qc       string
	failOn   map[string]int
	failMsg  string
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("X-Api-Key") != goodKey {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid API key"}`))
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/uploadDataset/") {
		if code, ok := f.failOn["upload"]; ok {
			w.WriteHeader(code)
			w.Write([]byte(`{"error":"` + f.failMsg + `"}`))
			return
		}
		f.uploaded = append(f.uploaded, strings.TrimPrefix(r.URL.Path, "/api/uploadDataset/"))
		return
	}

	op := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	body := make(map[string]interface{})
	json.NewDecoder(r.Body).Decode(&body)
	f.bodies[op] = body

	if code, ok := f.failOn[op]; ok {
		w.WriteHeader(code)
		w.Write([]byte(`{"error":"` + f.failMsg + `"}`))
		return
	}

	switch op {
	case "connect":
		w.Write([]byte(`{"connection_id":"conn-1"}`))
	case "newJob":
		w.Write([]byte(`{"order_id":"order-1"}`))
	case "runJob":
		w.Write([]byte(`{}`))
	case "checkStatus":
		w.Write([]byte(f.status))
	case "qcCheck":
		w.Write([]byte(f.qc))
	case "getResults":
		w.Write([]byte("<result>ok</result>"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type ClientTestSuite struct {
	suite.Suite
	fake   *fakeService
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.fake = &fakeService{
		bodies: make(map[string]map[string]interface{}),
		failOn: make(map[string]int),
	}
	s.server = httptest.NewServer(s.fake)
	s.client = NewClient(Config{ServerURL: s.server.URL + "/"}, zap.NewNop())
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) connect() {
	s.Require().NoError(s.client.Connect(s.ctx, goodKey))
}

func (s *ClientTestSuite) TestConnect() {
	s.connect()
	s.True(s.client.Connected())
	s.Equal(constants.OriginType, s.fake.bodies["connect"]["origin_type"])
}

func (s *ClientTestSuite) TestConnectRejected() {
	err := s.client.Connect(s.ctx, "bad-key")
	s.True(errors.Is(err, ErrInvalidCredential))
	s.False(s.client.Connected())
}

func (s *ClientTestSuite) TestConnectRejectedKeepsPrevious() {
	s.connect()
	s.Error(s.client.Connect(s.ctx, "bad-key"))
	s.True(s.client.Connected())
}

func (s *ClientTestSuite) TestConnectEmptyKey() {
	s.Equal(ErrInvalidCredential, s.client.Connect(s.ctx, "   "))
}

func (s *ClientTestSuite) TestCallsRequireConnection() {
	_, err := s.client.NewJob(s.ctx)
	s.Equal(ErrNotConnected, err)
	_, err = s.client.CheckStatus(s.ctx, "order-1")
	s.Equal(ErrNotConnected, err)
}

func (s *ClientTestSuite) TestNewJobAndRun() {
	s.connect()
	id, err := s.client.NewJob(s.ctx)
	s.Require().NoError(err)
	s.Equal("order-1", id)

	s.Require().NoError(s.client.RunJob(s.ctx, id))
	s.Equal(constants.Product, s.fake.bodies["runJob"]["product_name"])
	s.Equal("order-1", s.fake.bodies["runJob"]["order_id"])
}

func (s *ClientTestSuite) TestCheckStatus() {
	s.connect()
	s.fake.status = `{"started":true,"finished":false,"failed":false,"progress":45,"info":""}`
	status, err := s.client.CheckStatus(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal("45% - Initializing", status)
}

func (s *ClientTestSuite) TestCheckStatusKeyMismatch() {
	s.connect()
	s.fake.failOn["checkStatus"] = http.StatusForbidden
	s.fake.failMsg = "API key incompatible."
	_, err := s.client.CheckStatus(s.ctx, "order-1")
	s.True(errors.Is(err, ErrKeyJobMismatch))
	s.False(errors.Is(err, ErrTransport))
}

func (s *ClientTestSuite) TestCheckStatusServerError() {
	s.connect()
	s.fake.failOn["checkStatus"] = http.StatusInternalServerError
	s.fake.failMsg = "boom"
	_, err := s.client.CheckStatus(s.ctx, "order-1")
	s.True(errors.Is(err, ErrTransport))
	s.Contains(err.Error(), "boom")
}

func (s *ClientTestSuite) TestCheckQC() {
	s.connect()
	{
		s.fake.qc = `{"status":"Dataset rejected"}`
		qc, err := s.client.CheckQC(s.ctx, "order-1")
		s.Require().NoError(err)
		s.Equal(QCFailed, qc.State)
		s.Equal("Dataset rejected", qc.Reason)
	}
	{
		s.fake.qc = `"still running"`
		qc, err := s.client.CheckQC(s.ctx, "order-1")
		s.Require().NoError(err)
		s.Equal(QCPending, qc.State)
	}
}

func (s *ClientTestSuite) TestGetResults() {
	s.connect()
	b, err := s.client.GetResults(s.ctx, "order-1", constants.FormatXML)
	s.Require().NoError(err)
	s.Equal("<result>ok</result>", string(b))
	s.Equal(constants.FormatXML, s.fake.bodies["getResults"]["format"])
}

func (s *ClientTestSuite) TestUpload() {
	s.connect()
	ds := s.dataset("a.dcm", "sub/b c.dcm", "c.dcm", "d.dcm")

	progress := make([]int, 0)
	s.Require().NoError(s.client.Upload(s.ctx, "order-1", ds, func(p int) { progress = append(progress, p) }))
	s.Equal([]int{0, 25, 50, 75, 100}, progress)
	s.Len(s.fake.uploaded, 4)
	s.Contains(s.fake.uploaded, "order-1/sub/b c.dcm")
}

func (s *ClientTestSuite) TestUploadFailureAborts() {
	s.connect()
	s.fake.failOn["upload"] = http.StatusBadGateway
	s.fake.failMsg = "gateway"
	ds := s.dataset("a.dcm", "b.dcm")

	progress := make([]int, 0)
	err := s.client.Upload(s.ctx, "order-1", ds, func(p int) { progress = append(progress, p) })
	s.True(errors.Is(err, ErrTransport))
	s.Equal([]int{0}, progress)
}

func (s *ClientTestSuite) dataset(names ...string) *dataset.Dataset {
	dir, err := ioutil.TempDir("", "upload")
	s.Require().NoError(err)
	s.T().Cleanup(func() { os.RemoveAll(dir) })

	ds := &dataset.Dataset{ID: filepath.Base(dir), Path: dir}
	for _, name := range names {
		p := filepath.Join(dir, filepath.FromSlash(name))
		s.Require().NoError(os.MkdirAll(filepath.Dir(p), 0755))
		s.Require().NoError(ioutil.WriteFile(p, []byte("DICM"), 0644))
		ds.Files = append(ds.Files, dataset.File{Path: p, Rel: name, Size: 4})
	}
	return ds
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestFormatStatus(t *testing.T) {
	{
		assert.Equal(t, "Failed - bad slices", FormatStatus(jobStatus{Failed: true, Finished: true, Info: "bad slices"}))
	}
	{
		assert.Equal(t, "Finished", FormatStatus(jobStatus{Finished: true, Started: true, Progress: 100}))
	}
	{
		assert.Equal(t, "0% - Initializing", FormatStatus(jobStatus{Started: true}))
	}
	{
		assert.Equal(t, "60% - Segmenting", FormatStatus(jobStatus{Started: true, Progress: 60, Info: "Segmenting"}))
	}
	{
		assert.Equal(t, "0", FormatStatus(jobStatus{}))
	}
}

func TestDecodeQC(t *testing.T) {
	report := func(verdict string) string {
		items := make([]string, 12)
		for i := range items {
			items[i] = `{"Check":"c"}`
		}
		items[11] = verdict
		return "[" + strings.Join(items, ",") + "]"
	}
	{
		assert.Equal(t, QCPassed, DecodeQC([]byte(report(`{"Status":"PASS"}`))).State)
	}
	{
		assert.Equal(t, QCFailed, DecodeQC([]byte(report(`{"Status":"FAIL"}`))).State)
	}
	{
		assert.Equal(t, QCPending, DecodeQC([]byte(report(`{"Status":"RUNNING"}`))).State)
	}
	{
		assert.Equal(t, QCPending, DecodeQC([]byte(`[{"Status":"PASS"}]`)).State)
	}
	{
		r := DecodeQC([]byte(`{"status":"QC could not run"}`))
		assert.Equal(t, QCFailed, r.State)
		assert.Equal(t, "QC could not run", r.Reason)
		assert.True(t, r.Resolved())
	}
	{
		assert.Equal(t, QCPending, DecodeQC([]byte(`{"status":null}`)).State)
	}
	{
		assert.Equal(t, QCPending, DecodeQC([]byte(`{"progress":10}`)).State)
	}
	{
		assert.Equal(t, QCPending, DecodeQC(nil).State)
	}
	{
		assert.Equal(t, "PASS", QCPassed.String())
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	require.True(t, errors.Is(remoteError("op", "API key incompatible."), ErrKeyJobMismatch))
	require.True(t, errors.Is(remoteError("op", "timeout"), ErrTransport))
}
