package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"npcs-desk/constants"
	"npcs-desk/entities"
	"npcs-desk/neuropacs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type fakeConnector struct {
	connected bool
	stored    string
	err       error
}

func (f *fakeConnector) Connect(ctx context.Context, apiKey string) error {
	if f.err != nil {
		return f.err
	}
	f.connected = true
	f.stored = apiKey
	return nil
}

func (f *fakeConnector) Disconnect() {
	f.connected = false
}

func (f *fakeConnector) Connected() bool {
	return f.connected
}

func (f *fakeConnector) StoredAPIKey() (string, error) {
	return f.stored, nil
}

type directCaller struct{}

func (directCaller) Call(ctx context.Context, fn func()) error {
	fn()
	return nil
}

type SessionTestSuite struct {
	suite.Suite
	connector *fakeConnector
	engine    *gin.Engine
}

func (s *SessionTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.connector = &fakeConnector{}
	s.engine = gin.New()
	NewSessionAPI(s.connector, directCaller{}, zap.NewNop()).InitRoute(s.engine, "session")
}

func (s *SessionTestSuite) do(method, target, body string) (int, entities.Response) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp entities.Response
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func (s *SessionTestSuite) TestGetSession() {
	s.connector.stored = "abcdef123456"
	code, resp := s.do(http.MethodGet, "/session", "")
	s.Equal(http.StatusOK, code)

	data := resp.Data.(map[string]interface{})
	s.Equal(false, data["connected"])
	s.Equal(true, data["has_stored_key"])
	s.Equal("****3456", data["api_key"])
}

func (s *SessionTestSuite) TestCreateSession() {
	code, resp := s.do(http.MethodPost, "/session", `{"api_key":"key-0001"}`)
	s.Equal(http.StatusOK, code)
	s.Equal(constants.ServerOK, resp.ErrorCode)
	s.True(s.connector.connected)
	s.Equal(true, resp.Data.(map[string]interface{})["connected"])
}

func (s *SessionTestSuite) TestCreateSessionRejected() {
	{
		code, resp := s.do(http.MethodPost, "/session", `{"api_key":"  "}`)
		s.Equal(http.StatusBadRequest, code)
		s.Equal(constants.ServerInvalidData, resp.ErrorCode)
	}
	{
		s.connector.err = neuropacs.ErrInvalidCredential
		code, resp := s.do(http.MethodPost, "/session", `{"api_key":"nope"}`)
		s.Equal(http.StatusUnauthorized, code)
		s.Equal(constants.ServerInvalidAPIKey, resp.ErrorCode)
	}
	{
		s.connector.err = neuropacs.ErrTransport
		code, resp := s.do(http.MethodPost, "/session", `{"api_key":"nope"}`)
		s.Equal(http.StatusBadGateway, code)
		s.Equal(constants.ServerRemoteError, resp.ErrorCode)
	}
	s.False(s.connector.connected)
}

func (s *SessionTestSuite) TestDeleteSessionNeedsConfirmation() {
	s.connector.connected = true
	{
		code, resp := s.do(http.MethodDelete, "/session", "")
		s.Equal(http.StatusBadRequest, code)
		s.Equal(entities.ErrConfirmationRequired.Error(), resp.Message)
		s.True(s.connector.connected)
	}
	{
		code, _ := s.do(http.MethodDelete, "/session?confirm=true", "")
		s.Equal(http.StatusOK, code)
		s.False(s.connector.connected)
	}
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "****", MaskKey("abc"))
	assert.Equal(t, "****wxyz", MaskKey("abcdwxyz"))
}

func TestConnectRequestIsValidData(t *testing.T) {
	assert.False(t, (&ConnectRequest{APIKey: " "}).IsValidData())
	assert.True(t, (&ConnectRequest{APIKey: "k"}).IsValidData())
}
