package entities

import (
	"encoding/json"
	"errors"
	"time"

	"npcs-desk/constants"
)

// ErrConfirmationRequired is returned for destructive requests sent
// without confirm=true.
var ErrConfirmationRequired = errors.New("confirmation required, send confirm=true")

// Response is the envelope every dashboard route answers with.
type Response struct {
	ErrorCode  int         `json:"error_code"`
	Message    string      `json:"message,omitempty"`
	ServerTime int64       `json:"server_time"`
	Count      int         `json:"count,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func newResponse(data interface{}, errCode int) Response {
	return Response{
		Data:       data,
		ErrorCode:  errCode,
		ServerTime: time.Now().Unix(),
	}
}

func NewResponse() *Response {
	res := newResponse(nil, constants.ServerOK)
	return &res
}

// Fail sets the error code and the raw message shown to the user.
func (resp *Response) Fail(code int, err error) *Response {
	resp.ErrorCode = code
	if err != nil {
		resp.Message = err.Error()
	}
	return resp
}

func (resp *Response) String() string {
	b, err := json.Marshal(resp)
	if err != nil {
		return "{}"
	}
	return string(b)
}
