package mw

import (
	"encoding/json"
)

// Session is the connection state the guards look at.
type Session interface {
	Connected() bool
}

// Client describes who sent a dashboard request.
type Client struct {
	RemoteAddr    string `json:"remote_addr"`
	Authenticated bool   `json:"authenticated"`
}

func (object *Client) String() string {
	b, _ := json.Marshal(object)
	return string(b)
}
