package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Connector is the part of the job manager the session routes drive.
type Connector interface {
	Connect(ctx context.Context, apiKey string) error
	Disconnect()
	Connected() bool
	StoredAPIKey() (string, error)
}

// Session is what the credential screen shows. The stored key is never
// sent back in full.
type Session struct {
	Connected    bool   `json:"connected"`
	HasStoredKey bool   `json:"has_stored_key"`
	APIKey       string `json:"api_key,omitempty"`
}

type ConnectRequest struct {
	APIKey string `json:"api_key"`
}

func (req *ConnectRequest) IsValidData() bool {
	return strings.TrimSpace(req.APIKey) != ""
}

// MaskKey keeps the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func (session *Session) String() string {
	b, err := json.Marshal(session)
	if err != nil {
		fmt.Println(err)
		return "{}"
	}
	return string(b)
}
