package types

import (
	"encoding/json"
	"time"
)

// Account identifies one remote mailbox. ID is the mailbox address.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

// ActionType names a queued mutation
type ActionType string

const (
	ActionDelete   ActionType = "DELETE"
	ActionMarkRead ActionType = "MARK_READ"
)

// ActionPayload carries what a replay needs
type ActionPayload struct {
	UID    uint32 `json:"uid"`
	Folder string `json:"folder"`
}

// PendingAction is a local mutation not yet confirmed by the server
type PendingAction struct {
	ID         int64         `json:"id"`
	AccountID  string        `json:"account_id"`
	Type       ActionType    `json:"action_type"`
	Payload    ActionPayload `json:"payload"`
	Attempts   int           `json:"attempts"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Encode serializes the payload for storage
func (p ActionPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePayload parses a stored payload
func DecodePayload(raw string) (ActionPayload, error) {
	var p ActionPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}
