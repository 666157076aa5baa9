// Package models provides data model definitions for the offline action queue.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Method is the HTTP verb a queued request is replayed with.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalizes a verb, returning false for anything outside
// GET, POST, PUT and DELETE.
func ParseMethod(s string) (Method, bool) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return m, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a queued request.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s only changes through an explicit user action.
func (s Status) Terminal() bool {
	return s == StatusSynced || s == StatusFailed
}

// CanTransition reports whether the orchestrator may move an entry from one
// status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusSyncing
	case StatusSyncing:
		return to == StatusSynced || to == StatusPending || to == StatusFailed
	}
	return false
}

// QueuedRequest is a user-initiated mutation waiting for connectivity.
type QueuedRequest struct {
	ID        string          `json:"id"`
	Endpoint  string          `json:"endpoint"`
	Method    Method          `json:"method"`
	Payload   json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
	Retries   int             `json:"retries"`
	Status    Status          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
}

// queuedRequestJSON carries timestamps as unix milliseconds.
type queuedRequestJSON struct {
	ID        string          `json:"id"`
	Endpoint  string          `json:"endpoint"`
	Method    Method          `json:"method"`
	Payload   json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	UpdatedAt int64           `json:"updated_at,omitempty"`
	Retries   int             `json:"retries"`
	Status    Status          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r QueuedRequest) MarshalJSON() ([]byte, error) {
	out := queuedRequestJSON{
		ID:        r.ID,
		Endpoint:  r.Endpoint,
		Method:    r.Method,
		Payload:   r.Payload,
		Timestamp: r.CreatedAt.UnixMilli(),
		Retries:   r.Retries,
		Status:    r.Status,
		LastError: r.LastError,
	}
	if !r.UpdatedAt.IsZero() {
		out.UpdatedAt = r.UpdatedAt.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *QueuedRequest) UnmarshalJSON(data []byte) error {
	var in queuedRequestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = QueuedRequest{
		ID:        in.ID,
		Endpoint:  in.Endpoint,
		Method:    in.Method,
		Payload:   in.Payload,
		CreatedAt: time.UnixMilli(in.Timestamp),
		Retries:   in.Retries,
		Status:    in.Status,
		LastError: in.LastError,
	}
	if in.UpdatedAt > 0 {
		r.UpdatedAt = time.UnixMilli(in.UpdatedAt)
	}
	return nil
}

// Clone returns a deep copy so callers never share the payload buffer.
func (r QueuedRequest) Clone() QueuedRequest {
	if r.Payload != nil {
		r.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return r
}

// SyncResult is the aggregate outcome of one sync pass.
type SyncResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// QueueStats counts entries per status.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}
