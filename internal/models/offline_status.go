package models

import "encoding/json"

// OfflineStatus is the body of GET /offline/status. Entries are loosely typed
// because the backend may report requests it buffered itself.
type OfflineStatus struct {
	Requests []RemoteRequest `json:"requests"`
}

// RemoteRequest is one entry reported by /offline/status.
type RemoteRequest struct {
	ID        string          `json:"id,omitempty"`
	Endpoint  string          `json:"endpoint,omitempty"`
	URL       string          `json:"url,omitempty"`
	Method    string          `json:"method,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Retries   int             `json:"retries,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// ProcessRequest is one element of the POST /offline/process body.
type ProcessRequest struct {
	Endpoint string          `json:"endpoint"`
	Method   Method          `json:"method"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ProcessResult is the body returned by POST /offline/process.
type ProcessResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Results   []ProcessOutcome `json:"results,omitempty"`
}

// ProcessOutcome reports the backend status for one relayed request.
type ProcessOutcome struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	Error    string `json:"error,omitempty"`
}
