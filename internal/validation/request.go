package validation

import "encoding/json"

// EnqueueRequest is the body of POST /api/queue and the input of the CLI
// enqueue command.
type EnqueueRequest struct {
	Endpoint string          `json:"endpoint" validate:"required,endpoint"`
	Method   string          `json:"method" validate:"required,oneof=GET POST PUT DELETE"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ConnectivityRequest is the body of PUT /api/connectivity.
type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}
