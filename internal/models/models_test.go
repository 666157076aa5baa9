// Package models tests for queued request definitions.
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestParseMethod verifies accepted verbs and normalization.
func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
		ok   bool
	}{
		{"GET", MethodGet, true},
		{"post", MethodPost, true},
		{" Put ", MethodPut, true},
		{"delete", MethodDelete, true},
		{"PATCH", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseMethod(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMethod(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// TestCanTransition checks the status state machine.
func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusSyncing}: true,
		{StatusSyncing, StatusSynced}:  true,
		{StatusSyncing, StatusPending}: true,
		{StatusSyncing, StatusFailed}:  true,
	}
	all := []Status{StatusPending, StatusSyncing, StatusSynced, StatusFailed}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusSyncing.Terminal() {
		t.Error("pending and syncing are not terminal")
	}
	if !StatusSynced.Terminal() || !StatusFailed.Terminal() {
		t.Error("synced and failed are terminal")
	}
	if Status("done").Valid() {
		t.Error("unknown status should be invalid")
	}
}

// TestQueuedRequest_JSON verifies the persisted shape uses millisecond timestamps
// and the "data" key for the payload.
func TestQueuedRequest_JSON(t *testing.T) {
	created := time.UnixMilli(1700000000123)
	req := QueuedRequest{
		ID:        "abc",
		Endpoint:  "/alerts/panic",
		Method:    MethodPost,
		Payload:   json.RawMessage(`{"type":"panic"}`),
		CreatedAt: created,
		Status:    StatusPending,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"timestamp":1700000000123`) {
		t.Errorf("timestamp missing from %s", s)
	}
	if !strings.Contains(s, `"data":{"type":"panic"}`) {
		t.Errorf("data missing from %s", s)
	}
	if strings.Contains(s, "updated_at") {
		t.Errorf("zero updated_at should be omitted: %s", s)
	}

	var back QueuedRequest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", back.CreatedAt, created)
	}
	if back.Status != StatusPending || back.Method != MethodPost {
		t.Errorf("round trip lost fields: %+v", back)
	}
}

// TestQueuedRequest_Clone verifies payload buffers are not shared.
func TestQueuedRequest_Clone(t *testing.T) {
	orig := QueuedRequest{Payload: json.RawMessage(`{"a":1}`)}
	dup := orig.Clone()
	dup.Payload[2] = 'b'

	if string(orig.Payload) != `{"a":1}` {
		t.Errorf("Clone shares payload: %s", orig.Payload)
	}
}
