package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/queue"
)

// fakeBackend records calls and returns canned responses.
type fakeBackend struct {
	sent       []models.QueuedRequest
	sendErr    error
	batches    [][]models.ProcessRequest
	processRes *models.ProcessResult
	processErr error
	status     *models.OfflineStatus
	statusErr  error
}

func (f *fakeBackend) Send(_ context.Context, method models.Method, endpoint string, payload json.RawMessage) error {
	f.sent = append(f.sent, models.QueuedRequest{Method: method, Endpoint: endpoint, Payload: payload})
	return f.sendErr
}

func (f *fakeBackend) Health(context.Context) error { return nil }

func (f *fakeBackend) OfflineStatus(context.Context) (*models.OfflineStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeBackend) ProcessOffline(_ context.Context, reqs []models.ProcessRequest) (*models.ProcessResult, error) {
	f.batches = append(f.batches, reqs)
	return f.processRes, f.processErr
}

func TestNewReplayer(t *testing.T) {
	backend := &fakeBackend{}
	tests := []struct {
		mode string
		want interface{}
	}{
		{"", &DirectReplayer{}},
		{"direct", &DirectReplayer{}},
		{" Relay ", &RelayReplayer{}},
	}
	for _, tt := range tests {
		r, err := NewReplayer(tt.mode, backend)
		if err != nil {
			t.Fatalf("NewReplayer(%q) returned error: %v", tt.mode, err)
		}
		switch tt.want.(type) {
		case *DirectReplayer:
			if _, ok := r.(*DirectReplayer); !ok {
				t.Errorf("NewReplayer(%q) = %T", tt.mode, r)
			}
		case *RelayReplayer:
			if _, ok := r.(*RelayReplayer); !ok {
				t.Errorf("NewReplayer(%q) = %T", tt.mode, r)
			}
		}
	}

	if _, err := NewReplayer("carrier-pigeon", backend); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("unknown mode err = %v", err)
	}
}

func TestDirectReplayer(t *testing.T) {
	backend := &fakeBackend{}
	r := &DirectReplayer{Backend: backend}

	req := models.QueuedRequest{ID: "a", Endpoint: "/alerts/panic", Method: models.MethodPost, Payload: json.RawMessage(`{"type":"panic"}`)}
	if err := r.Replay(context.Background(), req); err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}
	if len(backend.sent) != 1 || backend.sent[0].Endpoint != "/alerts/panic" {
		t.Fatalf("sent = %#v", backend.sent)
	}

	backend.sendErr = errors.New("boom")
	if err := r.Replay(context.Background(), req); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRelayReplayer(t *testing.T) {
	req := models.QueuedRequest{ID: "a", Endpoint: "/user/profile", Method: models.MethodPut, Payload: json.RawMessage(`{"name":"x"}`)}

	tests := []struct {
		name   string
		result *models.ProcessResult
		err    error
		code   apperrors.ErrorCode
	}{
		{"accepted", &models.ProcessResult{Processed: 1}, nil, ""},
		{"nil result", nil, nil, ""},
		{"rejected", &models.ProcessResult{Failed: 1, Results: []models.ProcessOutcome{{Endpoint: "/user/profile", Status: 422}}}, nil, apperrors.ErrValidation},
		{"upstream down", &models.ProcessResult{Failed: 1, Results: []models.ProcessOutcome{{Endpoint: "/user/profile", Status: 503}}}, nil, apperrors.ErrNetwork},
		{"failed without detail", &models.ProcessResult{Failed: 1}, nil, apperrors.ErrNetwork},
		{"transport", nil, errors.New("connection reset"), apperrors.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{processRes: tt.result, processErr: tt.err}
			r := &RelayReplayer{Backend: backend}

			err := r.Replay(context.Background(), req)
			if got := apperrors.ReplayCode(err); got != tt.code {
				t.Errorf("ReplayCode = %q, want %q (err=%v)", got, tt.code, err)
			}
			if len(backend.batches) != 1 || len(backend.batches[0]) != 1 {
				t.Fatalf("batches = %#v", backend.batches)
			}
			sent := backend.batches[0][0]
			if sent.Endpoint != req.Endpoint || sent.Method != req.Method || string(sent.Data) != string(req.Payload) {
				t.Errorf("batch element = %#v", sent)
			}
		})
	}
}

// mergeRecorder captures merged entries.
type mergeRecorder struct {
	got []models.QueuedRequest
}

func (m *mergeRecorder) Merge(entries []models.QueuedRequest) int {
	m.got = append(m.got, entries...)
	return len(entries)
}

func TestNormalizeRemote(t *testing.T) {
	now := time.UnixMilli(1_700_000_500_000)
	in := []models.RemoteRequest{
		{ID: "srv-1", Endpoint: "/alerts/panic", Method: "put", Data: json.RawMessage(`{"a":1}`), Timestamp: 1_700_000_000_000, Retries: 2, Status: "failed"},
		{URL: "/user/profile"},
		{Data: json.RawMessage(`null`), Status: "bogus", Retries: -1},
	}

	out := NormalizeRemote(in, now)
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}

	first := out[0]
	if first.ID != "srv-1" || first.Method != models.MethodPut || first.Status != models.StatusFailed || first.Retries != 2 {
		t.Errorf("first = %#v", first)
	}
	if first.CreatedAt.UnixMilli() != 1_700_000_000_000 {
		t.Errorf("first.CreatedAt = %v", first.CreatedAt)
	}

	second := out[1]
	if !strings.HasPrefix(second.ID, "req-") || len(second.ID) != len("req-")+16 {
		t.Errorf("second.ID = %q, want derived req- id", second.ID)
	}
	if second.Endpoint != "/user/profile" {
		t.Errorf("second.Endpoint = %q, want url fallback", second.Endpoint)
	}
	if second.Method != models.MethodPost || second.Status != models.StatusPending {
		t.Errorf("second defaults = %s %s", second.Method, second.Status)
	}
	if !second.CreatedAt.Equal(now) {
		t.Errorf("second.CreatedAt = %v, want now", second.CreatedAt)
	}

	third := out[2]
	if third.ID == second.ID || third.Endpoint != "/unknown" {
		t.Errorf("third = %#v", third)
	}
	if third.Payload != nil {
		t.Errorf("third.Payload = %q, want nil", third.Payload)
	}
	if third.Status != models.StatusPending || third.Retries != 0 {
		t.Errorf("third status/retries = %s/%d", third.Status, third.Retries)
	}
}

func TestHydrator(t *testing.T) {
	backend := &fakeBackend{status: &models.OfflineStatus{Requests: []models.RemoteRequest{
		{ID: "a", Endpoint: "/alerts/panic"},
		{Endpoint: "/user/profile", Method: "PUT"},
	}}}
	store := &mergeRecorder{}
	h := &Hydrator{Backend: backend, Store: store, Now: func() time.Time { return time.UnixMilli(42) }}

	added, err := h.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if added != 2 || len(store.got) != 2 {
		t.Fatalf("added = %d, merged = %d", added, len(store.got))
	}
	if !strings.HasPrefix(store.got[1].ID, "req-") {
		t.Errorf("second id = %q", store.got[1].ID)
	}
}

// TestNormalizeRemote_StableFallbackIDs checks that id-less entries keep
// their id when their position changes and that different requests in the
// same position get different ids.
func TestNormalizeRemote_StableFallbackIDs(t *testing.T) {
	now := time.UnixMilli(1_700_000_500_000)
	profile := models.RemoteRequest{Endpoint: "/user/profile", Method: "PUT", Data: json.RawMessage(`{"name":"a"}`), Timestamp: 1_700_000_000_000}
	alert := models.RemoteRequest{Endpoint: "/alerts/panic", Timestamp: 1_700_000_100_000}

	first := NormalizeRemote([]models.RemoteRequest{profile}, now)
	later := NormalizeRemote([]models.RemoteRequest{alert, profile}, now.Add(time.Minute))

	if later[1].ID != first[0].ID {
		t.Errorf("profile id changed from %q to %q", first[0].ID, later[1].ID)
	}
	if later[0].ID == first[0].ID {
		t.Errorf("different requests share id %q", later[0].ID)
	}

	store := queue.NewStore(nil, queue.Options{})
	if added := store.Merge(first); added != 1 {
		t.Fatalf("first merge added %d", added)
	}
	if added := store.Merge(later); added != 1 {
		t.Errorf("second merge added %d, want only the new request", added)
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
}

func TestHydrator_BackendError(t *testing.T) {
	backend := &fakeBackend{statusErr: newStatusError(401, "expired")}
	h := &Hydrator{Backend: backend, Store: &mergeRecorder{}}

	_, err := h.Hydrate(context.Background())
	if !apperrors.Is(err, apperrors.ErrAuth) {
		t.Errorf("err = %v, want AUTH_ERROR", err)
	}
}
