package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
)

// Merger accepts backend-reported entries; *queue.Store implements it.
type Merger interface {
	Merge(entries []models.QueuedRequest) int
}

// Hydrator seeds the local queue from GET /offline/status.
type Hydrator struct {
	Backend Backend
	Store   Merger
	Now     func() time.Time
}

// Hydrate fetches the backend's view and merges unknown entries into the
// store. It returns how many entries were added.
func (h *Hydrator) Hydrate(ctx context.Context) (int, error) {
	status, err := h.Backend.OfflineStatus(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ReplayCode(err), "fetch offline status", err)
	}
	if status == nil {
		return 0, nil
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	entries := NormalizeRemote(status.Requests, now())
	added := h.Store.Merge(entries)
	logging.Info("Hydrated offline queue", map[string]interface{}{
		"reported": len(entries),
		"added":    added,
	})
	return added, nil
}

// NormalizeRemote fills the gaps in loosely-typed backend entries: a missing
// id is derived from the request's content, a missing endpoint falls back to
// url then /unknown, and method, timestamp and status default to POST, now
// and pending.
func NormalizeRemote(reqs []models.RemoteRequest, now time.Time) []models.QueuedRequest {
	out := make([]models.QueuedRequest, 0, len(reqs))
	for _, r := range reqs {
		q := models.QueuedRequest{
			ID:       r.ID,
			Endpoint: r.Endpoint,
			Retries:  r.Retries,
		}
		if q.Endpoint == "" {
			q.Endpoint = r.URL
		}
		if q.Endpoint == "" {
			q.Endpoint = "/unknown"
		}
		if m, ok := models.ParseMethod(r.Method); ok {
			q.Method = m
		} else {
			q.Method = models.MethodPost
		}
		if len(r.Data) > 0 && string(r.Data) != "null" {
			q.Payload = append(json.RawMessage(nil), r.Data...)
		}
		if q.ID == "" {
			q.ID = contentID(q.Method, q.Endpoint, r.Timestamp, q.Payload)
		}
		if r.Timestamp > 0 {
			q.CreatedAt = time.UnixMilli(r.Timestamp)
		} else {
			q.CreatedAt = now
		}
		q.Status = models.Status(r.Status)
		if !q.Status.Valid() {
			q.Status = models.StatusPending
		}
		if q.Retries < 0 {
			q.Retries = 0
		}
		out = append(out, q)
	}
	return out
}

// contentID names an id-less backend entry by what it does, so the same
// request keeps its id across hydrations wherever it appears in the list.
func contentID(method models.Method, endpoint string, timestamp int64, payload json.RawMessage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%d\n", method, endpoint, timestamp)
	h.Write(payload)
	return "req-" + hex.EncodeToString(h.Sum(nil))[:16]
}
