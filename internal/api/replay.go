package api

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
)

// Replay modes accepted in configuration.
const (
	ModeDirect = "direct"
	ModeRelay  = "relay"
)

// Replayer sends one queued request to the backend. A nil error means the
// backend accepted it.
type Replayer interface {
	Replay(ctx context.Context, req models.QueuedRequest) error
}

// NewReplayer picks a replay strategy by mode name.
func NewReplayer(mode string, backend Backend) (Replayer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeDirect:
		return &DirectReplayer{Backend: backend}, nil
	case ModeRelay:
		return &RelayReplayer{Backend: backend}, nil
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown replay mode %q", mode))
	}
}

// DirectReplayer sends each entry to its own endpoint.
type DirectReplayer struct {
	Backend Backend
}

// Replay implements Replayer.
func (r *DirectReplayer) Replay(ctx context.Context, req models.QueuedRequest) error {
	return r.Backend.Send(ctx, req.Method, req.Endpoint, req.Payload)
}

// RelayReplayer posts each entry as a one-element batch to /offline/process
// and lets the backend fan it out.
type RelayReplayer struct {
	Backend Backend
}

// Replay implements Replayer.
func (r *RelayReplayer) Replay(ctx context.Context, req models.QueuedRequest) error {
	result, err := r.Backend.ProcessOffline(ctx, []models.ProcessRequest{{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Data:     req.Payload,
	}})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	for _, outcome := range result.Results {
		if outcome.Status >= 400 {
			msg := outcome.Error
			if msg == "" {
				msg = "relayed request rejected"
			}
			return apperrors.FromHTTPStatus(outcome.Status, msg)
		}
	}
	if result.Failed > 0 {
		// No per-request status: treat as transient so the retry cap bounds it.
		return apperrors.New(apperrors.ErrNetwork, fmt.Sprintf("relay reported %d failed", result.Failed))
	}
	return nil
}
