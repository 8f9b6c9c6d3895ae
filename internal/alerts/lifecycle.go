package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vigilai/vigil-core/internal/data"
)

// ErrInvalidStatus marks a lifecycle update with an unrecognized status.
var ErrInvalidStatus = errors.New("invalid alert status")

// LifecycleUpdate is a partial update to an alert's lifecycle fields.
// Nil pointers mean "not supplied".
type LifecycleUpdate struct {
	Status         *string `json:"status,omitempty"`
	AcknowledgedBy *string `json:"acknowledged_by,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// LifecycleStore is the persistence surface the lifecycle service needs.
type LifecycleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Alert, error)
	Update(ctx context.Context, a *data.Alert) error
	List(ctx context.Context, f data.AlertFilter) ([]*data.Alert, error)
	Stats(ctx context.Context) (*data.AlertStats, error)
}

// Service applies alert lifecycle transitions and rebroadcasts updates.
type Service struct {
	store LifecycleStore
	hub   Broadcaster
}

func NewService(store LifecycleStore, hub Broadcaster) *Service {
	return &Service{store: store, hub: hub}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*data.Alert, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f data.AlertFilter) ([]*data.Alert, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Stats(ctx context.Context) (*data.AlertStats, error) {
	return s.store.Stats(ctx)
}

// Update applies upd to the alert, persists it and broadcasts the change.
func (s *Service) Update(ctx context.Context, id uuid.UUID, upd LifecycleUpdate) (*data.Alert, error) {
	alert, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyLifecycle(alert, upd, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, alert); err != nil {
		return nil, err
	}

	s.hub.BroadcastAlertUpdate(alert.ID, alert)
	return alert, nil
}

// applyLifecycle mutates the alert per the transition rules: each lifecycle
// timestamp is set at most once (first transition wins), repeated or
// backward status writes are timestamp no-ops, and supplied metadata fields
// always overwrite.
func applyLifecycle(a *data.Alert, upd LifecycleUpdate, now time.Time) error {
	if upd.Status != nil {
		switch *upd.Status {
		case data.AlertStatusNew:
			// Accepted as a no-op target; the record never reverts.
		case data.AlertStatusAcknowledged:
			if a.AcknowledgedAt == nil {
				a.AcknowledgedAt = &now
			}
			if a.Status == data.AlertStatusNew {
				a.Status = data.AlertStatusAcknowledged
			}
		case data.AlertStatusResolved:
			if a.ResolvedAt == nil {
				a.ResolvedAt = &now
			}
			a.Status = data.AlertStatusResolved
		default:
			return fmt.Errorf("%w: %q", ErrInvalidStatus, *upd.Status)
		}
	}

	if upd.AcknowledgedBy != nil {
		a.AcknowledgedBy = *upd.AcknowledgedBy
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	return nil
}
