package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/yourusername/idlink-api/internal/domain/entity"
	"gorm.io/gorm"
)

// EventLogRepo is the append-only event log. Rows carry a ULID id plus a
// bigserial sequence; consumers page by seq and rely on append order.
type EventLogRepo struct {
	db *gorm.DB
}

func NewEventLogRepo(db *gorm.DB) *EventLogRepo {
	return &EventLogRepo{db: db}
}

func (r *EventLogRepo) append(ctx context.Context, eventType, did string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event payload: %w", eventType, err)
	}
	event := entity.Event{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Type:      eventType,
		DID:       did,
		Payload:   string(data),
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return nil
}

func (r *EventLogRepo) AppendIdentityEvent(ctx context.Context, did, handle string) error {
	return r.append(ctx, entity.EventTypeIdentity, did, map[string]string{"handle": handle})
}

func (r *EventLogRepo) AppendAccountEvent(ctx context.Context, did, status string) error {
	return r.append(ctx, entity.EventTypeAccount, did, map[string]string{"status": status})
}

func (r *EventLogRepo) AppendCommitEvent(ctx context.Context, did, root, rev string) error {
	return r.append(ctx, entity.EventTypeCommit, did, map[string]string{"root": root, "rev": rev})
}

func (r *EventLogRepo) AppendSyncEvent(ctx context.Context, did, root, rev string) error {
	return r.append(ctx, entity.EventTypeSync, did, map[string]string{"root": root, "rev": rev})
}
