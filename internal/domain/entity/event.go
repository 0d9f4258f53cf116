package entity

import "time"

// Event types appended by the provisioning saga, in this fixed order for a
// newly created account. Downstream consumers assume monotonic,
// causally-ordered delivery.
const (
	EventTypeIdentity = "identity"
	EventTypeAccount  = "account"
	EventTypeCommit   = "commit"
	EventTypeSync     = "sync"
)

// Event is a single append-only event log entry. ID is a ULID (sortable,
// unique across instances); Seq is the local monotonic sequence consumers
// page through.
type Event struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Seq       int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	Type      string    `gorm:"size:16;not null;index" json:"type"`
	DID       string    `gorm:"size:255;not null;index;column:did" json:"did"`
	Payload   string    `gorm:"type:text" json:"payload,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}
