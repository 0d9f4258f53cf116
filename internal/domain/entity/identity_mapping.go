package entity

import "time"

// IdentityMapping binds an external identity asserted by a third-party
// provider to a local DID. The (provider, external_id) pair is the immutable
// key; at most one DID may ever own it, and the pair is never moved to a
// different DID — conflicting link attempts are rejected, not overwritten.
type IdentityMapping struct {
	Provider   string    `gorm:"primaryKey;size:255;index:idx_mapping_provider_did,priority:1" json:"provider"`
	ExternalID string    `gorm:"primaryKey;size:255;column:external_id" json:"external_id"`
	DID        string    `gorm:"size:255;not null;index:idx_mapping_provider_did,priority:2" json:"did"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Meta is an opaque audit payload (JSON) recorded on each link.
	Meta string `gorm:"type:text" json:"meta,omitempty"`
}

func (IdentityMapping) TableName() string {
	return "identity_mappings"
}
