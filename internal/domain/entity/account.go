package entity

import "time"

// Account is the local registration of a DID: its handle and the current
// root of its content-addressed repository.
type Account struct {
	DID           string     `gorm:"primaryKey;size:255" json:"did"`
	Handle        string     `gorm:"size:253;not null;uniqueIndex" json:"handle"`
	RepoRoot      string     `gorm:"size:255" json:"repo_root,omitempty"`
	RepoRev       string     `gorm:"size:64" json:"repo_rev,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}

// Status reports the account lifecycle state consumed by the event log.
func (a *Account) Status() string {
	if a.DeactivatedAt != nil {
		return "deactivated"
	}
	return "active"
}
