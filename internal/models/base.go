package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the base model for all catalog rows.
// ID is a UUID string so draft and official rows can be allocated keys before insert.
type Base struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// PrimaryKey returns the row identifier.
func (b *Base) PrimaryKey() string { return b.ID }

// SetPrimaryKey replaces the row identifier in memory.
func (b *Base) SetPrimaryKey(id string) { b.ID = id }

// Publishable is implemented by every entity that exists as a draft and an official row.
type Publishable interface {
	PrimaryKey() string
	SetPrimaryKey(id string)
	IsDraft() bool
	SetDraft(draft bool)
	DraftVersionRef() *string
	SetDraftVersionRef(id *string)
}

// ExternalIDColumn holds the CRM identifier of courses and course runs.
const ExternalIDColumn = "salesforce_id"

// ExternallyIdentified is implemented by entities carrying an identifier assigned by the CRM.
type ExternallyIdentified interface {
	ExternalID() *string
	SetExternalID(id *string)
}
