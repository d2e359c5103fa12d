package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeatType is the enrollment tier a seat sells.
type SeatType string

const (
	SeatAudit        SeatType = "audit"
	SeatVerified     SeatType = "verified"
	SeatProfessional SeatType = "professional"
	SeatCredit       SeatType = "credit"
	SeatMasters      SeatType = "masters"
)

// DefaultCurrency is used when an upstream record leaves the currency blank.
const DefaultCurrency = "USD"

// EntitlementModes are the seat types an entitlement can be derived from.
var EntitlementModes = []SeatType{SeatVerified, SeatProfessional}

// NonProductModes are seat types never sold through the commerce service.
var NonProductModes = []SeatType{SeatCredit, SeatMasters}

// IsEntitlementMode reports whether t can back a course entitlement.
func (t SeatType) IsEntitlementMode() bool {
	for _, m := range EntitlementModes {
		if m == t {
			return true
		}
	}
	return false
}

// IsProduct reports whether seats of type t are published to commerce.
func (t SeatType) IsProduct() bool {
	for _, m := range NonProductModes {
		if m == t {
			return false
		}
	}
	return true
}

// Seat is a purchasable enrollment tier of one course run.
type Seat struct {
	Base
	CourseRunID     string          `json:"course_run_id"    gorm:"type:char(36);not null;uniqueIndex:idx_seat_identity"`
	Type            SeatType        `json:"type"             gorm:"size:64;not null;uniqueIndex:idx_seat_identity"`
	Price           decimal.Decimal `json:"price"            gorm:"type:decimal(10,2);not null;default:0"`
	Currency        string          `json:"currency"         gorm:"size:3;not null;default:'USD';uniqueIndex:idx_seat_identity"`
	UpgradeDeadline *time.Time      `json:"upgrade_deadline"`
	CreditProvider  string          `json:"credit_provider"  gorm:"size:191;not null;default:'';uniqueIndex:idx_seat_identity"`
	CreditHours     *int            `json:"credit_hours"`
	SKU             *string         `json:"sku"              gorm:"size:128"`
	BulkSKU         *string         `json:"bulk_sku"         gorm:"size:128"`

	Draft          bool    `json:"draft"            gorm:"not null;default:false;uniqueIndex:idx_seat_identity"`
	DraftVersionID *string `json:"draft_version_id" gorm:"type:char(36);index"`
}

func (Seat) TableName() string { return "seats" }

func (s *Seat) IsDraft() bool                 { return s.Draft }
func (s *Seat) SetDraft(draft bool)           { s.Draft = draft }
func (s *Seat) DraftVersionRef() *string      { return s.DraftVersionID }
func (s *Seat) SetDraftVersionRef(id *string) { s.DraftVersionID = id }

// CourseEntitlement is a course-level product not tied to a specific run.
type CourseEntitlement struct {
	Base
	CourseID             string          `json:"course_id"  gorm:"type:char(36);not null;uniqueIndex:idx_entitlement_identity"`
	PartnerID            string          `json:"partner_id" gorm:"type:char(36);index"`
	Mode                 SeatType        `json:"mode"       gorm:"size:64;not null;uniqueIndex:idx_entitlement_identity"`
	Price                decimal.Decimal `json:"price"      gorm:"type:decimal(10,2);not null;default:0"`
	Currency             string          `json:"currency"   gorm:"size:3;not null;default:'USD'"`
	SKU                  *string         `json:"sku"        gorm:"size:128"`
	ExpirationPeriodDays *int            `json:"expiration_period_days"`

	Draft          bool    `json:"draft"            gorm:"not null;default:false;uniqueIndex:idx_entitlement_identity"`
	DraftVersionID *string `json:"draft_version_id" gorm:"type:char(36);index"`
}

func (CourseEntitlement) TableName() string { return "course_entitlements" }

func (e *CourseEntitlement) IsDraft() bool                 { return e.Draft }
func (e *CourseEntitlement) SetDraft(draft bool)           { e.Draft = draft }
func (e *CourseEntitlement) DraftVersionRef() *string      { return e.DraftVersionID }
func (e *CourseEntitlement) SetDraftVersionRef(id *string) { e.DraftVersionID = id }
