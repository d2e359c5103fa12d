package models

import (
	"time"

	"gorm.io/datatypes"
)

// PushTarget names the external service a push went to.
type PushTarget string

const (
	PushEcommerce PushTarget = "ecommerce"
	PushLMS       PushTarget = "lms"
	PushMarketing PushTarget = "marketing"
)

// PushLog is the audit trail of outbound pushes to partner services.
// Local writes are never rolled back when a push fails, so this is what reconciliation reads.
type PushLog struct {
	Base
	Target       PushTarget     `json:"target"        gorm:"size:32;index;not null"`
	PartnerID    string         `json:"partner_id"    gorm:"type:char(36);index"`
	CourseRunKey string         `json:"course_run_key" gorm:"size:191;index"`
	Request      datatypes.JSON `json:"request"`
	Response     datatypes.JSON `json:"response"`
	Success      bool           `json:"success"`
	Status       int            `json:"status"`
	Error        string         `json:"error,omitempty" gorm:"type:text"`
	Timestamp    time.Time      `json:"timestamp"     gorm:"index"`
}

func (PushLog) TableName() string { return "push_logs" }
