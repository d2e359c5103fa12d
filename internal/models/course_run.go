package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Pacing types.
const (
	PacingInstructor = "instructor_paced"
	PacingSelf       = "self_paced"
)

// CourseRun is one scheduled offering of a course.
type CourseRun struct {
	Base
	UUID     string  `json:"uuid"      gorm:"type:char(36);not null;uniqueIndex:idx_run_uuid_draft"`
	CourseID string  `json:"course_id" gorm:"type:char(36);index;not null"`
	Course   *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Key      string  `json:"key"       gorm:"size:191;not null;uniqueIndex:idx_run_key_draft"`

	TitleOverride       string     `json:"title_override"`
	Start               *time.Time `json:"start"`
	End                 *time.Time `json:"end"`
	EnrollmentStart     *time.Time `json:"enrollment_start"`
	EnrollmentEnd       *time.Time `json:"enrollment_end"`
	PacingType          string     `json:"pacing_type"`
	MinEffort           *int       `json:"min_effort"`
	MaxEffort           *int       `json:"max_effort"`
	WeeksToComplete     *int       `json:"weeks_to_complete"`
	LanguageCode        *string    `json:"language_code"  gorm:"size:50"`
	HasOFACRestrictions bool       `json:"has_ofac_restrictions"`
	ExternalKey         string     `json:"external_key"`
	ExpectedProgramName string     `json:"expected_program_name"`
	ExpectedProgramType string     `json:"expected_program_type"`
	Slug                string     `json:"slug"           gorm:"size:191;index"`

	TypeID *string        `json:"type_id" gorm:"type:char(36)"`
	Type   *CourseRunType `json:"type,omitempty" gorm:"foreignKey:TypeID"`

	Draft          bool    `json:"draft"            gorm:"not null;default:false;uniqueIndex:idx_run_key_draft;uniqueIndex:idx_run_uuid_draft"`
	DraftVersionID *string `json:"draft_version_id" gorm:"type:char(36);index"`
	SalesforceID   *string `json:"salesforce_id"    gorm:"size:191"`

	Staff               []Person      `json:"staff,omitempty"                gorm:"many2many:course_run_staff"`
	TranscriptLanguages []LanguageTag `json:"transcript_languages,omitempty" gorm:"many2many:course_run_transcript_languages"`

	Seats []Seat `json:"seats,omitempty" gorm:"foreignKey:CourseRunID"`
}

func (CourseRun) TableName() string { return "course_runs" }

func (r *CourseRun) BeforeCreate(tx *gorm.DB) error {
	if err := r.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if r.Slug == "" && r.Key != "" {
		r.Slug = slug.Make(r.Key)
	}
	return nil
}

func (r *CourseRun) IsDraft() bool                 { return r.Draft }
func (r *CourseRun) SetDraft(draft bool)           { r.Draft = draft }
func (r *CourseRun) DraftVersionRef() *string      { return r.DraftVersionID }
func (r *CourseRun) SetDraftVersionRef(id *string) { r.DraftVersionID = id }
func (r *CourseRun) ExternalID() *string           { return r.SalesforceID }
func (r *CourseRun) SetExternalID(id *string)      { r.SalesforceID = id }

// Title returns the override when set, falling back to the loaded course title.
func (r *CourseRun) Title() string {
	if r.TitleOverride != "" {
		return r.TitleOverride
	}
	if r.Course != nil {
		return r.Course.Title
	}
	return ""
}

// IsActive reports whether the run is still current or upcoming at now.
func (r *CourseRun) IsActive(now time.Time) bool {
	if r.End != nil && !r.End.After(now) {
		return false
	}
	if r.EnrollmentEnd != nil && !r.EnrollmentEnd.After(now) {
		return false
	}
	return true
}

// CourseRunType classifies runs and lists the enrollment tracks they offer.
type CourseRunType struct {
	Base
	UUID   string  `json:"uuid"   gorm:"type:char(36);uniqueIndex"`
	Slug   string  `json:"slug"   gorm:"size:191;uniqueIndex"`
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks,omitempty" gorm:"many2many:course_run_type_tracks"`
}

func (CourseRunType) TableName() string { return "course_run_types" }

// Track is an enrollment mode, optionally backed by a seat type.
type Track struct {
	Base
	ModeSlug string    `json:"mode_slug" gorm:"size:64;not null"`
	ModeName string    `json:"mode_name"`
	SeatType *SeatType `json:"seat_type" gorm:"size:64"`
}

func (Track) TableName() string { return "tracks" }
