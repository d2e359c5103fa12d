package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PublisherCourse is the editorial record a catalog course is published from.
type PublisherCourse struct {
	Base
	PartnerID             string  `json:"partner_id" gorm:"type:char(36);index;not null"`
	Key                   string  `json:"key"        gorm:"size:191;index;not null"`
	Title                 string  `json:"title"`
	ShortDescription      string  `json:"short_description"      gorm:"type:text"`
	FullDescription       string  `json:"full_description"       gorm:"type:text"`
	LevelType             string  `json:"level_type"`
	VideoLink             string  `json:"video_link"`
	ExpectedLearnings     string  `json:"expected_learnings"     gorm:"type:text"`
	Prerequisites         string  `json:"prerequisites"          gorm:"type:text"`
	Syllabus              string  `json:"syllabus"               gorm:"type:text"`
	AdditionalInformation string  `json:"additional_information" gorm:"type:text"`
	FAQ                   string  `json:"faq"                    gorm:"type:text"`
	LearnerTestimonial    string  `json:"learner_testimonial"    gorm:"type:text"`
	ImageKey              string  `json:"image_key"`
	URLSlug               string  `json:"url_slug"`
	PrimarySubjectID      *string `json:"primary_subject_id"   gorm:"type:char(36)"`
	SecondarySubjectID    *string `json:"secondary_subject_id" gorm:"type:char(36)"`
	TertiarySubjectID     *string `json:"tertiary_subject_id"  gorm:"type:char(36)"`

	Organizations []Organization               `json:"organizations,omitempty" gorm:"many2many:publisher_course_organizations"`
	Entitlements  []PublisherCourseEntitlement `json:"entitlements,omitempty"  gorm:"foreignKey:CourseID"`
	CourseRuns    []PublisherCourseRun         `json:"course_runs,omitempty"   gorm:"foreignKey:CourseID"`
}

func (PublisherCourse) TableName() string { return "publisher_courses" }

// SubjectIDs returns primary, secondary and tertiary subjects in order, skipping unset ones.
func (c *PublisherCourse) SubjectIDs() []string {
	var ids []string
	for _, id := range []*string{c.PrimarySubjectID, c.SecondarySubjectID, c.TertiarySubjectID} {
		if id != nil && *id != "" {
			ids = append(ids, *id)
		}
	}
	return ids
}

// PublisherCourseRun is the editorial record of one run.
type PublisherCourseRun struct {
	Base
	CourseID            string           `json:"course_id"     gorm:"type:char(36);index;not null"`
	Course              *PublisherCourse `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	LMSCourseID         string           `json:"lms_course_id" gorm:"size:191;index"`
	StartDate           *time.Time       `json:"start_date"`
	EndDate             *time.Time       `json:"end_date"`
	PacingType          string           `json:"pacing_type"`
	TitleOverride       string           `json:"title_override"`
	MinEffort           *int             `json:"min_effort"`
	MaxEffort           *int             `json:"max_effort"`
	LanguageCode        *string          `json:"language_code" gorm:"size:50"`
	Length              *int             `json:"length"`
	HasOFACRestrictions bool             `json:"has_ofac_restrictions"`
	ExternalKey         string           `json:"external_key"`
	ExpectedProgramName string           `json:"expected_program_name"`
	ExpectedProgramType string           `json:"expected_program_type"`

	TranscriptLanguages []LanguageTag   `json:"transcript_languages,omitempty" gorm:"many2many:publisher_course_run_transcript_languages"`
	Staff               []Person        `json:"staff,omitempty"                gorm:"many2many:publisher_course_run_staff"`
	Seats               []PublisherSeat `json:"seats,omitempty"                gorm:"foreignKey:CourseRunID"`
}

func (PublisherCourseRun) TableName() string { return "publisher_course_runs" }

// PublisherSeat is an editorial seat definition.
type PublisherSeat struct {
	Base
	CourseRunID     string          `json:"course_run_id" gorm:"type:char(36);index;not null"`
	Type            SeatType        `json:"type"          gorm:"size:64;not null"`
	Price           decimal.Decimal `json:"price"         gorm:"type:decimal(10,2);not null;default:0"`
	Currency        string          `json:"currency"      gorm:"size:3"`
	UpgradeDeadline *time.Time      `json:"upgrade_deadline"`
	MastersTrack    bool            `json:"masters_track"`
}

func (PublisherSeat) TableName() string { return "publisher_seats" }

// PublisherCourseEntitlement is an editorial course-level product.
type PublisherCourseEntitlement struct {
	Base
	CourseID string          `json:"course_id" gorm:"type:char(36);index;not null"`
	Mode     SeatType        `json:"mode"      gorm:"size:64;not null"`
	Price    decimal.Decimal `json:"price"     gorm:"type:decimal(10,2);not null;default:0"`
	Currency string          `json:"currency"  gorm:"size:3"`
}

func (PublisherCourseEntitlement) TableName() string { return "publisher_course_entitlements" }
