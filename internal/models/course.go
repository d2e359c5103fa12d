package models

import (
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Course is the run-independent description of an offering.
// Draft and official rows share UUID; the official row points at its draft through DraftVersionID.
type Course struct {
	Base
	UUID      string   `json:"uuid"       gorm:"type:char(36);not null;uniqueIndex:idx_course_uuid_draft"`
	PartnerID string   `json:"partner_id" gorm:"type:char(36);not null;uniqueIndex:idx_course_partner_key_draft"`
	Partner   *Partner `json:"partner,omitempty" gorm:"foreignKey:PartnerID"`
	Key       string   `json:"key"        gorm:"size:191;not null;uniqueIndex:idx_course_partner_key_draft"`

	Title                 string  `json:"title"`
	ShortDescription      string  `json:"short_description"      gorm:"type:text"`
	FullDescription       string  `json:"full_description"       gorm:"type:text"`
	LevelType             string  `json:"level_type"`
	Outcome               string  `json:"outcome"                gorm:"type:text"`
	PrerequisitesRaw      string  `json:"prerequisites_raw"      gorm:"type:text"`
	SyllabusRaw           string  `json:"syllabus_raw"           gorm:"type:text"`
	AdditionalInformation string  `json:"additional_information" gorm:"type:text"`
	FAQ                   string  `json:"faq"                    gorm:"type:text"`
	LearnerTestimonials   string  `json:"learner_testimonials"   gorm:"type:text"`
	VideoID               *string `json:"video_id"               gorm:"type:char(36)"`
	Video                 *Video  `json:"video,omitempty"        gorm:"foreignKey:VideoID"`
	ImageURL              string  `json:"image_url"`
	Slug                  string  `json:"slug"                   gorm:"size:191;index"`

	CanonicalCourseRunID *string    `json:"canonical_course_run_id" gorm:"type:char(36);uniqueIndex"`
	CanonicalCourseRun   *CourseRun `json:"canonical_course_run,omitempty" gorm:"foreignKey:CanonicalCourseRunID"`

	Draft          bool    `json:"draft"            gorm:"not null;default:false;uniqueIndex:idx_course_partner_key_draft;uniqueIndex:idx_course_uuid_draft"`
	DraftVersionID *string `json:"draft_version_id" gorm:"type:char(36);index"`
	SalesforceID   *string `json:"salesforce_id"    gorm:"size:191"`

	Subjects                []Subject      `json:"subjects,omitempty"                 gorm:"many2many:course_subjects"`
	AuthoringOrganizations  []Organization `json:"authoring_organizations,omitempty"  gorm:"many2many:course_authoring_organizations"`
	SponsoringOrganizations []Organization `json:"sponsoring_organizations,omitempty" gorm:"many2many:course_sponsoring_organizations"`

	CourseRuns     []CourseRun         `json:"course_runs,omitempty"      gorm:"foreignKey:CourseID"`
	Entitlements   []CourseEntitlement `json:"entitlements,omitempty"     gorm:"foreignKey:CourseID"`
	URLSlugHistory []CourseURLSlug     `json:"url_slug_history,omitempty" gorm:"foreignKey:CourseID"`
	Editors        []CourseEditor      `json:"editors,omitempty"          gorm:"foreignKey:CourseID"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if err := c.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if c.Slug == "" && c.Title != "" {
		c.Slug = slug.Make(c.Title)
	}
	return nil
}

func (c *Course) IsDraft() bool                 { return c.Draft }
func (c *Course) SetDraft(draft bool)           { c.Draft = draft }
func (c *Course) DraftVersionRef() *string      { return c.DraftVersionID }
func (c *Course) SetDraftVersionRef(id *string) { c.DraftVersionID = id }
func (c *Course) ExternalID() *string           { return c.SalesforceID }
func (c *Course) SetExternalID(id *string)      { c.SalesforceID = id }

// CourseURLSlug is one entry of a course's marketing URL slug history.
type CourseURLSlug struct {
	Base
	CourseID  string `json:"course_id"  gorm:"type:char(36);index;not null"`
	PartnerID string `json:"partner_id" gorm:"type:char(36);not null;uniqueIndex:idx_url_slug_partner_draft"`
	URLSlug   string `json:"url_slug"   gorm:"size:191;not null;uniqueIndex:idx_url_slug_partner_draft"`
	IsActive  bool   `json:"is_active"  gorm:"not null;default:false"`
	Draft     bool   `json:"draft"      gorm:"not null;default:false;uniqueIndex:idx_url_slug_partner_draft"`
}

func (CourseURLSlug) TableName() string { return "course_url_slugs" }

// CourseEditor grants a user edit rights on a draft course.
type CourseEditor struct {
	Base
	CourseID string `json:"course_id" gorm:"type:char(36);index;not null"`
	UserID   string `json:"user_id"   gorm:"size:191;index;not null"`
}

func (CourseEditor) TableName() string { return "course_editors" }
