package models

import "strings"

// Partner scopes catalog data and carries the credentials used to reach partner services.
type Partner struct {
	Base
	Name      string `json:"name"       gorm:"not null"`
	ShortCode string `json:"short_code" gorm:"size:64;uniqueIndex;not null"`

	EcommerceAPIURL     string `json:"ecommerce_api_url"`
	LMSURL              string `json:"lms_url"`
	LMSCoursemodeAPIURL string `json:"lms_coursemode_api_url"`

	OAuth2ProviderURL  string `json:"oauth2_provider_url"`
	OAuth2ClientID     string `json:"-"`
	OAuth2ClientSecret string `json:"-"`

	MarketingSiteURLRoot     string `json:"marketing_site_url_root"`
	MarketingSiteAPIUsername string `json:"-"`
	MarketingSiteAPIPassword string `json:"-"`
}

func (Partner) TableName() string { return "partners" }

// HasOAuthCredentials reports whether an API client can be built for the partner.
func (p *Partner) HasOAuthCredentials() bool {
	return strings.TrimSpace(p.OAuth2ProviderURL) != "" &&
		strings.TrimSpace(p.OAuth2ClientID) != "" &&
		strings.TrimSpace(p.OAuth2ClientSecret) != ""
}

// Organization is an institution authoring or sponsoring courses.
type Organization struct {
	Base
	PartnerID    string `json:"partner_id"    gorm:"type:char(36);uniqueIndex:idx_org_partner_key"`
	Key          string `json:"key"           gorm:"size:191;uniqueIndex:idx_org_partner_key"`
	Name         string `json:"name"`
	Description  string `json:"description"   gorm:"type:text"`
	HomepageURL  string `json:"homepage_url"`
	LogoImageURL string `json:"logo_image_url"`
}

func (Organization) TableName() string { return "organizations" }

// Subject is a topical classification of courses.
type Subject struct {
	Base
	PartnerID string `json:"partner_id" gorm:"type:char(36);uniqueIndex:idx_subject_partner_slug"`
	Slug      string `json:"slug"       gorm:"size:191;uniqueIndex:idx_subject_partner_slug"`
	Name      string `json:"name"`
}

func (Subject) TableName() string { return "subjects" }

// Person is course staff.
type Person struct {
	Base
	PartnerID  string `json:"partner_id"  gorm:"type:char(36);index"`
	UUID       string `json:"uuid"        gorm:"type:char(36);uniqueIndex"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (Person) TableName() string { return "people" }

// LanguageTag is a locale code such as en-us.
type LanguageTag struct {
	Code string `json:"code" gorm:"size:50;primaryKey"`
	Name string `json:"name"`
}

func (LanguageTag) TableName() string { return "language_tags" }

// Video is a promotional video referenced by courses.
type Video struct {
	Base
	Src         string `json:"src"         gorm:"size:191;uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
	ImageURL    string `json:"image_url"`
}

func (Video) TableName() string { return "videos" }
