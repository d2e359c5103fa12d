package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/mx-space/catalog/internal/models"
	"gorm.io/gorm"
)

// ActiveURLSlug returns the course's active marketing slug, empty when it has none.
func ActiveURLSlug(tx *gorm.DB, courseID string) (string, error) {
	var row models.CourseURLSlug
	err := tx.Where("course_id = ? AND is_active = ?", courseID, true).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.URLSlug, nil
}

func (s *Service) SetActiveURLSlug(ctx context.Context, course *models.Course, urlSlug string) (string, error) {
	var active string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		active, err = s.setActiveURLSlug(tx, course, urlSlug)
		return err
	})
	return active, err
}

// setActiveURLSlug makes urlSlug the only active slug of course. An empty slug falls back to the
// default derived from the title. Returns ErrURLSlugConflict when another course holds the slug.
func (s *Service) setActiveURLSlug(tx *gorm.DB, course *models.Course, urlSlug string) (string, error) {
	urlSlug = strings.TrimSpace(urlSlug)
	if urlSlug == "" {
		var err error
		if urlSlug, err = s.defaultURLSlug(tx, course); err != nil {
			return "", err
		}
	}

	taken, err := urlSlugTaken(tx, course, urlSlug)
	if err != nil {
		return "", err
	}
	if taken {
		return "", fmt.Errorf("%w: %s", ErrURLSlugConflict, urlSlug)
	}

	if err := tx.Model(&models.CourseURLSlug{}).
		Where("course_id = ? AND url_slug <> ?", course.ID, urlSlug).
		Update("is_active", false).Error; err != nil {
		return "", fmt.Errorf("deactivate url slugs: %w", err)
	}

	existing, err := first[models.CourseURLSlug](tx, map[string]interface{}{
		"partner_id": course.PartnerID,
		"url_slug":   urlSlug,
		"draft":      course.Draft,
	})
	if err != nil {
		return "", err
	}
	if existing != nil {
		existing.CourseID = course.ID
		existing.IsActive = true
		return urlSlug, Persist(tx, existing, Update)
	}
	row := &models.CourseURLSlug{
		CourseID:  course.ID,
		PartnerID: course.PartnerID,
		URLSlug:   urlSlug,
		IsActive:  true,
		Draft:     course.Draft,
	}
	return urlSlug, Persist(tx, row, Insert)
}

// urlSlugTaken reports whether a different course of the same partner and draft state uses the slug.
// Rows of the course's own pairing (same UUID) do not count.
func urlSlugTaken(tx *gorm.DB, course *models.Course, urlSlug string) (bool, error) {
	var count int64
	err := tx.Model(&models.CourseURLSlug{}).
		Joins("JOIN courses ON courses.id = course_url_slugs.course_id").
		Where("course_url_slugs.partner_id = ? AND course_url_slugs.url_slug = ? AND course_url_slugs.draft = ?",
			course.PartnerID, urlSlug, course.Draft).
		Where("courses.uuid <> ?", course.UUID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check url slug: %w", err)
	}
	return count > 0, nil
}

// defaultURLSlug slugifies the title, suffixing a counter until it is free.
func (s *Service) defaultURLSlug(tx *gorm.DB, course *models.Course) (string, error) {
	base := slug.Make(course.Title)
	if base == "" {
		base = slug.Make(course.Key)
	}
	if base == "" {
		base = "course"
	}
	candidate := base
	for i := 2; ; i++ {
		taken, err := urlSlugTaken(tx, course, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
