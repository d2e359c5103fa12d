package catalog

import (
	"context"
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type entitlementTerms struct {
	Mode     models.SeatType
	Price    decimal.Decimal
	Currency string
}

func (t *entitlementTerms) equal(o *entitlementTerms) bool {
	if t == nil || o == nil {
		return t == nil && o == nil
	}
	return t.Mode == o.Mode && t.Price.Equal(o.Price) && t.Currency == o.Currency
}

// calculateEntitlementForRun returns terms only when exactly one seat can back an entitlement.
func calculateEntitlementForRun(seats []models.Seat) *entitlementTerms {
	var match *models.Seat
	for i := range seats {
		if !seats[i].Type.IsEntitlementMode() {
			continue
		}
		if match != nil {
			return nil
		}
		match = &seats[i]
	}
	if match == nil {
		return nil
	}
	return &entitlementTerms{Mode: match.Type, Price: match.Price, Currency: match.Currency}
}

// calculateEntitlementForCourse looks at the active runs, or the latest run when none is active.
// Every candidate run must agree on the terms.
func (s *Service) calculateEntitlementForCourse(tx *gorm.DB, course *models.Course) (*entitlementTerms, error) {
	var runs []models.CourseRun
	if err := tx.Preload("Seats", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("course_id = ?", course.ID).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("load course runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}

	now := s.now()
	var candidates []models.CourseRun
	for _, r := range runs {
		if r.IsActive(now) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		candidates = runs[len(runs)-1:]
	}

	terms := calculateEntitlementForRun(candidates[0].Seats)
	for _, r := range candidates[1:] {
		if !terms.equal(calculateEntitlementForRun(r.Seats)) {
			return nil, nil
		}
	}
	return terms, nil
}

// CreateMissingEntitlement adds an entitlement derived from the course's seats. For official
// courses with a canonical run the new entitlement is pushed to commerce right away.
func (s *Service) CreateMissingEntitlement(ctx context.Context, course *models.Course) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.createMissingEntitlement(ctx, tx, course)
		return err
	})
	if err != nil || !created {
		return created, err
	}

	if !course.Draft && course.CanonicalCourseRunID != nil {
		run, err := s.GetCourseRun(ctx, ScopeOfficial, *course.CanonicalCourseRunID)
		if err != nil {
			return true, err
		}
		if run != nil {
			if _, err := s.PushToEcommerceForCourseRun(ctx, run); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

func (s *Service) createMissingEntitlement(ctx context.Context, tx *gorm.DB, course *models.Course) (bool, error) {
	terms, err := s.calculateEntitlementForCourse(tx, course)
	if err != nil || terms == nil {
		return false, err
	}

	ent := &models.CourseEntitlement{
		CourseID:  course.ID,
		PartnerID: course.PartnerID,
		Mode:      terms.Mode,
		Price:     terms.Price,
		Currency:  terms.Currency,
		Draft:     course.Draft,
	}
	if err := Persist(tx, ent, Insert); err != nil {
		return false, fmt.Errorf("create entitlement: %w", err)
	}
	s.logger.Info("created missing entitlement",
		zap.String("course", course.Key),
		zap.Bool("draft", course.Draft),
		zap.String("mode", string(ent.Mode)),
		zap.String("price", ent.Price.StringFixed(2)),
	)
	return true, nil
}
