package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mx-space/catalog/internal/models"
	"github.com/mx-space/catalog/internal/pkg/ecommerce"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UpgradeDeadline applies the upgrade deadline rules: only verified seats have one, an explicit
// deadline wins, otherwise it is the end of the day `days` before the run ends.
func UpgradeDeadline(seatType models.SeatType, explicit, runEnd *time.Time, days int) *time.Time {
	if seatType != models.SeatVerified {
		return nil
	}
	if explicit != nil {
		return explicit
	}
	if runEnd == nil {
		return nil
	}
	d := runEnd.AddDate(0, 0, -days)
	deadline := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, d.Location())
	return &deadline
}

func (s *Service) UpgradeDeadlineDays() int { return s.upgradeDeadlineDays }

func serializeSeat(seat *models.Seat, deadline *time.Time) ecommerce.Product {
	certificate := string(seat.Type)
	if seat.Type == models.SeatAudit {
		certificate = ""
	}
	return ecommerce.Product{
		Expires:      ecommerce.FormatTime(deadline),
		Price:        seat.Price.StringFixed(2),
		ProductClass: "Seat",
		AttributeValues: []ecommerce.AttributeValue{
			{Name: "certificate_type", Value: certificate},
			{Name: "id_verification_required", Value: seat.Type == models.SeatVerified || seat.Type == models.SeatProfessional},
		},
	}
}

func serializeEntitlement(ent *models.CourseEntitlement) ecommerce.Product {
	return ecommerce.Product{
		Price:        ent.Price.StringFixed(2),
		ProductClass: "Course Entitlement",
		AttributeValues: []ecommerce.AttributeValue{
			{Name: "certificate_type", Value: string(ent.Mode)},
		},
	}
}

// skuTarget is a local row that receives a SKU from commerce.
type skuTarget struct {
	model          interface{}
	id             string
	draftVersionID *string
}

// PushToEcommerceForCourseRun publishes the seats of an official run and its course entitlements
// to commerce, then stores the returned SKUs on the rows and their drafts. Returns false when the
// partner has no commerce client or there is nothing to publish.
func (s *Service) PushToEcommerceForCourseRun(ctx context.Context, run *models.CourseRun) (bool, error) {
	course, err := s.runCourse(ctx, run)
	if err != nil {
		return false, err
	}
	if s.clients == nil {
		return false, nil
	}
	client := s.clients.Ecommerce(course.Partner)
	if client == nil {
		return false, nil
	}

	db := s.db.WithContext(ctx)
	var seats []models.Seat
	if err := db.Where("course_run_id = ?", run.ID).
		Where("type NOT IN ?", models.NonProductModes).
		Order("created_at ASC").
		Find(&seats).Error; err != nil {
		return false, err
	}
	var entitlements []models.CourseEntitlement
	if err := db.Where("course_id = ?", course.ID).
		Order("created_at ASC").
		Find(&entitlements).Error; err != nil {
		return false, err
	}

	var products []ecommerce.Product
	var targets []skuTarget
	for i := range seats {
		seat := &seats[i]
		deadline := UpgradeDeadline(seat.Type, seat.UpgradeDeadline, run.End, s.upgradeDeadlineDays)
		products = append(products, serializeSeat(seat, deadline))
		targets = append(targets, skuTarget{model: &models.Seat{}, id: seat.ID, draftVersionID: seat.DraftVersionID})
	}
	for i := range entitlements {
		ent := &entitlements[i]
		products = append(products, serializeEntitlement(ent))
		targets = append(targets, skuTarget{model: &models.CourseEntitlement{}, id: ent.ID, draftVersionID: ent.DraftVersionID})
	}
	if len(products) == 0 {
		return false, nil
	}

	req := ecommerce.PublicationRequest{
		ID:                   run.Key,
		UUID:                 course.UUID,
		Name:                 run.Title(),
		VerificationDeadline: ecommerce.FormatTime(run.End),
		Products:             products,
	}
	resp, err := client.Publish(ctx, req)
	var logged interface{}
	if resp != nil {
		logged = resp
	}
	s.recordPush(ctx, models.PushEcommerce, course.PartnerID, run.Key, req, logged, err)
	if err != nil {
		s.logger.Error("ecommerce publication failed", zap.String("key", run.Key), zap.Error(err))
		return false, err
	}

	if len(resp.Products) != len(targets) {
		s.logger.Warn("ecommerce returned a different number of products",
			zap.String("key", run.Key),
			zap.Int("sent", len(targets)),
			zap.Int("received", len(resp.Products)),
		)
		return true, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for i, target := range targets {
			sku := resp.Products[i].PartnerSKU
			if sku == "" {
				continue
			}
			if err := tx.Model(target.model).Where("id = ?", target.id).Update("sku", sku).Error; err != nil {
				return fmt.Errorf("store sku: %w", err)
			}
			if target.draftVersionID != nil {
				if err := tx.Model(target.model).Where("id = ?", *target.draftVersionID).Update("sku", sku).Error; err != nil {
					return fmt.Errorf("store draft sku: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return true, err
	}
	return true, nil
}

// runCourse returns the run's course with its partner, loading what the caller did not preload.
func (s *Service) runCourse(ctx context.Context, run *models.CourseRun) (*models.Course, error) {
	if run.Course != nil && run.Course.ID == run.CourseID && run.Course.Partner != nil {
		return run.Course, nil
	}
	course, err := mustFirst[models.Course](s.db.WithContext(ctx).Preload("Partner"), "id = ?", run.CourseID)
	if err != nil {
		return nil, err
	}
	if course.Partner == nil {
		return nil, fmt.Errorf("partner of course %s: %w", course.Key, ErrNotFound)
	}
	run.Course = course
	return course, nil
}

func (s *Service) recordPush(ctx context.Context, target models.PushTarget, partnerID, runKey string, req, resp interface{}, pushErr error) {
	entry := models.PushLog{
		Target:       target,
		PartnerID:    partnerID,
		CourseRunKey: runKey,
		Success:      pushErr == nil,
		Timestamp:    s.now(),
	}
	if raw, err := json.Marshal(req); err == nil {
		entry.Request = datatypes.JSON(raw)
	}
	if resp != nil {
		if raw, err := json.Marshal(resp); err == nil {
			entry.Response = datatypes.JSON(raw)
		}
	}
	if pushErr != nil {
		entry.Error = pushErr.Error()
		var apiErr *ecommerce.APIError
		var statusErr *ecommerce.StatusError
		switch {
		case errors.As(pushErr, &apiErr):
			entry.Status = apiErr.Status
		case errors.As(pushErr, &statusErr):
			entry.Status = statusErr.Status
		}
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("failed to record push", zap.String("target", string(target)), zap.Error(err))
	}
}
