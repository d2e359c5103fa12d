package catalog

import (
	"fmt"

	"github.com/mx-space/catalog/internal/models"
	"gorm.io/gorm"
)

const externalIDCallback = "catalog:external_id"

// ExternalIDFunc allocates the CRM identifier of a freshly inserted course or course run.
// An empty result leaves the row unassigned.
type ExternalIDFunc func(obj models.ExternallyIdentified) (string, error)

// WithExternalIDs assigns CRM identifiers to inserted courses and runs that have none. The id is
// written to storage only, so callers see it after re-reading the row.
func WithExternalIDs(fn ExternalIDFunc) ServiceOption {
	return func(s *Service) { s.externalIDs = fn }
}

func registerExternalIDs(db *gorm.DB, fn ExternalIDFunc) error {
	cb := func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table == "" {
			return
		}
		obj, ok := tx.Statement.Dest.(models.ExternallyIdentified)
		if !ok || obj.ExternalID() != nil {
			return
		}
		row, ok := tx.Statement.Dest.(interface{ PrimaryKey() string })
		if !ok {
			return
		}
		id, err := fn(obj)
		if err != nil {
			_ = tx.AddError(fmt.Errorf("assign external id: %w", err))
			return
		}
		if id == "" {
			return
		}
		err = tx.Session(&gorm.Session{NewDB: true}).
			Table(tx.Statement.Table).
			Where("id = ?", row.PrimaryKey()).
			UpdateColumn(models.ExternalIDColumn, id).Error
		if err != nil {
			_ = tx.AddError(fmt.Errorf("store external id: %w", err))
		}
	}

	create := db.Callback().Create()
	if create.Get(externalIDCallback) != nil {
		return create.Replace(externalIDCallback, cb)
	}
	return create.After("gorm:create").Register(externalIDCallback, cb)
}
