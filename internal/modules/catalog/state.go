package catalog

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/mx-space/catalog/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// publishable constrains the generic state helpers to pointer-to-model types.
type publishable[T any] interface {
	*T
	models.Publishable
}

// setDraftState turns obj into a new draft row. attrs runs before the insert; related replaces
// many-to-many associations by name after it. The stored original ends up pointing at the draft.
func setDraftState[T any, P publishable[T]](tx *gorm.DB, obj P, attrs func(P), related map[string]interface{}) (P, P, error) {
	original := P(new(T))
	if err := tx.First(original, "id = ?", obj.PrimaryKey()).Error; err != nil {
		return nil, nil, fmt.Errorf("load original: %w", err)
	}

	obj.SetPrimaryKey(uuid.New().String())
	obj.SetDraft(true)
	obj.SetDraftVersionRef(nil)
	if attrs != nil {
		attrs(obj)
	}
	if err := Persist(tx, obj, Insert); err != nil {
		return nil, nil, fmt.Errorf("insert draft: %w", err)
	}

	for name, value := range related {
		if err := replaceAssociation(tx, obj, name, value); err != nil {
			return nil, nil, err
		}
	}

	if ext, ok := any(obj).(models.ExternallyIdentified); ok {
		fresh := P(new(T))
		if err := tx.First(fresh, "id = ?", obj.PrimaryKey()).Error; err != nil {
			return nil, nil, fmt.Errorf("reload draft: %w", err)
		}
		id := any(fresh).(models.ExternallyIdentified).ExternalID()
		ext.SetExternalID(id)
		any(original).(models.ExternallyIdentified).SetExternalID(id)
	}

	draftID := obj.PrimaryKey()
	original.SetDraftVersionRef(&draftID)
	if err := Persist(tx, original, Update); err != nil {
		return nil, nil, fmt.Errorf("link original to draft: %w", err)
	}

	if err := copyManyToMany(tx, original, obj, related, false); err != nil {
		return nil, nil, err
	}
	return obj, original, nil
}

// setOfficialState writes obj as the official row of its pairing. A draft reuses the primary key of
// its existing official counterpart when there is one. attrs is applied last and saved again.
func setOfficialState[T any, P publishable[T]](tx *gorm.DB, obj P, attrs func(P)) (P, error) {
	if obj.IsDraft() {
		draftID := obj.PrimaryKey()
		snapshot := P(new(T))
		if err := tx.First(snapshot, "id = ?", draftID).Error; err != nil {
			return nil, fmt.Errorf("load draft: %w", err)
		}

		intent := Insert
		official := P(new(T))
		err := tx.Where(map[string]interface{}{"draft_version_id": draftID, "draft": false}).First(official).Error
		switch {
		case err == nil:
			obj.SetPrimaryKey(official.PrimaryKey())
			intent = Update
		case errors.Is(err, gorm.ErrRecordNotFound):
			obj.SetPrimaryKey(uuid.New().String())
		default:
			return nil, fmt.Errorf("find official counterpart: %w", err)
		}

		obj.SetDraft(false)
		obj.SetDraftVersionRef(&draftID)
		if course, ok := any(obj).(*models.Course); ok {
			canonical, err := officialCounterpartID(tx, &models.CourseRun{}, course.CanonicalCourseRunID)
			if err != nil {
				return nil, err
			}
			course.CanonicalCourseRunID = canonical
		}
		if err := Persist(tx, obj, intent); err != nil {
			return nil, fmt.Errorf("%s official row: %w", intent, err)
		}
		if err := copyManyToMany(tx, snapshot, obj, nil, true); err != nil {
			return nil, err
		}
	}

	if attrs != nil {
		attrs(obj)
		if err := Persist(tx, obj, Update); err != nil {
			return nil, fmt.Errorf("apply official attributes: %w", err)
		}
	}
	return obj, nil
}

// officialCounterpartID maps a draft row id onto the id of its official row, nil when there is none.
func officialCounterpartID(tx *gorm.DB, model interface{}, draftID *string) (*string, error) {
	if draftID == nil {
		return nil, nil
	}
	var ids []string
	err := tx.Model(model).
		Where(map[string]interface{}{"draft_version_id": *draftID, "draft": false}).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("resolve official counterpart: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

func manyToManyRelations(tx *gorm.DB, model interface{}) ([]*schema.Relationship, error) {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(model); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return stmt.Schema.Relationships.Many2Many, nil
}

// copyManyToMany copies every declared many-to-many association from src to dst, skipping names in
// skip. With replace the destination set is cleared first; otherwise items are added.
func copyManyToMany(tx *gorm.DB, src, dst interface{}, skip map[string]interface{}, replace bool) error {
	rels, err := manyToManyRelations(tx, dst)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if _, ok := skip[rel.Name]; ok {
			continue
		}
		items := reflect.New(rel.Field.FieldType)
		if err := tx.Model(src).Association(rel.Name).Find(items.Interface()); err != nil {
			return fmt.Errorf("load %s: %w", rel.Name, err)
		}
		if replace {
			if err := tx.Model(dst).Association(rel.Name).Clear(); err != nil {
				return fmt.Errorf("clear %s: %w", rel.Name, err)
			}
		}
		if items.Elem().Len() == 0 {
			continue
		}
		// An association is single-use: Clear leaves its statement bound to the join table.
		if err := tx.Model(dst).Association(rel.Name).Append(items.Elem().Interface()); err != nil {
			return fmt.Errorf("copy %s: %w", rel.Name, err)
		}
	}
	return nil
}

// replaceAssociation sets a many-to-many association to exactly value.
func replaceAssociation(tx *gorm.DB, obj interface{}, name string, value interface{}) error {
	assoc := tx.Model(obj).Association(name)
	if value == nil || reflect.ValueOf(value).Len() == 0 {
		if err := assoc.Clear(); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
		return nil
	}
	if err := assoc.Replace(value); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
