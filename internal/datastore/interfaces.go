// interfaces.go defines the store interface and its GORM implementation
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Interface abstracts the local persistent store. Every method is a single
// statement or transaction; callers serialize higher level sequences.
type Interface interface {
	Open() error
	Close() error

	// checklist cache
	SaveChecklist(ctx context.Context, c *CachedChecklist) error
	GetChecklist(ctx context.Context, code string) (*CachedChecklist, error)
	DeleteChecklistsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// pending submissions
	EnqueueSubmission(ctx context.Context, s *PendingSubmission) error
	ListPending(ctx context.Context) ([]PendingSubmission, error)
	GetPending(ctx context.Context, id uint) (*PendingSubmission, error)
	DeletePending(ctx context.Context, id uint) error
	RecordAttempt(ctx context.Context, id uint, at time.Time, errMsg string) error
	CountPending(ctx context.Context) (int64, error)

	// equipment catalogue
	SaveEquipmentCodes(ctx context.Context, codes []CachedEquipmentCode) error
	ListEquipmentCodes(ctx context.Context) ([]CachedEquipmentCode, error)
}

// DataStore implements Interface on a GORM database
type DataStore struct {
	DB *gorm.DB
}

func (ds *DataStore) ready(operation string) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Context("operation", operation).
			Build()
	}
	return nil
}

// SaveChecklist inserts or overwrites the cached checklist for its code
func (ds *DataStore) SaveChecklist(ctx context.Context, c *CachedChecklist) error {
	if err := ds.ready("save_checklist"); err != nil {
		return err
	}
	if c == nil || c.EquipmentCode == "" {
		return validationError("equipment code is required", "equipment_code", "")
	}

	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(c).Error
	if err != nil {
		return dbError(err, "save_checklist", "equipment_code", c.EquipmentCode)
	}
	return nil
}

// GetChecklist returns the cached row regardless of age. Validity is the
// caller's decision.
func (ds *DataStore) GetChecklist(ctx context.Context, code string) (*CachedChecklist, error) {
	if err := ds.ready("get_checklist"); err != nil {
		return nil, err
	}

	var c CachedChecklist
	err := ds.DB.WithContext(ctx).Where("equipment_code = ?", code).Take(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_checklist", "equipment_code", code)
		}
		return nil, dbError(err, "get_checklist", "equipment_code", code)
	}
	return &c, nil
}

// DeleteChecklistsBefore removes cache rows stamped before cutoff
func (ds *DataStore) DeleteChecklistsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ds.ready("prune_checklists"); err != nil {
		return 0, err
	}

	result := ds.DB.WithContext(ctx).Where("cached_at < ?", cutoff).Delete(&CachedChecklist{})
	if result.Error != nil {
		return 0, dbError(result.Error, "prune_checklists", "cutoff", cutoff)
	}
	return result.RowsAffected, nil
}

// EnqueueSubmission persists s and fills in its ID
func (ds *DataStore) EnqueueSubmission(ctx context.Context, s *PendingSubmission) error {
	if err := ds.ready("enqueue_submission"); err != nil {
		return err
	}
	if s == nil || s.Reference == "" {
		return validationError("submission reference is required", "reference", "")
	}

	if err := ds.DB.WithContext(ctx).Create(s).Error; err != nil {
		return dbError(err, "enqueue_submission",
			"equipment_code", s.EquipmentCode,
			"reference", s.Reference)
	}
	return nil
}

// ListPending returns queued submissions in insertion order
func (ds *DataStore) ListPending(ctx context.Context) ([]PendingSubmission, error) {
	if err := ds.ready("list_pending"); err != nil {
		return nil, err
	}

	var rows []PendingSubmission
	if err := ds.DB.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_pending")
	}
	return rows, nil
}

// GetPending returns one queued submission
func (ds *DataStore) GetPending(ctx context.Context, id uint) (*PendingSubmission, error) {
	if err := ds.ready("get_pending"); err != nil {
		return nil, err
	}

	var row PendingSubmission
	if err := ds.DB.WithContext(ctx).Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_pending", "id", id)
		}
		return nil, dbError(err, "get_pending", "id", id)
	}
	return &row, nil
}

// DeletePending removes one queued submission
func (ds *DataStore) DeletePending(ctx context.Context, id uint) error {
	if err := ds.ready("delete_pending"); err != nil {
		return err
	}

	result := ds.DB.WithContext(ctx).Delete(&PendingSubmission{}, id)
	if result.Error != nil {
		return dbError(result.Error, "delete_pending", "id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("delete_pending", "id", id)
	}
	return nil
}

// RecordAttempt stamps a failed delivery attempt
func (ds *DataStore) RecordAttempt(ctx context.Context, id uint, at time.Time, errMsg string) error {
	if err := ds.ready("record_attempt"); err != nil {
		return err
	}

	result := ds.DB.WithContext(ctx).Model(&PendingSubmission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
			"last_error":      errMsg,
		})
	if result.Error != nil {
		return dbError(result.Error, "record_attempt", "id", id)
	}
	return nil
}

// CountPending returns the number of queued rows
func (ds *DataStore) CountPending(ctx context.Context) (int64, error) {
	if err := ds.ready("count_pending"); err != nil {
		return 0, err
	}

	var n int64
	if err := ds.DB.WithContext(ctx).Model(&PendingSubmission{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_pending")
	}
	return n, nil
}

// SaveEquipmentCodes replaces the catalogue in one transaction
func (ds *DataStore) SaveEquipmentCodes(ctx context.Context, codes []CachedEquipmentCode) error {
	if err := ds.ready("save_equipment_codes"); err != nil {
		return err
	}

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CachedEquipmentCode{}).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&codes).Error
	})
	if err != nil {
		return dbError(err, "save_equipment_codes", "count", len(codes))
	}
	return nil
}

// ListEquipmentCodes returns the catalogue ordered by code
func (ds *DataStore) ListEquipmentCodes(ctx context.Context) ([]CachedEquipmentCode, error) {
	if err := ds.ready("list_equipment_codes"); err != nil {
		return nil, err
	}

	var rows []CachedEquipmentCode
	if err := ds.DB.WithContext(ctx).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_equipment_codes")
	}
	return rows, nil
}

// performAutoMigration creates or updates the schema
func performAutoMigration(db *gorm.DB, dbType string) error {
	if err := db.AutoMigrate(&CachedChecklist{}, &PendingSubmission{}, &CachedEquipmentCode{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	return nil
}
