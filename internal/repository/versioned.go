package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrStaleVersion is returned when a versioned update matched no row because
// another writer committed first. Callers re-read and retry.
var ErrStaleVersion = errors.New("stale document version")

// updateVersioned writes fields to the row identified by id only if its
// version still equals version, bumping the version in the same statement.
func updateVersioned(ctx context.Context, db *gorm.DB, model interface{}, id uint, version int, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	res := db.WithContext(ctx).Model(model).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}
