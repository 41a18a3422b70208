// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the key/value store behind
// process-wide settings.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-device-backend/internal/domain"
)

// GetSetting returns the stored value for key. found is false (with a nil
// error) when the key has never been written.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (value string, found bool, err error) {
	var s domain.GlobalSetting
	err = db.WithContext(ctx).Where("setting_key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.SettingValue, true, nil
}

// PutSetting upserts key=value; an existing value is replaced.
func PutSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"setting_value"}),
		}).
		Create(&domain.GlobalSetting{SettingKey: key, SettingValue: value}).Error
}
